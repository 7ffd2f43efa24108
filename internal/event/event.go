// Package event defines the canonical CDC event shape and the normalizer
// that produces it from raw transport payloads.
package event

import "strings"

// Type classifies a CDC event.
type Type string

const (
	TypeInsert  Type = "INSERT"
	TypeUpdate  Type = "UPDATE"
	TypeDelete  Type = "DELETE"
	TypeCommit  Type = "COMMIT"
	TypeDDL     Type = "DDL"
	TypeUnknown Type = "UNKNOWN"
)

// Types lists all event types in display order.
var Types = []Type{TypeInsert, TypeUpdate, TypeDelete, TypeCommit, TypeDDL, TypeUnknown}

// ParseType maps a raw type string to a Type. Matching is case-insensitive
// and anything unrecognized becomes TypeUnknown.
func ParseType(s string) Type {
	u := strings.ToUpper(strings.TrimSpace(s))
	switch u {
	case "INSERT":
		return TypeInsert
	case "UPDATE":
		return TypeUpdate
	case "DELETE":
		return TypeDelete
	case "COMMIT":
		return TypeCommit
	case "DDL":
		return TypeDDL
	}
	// DDL events may carry a suffix (e.g. "DDL_CREATE").
	if strings.HasPrefix(u, "DDL") {
		return TypeDDL
	}
	return TypeUnknown
}

// Row is a single row change. UPDATE events carry Before/After images;
// INSERT and DELETE carry a flat field map in Fields.
type Row struct {
	Before map[string]any `json:"before,omitempty"`
	After  map[string]any `json:"after,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Event is the canonical, transport-independent CDC event.
type Event struct {
	DB    string `json:"db"`
	Table string `json:"table"`
	Txn   string `json:"txn"`
	Type  Type   `json:"type"`
	Rows  []Row  `json:"rows"`

	// Raw retains the original payload for diagnostics.
	Raw []byte `json:"-"`
}

const (
	defaultField = "?"
	defaultTxn   = "none"
)

func unknownEvent(raw []byte) Event {
	return Event{
		DB:    defaultField,
		Table: defaultField,
		Txn:   defaultTxn,
		Type:  TypeUnknown,
		Raw:   raw,
	}
}
