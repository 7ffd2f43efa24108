package event

import "encoding/json"

// Normalize converts a raw payload into a canonical Event. It is total:
// any parse or shape problem degrades to defaults rather than failing.
func Normalize(raw []byte) Event {
	var top map[string]any
	if err := json.Unmarshal(raw, &top); err != nil || top == nil {
		return unknownEvent(raw)
	}
	return fromMaps(top, unwrapEnvelope(top), raw)
}

// NormalizeFields converts a transport field map (e.g. a redis stream entry)
// into a canonical Event. The payload is expected in a "json" field; when
// that is absent the first value is tried. Envelope fields such as db/table/txn
// set directly on the entry take precedence over the payload.
func NormalizeFields(fields map[string]string) Event {
	rawJSON, ok := fields["json"]
	if !ok {
		for _, v := range fields {
			rawJSON = v
			break
		}
	}

	evt := Normalize([]byte(rawJSON))
	if v, ok := fields["db"]; ok && v != "" {
		evt.DB = v
	}
	if v, ok := fields["table"]; ok && v != "" {
		evt.Table = v
	}
	if v, ok := fields["txn"]; ok && v != "" {
		evt.Txn = v
	}
	return evt
}

// unwrapEnvelope resolves the payload map from a possibly-wrapped top-level
// structure. Some transports nest the canonical JSON as a string inside a
// single envelope field; in that case the nested object is decoded and the
// recursion stops there (one level only). Otherwise top itself is the payload.
func unwrapEnvelope(top map[string]any) map[string]any {
	if _, ok := top["type"]; ok {
		return top
	}
	if len(top) != 1 {
		return top
	}
	for _, v := range top {
		s, ok := v.(string)
		if !ok {
			return top
		}
		var inner map[string]any
		if err := json.Unmarshal([]byte(s), &inner); err != nil || inner == nil {
			return top
		}
		return inner
	}
	return top
}

// fromMaps builds the Event, resolving each field from the envelope first
// and the payload second.
func fromMaps(envelope, payload map[string]any, raw []byte) Event {
	evt := Event{
		DB:    stringField(envelope, payload, "db", defaultField),
		Table: stringField(envelope, payload, "table", defaultField),
		Txn:   stringField(envelope, payload, "txn", defaultTxn),
		Type:  TypeUnknown,
		Raw:   raw,
	}

	if t, ok := stringValue(envelope, "type"); ok {
		evt.Type = ParseType(t)
	} else if t, ok := stringValue(payload, "type"); ok {
		evt.Type = ParseType(t)
	}

	if rows, ok := payload["rows"].([]any); ok {
		evt.Rows = parseRows(rows)
	}
	return evt
}

func parseRows(raw []any) []Row {
	rows := make([]Row, 0, len(raw))
	for _, r := range raw {
		obj, ok := r.(map[string]any)
		if !ok {
			rows = append(rows, Row{})
			continue
		}
		before, hasBefore := obj["before"].(map[string]any)
		after, hasAfter := obj["after"].(map[string]any)
		if hasBefore || hasAfter {
			rows = append(rows, Row{Before: before, After: after})
			continue
		}
		rows = append(rows, Row{Fields: obj})
	}
	return rows
}

func stringField(envelope, payload map[string]any, key, fallback string) string {
	if v, ok := stringValue(envelope, key); ok {
		return v
	}
	if v, ok := stringValue(payload, key); ok {
		return v
	}
	return fallback
}

func stringValue(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
