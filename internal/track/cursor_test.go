package track

import (
	"reflect"
	"testing"
)

func TestCursorSet_AdvanceUnknownIgnored(t *testing.T) {
	set := NewCursorSet("0-0")
	set.Advance("cdc:ghost", "1-1")
	if set.Len() != 0 {
		t.Errorf("advance must not create entries, got %d", set.Len())
	}
}

func TestCursorSet_MapIsACopy(t *testing.T) {
	set := NewCursorSet("0-0")
	set.Register("cdc:orders")

	m := set.Map()
	m["cdc:orders"] = "9-9"

	if cur, _ := set.Cursor("cdc:orders"); cur != "0-0" {
		t.Errorf("mutating the copy changed the set: %q", cur)
	}
}

func TestCursorSet_Names(t *testing.T) {
	set := NewCursorSet("$")
	set.Register("b")
	set.Register("a")
	if got := set.Names(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("expected sorted names, got %v", got)
	}
}
