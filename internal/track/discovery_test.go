package track

import (
	"reflect"
	"testing"
)

func TestDiscover_Idempotent(t *testing.T) {
	set := NewCursorSet("0-0")

	res := Discover(set, []string{"cdc:orders"}, DiscoveryOptions{Patterns: []string{"cdc:*"}})
	if !reflect.DeepEqual(res.Discovered, []string{"cdc:orders"}) {
		t.Fatalf("unexpected discovered: %v", res.Discovered)
	}
	if !reflect.DeepEqual(res.Added, []string{"cdc:orders"}) {
		t.Fatalf("unexpected added: %v", res.Added)
	}

	// Advance the cursor, then rediscover: nothing added, cursor untouched.
	set.Advance("cdc:orders", "1700000000000-5")

	res = Discover(set, []string{"cdc:orders"}, DiscoveryOptions{Patterns: []string{"cdc:*"}})
	if len(res.Added) != 0 {
		t.Errorf("second run must add nothing, got %v", res.Added)
	}
	if cur, _ := set.Cursor("cdc:orders"); cur != "1700000000000-5" {
		t.Errorf("rediscovery reset the cursor to %q", cur)
	}
}

func TestDiscover_PatternsAndExcludes(t *testing.T) {
	set := NewNameSet()
	names := []string{"cdc.users", "cdc:orders", "app:logs", "__consumer_offsets"}

	res := Discover(set, names, DiscoveryOptions{
		Patterns: []string{"cdc:*", "cdc.*"},
		Exclude:  []string{"cdc.users"},
	})

	want := []string{"cdc:orders"}
	if !reflect.DeepEqual(res.Discovered, want) {
		t.Errorf("expected %v, got %v", want, res.Discovered)
	}
	if set.Has("app:logs") || set.Has("__consumer_offsets") || set.Has("cdc.users") {
		t.Errorf("unexpected names registered: %v", set.Names())
	}
}

func TestDiscover_ExactMatchAndEmptyPatterns(t *testing.T) {
	set := NewNameSet()

	res := Discover(set, []string{"orders", "users"}, DiscoveryOptions{Patterns: []string{"orders"}})
	if !reflect.DeepEqual(res.Discovered, []string{"orders"}) {
		t.Errorf("exact pattern should match only orders, got %v", res.Discovered)
	}

	// No patterns tracks everything not excluded.
	res = Discover(set, []string{"orders", "users"}, DiscoveryOptions{Exclude: []string{"users"}})
	if !reflect.DeepEqual(res.Discovered, []string{"orders"}) {
		t.Errorf("expected only orders, got %v", res.Discovered)
	}
}

func TestDiscover_NewSourceAppearsLater(t *testing.T) {
	set := NewCursorSet("$")

	Discover(set, []string{"cdc:orders"}, DiscoveryOptions{Patterns: []string{"cdc:*"}})
	res := Discover(set, []string{"cdc:orders", "cdc:users"}, DiscoveryOptions{Patterns: []string{"cdc:*"}})

	if !reflect.DeepEqual(res.Added, []string{"cdc:users"}) {
		t.Errorf("expected only the new stream added, got %v", res.Added)
	}
	if cur, _ := set.Cursor("cdc:users"); cur != "$" {
		t.Errorf("new stream should start at initial cursor, got %q", cur)
	}
}
