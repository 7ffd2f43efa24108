package redisstream

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testAdapter(t *testing.T) (*Adapter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	a := newWithClient(client, nil)
	t.Cleanup(func() { _ = a.Close() })
	return a, mr
}

func TestListStreams_FiltersByTypeAndPattern(t *testing.T) {
	a, mr := testAdapter(t)
	ctx := context.Background()

	mr.XAdd("cdc:orders", "1-1", []string{"json", "{}"})
	mr.XAdd("cdc.users", "1-1", []string{"json", "{}"})
	mr.Set("cdc:notastream", "value")
	mr.XAdd("app:logs", "1-1", []string{"json", "{}"})

	names, err := a.ListStreams(ctx, []string{"cdc:*", "cdc.*"})
	if err != nil {
		t.Fatalf("list streams: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"cdc.users", "cdc:orders"}) {
		t.Errorf("unexpected streams: %v", names)
	}
}

func TestReadNext_ReturnsEntriesAndFields(t *testing.T) {
	a, mr := testAdapter(t)
	ctx := context.Background()

	mr.XAdd("cdc:orders", "1-1", []string{"json", `{"type":"INSERT"}`, "db", "shop"})
	mr.XAdd("cdc:orders", "1-2", []string{"json", `{"type":"COMMIT"}`})

	items, err := a.ReadNext(ctx, map[string]string{"cdc:orders": "0-0"}, 50, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("read next: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Stream != "cdc:orders" || items[0].ID != "1-1" {
		t.Errorf("unexpected first item: %+v", items[0])
	}
	if items[0].Fields["db"] != "shop" {
		t.Errorf("expected field map, got %v", items[0].Fields)
	}
}

func TestReadNext_ResumesFromCursor(t *testing.T) {
	a, mr := testAdapter(t)
	ctx := context.Background()

	mr.XAdd("cdc:orders", "1-1", []string{"json", "{}"})
	mr.XAdd("cdc:orders", "2-1", []string{"json", "{}"})

	items, err := a.ReadNext(ctx, map[string]string{"cdc:orders": "1-1"}, 50, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("read next: %v", err)
	}
	if len(items) != 1 || items[0].ID != "2-1" {
		t.Errorf("expected only the entry past the cursor, got %+v", items)
	}
}

func TestReadNext_NoCursorsIsNoop(t *testing.T) {
	a, _ := testAdapter(t)
	items, err := a.ReadNext(context.Background(), nil, 50, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("read next: %v", err)
	}
	if items != nil {
		t.Errorf("expected nil for empty cursor map, got %v", items)
	}
}

func TestTail(t *testing.T) {
	a, mr := testAdapter(t)

	mr.XAdd("cdc:orders", "5-1", []string{"json", "{}"})
	id, err := a.Tail(context.Background(), "cdc:orders")
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if id != "5-1" {
		t.Errorf("expected tail 5-1, got %s", id)
	}
}

func TestEntryTime(t *testing.T) {
	at := EntryTime("1700000000000-3")
	if !at.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("unexpected entry time: %v", at)
	}
	if !EntryTime("garbage").IsZero() {
		t.Error("malformed id should yield zero time")
	}
}
