package kafka

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/cdcscope/cdcscope/internal/track"
	"github.com/cdcscope/cdcscope/internal/transport"
	"github.com/twmb/franz-go/pkg/kadm"
)

// --- Mocks ---

type mockAdmin struct {
	topics    kadm.TopicDetails
	ends      kadm.ListedOffsets
	committed kadm.OffsetResponses
	err       error
}

func (m *mockAdmin) ListTopics(_ context.Context, _ ...string) (kadm.TopicDetails, error) {
	return m.topics, m.err
}

func (m *mockAdmin) ListEndOffsets(_ context.Context, _ ...string) (kadm.ListedOffsets, error) {
	return m.ends, m.err
}

func (m *mockAdmin) FetchOffsets(_ context.Context, _ string) (kadm.OffsetResponses, error) {
	return m.committed, m.err
}

type mockPinger struct {
	pingErr error
	closed  bool
}

func (m *mockPinger) Ping(_ context.Context) error { return m.pingErr }
func (m *mockPinger) Close()                       { m.closed = true }

func newTestAdapter(adm admin) *Adapter {
	return &Adapter{
		client: &mockPinger{},
		admin:  adm,
		logger: slog.Default(),
		lc:     transport.NewLifecycle(),
	}
}

func TestListSources_Sorted(t *testing.T) {
	adm := &mockAdmin{topics: kadm.TopicDetails{
		"users":  {Topic: "users"},
		"orders": {Topic: "orders"},
	}}

	names, err := newTestAdapter(adm).ListSources(context.Background())
	if err != nil {
		t.Fatalf("list sources: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"orders", "users"}) {
		t.Errorf("unexpected names: %v", names)
	}
}

func TestFetchEndOffsets(t *testing.T) {
	adm := &mockAdmin{ends: kadm.ListedOffsets{
		"orders": {
			0: {Topic: "orders", Partition: 0, Offset: 100},
			1: {Topic: "orders", Partition: 1, Offset: 50},
			2: {Topic: "orders", Partition: 2, Offset: 7, Err: errors.New("not leader")},
		},
	}}

	ends, err := newTestAdapter(adm).FetchEndOffsets(context.Background(), []string{"orders"})
	if err != nil {
		t.Fatalf("fetch end offsets: %v", err)
	}

	want := map[track.Key]uint64{
		track.PartitionKey("orders", 0): 100,
		track.PartitionKey("orders", 1): 50,
	}
	if !reflect.DeepEqual(ends, want) {
		t.Errorf("expected %v, got %v", want, ends)
	}
}

func TestFetchEndOffsets_EmptySourceList(t *testing.T) {
	adm := &mockAdmin{err: errors.New("should not be called")}
	ends, err := newTestAdapter(adm).FetchEndOffsets(context.Background(), nil)
	if err != nil {
		t.Fatalf("expected no call for empty sources, got %v", err)
	}
	if len(ends) != 0 {
		t.Errorf("expected empty map, got %v", ends)
	}
}

func TestFetchCommittedOffsets_FiltersAndSkipsUncommitted(t *testing.T) {
	adm := &mockAdmin{committed: kadm.OffsetResponses{
		"orders": {
			0: {Offset: kadm.Offset{Topic: "orders", Partition: 0, At: 90}},
			1: {Offset: kadm.Offset{Topic: "orders", Partition: 1, At: -1}},
		},
		"other": {
			0: {Offset: kadm.Offset{Topic: "other", Partition: 0, At: 5}},
		},
	}}
	g := &GroupAdapter{Adapter: newTestAdapter(adm), group: "monitor"}

	committed, err := g.FetchCommittedOffsets(context.Background(), []string{"orders"})
	if err != nil {
		t.Fatalf("fetch committed: %v", err)
	}

	want := map[track.Key]uint64{track.PartitionKey("orders", 0): 90}
	if !reflect.DeepEqual(committed, want) {
		t.Errorf("expected %v, got %v", want, committed)
	}
}

func TestFetchEndOffsets_TransportError(t *testing.T) {
	adm := &mockAdmin{err: errors.New("broker down")}
	if _, err := newTestAdapter(adm).FetchEndOffsets(context.Background(), []string{"orders"}); err == nil {
		t.Error("expected error to propagate")
	}
}

func TestPoll_ToleratesPingFailure(t *testing.T) {
	a := newTestAdapter(&mockAdmin{})
	a.client = &mockPinger{pingErr: errors.New("timeout")}
	// Must not panic or block beyond the bound.
	a.Poll(context.Background(), 10*time.Millisecond)
}

func TestNewAdapter_RequiresCluster(t *testing.T) {
	if _, err := NewAdapter(context.Background(), Config{}, nil); err == nil {
		t.Error("expected error for missing cluster config")
	}
}

func TestGroupAdapter_ImplementsCommittedFetcher(t *testing.T) {
	var adapter transport.OffsetPoller = newTestAdapter(&mockAdmin{})
	if _, ok := adapter.(transport.CommittedFetcher); ok {
		t.Error("plain adapter must not expose the committed capability")
	}

	adapter = &GroupAdapter{Adapter: newTestAdapter(&mockAdmin{}), group: "g"}
	if _, ok := adapter.(transport.CommittedFetcher); !ok {
		t.Error("group adapter must expose the committed capability")
	}
}
