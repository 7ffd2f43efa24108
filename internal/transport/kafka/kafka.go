// Package kafka implements the offset-poll transport adapter: topics are
// enumerated and end/committed offsets fetched in batched admin calls.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cdcscope/cdcscope/internal/kafkacfg"
	"github.com/cdcscope/cdcscope/internal/track"
	"github.com/cdcscope/cdcscope/internal/transport"
	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Config holds Kafka adapter configuration.
type Config struct {
	Cluster  *kafkacfg.ClusterConfig
	ClientID string // default: cdcscope-<random>
	Group    string // optional; enables committed-offset/lag reporting
}

// admin abstracts the kadm client methods used by the adapter for testing.
type admin interface {
	ListTopics(ctx context.Context, topics ...string) (kadm.TopicDetails, error)
	ListEndOffsets(ctx context.Context, topics ...string) (kadm.ListedOffsets, error)
	FetchOffsets(ctx context.Context, group string) (kadm.OffsetResponses, error)
}

// pinger abstracts the kgo client methods used by the adapter for testing.
type pinger interface {
	Ping(ctx context.Context) error
	Close()
}

// Adapter polls a Kafka cluster for topic end offsets. It implements
// transport.OffsetPoller; committed offsets are exposed separately by
// GroupAdapter so that the capability is absent when no group is configured.
type Adapter struct {
	client pinger
	admin  admin
	logger *slog.Logger
	lc     *transport.Lifecycle
}

// GroupAdapter is an Adapter with a consumer-group identity; it additionally
// implements transport.CommittedFetcher.
type GroupAdapter struct {
	*Adapter
	group string
}

// NewAdapter connects to the cluster and returns an offset-poll adapter.
// A connection failure here is fatal for the caller. When cfg.Group is set
// the returned adapter also implements transport.CommittedFetcher.
func NewAdapter(ctx context.Context, cfg Config, logger *slog.Logger) (transport.OffsetPoller, error) {
	if cfg.Cluster == nil {
		return nil, fmt.Errorf("cluster config is required")
	}
	if err := cfg.Cluster.Validate(); err != nil {
		return nil, fmt.Errorf("cluster config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "cdcscope-" + uuid.NewString()[:8]
	}

	opts, err := kafkacfg.ClientOptions(cfg.Cluster, clientID)
	if err != nil {
		return nil, fmt.Errorf("cluster options: %w", err)
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("kafka connect %v: %w", cfg.Cluster.Brokers, err)
	}

	a := &Adapter{
		client: client,
		admin:  kadm.NewClient(client),
		logger: logger,
		lc:     transport.NewLifecycle(),
	}
	_ = a.lc.To(transport.StateConnected)

	if cfg.Group != "" {
		return &GroupAdapter{Adapter: a, group: cfg.Group}, nil
	}
	return a, nil
}

// Lifecycle returns the adapter lifecycle machine.
func (a *Adapter) Lifecycle() *transport.Lifecycle { return a.lc }

// ListSources enumerates non-internal topic names.
func (a *Adapter) ListSources(ctx context.Context) ([]string, error) {
	details, err := a.admin.ListTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	names := details.Names()
	sort.Strings(names)
	return names, nil
}

// FetchEndOffsets fetches the end offset of every partition of the given
// topics in one admin call.
func (a *Adapter) FetchEndOffsets(ctx context.Context, sources []string) (map[track.Key]uint64, error) {
	if len(sources) == 0 {
		return map[track.Key]uint64{}, nil
	}
	listed, err := a.admin.ListEndOffsets(ctx, sources...)
	if err != nil {
		return nil, fmt.Errorf("list end offsets: %w", err)
	}

	ends := make(map[track.Key]uint64)
	listed.Each(func(o kadm.ListedOffset) {
		if o.Err != nil || o.Offset < 0 {
			return
		}
		ends[track.PartitionKey(o.Topic, o.Partition)] = uint64(o.Offset)
	})
	return ends, nil
}

// Poll keeps the broker connection alive between metric samples.
func (a *Adapter) Poll(ctx context.Context, timeout time.Duration) {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := a.client.Ping(pingCtx); err != nil && ctx.Err() == nil {
		a.logger.Debug("keep-alive ping failed", "error", err)
	}
}

// Close shuts the client down.
func (a *Adapter) Close() error {
	a.client.Close()
	return nil
}

// FetchCommittedOffsets fetches the group's committed offset per partition,
// filtered to the given sources. Partitions without a commit are omitted.
func (g *GroupAdapter) FetchCommittedOffsets(ctx context.Context, sources []string) (map[track.Key]uint64, error) {
	resp, err := g.admin.FetchOffsets(ctx, g.group)
	if err != nil {
		return nil, fmt.Errorf("fetch committed offsets for %q: %w", g.group, err)
	}

	wanted := make(map[string]bool, len(sources))
	for _, s := range sources {
		wanted[s] = true
	}

	committed := make(map[track.Key]uint64)
	resp.Each(func(o kadm.OffsetResponse) {
		if o.Err != nil || o.At < 0 || !wanted[o.Topic] {
			return
		}
		committed[track.PartitionKey(o.Topic, o.Partition)] = uint64(o.At)
	})
	return committed, nil
}
