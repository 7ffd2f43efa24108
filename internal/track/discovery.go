package track

import (
	"path"
	"sort"
)

// Set is the registry discovery inserts into. Register must never disturb
// an already-tracked entry.
type Set interface {
	Has(name string) bool
	Register(name string)
}

// NameSet is a plain Set of source names, used where positions are kept
// elsewhere (e.g. per-partition in a Tracker keyed off the topic name).
type NameSet struct {
	names map[string]struct{}
}

// NewNameSet creates an empty NameSet.
func NewNameSet() *NameSet {
	return &NameSet{names: make(map[string]struct{})}
}

// Has reports whether the name is tracked.
func (s *NameSet) Has(name string) bool {
	_, ok := s.names[name]
	return ok
}

// Register adds the name.
func (s *NameSet) Register(name string) {
	s.names[name] = struct{}{}
}

// Len returns the number of tracked names.
func (s *NameSet) Len() int { return len(s.names) }

// Names returns tracked names in sorted order.
func (s *NameSet) Names() []string {
	names := make([]string, 0, len(s.names))
	for name := range s.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DiscoveryOptions filter the names a transport enumerates.
type DiscoveryOptions struct {
	// Patterns are glob or exact name patterns. Empty matches everything.
	Patterns []string
	// Exclude lists names that are never tracked.
	Exclude []string
}

// DiscoveryResult reports one discovery run.
type DiscoveryResult struct {
	Discovered []string // all matching names visible this run, sorted
	Added      []string // names newly registered this run, sorted
}

// Discover filters the enumerated names and registers every matching name
// not already in the set. Re-running with an unchanged name list adds
// nothing and leaves existing entries untouched.
func Discover(set Set, names []string, opts DiscoveryOptions) DiscoveryResult {
	var res DiscoveryResult
	for _, name := range names {
		if !opts.match(name) {
			continue
		}
		res.Discovered = append(res.Discovered, name)
		if set.Has(name) {
			continue
		}
		set.Register(name)
		res.Added = append(res.Added, name)
	}
	sort.Strings(res.Discovered)
	sort.Strings(res.Added)
	return res
}

func (o DiscoveryOptions) match(name string) bool {
	for _, ex := range o.Exclude {
		if name == ex {
			return false
		}
	}
	if len(o.Patterns) == 0 {
		return true
	}
	for _, p := range o.Patterns {
		if p == name {
			return true
		}
		if ok, err := path.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}
