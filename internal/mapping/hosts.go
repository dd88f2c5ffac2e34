package mapping

import (
	"sort"
	"strings"
)

// HostSet is an immutable set of lowercased host names that make up "the
// site". Hosts outside the set are mapped into the external namespace.
type HostSet struct {
	exact map[string]struct{}
}

// NewHostSet builds a HostSet, lowercasing and trimming entries and skipping
// blanks.
func NewHostSet(hosts ...string) HostSet {
	set := HostSet{exact: make(map[string]struct{}, len(hosts))}
	for _, raw := range hosts {
		value := strings.TrimSpace(strings.ToLower(raw))
		if value == "" {
			continue
		}
		set.exact[value] = struct{}{}
	}
	return set
}

// Contains reports whether host (compared case-insensitively) is part of the
// site.
func (s HostSet) Contains(host string) bool {
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return false
	}
	_, ok := s.exact[host]
	return ok
}

// Len returns the number of hosts in the set.
func (s HostSet) Len() int {
	return len(s.exact)
}

// Hosts returns the members in sorted order.
func (s HostSet) Hosts() []string {
	out := make([]string, 0, len(s.exact))
	for h := range s.exact {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}
