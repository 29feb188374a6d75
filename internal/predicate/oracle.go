package predicate

import (
	"fmt"
	"strings"

	"github.com/roach88/arbor/internal/item"
)

// Decision is an inclusion verdict with its justification.
type Decision struct {
	Included bool
	Reason   string
}

// Oracle answers whether a node, identified by partition and logical path,
// is in scope for synchronization.
type Oracle interface {
	Includes(partition, path string) Decision
}

// FieldOracle answers whether a field may be read or written.
type FieldOracle interface {
	IncludesField(id item.ID) Decision
}

// PathRules holds the include/exclude prefixes for one partition.
type PathRules struct {
	Include []string
	Exclude []string
}

// Scope is a compiled scope configuration implementing both oracles.
type Scope struct {
	Partitions     map[string]PathRules
	ExcludedFields map[item.ID]bool
}

// Includes applies the longest-prefix rule for the partition.
func (s *Scope) Includes(partition, path string) Decision {
	rules, ok := s.Partitions[partition]
	if !ok {
		return Decision{Reason: fmt.Sprintf("no scope rules for partition %q", partition)}
	}

	bestInclude := longestPrefix(rules.Include, path)
	bestExclude := longestPrefix(rules.Exclude, path)

	switch {
	case bestInclude == "" && bestExclude == "":
		return Decision{Reason: "no include rule covers path"}
	case len(bestExclude) >= len(bestInclude) && bestExclude != "":
		return Decision{Reason: fmt.Sprintf("excluded by rule %q", bestExclude)}
	default:
		return Decision{Included: true, Reason: fmt.Sprintf("included by rule %q", bestInclude)}
	}
}

// IncludesField reports whether a field is excluded from patching.
func (s *Scope) IncludesField(id item.ID) Decision {
	if s.ExcludedFields[id] {
		return Decision{Reason: fmt.Sprintf("field %s excluded by scope", id)}
	}
	return Decision{Included: true, Reason: "field not excluded"}
}

// longestPrefix returns the longest rule that is a path-segment prefix of
// path, or "".
func longestPrefix(rules []string, path string) string {
	var best string
	for _, rule := range rules {
		if prefixMatches(rule, path) && len(rule) > len(best) {
			best = rule
		}
	}
	return best
}

// prefixMatches reports whether rule covers path at a segment boundary:
// "/content" covers "/content" and "/content/home" but not "/contents".
func prefixMatches(rule, path string) bool {
	rule = strings.TrimRight(rule, "/")
	if rule == "" {
		return true
	}
	if !strings.EqualFold(rule, path[:min(len(rule), len(path))]) {
		return false
	}
	return len(path) == len(rule) || path[len(rule)] == '/'
}

// IncludeAll is the permissive oracle used when no scope file is given.
type IncludeAll struct{}

// Includes always answers yes.
func (IncludeAll) Includes(partition, path string) Decision {
	return Decision{Included: true, Reason: "no scope configured"}
}

// IncludesField always answers yes.
func (IncludeAll) IncludesField(id item.ID) Decision {
	return Decision{Included: true, Reason: "no scope configured"}
}
