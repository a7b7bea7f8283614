package messagestore

import "slices"

// MatchesFilters reports whether a record's index attributes satisfy the
// filter set. The set is a disjunction of conjunctive clauses; an empty set
// matches every record. Scalar attributes match by exact string equality and
// tag attributes match when any of their values is equal. A clause naming an
// attribute the record does not carry never matches.
func MatchesFilters(filters []Filter, direct map[string]string, tags map[string][]string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, clause := range filters {
		if matchesClause(clause, direct, tags) {
			return true
		}
	}
	return false
}

func matchesClause(clause Filter, direct map[string]string, tags map[string][]string) bool {
	for name, want := range clause {
		if got, ok := direct[name]; ok {
			if got != want {
				return false
			}
			continue
		}
		if vals, ok := tags[name]; ok {
			if !slices.Contains(vals, want) {
				return false
			}
			continue
		}
		return false
	}
	return true
}

// Matches reports whether the record satisfies the filter set.
func (r *Record) Matches(filters []Filter) bool {
	return MatchesFilters(filters, r.Indexes, r.Tags)
}
