package collector

import "sort"

func sortEntities(s []EntityState) {
	sort.Slice(s, func(i, j int) bool { return s[i].Target < s[j].Target })
}

func sortRelationships(s []RelationshipState) {
	sort.Slice(s, func(i, j int) bool { return s[i].Target < s[j].Target })
}
