// Package entity merges near-duplicate named-entity strings into canonical
// groups so that surface variants ("Russia", "Russian") are not
// double-counted in rankings.
package entity

import (
	"sort"
	"strings"
)

// DefaultThreshold is the minimum similarity score for two strings to be
// considered the same entity.
const DefaultThreshold = 0.7

// Observation is a raw entity string with its occurrence count, as produced
// by upstream named-entity extraction.
type Observation struct {
	Text  string `json:"entity"`
	Count int    `json:"count"`
}

// Group is a cluster of observations judged to refer to the same entity.
// Canonical is the member text with the highest individual count; Total is
// the summed count across all members. Members keeps insertion order.
type Group struct {
	Canonical string
	Total     int
	Members   []Observation

	canonicalCount int
}

// Merged reports whether the group absorbed more than one observation.
func (g *Group) Merged() bool { return len(g.Members) > 1 }

// Resolve assigns each observation to the best-matching existing group
// scoring at or above threshold, or starts a new group when none qualifies.
// This is a greedy single pass: results depend on input order, which matches
// the upstream dashboard behavior and keeps the pass O(n*groups). Groups are
// returned sorted by Total descending; ties keep creation order.
func Resolve(observations []Observation, threshold float64) []*Group {
	var groups []*Group

	for _, obs := range observations {
		var best *Group
		bestScore := 0.0

		for _, g := range groups {
			if s := Similarity(obs.Text, g.Canonical); s >= threshold && s > bestScore {
				best = g
				bestScore = s
			}
		}

		if best != nil {
			best.Total += obs.Count
			best.Members = append(best.Members, obs)
			if obs.Count > best.canonicalCount {
				best.Canonical = obs.Text
				best.canonicalCount = obs.Count
			}
			continue
		}

		groups = append(groups, &Group{
			Canonical:      obs.Text,
			Total:          obs.Count,
			Members:        []Observation{obs},
			canonicalCount: obs.Count,
		})
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Total > groups[j].Total
	})
	return groups
}

// nationality/adjectival suffixes, tested in this fixed order
var suffixes = []string{"ian", "an", "ish", "ese", "i"}

// Similarity scores two entity strings in [0,1], case-insensitive. The rules
// form a short-circuit cascade, not a maximum: the first applicable rule
// wins.
//
//	1.0  exact match
//	0.8  one is a substring of the other
//	0.9  one equals the other with a nationality suffix removed
//	0.85 stripped root is a prefix of the other, length delta <= 2
//	>0.7 positional character-match ratio when lengths are within 2
//	0    otherwise
func Similarity(a, b string) float64 {
	s1 := strings.ToLower(a)
	s2 := strings.ToLower(b)

	if s1 == s2 {
		return 1.0
	}
	if strings.Contains(s1, s2) || strings.Contains(s2, s1) {
		return 0.8
	}

	for _, suf := range suffixes {
		if strings.HasSuffix(s1, suf) && s2 == strings.TrimSuffix(s1, suf) {
			return 0.9
		}
		if strings.HasSuffix(s2, suf) && s1 == strings.TrimSuffix(s2, suf) {
			return 0.9
		}
	}

	for _, suf := range suffixes {
		if strings.HasSuffix(s1, suf) {
			root := strings.TrimSuffix(s1, suf)
			if strings.HasPrefix(s2, root) && len(s2)-len(root) <= 2 {
				return 0.85
			}
		}
		if strings.HasSuffix(s2, suf) {
			root := strings.TrimSuffix(s2, suf)
			if strings.HasPrefix(s1, root) && len(s1)-len(root) <= 2 {
				return 0.85
			}
		}
	}

	// positional match ratio for close-length strings
	r1, r2 := []rune(s1), []rune(s2)
	if d := len(r1) - len(r2); d >= -2 && d <= 2 {
		minLen := len(r1)
		maxLen := len(r2)
		if minLen > maxLen {
			minLen, maxLen = maxLen, minLen
		}
		matches := 0
		for i := 0; i < minLen; i++ {
			if r1[i] == r2[i] {
				matches++
			}
		}
		if ratio := float64(matches) / float64(maxLen); ratio > 0.7 {
			return ratio
		}
	}

	return 0
}
