package entity

import (
	"math"
	"testing"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b     string
		expected float64
	}{
		{"Russia", "russia", 1.0},  // exact, case-insensitive
		{"York", "New York", 0.8},  // substring
		{"Russia", "Russian", 0.8}, // substring wins before suffix rules
		{"Iraq", "Iraqi", 0.8},     // stripped root is also a substring
		{"Italian", "Italy", 0.85}, // stripped root is a prefix, delta <= 2
		{"China", "Chine", 0.8},    // positional ratio 4/5
		{"Apple", "Banana", 0},     // nothing matches
		{"Antarctica", "Peru", 0},  // length gate blocks positional rule
	}

	for _, tt := range tests {
		got := Similarity(tt.a, tt.b)
		if math.Abs(got-tt.expected) > 1e-9 {
			t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.expected)
		}
	}
}

func TestSimilaritySymmetric(t *testing.T) {
	pairs := [][2]string{
		{"Iraq", "Iraqi"},
		{"Italian", "Italy"},
		{"York", "New York"},
	}
	for _, p := range pairs {
		if a, b := Similarity(p[0], p[1]), Similarity(p[1], p[0]); a != b {
			t.Errorf("Similarity(%q, %q) = %v but reversed = %v", p[0], p[1], a, b)
		}
	}
}

func TestResolveMergesVariants(t *testing.T) {
	groups := Resolve([]Observation{
		{Text: "Russia", Count: 5},
		{Text: "Russian", Count: 3},
	}, DefaultThreshold)

	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	g := groups[0]
	if g.Total != 8 {
		t.Errorf("Total = %d, want 8", g.Total)
	}
	if g.Canonical != "Russia" {
		t.Errorf("Canonical = %q, want Russia", g.Canonical)
	}
	if len(g.Members) != 2 {
		t.Errorf("Members = %d, want 2", len(g.Members))
	}
	if !g.Merged() {
		t.Error("Merged() = false, want true")
	}
}

func TestResolveCanonicalTracksHighestCount(t *testing.T) {
	// later variant with the larger count takes over as display name
	groups := Resolve([]Observation{
		{Text: "York", Count: 2},
		{Text: "New York", Count: 10},
	}, DefaultThreshold)

	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if groups[0].Canonical != "New York" {
		t.Errorf("Canonical = %q, want New York", groups[0].Canonical)
	}
	if groups[0].Total != 12 {
		t.Errorf("Total = %d, want 12", groups[0].Total)
	}
}

func TestResolveKeepsDistinctEntitiesApart(t *testing.T) {
	groups := Resolve([]Observation{
		{Text: "Apple", Count: 4},
		{Text: "Banana", Count: 2},
	}, DefaultThreshold)

	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].Canonical != "Apple" || groups[0].Total != 4 {
		t.Errorf("groups[0] = %q/%d, want Apple/4", groups[0].Canonical, groups[0].Total)
	}
	if groups[1].Canonical != "Banana" || groups[1].Total != 2 {
		t.Errorf("groups[1] = %q/%d, want Banana/2", groups[1].Canonical, groups[1].Total)
	}
	if groups[0].Merged() || groups[1].Merged() {
		t.Error("singleton groups must not report as merged")
	}
}

func TestResolveSortStability(t *testing.T) {
	// equal totals keep group-creation order
	groups := Resolve([]Observation{
		{Text: "Paris", Count: 3},
		{Text: "Tokyo", Count: 3},
		{Text: "Cairo", Count: 3},
	}, DefaultThreshold)

	want := []string{"Paris", "Tokyo", "Cairo"}
	if len(groups) != len(want) {
		t.Fatalf("expected %d groups, got %d", len(want), len(groups))
	}
	for i, w := range want {
		if groups[i].Canonical != w {
			t.Errorf("groups[%d] = %q, want %q", i, groups[i].Canonical, w)
		}
	}
}

func TestResolveEmptyInput(t *testing.T) {
	if groups := Resolve(nil, DefaultThreshold); len(groups) != 0 {
		t.Errorf("expected no groups for empty input, got %d", len(groups))
	}
}

func TestResolveVariantChainCollapses(t *testing.T) {
	// all three surface forms end up in one group and the canonical follows
	// the highest-count member through successive merges
	groups := Resolve([]Observation{
		{Text: "Russians", Count: 1},
		{Text: "Russia", Count: 9},
		{Text: "russia", Count: 4},
	}, DefaultThreshold)

	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if groups[0].Total != 14 {
		t.Errorf("Total = %d, want 14", groups[0].Total)
	}
	if groups[0].Canonical != "Russia" {
		t.Errorf("Canonical = %q, want Russia", groups[0].Canonical)
	}
}
