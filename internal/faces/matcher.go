package faces

import (
	"gonum.org/v1/gonum/floats"
)

// Unknown is the name reported when no gallery entry is close enough
const Unknown = "Unknown"

// DefaultThreshold is the largest Euclidean distance accepted as a match
const DefaultThreshold = 0.6

// Match is the outcome of comparing one encoding against a gallery
type Match struct {
	Name       string
	Confidence float64
	// Distance to the closest entry; zero when the gallery was empty
	Distance float64
	Known    bool
}

// Matcher finds the nearest gallery entry within Threshold
type Matcher struct {
	Threshold float64
}

// NewMatcher returns a matcher with the given threshold, or the default
// when threshold <= 0
func NewMatcher(threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{Threshold: threshold}
}

// Match returns the closest entry name and confidence 1 - distance when the
// distance is within the threshold. Confidence is not clamped and goes
// negative for thresholds above 1. Ties go to the earliest entry. Entries
// whose length differs from observed are ignored.
func (m *Matcher) Match(observed Encoding, g *Gallery) Match {
	entries := g.Entries()
	if len(entries) == 0 {
		return Match{Name: Unknown}
	}

	best := -1
	bestDist := 0.0
	for i, e := range entries {
		if len(e.Encoding) != len(observed) {
			continue
		}
		d := floats.Distance(observed, e.Encoding, 2)
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}

	if best < 0 {
		return Match{Name: Unknown}
	}
	if bestDist > m.Threshold {
		return Match{Name: Unknown, Distance: bestDist}
	}
	return Match{
		Name:       entries[best].Name,
		Confidence: 1 - bestDist,
		Distance:   bestDist,
		Known:      true,
	}
}
