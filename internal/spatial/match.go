package spatial

import (
	"slices"

	"github.com/eleven-am/trackie/internal/vision"
)

type Match struct {
	Box        vision.Box
	Confidence float64
	ClassName  string
}

// MatchObject picks the highest-confidence detection whose class resolves to
// the query. A later detection replaces the current best only with strictly
// greater confidence, so ties keep the first one scanned.
func MatchObject(query string, set vision.DetectionSet, classes ClassTable, synonyms Synonyms) (Match, bool) {
	if synonyms == nil {
		synonyms = DefaultSynonyms
	}
	targets := synonyms.Resolve(query)

	var best Match
	found := false
	for _, d := range set {
		name := classes.Name(d.ClassID, d.ClassName)
		if !slices.Contains(targets, name) {
			continue
		}
		if !found || d.Confidence > best.Confidence {
			best = Match{Box: d.Box, Confidence: d.Confidence, ClassName: name}
			found = true
		}
	}
	return best, found
}
