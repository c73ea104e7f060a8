package kb

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// knowledgeIntentKeywords are phrases whose presence (fuzzy-matched, not
// exact) in a user query suggests retrieval-augmented generation is wanted.
// Weighted higher entries are stronger signals of an explicit RAG request.
var knowledgeIntentKeywords = map[string]float64{
	"according to":        0.35,
	"based on the document": 0.4,
	"cite your sources":   0.45,
	"knowledge base":      0.5,
	"search the docs":     0.4,
	"what does the policy say": 0.45,
	"reference material":  0.3,
	"lookup":              0.2,
	"retrieve":            0.25,
	"documentation says":  0.35,
}

// Classify scores query for KB intent using fuzzy keyword matching
// (github.com/agnivade/levenshtein) and returns the routing decision
// using the package's threshold constants.
func Classify(query string) (RetrievalMode, float64) {
	confidence := score(query)
	switch {
	case confidence >= DirectRAGThreshold:
		return ModeDirectRAG, confidence
	case confidence >= ContextAugmentationThreshold:
		return ModeContextAugmentation, confidence
	default:
		return ModeSkip, confidence
	}
}

func score(query string) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return 0
	}
	words := strings.Fields(q)

	var total float64
	for phrase, weight := range knowledgeIntentKeywords {
		if strings.Contains(q, phrase) {
			total += weight
			continue
		}
		if best := bestFuzzyMatch(words, phrase); best >= 0.8 {
			total += weight * best
		}
	}
	if total > 1 {
		total = 1
	}
	return total
}

// bestFuzzyMatch returns the highest similarity ratio (0..1) between any
// single word in words and the (possibly multi-word) phrase, using
// normalized Levenshtein distance. A single-word heuristic is sufficient
// here since the exact-substring check above already handles multi-word
// phrase matches; this only catches near-miss single-token typos.
func bestFuzzyMatch(words []string, phrase string) float64 {
	if strings.Contains(phrase, " ") {
		return 0
	}
	best := 0.0
	for _, w := range words {
		dist := levenshtein.ComputeDistance(w, phrase)
		maxLen := len(w)
		if len(phrase) > maxLen {
			maxLen = len(phrase)
		}
		if maxLen == 0 {
			continue
		}
		similarity := 1 - float64(dist)/float64(maxLen)
		if similarity > best {
			best = similarity
		}
	}
	return best
}
