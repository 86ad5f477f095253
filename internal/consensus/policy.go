package consensus

import (
	"github.com/sells-group/specharvest/internal/rules"
)

// policyBonus is the flat score nudge granted to the single cluster with
// the highest positive policy signal. It is a tie-breaker: ranking stays
// domain-count-first, so a bonus never lets a worse-corroborated cluster
// outrank a better-corroborated one.
const policyBonus = 0.3

// applyPolicyBonus computes the field's selection-policy signal per cluster
// and grants the bonus. Only string policies participate; best_confidence
// is the explicit no-op default. Requires at least two clusters.
func applyPolicyBonus(rule rules.FieldRule, clusters []*cluster) {
	if rule.SelectionPolicy.Kind != rules.PolicyString || len(clusters) < 2 {
		return
	}
	strategy := rule.SelectionPolicy.Strategy
	if strategy == rules.PolicyBestConfidence {
		return
	}

	best := -1
	bestSignal := 0.0
	for i, cl := range clusters {
		signal := policySignal(strategy, cl)
		// Later iteration wins ties.
		if signal > 0 && signal >= bestSignal {
			best = i
			bestSignal = signal
		}
	}
	if best >= 0 {
		clusters[best].bonus += policyBonus
	}
}

func policySignal(strategy rules.StringPolicy, cl *cluster) float64 {
	switch strategy {
	case rules.PolicyBestEvidence:
		var n float64
		for _, e := range cl.entries {
			if e.citation.SnippetHash != "" || e.citation.SnippetID != "" {
				n++
			}
		}
		return n
	case rules.PolicyPreferDeterministic:
		var n float64
		for _, e := range cl.entries {
			if !IsLLMMethod(e.cand.Method) {
				n++
			}
		}
		return n
	case rules.PolicyPreferLLM:
		var n float64
		for _, e := range cl.entries {
			if IsLLMMethod(e.cand.Method) {
				n++
			}
		}
		return n
	case rules.PolicyPreferLatest:
		var latest float64
		for _, e := range cl.entries {
			if e.source.RetrievedAt != nil {
				if ts := float64(e.source.RetrievedAt.Unix()); ts > latest {
					latest = ts
				}
			}
		}
		return latest
	}
	return 0
}
