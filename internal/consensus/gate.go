package consensus

import (
	"math"

	"go.uber.org/zap"

	"github.com/sells-group/specharvest/internal/model"
	"github.com/sells-group/specharvest/internal/rules"
)

const (
	// A winning cluster has a weighted majority when its score beats the
	// runner-up by at least 10%.
	majorityMargin = 1.1

	strictMinApproved       = 3
	relaxedMinApproved      = 2
	instrumentedMinApproved = 3
)

// gateOutcome is the acceptance decision for one field.
type gateOutcome struct {
	value    string
	record   model.ProvenanceRecord
	best     *cluster
	runnerUp *cluster
	accepted bool
}

// gateField runs the per-field acceptance state machine: anchor lock,
// identity exemption, no-evidence, then strict/relaxed/instrumented
// evaluation of the ranked clusters.
func gateField(in *model.ConsensusInput, eng *rules.Engine, field string, fc *fieldClusters) gateOutcome {
	passTarget := eng.PassTarget(field)

	// Anchors bypass consensus entirely.
	if anchor, ok := in.Anchors[field]; ok && anchor != "" {
		canon := Canonicalize(field, eng.GetFieldRule(field), anchor)
		return gateOutcome{
			value: canon.Display,
			record: model.ProvenanceRecord{
				Value:           canon.Display,
				AnchorLocked:    true,
				PassTarget:      passTarget,
				MeetsPassTarget: true,
				Confidence:      1,
			},
			accepted: true,
		}
	}

	// Identity fields carry whatever the upstream resolver set.
	if eng.IsIdentityExempt(field) {
		value := identityDefault(in, field)
		conf := 1.0
		if value == model.Unknown {
			conf = 0
		}
		return gateOutcome{
			value: value,
			record: model.ProvenanceRecord{
				Value:           value,
				PassTarget:      passTarget,
				MeetsPassTarget: true,
				Confidence:      conf,
			},
			accepted: value != model.Unknown,
		}
	}

	if fc == nil || len(fc.clusters) == 0 {
		return gateOutcome{
			value: model.Unknown,
			record: model.ProvenanceRecord{
				Value:      model.Unknown,
				PassTarget: passTarget,
			},
		}
	}

	ranked := fc.ranked()
	best := ranked[0]
	var runnerUp *cluster
	if len(ranked) > 1 {
		runnerUp = ranked[1]
	}

	weightedMajority := runnerUp == nil || best.totalScore() >= runnerUp.totalScore()*majorityMargin
	meetsPassTarget := best.approvedCount() >= passTarget
	strictAccepted := best.approvedCount() >= strictMinApproved && weightedMajority

	instrumented := eng.IsInstrumented(field)
	relaxedAccepted := false
	if in.AllowBelowPassTargetFill && !instrumented {
		relaxedAccepted = best.approvedCount() >= relaxedMinApproved &&
			weightedMajority &&
			hasRelaxedCorroboration(best)
	}

	var accepted bool
	if instrumented {
		// Instrumented fields always require strict triple corroboration
		// from lab/review-grade domains; relaxed acceptance never applies.
		accepted = strictAccepted && meetsPassTarget && best.instrumentedCount() >= instrumentedMinApproved
	} else {
		accepted = (strictAccepted && meetsPassTarget) || relaxedAccepted
	}

	value := model.Unknown
	if accepted {
		value = best.display
	}

	evidence := make([]model.EvidenceRow, 0, len(best.entries))
	for _, e := range best.entries {
		evidence = append(evidence, e.row())
	}

	if runnerUp != nil && runnerUp.approvedCount() > 0 {
		zap.L().Debug("consensus: contested field",
			zap.String("field", field),
			zap.String("winner", best.display),
			zap.String("runner_up", runnerUp.display),
			zap.Int("winner_domains", best.approvedCount()),
			zap.Int("runner_up_domains", runnerUp.approvedCount()),
		)
	}

	return gateOutcome{
		value: value,
		record: model.ProvenanceRecord{
			Value:                     value,
			Confirmations:             best.domainCount(),
			ApprovedConfirmations:     best.approvedCount(),
			InstrumentedConfirmations: best.instrumentedCount(),
			PassTarget:                passTarget,
			MeetsPassTarget:           meetsPassTarget,
			AcceptedBelowPassTarget:   accepted && !meetsPassTarget,
			WeightedMajority:          weightedMajority,
			Confidence:                confidence(best, weightedMajority),
			Domains:                   best.sortedDomains(),
			ApprovedDomains:           best.sortedApprovedDomains(),
			Evidence:                  evidence,
		},
		best:     best,
		runnerUp: runnerUp,
		accepted: accepted,
	}
}

// hasRelaxedCorroboration checks the below-pass-target escape valve: the
// winning cluster needs an approved tier-1 manufacturer row plus a distinct
// approved tier-2 domain backing the same value.
func hasRelaxedCorroboration(best *cluster) bool {
	t1Domains := make(map[string]bool)
	for _, e := range best.entries {
		if e.source.ApprovedDomain && e.source.Tier == model.TierManufacturer {
			dom := e.source.RootDomain
			if dom == "" {
				dom = e.source.Host
			}
			t1Domains[dom] = true
		}
	}
	if len(t1Domains) == 0 {
		return false
	}
	for _, e := range best.entries {
		if !e.source.ApprovedDomain || e.source.Tier != model.TierLab {
			continue
		}
		dom := e.source.RootDomain
		if dom == "" {
			dom = e.source.Host
		}
		if !t1Domains[dom] {
			return true
		}
	}
	return false
}

// confidence blends corroboration breadth, majority clarity and weighted
// score into a 0..1 figure.
func confidence(best *cluster, weightedMajority bool) float64 {
	base := float64(best.approvedCount()) / 4
	if best.approvedCount() >= strictMinApproved {
		base = 0.7
	}
	majorityBonus := 0.0
	if weightedMajority {
		majorityBonus = 0.2
	}
	scoreBonus := math.Min(0.1, best.totalScore()/10)
	return clamp01(base + majorityBonus + scoreBonus)
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

// identityDefault returns the externally resolved value an identity-exempt
// field already carries.
func identityDefault(in *model.ConsensusInput, field string) string {
	switch field {
	case "id":
		return orUnknown(in.ProductID)
	case "brand":
		return orUnknown(in.IdentityLock.Brand)
	case "model":
		return orUnknown(in.IdentityLock.Model)
	case "base_model":
		return orUnknown(in.IdentityLock.Model)
	case "sku":
		return orUnknown(in.IdentityLock.SKU)
	case "category":
		return orUnknown(in.Category)
	default:
		return model.Unknown
	}
}

func orUnknown(s string) string {
	if s == "" {
		return model.Unknown
	}
	return s
}
