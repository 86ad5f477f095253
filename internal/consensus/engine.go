package consensus

import (
	"go.uber.org/zap"

	"github.com/sells-group/specharvest/internal/model"
	"github.com/sells-group/specharvest/internal/rules"
)

// Resolve is the Evidence Consensus Engine: a pure function from one
// product's source results, anchors and field rules to a trusted value per
// field, its provenance, and the full candidate ledger. It performs no I/O
// and is deterministic: identical inputs yield byte-identical output.
// Callers may resolve many products concurrently; nothing is shared across
// invocations except the read-only rule engine.
func Resolve(in *model.ConsensusInput, eng *rules.Engine) *model.ConsensusResult {
	fieldOrder := in.FieldOrder
	if len(fieldOrder) == 0 {
		fieldOrder = eng.AllFieldKeys()
	}

	resolver := newCitationResolver()
	byField := buildClusters(in, eng, resolver)

	result := &model.ConsensusResult{
		ProductID:                     in.ProductID,
		Category:                      in.Category,
		Fields:                        make(map[string]string, len(fieldOrder)),
		Provenance:                    make(map[string]model.ProvenanceRecord, len(fieldOrder)),
		Candidates:                    make(map[string][]model.CandidateLedgerEntry, len(fieldOrder)),
		FieldsBelowPassTarget:         []string{},
		CriticalFieldsBelowPassTarget: []string{},
		NewValuesProposed:             []model.NewValueProposal{},
	}

	var ratioSum float64
	var ratioCount int

	for _, field := range fieldOrder {
		fc := byField[field]
		if fc != nil {
			applyPolicyBonus(eng.GetFieldRule(field), fc.clusters)
		}

		outcome := gateField(in, eng, field, fc)
		result.Fields[field] = outcome.value
		result.Provenance[field] = outcome.record
		result.Candidates[field] = ledgerEntries(in.ProductID, field, fc)

		if outcome.best != nil {
			ratioSum += agreementRatio(outcome.best, outcome.runnerUp)
			ratioCount++
		}
	}

	applyListUnion(result, eng, fieldOrder, byField)
	applyToleranceReduction(result, eng, fieldOrder, byField)
	applyWiredBatteryFixup(result)
	collectPassTargetMisses(result, fieldOrder, in.CriticalFields)
	proposeNewValues(result, eng, fieldOrder)

	if ratioCount > 0 {
		result.AgreementScore = ratioSum / float64(ratioCount)
	}

	zap.L().Debug("consensus: product resolved",
		zap.String("product_id", in.ProductID),
		zap.Int("fields", len(fieldOrder)),
		zap.Int("sources", len(in.SourceResults)),
		zap.Int("fields_below_pass_target", len(result.FieldsBelowPassTarget)),
		zap.Float64("agreement_score", result.AgreementScore),
	)
	return result
}

// ledgerEntries builds the per-field candidate ledger exposed for human
// review, in source order.
func ledgerEntries(productID, field string, fc *fieldClusters) []model.CandidateLedgerEntry {
	if fc == nil {
		return []model.CandidateLedgerEntry{}
	}
	out := make([]model.CandidateLedgerEntry, 0, len(fc.entries))
	for i, e := range fc.entries {
		out = append(out, model.CandidateLedgerEntry{
			CandidateID:    CandidateID(productID, field, e.display, i),
			Value:          e.display,
			Score:          clamp01(e.weight),
			Host:           e.source.Host,
			RootDomain:     e.source.RootDomain,
			SourceID:       sourceID(e.source),
			URL:            e.source.BestURL(),
			Tier:           e.source.Tier,
			Method:         e.cand.Method,
			ApprovedDomain: e.source.ApprovedDomain,
			Evidence: model.LedgerEvidence{
				URL:         e.citation.ReferenceURL,
				SnippetID:   e.citation.SnippetID,
				SnippetHash: e.citation.SnippetHash,
				SourceID:    e.citation.SourceID,
				Quote:       e.citation.Quote,
				QuoteSpan:   e.citation.QuoteSpan,
			},
		})
	}
	return out
}

// agreementRatio measures how contested a field was: 1.0 for an
// uncontested winner, approaching 0.5 as the runner-up closes in.
func agreementRatio(best, runnerUp *cluster) float64 {
	if runnerUp == nil {
		return 1
	}
	denom := best.totalScore() + runnerUp.totalScore()
	if denom <= 0 {
		return 0.5
	}
	return best.totalScore() / denom
}

// applyWiredBatteryFixup encodes one piece of domain knowledge: wired mice
// have no battery, so an unresolved battery_hours on a wired product is
// "n/a", not missing data.
func applyWiredBatteryFixup(result *model.ConsensusResult) {
	if result.Fields["connection"] != "wired" {
		return
	}
	if v, ok := result.Fields["battery_hours"]; !ok || v != model.Unknown {
		return
	}
	result.Fields["battery_hours"] = model.NotApplicable
	rec := result.Provenance["battery_hours"]
	rec.Value = model.NotApplicable
	rec.MeetsPassTarget = true
	result.Provenance["battery_hours"] = rec
}

// collectPassTargetMisses lists fields whose approved corroboration fell
// short of their pass target, and the critical subset.
func collectPassTargetMisses(result *model.ConsensusResult, fieldOrder, criticalFields []string) {
	critical := make(map[string]bool, len(criticalFields))
	for _, f := range criticalFields {
		critical[f] = true
	}
	for _, field := range fieldOrder {
		rec, ok := result.Provenance[field]
		if !ok || rec.MeetsPassTarget {
			continue
		}
		result.FieldsBelowPassTarget = append(result.FieldsBelowPassTarget, field)
		if critical[field] {
			result.CriticalFieldsBelowPassTarget = append(result.CriticalFieldsBelowPassTarget, field)
		}
	}
}

// proposeNewValues surfaces accepted tokens missing from a field's
// controlled vocabulary for curator review. Proposals never block
// acceptance.
func proposeNewValues(result *model.ConsensusResult, eng *rules.Engine, fieldOrder []string) {
	seen := make(map[string]bool)
	for _, field := range fieldOrder {
		rule := eng.GetFieldRule(field)
		if len(rule.KnownValues) == 0 {
			continue
		}
		value := result.Fields[field]
		if value == "" || value == model.Unknown || value == model.NotApplicable {
			continue
		}
		allowed := make(map[string]bool, len(rule.KnownValues))
		for _, kv := range rule.KnownValues {
			allowed[ClusterKey(kv)] = true
		}
		for _, token := range SplitList(value) {
			key := ClusterKey(token)
			if allowed[key] || seen[field+"\x00"+key] {
				continue
			}
			seen[field+"\x00"+key] = true
			result.NewValuesProposed = append(result.NewValuesProposed, model.NewValueProposal{
				Field: field,
				Value: token,
			})
		}
	}
}
