package consensus

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/specharvest/internal/model"
	"github.com/sells-group/specharvest/internal/rules"
)

// applyListUnion merges list-valued fields across corroborating approved
// sources after the per-field winner is chosen. Winner items keep their
// order; new items append in candidate rank order (tier ascending, score
// descending). No-op when the merge adds nothing.
func applyListUnion(result *model.ConsensusResult, eng *rules.Engine, fieldOrder []string, byField map[string]*fieldClusters) {
	for _, field := range fieldOrder {
		rule := eng.GetFieldRule(field)
		union := rule.UnionPolicy()
		if union == rules.ItemUnionNone {
			continue
		}
		winner := result.Fields[field]
		if winner == "" || winner == model.Unknown || winner == model.NotApplicable {
			continue
		}
		fc := byField[field]
		if fc == nil {
			continue
		}

		var approved []*evidenceEntry
		for _, e := range fc.entries {
			if e.source.ApprovedDomain {
				approved = append(approved, e)
			}
		}
		if len(approved) < 2 {
			continue
		}
		sort.SliceStable(approved, func(i, j int) bool {
			if approved[i].source.Tier != approved[j].source.Tier {
				return approved[i].source.Tier < approved[j].source.Tier
			}
			return approved[i].weight > approved[j].weight
		})

		items := SplitList(winner)
		seen := make(map[string]bool, len(items))
		for _, it := range items {
			seen[ClusterKey(it)] = true
		}

		var added []string
		for _, e := range approved {
			for _, it := range SplitList(e.display) {
				key := ClusterKey(it)
				if seen[key] {
					continue
				}
				seen[key] = true
				items = append(items, it)
				added = append(added, it)
			}
		}
		if len(added) == 0 {
			continue
		}

		merged := strings.Join(items, listDelimiter+" ")
		result.Fields[field] = merged
		rec := result.Provenance[field]
		rec.Value = merged
		rec.ListMerge = &model.ListMergeInfo{
			Policy:      string(union),
			AddedCount:  len(added),
			AddedValues: added,
		}
		result.Provenance[field] = rec

		zap.L().Debug("consensus: list union merged",
			zap.String("field", field),
			zap.String("value", merged),
			zap.Int("added", len(added)),
		)
	}
}

// applyToleranceReduction handles object-form selection policies: collapse
// another field's numeric candidates to their median when they sit within
// the declared tolerance, or reject with an audit reason when they spread
// too far.
func applyToleranceReduction(result *model.ConsensusResult, eng *rules.Engine, fieldOrder []string, byField map[string]*fieldClusters) {
	for _, field := range fieldOrder {
		policy := eng.GetFieldRule(field).SelectionPolicy
		if policy.Kind != rules.PolicyTolerance {
			continue
		}

		var values []float64
		if fc := byField[policy.SourceField]; fc != nil {
			for _, e := range fc.entries {
				if v, ok := ParseNumber(e.display); ok {
					values = append(values, v)
				}
			}
		}
		if len(values) == 0 {
			continue
		}
		sort.Float64s(values)

		reduction := &model.ToleranceReduction{
			SourceField: policy.SourceField,
			ValueCount:  len(values),
		}

		var value string
		switch {
		case len(values) == 1:
			value = FormatNumber(values[0])
		case values[len(values)-1]-values[0] <= policy.ToleranceMs:
			value = FormatNumber(median(values))
		default:
			value = model.Unknown
			reduction.Reason = model.ReasonExceedsTolerance
			reduction.Min = values[0]
			reduction.Max = values[len(values)-1]
			zap.L().Debug("consensus: tolerance reduction rejected",
				zap.String("field", field),
				zap.String("source_field", policy.SourceField),
				zap.Float64("min", values[0]),
				zap.Float64("max", values[len(values)-1]),
				zap.Float64("tolerance_ms", policy.ToleranceMs),
			)
		}

		result.Fields[field] = value
		rec := result.Provenance[field]
		rec.Value = value
		rec.Reduction = reduction
		result.Provenance[field] = rec
	}
}

// median of a sorted slice; the even case averages the two middle values.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
