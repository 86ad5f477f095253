package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/specharvest/internal/model"
	"github.com/sells-group/specharvest/internal/rules"
)

func gateOne(t *testing.T, eng *rules.Engine, in *model.ConsensusInput, field string) gateOutcome {
	t.Helper()
	byField := buildClusters(in, eng, newCitationResolver())
	return gateField(in, eng, field, byField[field])
}

func TestGateField_AnchorOverridesAllEvidence(t *testing.T) {
	eng := testEngine(rules.Config{Fields: map[string]rules.FieldRule{"weight_g": {DataType: "numeric"}}})
	in := testInput(
		testSource("a.example", model.TierLab, cand("weight_g", "80", model.MethodHTMLTable)),
		testSource("b.example", model.TierLab, cand("weight_g", "80", model.MethodHTMLTable)),
		testSource("c.example", model.TierLab, cand("weight_g", "80", model.MethodHTMLTable)),
	)
	in.Anchors = map[string]string{"weight_g": "63 g"}

	out := gateOne(t, eng, in, "weight_g")
	assert.True(t, out.accepted)
	assert.Equal(t, "63", out.value)
	assert.True(t, out.record.AnchorLocked)
	assert.True(t, out.record.MeetsPassTarget)
	assert.InDelta(t, 1.0, out.record.Confidence, 1e-9)
}

func TestGateField_IdentityFieldsCarryLockedValues(t *testing.T) {
	eng := testEngine(rules.Config{})
	in := testInput()
	in.IdentityLock = model.IdentityLock{Brand: "Logitech", Model: "G Pro X Superlight 2"}

	brand := gateOne(t, eng, in, "brand")
	assert.True(t, brand.accepted)
	assert.Equal(t, "Logitech", brand.value)
	assert.Equal(t, 0, brand.record.PassTarget)

	sku := gateOne(t, eng, in, "sku")
	assert.False(t, sku.accepted)
	assert.Equal(t, model.Unknown, sku.value)
	assert.InDelta(t, 0, sku.record.Confidence, 1e-9)
}

func TestGateField_NoEvidenceYieldsUnknown(t *testing.T) {
	eng := testEngine(rules.Config{})
	out := gateOne(t, eng, testInput(), "sensor")
	assert.False(t, out.accepted)
	assert.Equal(t, model.Unknown, out.value)
	assert.Equal(t, 3, out.record.PassTarget)
	assert.False(t, out.record.MeetsPassTarget)
}

func TestGateField_ThreeApprovedDomainsAccept(t *testing.T) {
	eng := testEngine(rules.Config{})
	in := testInput(
		testSource("logitech.com", model.TierManufacturer, cand("sensor", "HERO 2", model.MethodNetworkJSON)),
		testSource("rtings.com", model.TierLab, cand("sensor", "HERO 2", model.MethodHTMLTable)),
		testSource("techblog.example", model.TierOther, cand("sensor", "hero2", model.MethodSpecList)),
	)

	out := gateOne(t, eng, in, "sensor")
	assert.True(t, out.accepted)
	assert.Equal(t, "HERO 2", out.value)
	assert.Equal(t, 3, out.record.ApprovedConfirmations)
	assert.True(t, out.record.MeetsPassTarget)
	assert.False(t, out.record.AcceptedBelowPassTarget)
}

func TestGateField_TwoApprovedDomainsRejectedByDefault(t *testing.T) {
	eng := testEngine(rules.Config{})
	in := testInput(
		testSource("logitech.com", model.TierManufacturer, cand("sensor", "HERO 2", model.MethodNetworkJSON)),
		testSource("rtings.com", model.TierLab, cand("sensor", "HERO 2", model.MethodHTMLTable)),
	)

	out := gateOne(t, eng, in, "sensor")
	assert.False(t, out.accepted)
	assert.Equal(t, model.Unknown, out.value)
	assert.Equal(t, 2, out.record.ApprovedConfirmations)
	assert.False(t, out.record.MeetsPassTarget)
}

func TestGateField_RelaxedFillNeedsManufacturerPlusLab(t *testing.T) {
	eng := testEngine(rules.Config{})

	in := testInput(
		testSource("logitech.com", model.TierManufacturer, cand("sensor", "HERO 2", model.MethodNetworkJSON)),
		testSource("rtings.com", model.TierLab, cand("sensor", "HERO 2", model.MethodHTMLTable)),
	)
	in.AllowBelowPassTargetFill = true

	out := gateOne(t, eng, in, "sensor")
	assert.True(t, out.accepted)
	assert.Equal(t, "HERO 2", out.value)
	assert.False(t, out.record.MeetsPassTarget)
	assert.True(t, out.record.AcceptedBelowPassTarget)

	// Two tier-3 domains never qualify for the relaxed path.
	weak := testInput(
		testSource("a.example", model.TierOther, cand("sensor", "HERO 2", model.MethodSpecList)),
		testSource("b.example", model.TierOther, cand("sensor", "HERO 2", model.MethodSpecList)),
	)
	weak.AllowBelowPassTargetFill = true
	out = gateOne(t, eng, weak, "sensor")
	assert.False(t, out.accepted)
	assert.Equal(t, model.Unknown, out.value)
}

func TestGateField_CommonlyWrongFieldNeedsFiveDomains(t *testing.T) {
	eng := testEngine(rules.Config{
		CommonlyWrong: []string{"weight_g"},
		Fields:        map[string]rules.FieldRule{"weight_g": {DataType: "numeric"}},
	})
	in := testInput(
		testSource("a.example", model.TierManufacturer, cand("weight_g", "63", model.MethodNetworkJSON)),
		testSource("b.example", model.TierLab, cand("weight_g", "63", model.MethodHTMLTable)),
		testSource("c.example", model.TierLab, cand("weight_g", "63", model.MethodHTMLTable)),
		testSource("d.example", model.TierOther, cand("weight_g", "63", model.MethodSpecList)),
	)

	out := gateOne(t, eng, in, "weight_g")
	assert.False(t, out.accepted, "4 of 5 required domains must reject")
	assert.Equal(t, 5, out.record.PassTarget)

	in.SourceResults = append(in.SourceResults,
		testSource("e.example", model.TierOther, cand("weight_g", "63", model.MethodSpecList)))
	out = gateOne(t, eng, in, "weight_g")
	assert.True(t, out.accepted)
	assert.Equal(t, "63", out.value)
}

func TestGateField_NoWeightedMajorityRejects(t *testing.T) {
	eng := testEngine(rules.Config{})
	// Two clusters with equal approved counts and near-equal scores: the
	// winner lacks the 1.1x margin, so nothing is published.
	in := testInput(
		testSource("a.example", model.TierLab, cand("sensor", "HERO 2", model.MethodHTMLTable)),
		testSource("b.example", model.TierLab, cand("sensor", "HERO 2", model.MethodHTMLTable)),
		testSource("c.example", model.TierLab, cand("sensor", "HERO 2", model.MethodHTMLTable)),
		testSource("d.example", model.TierLab, cand("sensor", "HERO 25K", model.MethodHTMLTable)),
		testSource("e.example", model.TierLab, cand("sensor", "HERO 25K", model.MethodHTMLTable)),
		testSource("f.example", model.TierLab, cand("sensor", "HERO 25K", model.MethodHTMLTable)),
	)

	out := gateOne(t, eng, in, "sensor")
	assert.False(t, out.accepted)
	assert.Equal(t, model.Unknown, out.value)
	assert.False(t, out.record.WeightedMajority)
	require.NotNil(t, out.runnerUp)
}

func TestGateField_InstrumentedFieldNeverRelaxed(t *testing.T) {
	eng := testEngine(rules.Config{InstrumentedFields: []string{"click_latency_ms"}})
	in := testInput(
		testSource("logitech.com", model.TierManufacturer, cand("click_latency_ms", "2", model.MethodNetworkJSON)),
		testSource("rtings.com", model.TierLab, cand("click_latency_ms", "2", model.MethodHTMLTable)),
	)
	in.AllowBelowPassTargetFill = true

	out := gateOne(t, eng, in, "click_latency_ms")
	assert.False(t, out.accepted, "relaxed fill must not apply to instrumented fields")
	assert.Equal(t, model.Unknown, out.value)
}

func TestGateField_InstrumentedFieldNeedsThreeLabDomains(t *testing.T) {
	eng := testEngine(rules.Config{InstrumentedFields: []string{"click_latency_ms"}})

	// Three approved domains but only two of lab grade.
	in := testInput(
		testSource("logitech.com", model.TierManufacturer, cand("click_latency_ms", "2", model.MethodNetworkJSON)),
		testSource("rtings.com", model.TierLab, cand("click_latency_ms", "2", model.MethodHTMLTable)),
		testSource("techpowerup.com", model.TierLab, cand("click_latency_ms", "2", model.MethodHTMLTable)),
	)
	out := gateOne(t, eng, in, "click_latency_ms")
	assert.False(t, out.accepted)
	assert.Equal(t, 2, out.record.InstrumentedConfirmations)

	in.SourceResults = append(in.SourceResults,
		testSource("optimumtech.example", model.TierLab, cand("click_latency_ms", "2", model.MethodHTMLTable)))
	out = gateOne(t, eng, in, "click_latency_ms")
	assert.True(t, out.accepted)
	assert.Equal(t, "2", out.value)
	assert.Equal(t, 3, out.record.InstrumentedConfirmations)
}

func TestGateField_ConfiguredInstrumentedHostCounts(t *testing.T) {
	eng := testEngine(rules.Config{
		InstrumentedFields: []string{"click_latency_ms"},
		InstrumentedHosts:  []string{"techreviewer.example"},
	})
	in := testInput(
		testSource("rtings.com", model.TierLab, cand("click_latency_ms", "2", model.MethodHTMLTable)),
		testSource("techpowerup.com", model.TierLab, cand("click_latency_ms", "2", model.MethodHTMLTable)),
		// Tier 3 by classification, but explicitly configured as a lab host.
		testSource("techreviewer.example", model.TierOther, cand("click_latency_ms", "2", model.MethodHTMLTable)),
	)

	out := gateOne(t, eng, in, "click_latency_ms")
	assert.True(t, out.accepted)
	assert.Equal(t, 3, out.record.InstrumentedConfirmations)
}

func TestConfidence_UnanimousBeatsContested(t *testing.T) {
	eng := testEngine(rules.Config{})
	unanimous := testInput(
		testSource("a.example", model.TierManufacturer, cand("sensor", "HERO 2", model.MethodNetworkJSON)),
		testSource("b.example", model.TierLab, cand("sensor", "HERO 2", model.MethodHTMLTable)),
		testSource("c.example", model.TierLab, cand("sensor", "HERO 2", model.MethodHTMLTable)),
	)
	// Four weakly-scored domains win the ranking but lack the weighted
	// majority over three lab reviews.
	contested := testInput(
		testSource("a.example", model.TierOther, cand("sensor", "HERO 2", model.MethodLLMExtract)),
		testSource("b.example", model.TierOther, cand("sensor", "HERO 2", model.MethodLLMExtract)),
		testSource("c.example", model.TierOther, cand("sensor", "HERO 2", model.MethodLLMExtract)),
		testSource("d.example", model.TierOther, cand("sensor", "HERO 2", model.MethodLLMExtract)),
		testSource("e.example", model.TierLab, cand("sensor", "HERO 25K", model.MethodHTMLTable)),
		testSource("f.example", model.TierLab, cand("sensor", "HERO 25K", model.MethodHTMLTable)),
		testSource("g.example", model.TierLab, cand("sensor", "HERO 25K", model.MethodHTMLTable)),
	)

	u := gateOne(t, eng, unanimous, "sensor")
	c := gateOne(t, eng, contested, "sensor")
	assert.Greater(t, u.record.Confidence, c.record.Confidence)
	assert.LessOrEqual(t, u.record.Confidence, 1.0)
}

func TestHasRelaxedCorroboration_SameDomainBothTiersFails(t *testing.T) {
	cl := newCluster("k", "v")
	src := testSource("logitech.com", model.TierManufacturer)
	lab := testSource("logitech.com", model.TierLab)
	cl.add(&evidenceEntry{source: &src, weight: 1}, false)
	cl.add(&evidenceEntry{source: &lab, weight: 0.8}, true)
	assert.False(t, hasRelaxedCorroboration(cl))
}
