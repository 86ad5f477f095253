package consensus

import "github.com/sells-group/specharvest/internal/model"

// Tier and method weights are immutable, version-controlled policy tables.
// Changing them changes which cluster wins, so treat edits as behavior
// changes, not tuning.

const (
	tierWeightManufacturer = 1.0
	tierWeightLab          = 0.8
	tierWeightOther        = 0.45
	tierWeightDefault      = 0.4
)

// TierWeight returns the trust weight for a source tier. Unknown tiers get
// a default slightly below tier 3; they never panic.
func TierWeight(tier int) float64 {
	switch tier {
	case model.TierManufacturer:
		return tierWeightManufacturer
	case model.TierLab:
		return tierWeightLab
	case model.TierOther:
		return tierWeightOther
	default:
		return tierWeightDefault
	}
}

const methodWeightDefault = 0.4

var methodWeights = map[string]float64{
	model.MethodNetworkJSON: 1.0,
	model.MethodAdapterAPI:  0.95,
	model.MethodPDFTable:    0.9,
	model.MethodHTMLTable:   0.7,
	model.MethodSpecList:    0.6,
	model.MethodRegex:       0.5,
	model.MethodDOM:         0.4,
	model.MethodLLMExtract:  0.2,
	model.MethodLLMVision:   0.2,
}

// MethodWeight returns the extraction-method weight. Unrecognized methods
// get the default weight rather than an error.
func MethodWeight(method string) float64 {
	if w, ok := methodWeights[method]; ok {
		return w
	}
	return methodWeightDefault
}

var llmMethods = map[string]bool{
	model.MethodLLMExtract: true,
	model.MethodLLMVision:  true,
}

// IsLLMMethod reports whether the extraction method is model-generated
// rather than deterministic.
func IsLLMMethod(method string) bool {
	return llmMethods[method]
}

// CandidateWeight is the score contribution of a single piece of evidence.
func CandidateWeight(tier int, method string) float64 {
	return TierWeight(tier) * MethodWeight(method)
}
