package consensus

import (
	"github.com/sells-group/specharvest/internal/model"
	"github.com/sells-group/specharvest/internal/rules"
)

// testSource builds a usable, approved-domain source with a single candidate
// per (field, value) pair. Tests that need unapproved or unusable sources
// mutate the returned struct.
func testSource(host string, tier int, cands ...model.FieldCandidate) model.SourceResult {
	return model.SourceResult{
		URL:             "https://" + host + "/specs",
		Host:            host,
		RootDomain:      host,
		Tier:            tier,
		ApprovedDomain:  true,
		IdentityMatch:   true,
		AnchorCheck:     true,
		FieldCandidates: cands,
	}
}

func cand(field, value, method string) model.FieldCandidate {
	return model.FieldCandidate{Field: field, Value: value, Method: method}
}

func testEngine(cfg rules.Config) *rules.Engine {
	return rules.NewEngine(cfg)
}

func testInput(sources ...model.SourceResult) *model.ConsensusInput {
	return &model.ConsensusInput{
		ProductID:     "mouse-001",
		Category:      "gaming-mouse",
		SourceResults: sources,
	}
}
