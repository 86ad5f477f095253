package model

import "time"

// Unknown is the sentinel written for a field no trusted value survived for.
const Unknown = "unk"

// NotApplicable marks fields that cannot apply to the product at hand,
// e.g. battery_hours on a wired mouse.
const NotApplicable = "n/a"

// IdentityLock carries the externally resolved product identity.
type IdentityLock struct {
	Brand string `json:"brand"`
	Model string `json:"model"`
	SKU   string `json:"sku,omitempty"`
}

// ConsensusInput is everything one engine invocation reads for one product.
type ConsensusInput struct {
	ProductID                string            `json:"product_id"`
	Category                 string            `json:"category"`
	IdentityLock             IdentityLock      `json:"identity_lock"`
	Anchors                  map[string]string `json:"anchors,omitempty"`
	FieldOrder               []string          `json:"field_order,omitempty"`
	CriticalFields           []string          `json:"critical_fields,omitempty"`
	AllowBelowPassTargetFill bool              `json:"allow_below_pass_target_fill"`
	SourceResults            []SourceResult    `json:"source_results"`
}

// Citation ties a candidate back to the exact quote that justified it.
type Citation struct {
	SnippetID    string     `json:"snippet_id,omitempty"`
	SnippetHash  string     `json:"snippet_hash,omitempty"`
	SourceID     string     `json:"source_id,omitempty"`
	Quote        string     `json:"quote,omitempty"`
	QuoteSpan    string     `json:"quote_span,omitempty"`
	RetrievedAt  *time.Time `json:"retrieved_at,omitempty"`
	Method       string     `json:"extraction_method,omitempty"`
	ReferenceURL string     `json:"reference_url,omitempty"`
	EvidenceRefs []string   `json:"evidence_refs,omitempty"`
}

// EvidenceRow is one provenance evidence entry for a field's winning value.
type EvidenceRow struct {
	URL            string     `json:"url"`
	Host           string     `json:"host"`
	Tier           int        `json:"tier"`
	Method         string     `json:"method"`
	KeyPath        string     `json:"key_path,omitempty"`
	ApprovedDomain bool       `json:"approved_domain"`
	SnippetID      string     `json:"snippet_id,omitempty"`
	SnippetHash    string     `json:"snippet_hash,omitempty"`
	Quote          string     `json:"quote,omitempty"`
	RetrievedAt    *time.Time `json:"retrieved_at,omitempty"`
	EvidenceRefs   []string   `json:"evidence_refs,omitempty"`
}

// ListMergeInfo records what the list-union reducer changed for a field.
type ListMergeInfo struct {
	Policy      string   `json:"policy"`
	AddedCount  int      `json:"added_count"`
	AddedValues []string `json:"added_values,omitempty"`
}

// ToleranceReduction records the outcome of the object-form selection-policy
// reducer for a field.
type ToleranceReduction struct {
	SourceField string  `json:"source_field"`
	ValueCount  int     `json:"value_count"`
	Reason      string  `json:"reason,omitempty"`
	Min         float64 `json:"min,omitempty"`
	Max         float64 `json:"max,omitempty"`
}

// Rejection reasons surfaced by the reducers.
const ReasonExceedsTolerance = "exceeds_tolerance"

// ProvenanceRecord is the per-field audit trail of how a value was chosen.
type ProvenanceRecord struct {
	Value                     string              `json:"value"`
	AnchorLocked              bool                `json:"anchor_locked"`
	Confirmations             int                 `json:"confirmations"`
	ApprovedConfirmations     int                 `json:"approved_confirmations"`
	InstrumentedConfirmations int                 `json:"instrumented_confirmations"`
	PassTarget                int                 `json:"pass_target"`
	MeetsPassTarget           bool                `json:"meets_pass_target"`
	AcceptedBelowPassTarget   bool                `json:"accepted_below_pass_target"`
	WeightedMajority          bool                `json:"weighted_majority"`
	Confidence                float64             `json:"confidence"`
	Domains                   []string            `json:"domains,omitempty"`
	ApprovedDomains           []string            `json:"approved_domains,omitempty"`
	Evidence                  []EvidenceRow       `json:"evidence,omitempty"`
	ListMerge                 *ListMergeInfo      `json:"list_merge,omitempty"`
	Reduction                 *ToleranceReduction `json:"reduction,omitempty"`
}

// LedgerEvidence is the evidence sub-object on a candidate ledger entry.
type LedgerEvidence struct {
	URL         string `json:"url,omitempty"`
	SnippetID   string `json:"snippet_id,omitempty"`
	SnippetHash string `json:"snippet_hash,omitempty"`
	SourceID    string `json:"source_id,omitempty"`
	Quote       string `json:"quote,omitempty"`
	QuoteSpan   string `json:"quote_span,omitempty"`
}

// CandidateLedgerEntry is one row of the per-field candidate ledger exposed
// for human review.
type CandidateLedgerEntry struct {
	CandidateID    string         `json:"candidate_id"`
	Value          string         `json:"value"`
	Score          float64        `json:"score"`
	Host           string         `json:"host"`
	RootDomain     string         `json:"root_domain"`
	SourceID       string         `json:"source_id,omitempty"`
	URL            string         `json:"url"`
	Tier           int            `json:"tier"`
	Method         string         `json:"method"`
	ApprovedDomain bool           `json:"approved_domain"`
	Evidence       LedgerEvidence `json:"evidence"`
}

// NewValueProposal surfaces a value outside a field's controlled vocabulary
// for curator review. It never blocks acceptance.
type NewValueProposal struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// ConsensusResult is the full output of one engine invocation.
type ConsensusResult struct {
	ProductID                     string                            `json:"product_id"`
	Category                      string                            `json:"category,omitempty"`
	Fields                        map[string]string                 `json:"fields"`
	Provenance                    map[string]ProvenanceRecord       `json:"provenance"`
	Candidates                    map[string][]CandidateLedgerEntry `json:"candidates"`
	FieldsBelowPassTarget         []string                          `json:"fields_below_pass_target"`
	CriticalFieldsBelowPassTarget []string                          `json:"critical_fields_below_pass_target"`
	NewValuesProposed             []NewValueProposal                `json:"new_values_proposed"`
	AgreementScore                float64                           `json:"agreement_score"`
}
