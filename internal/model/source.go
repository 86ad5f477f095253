package model

import "time"

// Source tiers. Tier 1 sources are manufacturer properties, tier 2 are
// lab/review sites with measurement equipment, tier 3 is everything else.
const (
	TierManufacturer = 1
	TierLab          = 2
	TierOther        = 3
)

// Extraction methods produced by the upstream adapters.
const (
	MethodNetworkJSON = "network_json"
	MethodAdapterAPI  = "adapter_api"
	MethodPDFTable    = "pdf_table"
	MethodHTMLTable   = "html_table"
	MethodSpecList    = "spec_list"
	MethodRegex       = "regex"
	MethodDOM         = "dom"
	MethodLLMExtract  = "llm_extract"
	MethodLLMVision   = "llm_vision"
)

// FieldCandidate is one observed value for one field from one source.
// Immutable once produced by the extraction phase.
type FieldCandidate struct {
	Field        string   `json:"field"`
	Value        string   `json:"value"`
	Method       string   `json:"method"`
	KeyPath      string   `json:"key_path,omitempty"`
	EvidenceRefs []string `json:"evidence_refs,omitempty"`
}

// EvidenceReference maps a reference id used by a candidate to the snippet
// (and optionally the URL) that backs it.
type EvidenceReference struct {
	ID        string `json:"id"`
	SnippetID string `json:"snippet_id,omitempty"`
	URL       string `json:"url,omitempty"`
}

// EvidenceSnippet is a verbatim quote captured from a source page.
type EvidenceSnippet struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Hash string `json:"hash,omitempty"`
	URL  string `json:"url,omitempty"`
}

// EvidencePack is a source's snippet index used for citation resolution.
type EvidencePack struct {
	References []EvidenceReference `json:"references,omitempty"`
	Snippets   []EvidenceSnippet   `json:"snippets,omitempty"`
}

// SourceResult is one fetched and extracted source evaluated for one product.
// Owned by the extraction phase; the consensus engine treats it as read-only.
type SourceResult struct {
	SourceID        string           `json:"source_id,omitempty"`
	URL             string           `json:"url"`
	FinalURL        string           `json:"final_url,omitempty"`
	Host            string           `json:"host"`
	RootDomain      string           `json:"root_domain"`
	Tier            int              `json:"tier"`
	TierName        string           `json:"tier_name,omitempty"`
	Role            string           `json:"role,omitempty"`
	ApprovedDomain  bool             `json:"approved_domain"`
	IdentityMatch   bool             `json:"identity_match"`
	AnchorCheck     bool             `json:"anchor_check"`
	RetrievedAt     *time.Time       `json:"retrieved_at,omitempty"`
	FieldCandidates []FieldCandidate `json:"field_candidates"`
	EvidencePack    *EvidencePack    `json:"llm_evidence_pack,omitempty"`
}

// Usable reports whether a source may contribute candidates at all:
// it must be confirmed to be about the right product and free of major
// conflicts with locked identity fields.
func (s *SourceResult) Usable() bool {
	return s.IdentityMatch && s.AnchorCheck
}

// BestURL returns the post-redirect URL when known, the requested URL otherwise.
func (s *SourceResult) BestURL() string {
	if s.FinalURL != "" {
		return s.FinalURL
	}
	return s.URL
}
