package consensus

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/sells-group/specharvest/internal/model"
)

// evidenceIndex is the resolved snippet/reference lookup for one source.
type evidenceIndex struct {
	refs  map[string]model.EvidenceReference
	snips map[string]model.EvidenceSnippet
}

// citationResolver resolves evidence-reference ids against a source's
// snippet index. Indexes are built lazily and cached per source position,
// scoped to a single engine invocation. Never share a resolver across
// products.
type citationResolver struct {
	indexes map[int]*evidenceIndex
}

func newCitationResolver() *citationResolver {
	return &citationResolver{indexes: make(map[int]*evidenceIndex)}
}

func (r *citationResolver) index(srcIdx int, src *model.SourceResult) *evidenceIndex {
	if idx, ok := r.indexes[srcIdx]; ok {
		return idx
	}
	idx := &evidenceIndex{
		refs:  make(map[string]model.EvidenceReference),
		snips: make(map[string]model.EvidenceSnippet),
	}
	if pack := src.EvidencePack; pack != nil {
		for _, ref := range pack.References {
			idx.refs[ref.ID] = ref
		}
		for _, sn := range pack.Snippets {
			idx.snips[sn.ID] = sn
		}
	}
	r.indexes[srcIdx] = idx
	return idx
}

// Resolve attaches a citation to a candidate. The first resolvable reference
// wins; a candidate with no resolvable reference yields an uncited citation
// (empty quote and hash), which is reduced auditability, not an error.
func (r *citationResolver) Resolve(srcIdx int, src *model.SourceResult, cand model.FieldCandidate) model.Citation {
	cite := model.Citation{
		SourceID:     sourceID(src),
		RetrievedAt:  src.RetrievedAt,
		Method:       cand.Method,
		EvidenceRefs: cand.EvidenceRefs,
	}
	if len(cand.EvidenceRefs) == 0 {
		return cite
	}

	idx := r.index(srcIdx, src)
	for _, refID := range cand.EvidenceRefs {
		snippetID := refID
		refURL := ""
		if ref, ok := idx.refs[refID]; ok {
			if ref.SnippetID != "" {
				snippetID = ref.SnippetID
			}
			refURL = ref.URL
		}
		sn, ok := idx.snips[snippetID]
		if !ok {
			continue
		}

		cite.SnippetID = sn.ID
		cite.Quote = normalizeWhitespace(sn.Text)
		cite.SnippetHash = sn.Hash
		if cite.SnippetHash == "" {
			cite.SnippetHash = SnippetHash(cite.Quote)
		}
		cite.ReferenceURL = refURL
		if cite.ReferenceURL == "" {
			cite.ReferenceURL = sn.URL
		}
		if cite.ReferenceURL == "" {
			cite.ReferenceURL = src.BestURL()
		}
		return cite
	}
	return cite
}

// SnippetHash is a stable short digest of a normalized quote.
func SnippetHash(quote string) string {
	sum := sha256.Sum256([]byte(quote))
	return hex.EncodeToString(sum[:])[:16]
}

// CandidateID derives a stable review-ledger id from product, field, value
// and ledger position.
func CandidateID(productID, field, value string, idx int) string {
	sum := sha256.Sum256([]byte(productID + "|" + field + "|" + value + "|" + strconv.Itoa(idx)))
	return hex.EncodeToString(sum[:])[:12]
}

func sourceID(src *model.SourceResult) string {
	if src.SourceID != "" {
		return src.SourceID
	}
	return src.Host
}
