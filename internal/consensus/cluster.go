package consensus

import (
	"math"
	"sort"

	"github.com/sells-group/specharvest/internal/model"
	"github.com/sells-group/specharvest/internal/rules"
)

// evidenceEntry is one canonicalized candidate routed into a cluster,
// carrying everything needed for provenance rows and the review ledger.
type evidenceEntry struct {
	sourceIdx int
	source    *model.SourceResult
	cand      model.FieldCandidate
	display   string
	weight    float64
	citation  model.Citation
}

func (e *evidenceEntry) row() model.EvidenceRow {
	return model.EvidenceRow{
		URL:            e.source.BestURL(),
		Host:           e.source.Host,
		Tier:           e.source.Tier,
		Method:         e.cand.Method,
		KeyPath:        e.cand.KeyPath,
		ApprovedDomain: e.source.ApprovedDomain,
		SnippetID:      e.citation.SnippetID,
		SnippetHash:    e.citation.SnippetHash,
		Quote:          e.citation.Quote,
		RetrievedAt:    e.source.RetrievedAt,
		EvidenceRefs:   e.cand.EvidenceRefs,
	}
}

// cluster accumulates all candidates that canonicalize to the same value
// for one field. Created fresh per engine run, never persisted.
type cluster struct {
	key                 string
	display             string
	numeric             float64
	hasNumeric          bool
	score               float64
	bonus               float64
	domains             map[string]bool
	approvedDomains     map[string]bool
	instrumentedDomains map[string]bool
	entries             []*evidenceEntry
}

func newCluster(key, display string) *cluster {
	return &cluster{
		key:                 key,
		display:             display,
		domains:             make(map[string]bool),
		approvedDomains:     make(map[string]bool),
		instrumentedDomains: make(map[string]bool),
	}
}

func (c *cluster) approvedCount() int     { return len(c.approvedDomains) }
func (c *cluster) domainCount() int       { return len(c.domains) }
func (c *cluster) instrumentedCount() int { return len(c.instrumentedDomains) }

// totalScore includes the selection-policy bonus.
func (c *cluster) totalScore() float64 { return c.score + c.bonus }

func (c *cluster) add(e *evidenceEntry, instrumentedSource bool) {
	c.entries = append(c.entries, e)
	dom := e.source.RootDomain
	if dom == "" {
		dom = e.source.Host
	}
	c.domains[dom] = true
	if e.source.ApprovedDomain {
		c.approvedDomains[dom] = true
		// Only approved domains contribute to the weighted score; everyone
		// still counts toward corroboration sets above.
		c.score += e.weight
	}
	if instrumentedSource {
		c.instrumentedDomains[dom] = true
	}
}

func (c *cluster) sortedDomains() []string {
	return sortedKeys(c.domains)
}

func (c *cluster) sortedApprovedDomains() []string {
	return sortedKeys(c.approvedDomains)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// fieldClusters holds the per-field working state of one engine run.
type fieldClusters struct {
	clusters []*cluster // insertion order
	byKey    map[string]*cluster
	entries  []*evidenceEntry // all entries in source order, for the ledger
}

// buildClusters canonicalizes every candidate of every usable source and
// folds them into per-field clusters. Sources failing identity match or the
// anchor check contribute nothing; unknown values never enter a cluster.
func buildClusters(in *model.ConsensusInput, eng *rules.Engine, resolver *citationResolver) map[string]*fieldClusters {
	byField := make(map[string]*fieldClusters)

	for i := range in.SourceResults {
		src := &in.SourceResults[i]
		if !src.Usable() {
			continue
		}
		instrumented := src.Tier == model.TierLab || eng.IsInstrumentedHost(src.Host)

		for _, cand := range src.FieldCandidates {
			rule := eng.GetFieldRule(cand.Field)
			canon := Canonicalize(cand.Field, rule, cand.Value)
			if !canon.Known() {
				continue
			}

			fc := byField[cand.Field]
			if fc == nil {
				fc = &fieldClusters{byKey: make(map[string]*cluster)}
				byField[cand.Field] = fc
			}

			entry := &evidenceEntry{
				sourceIdx: i,
				source:    src,
				cand:      cand,
				display:   canon.Display,
				weight:    CandidateWeight(src.Tier, cand.Method),
				citation:  resolver.Resolve(i, src, cand),
			}
			fc.entries = append(fc.entries, entry)

			cl := fc.route(rule, canon)
			cl.add(entry, instrumented)
		}
	}
	return byField
}

// route finds the cluster a canonical value belongs to, merging numeric
// values into an existing cluster when they fall within the field's
// declared relative tolerance of its representative value.
func (fc *fieldClusters) route(rule rules.FieldRule, canon Canonical) *cluster {
	if cl, ok := fc.byKey[canon.Key]; ok {
		return cl
	}

	if rule.IsNumeric() && rule.NumericTolerancePct > 0 {
		if v, ok := ParseNumber(canon.Display); ok {
			for _, cl := range fc.clusters {
				if !cl.hasNumeric {
					continue
				}
				tol := math.Abs(cl.numeric) * rule.NumericTolerancePct
				if math.Abs(v-cl.numeric) <= tol {
					// Alias the key so later identical values land here too.
					fc.byKey[canon.Key] = cl
					return cl
				}
			}
			cl := newCluster(canon.Key, canon.Display)
			cl.numeric = v
			cl.hasNumeric = true
			fc.clusters = append(fc.clusters, cl)
			fc.byKey[canon.Key] = cl
			return cl
		}
	}

	cl := newCluster(canon.Key, canon.Display)
	if v, ok := ParseNumber(canon.Display); ok && rule.IsNumeric() {
		cl.numeric = v
		cl.hasNumeric = true
	}
	fc.clusters = append(fc.clusters, cl)
	fc.byKey[canon.Key] = cl
	return cl
}

// ranked returns the clusters ordered by approved-domain count, then score,
// then display value. The lexicographic tail keeps ranking total for
// byte-identical reruns.
func (fc *fieldClusters) ranked() []*cluster {
	out := make([]*cluster, len(fc.clusters))
	copy(out, fc.clusters)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.approvedCount() != b.approvedCount() {
			return a.approvedCount() > b.approvedCount()
		}
		if a.totalScore() != b.totalScore() {
			return a.totalScore() > b.totalScore()
		}
		return a.display < b.display
	})
	return out
}
