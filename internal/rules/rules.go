package rules

import (
	"gopkg.in/yaml.v3"
)

// ItemUnion is a list-field merge policy applied after consensus.
type ItemUnion string

const (
	ItemUnionNone    ItemUnion = ""
	ItemUnionSet     ItemUnion = "set_union"
	ItemUnionOrdered ItemUnion = "ordered_union"
)

// StringPolicy is the enum form of a field's selection policy. It nudges
// cluster ranking; it never overrides corroboration counts.
type StringPolicy string

const (
	PolicyBestConfidence      StringPolicy = "best_confidence"
	PolicyBestEvidence        StringPolicy = "best_evidence"
	PolicyPreferDeterministic StringPolicy = "prefer_deterministic"
	PolicyPreferLLM           StringPolicy = "prefer_llm"
	PolicyPreferLatest        StringPolicy = "prefer_latest"
)

// PolicyKind discriminates the selection-policy union.
type PolicyKind int

const (
	PolicyNone PolicyKind = iota
	PolicyString
	PolicyTolerance
)

// SelectionPolicy is a tagged union: absent, a string strategy, or an
// object-form tolerance reduction over another field's numeric candidates.
type SelectionPolicy struct {
	Kind        PolicyKind
	Strategy    StringPolicy // valid when Kind == PolicyString
	SourceField string       // valid when Kind == PolicyTolerance
	ToleranceMs float64      // valid when Kind == PolicyTolerance
}

// UnmarshalYAML accepts either a bare strategy string or an object with
// source_field/tolerance_ms. Unknown strategy strings and malformed objects
// decode to PolicyNone so that new policy values stay safely ignorable by
// older engine versions.
func (p *SelectionPolicy) UnmarshalYAML(node *yaml.Node) error {
	*p = SelectionPolicy{}
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return nil
		}
		switch StringPolicy(s) {
		case PolicyBestConfidence, PolicyBestEvidence, PolicyPreferDeterministic, PolicyPreferLLM, PolicyPreferLatest:
			p.Kind = PolicyString
			p.Strategy = StringPolicy(s)
		}
	case yaml.MappingNode:
		var obj struct {
			SourceField string  `yaml:"source_field"`
			ToleranceMs float64 `yaml:"tolerance_ms"`
		}
		if err := node.Decode(&obj); err != nil {
			return nil
		}
		if obj.SourceField != "" {
			p.Kind = PolicyTolerance
			p.SourceField = obj.SourceField
			p.ToleranceMs = obj.ToleranceMs
		}
	}
	return nil
}

// ListRules configures post-consensus list merging for a field.
type ListRules struct {
	ItemUnion ItemUnion `yaml:"item_union"`
}

// Valid reports whether the configured union policy is one the engine knows.
func (l *ListRules) Valid() bool {
	return l != nil && (l.ItemUnion == ItemUnionSet || l.ItemUnion == ItemUnionOrdered)
}

// Contract groups the structural sub-rules of a field.
type Contract struct {
	ListRules *ListRules `yaml:"list_rules,omitempty"`
}

// FieldRule is the per-field configuration the consensus engine consumes.
type FieldRule struct {
	DataType             string          `yaml:"data_type"` // "", "numeric", "list", "text"
	SelectionPolicy      SelectionPolicy `yaml:"selection_policy"`
	Contract             *Contract       `yaml:"contract,omitempty"`
	NumericTolerancePct  float64         `yaml:"numeric_tolerance_pct"`
	KnownValues          []string        `yaml:"known_values,omitempty"`
	PreferredSourceHosts []string        `yaml:"preferred_source_hosts,omitempty"`
	SourceDependent      bool            `yaml:"source_dependent"`
}

// IsNumeric reports whether the field is declared numeric.
func (r FieldRule) IsNumeric() bool { return r.DataType == "numeric" }

// IsList reports whether the field is declared list-typed.
func (r FieldRule) IsList() bool { return r.DataType == "list" }

// UnionPolicy returns the field's list-union policy, or ItemUnionNone when
// absent or unsupported.
func (r FieldRule) UnionPolicy() ItemUnion {
	if r.Contract == nil || !r.Contract.ListRules.Valid() {
		return ItemUnionNone
	}
	return r.Contract.ListRules.ItemUnion
}
