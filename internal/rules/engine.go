package rules

import (
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Pass targets: minimum approved-domain corroboration before a value is
// published instead of "unk".
const (
	passTargetExempt        = 0
	passTargetDefault       = 3
	passTargetCommonlyWrong = 5
)

// defaultIdentityFields are always exempt from consensus gating.
var defaultIdentityFields = []string{"id", "brand", "model", "base_model", "category", "sku"}

// Config is the on-disk field-rule configuration.
type Config struct {
	FieldOrder         []string             `yaml:"field_order,omitempty"`
	IdentityFields     []string             `yaml:"identity_fields,omitempty"`
	InstrumentedFields []string             `yaml:"instrumented_fields,omitempty"`
	CommonlyWrong      []string             `yaml:"commonly_wrong_fields,omitempty"`
	InstrumentedHosts  []string             `yaml:"instrumented_hosts,omitempty"`
	Fields             map[string]FieldRule `yaml:"fields"`
}

// Engine answers per-field rule lookups for the consensus engine. It is
// read-only after construction and safe for concurrent use.
type Engine struct {
	fields            map[string]FieldRule
	fieldOrder        []string
	identityExempt    map[string]bool
	instrumented      map[string]bool
	commonlyWrong     map[string]bool
	instrumentedHosts map[string]bool
}

// NewEngine builds a rule engine from a parsed config.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		fields:            make(map[string]FieldRule, len(cfg.Fields)),
		identityExempt:    make(map[string]bool),
		instrumented:      make(map[string]bool),
		commonlyWrong:     make(map[string]bool),
		instrumentedHosts: make(map[string]bool),
	}
	for k, r := range cfg.Fields {
		e.fields[k] = r
	}

	identity := cfg.IdentityFields
	if len(identity) == 0 {
		identity = defaultIdentityFields
	}
	for _, f := range identity {
		e.identityExempt[f] = true
	}
	for _, f := range cfg.InstrumentedFields {
		e.instrumented[f] = true
	}
	for _, f := range cfg.CommonlyWrong {
		e.commonlyWrong[f] = true
	}
	for _, h := range cfg.InstrumentedHosts {
		e.instrumentedHosts[h] = true
	}

	if len(cfg.FieldOrder) > 0 {
		e.fieldOrder = append(e.fieldOrder, cfg.FieldOrder...)
	} else {
		// Deterministic fallback: sorted rule keys.
		for k := range e.fields {
			e.fieldOrder = append(e.fieldOrder, k)
		}
		sort.Strings(e.fieldOrder)
	}
	return e
}

// LoadEngine reads field-rule config from a YAML file.
func LoadEngine(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: read config %s", path)
	}

	// The YAML has a top-level "rules" key.
	var wrapper struct {
		Rules Config `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "rules: parse config")
	}

	eng := NewEngine(wrapper.Rules)
	zap.L().Debug("rules: engine loaded",
		zap.String("path", path),
		zap.Int("fields", len(eng.fields)),
	)
	return eng, nil
}

// GetFieldRule returns the rule for a field. Unknown fields get the zero
// rule, which behaves as plain whitespace-normalized text.
func (e *Engine) GetFieldRule(field string) FieldRule {
	return e.fields[field]
}

// AllFieldKeys returns the full, ordered list of fields to resolve.
func (e *Engine) AllFieldKeys() []string {
	out := make([]string, len(e.fieldOrder))
	copy(out, e.fieldOrder)
	return out
}

// PassTarget returns the minimum approved-domain corroboration count for a
// field: 0 for identity-exempt fields, 5 for commonly-wrong fields, else 3.
func (e *Engine) PassTarget(field string) int {
	switch {
	case e.identityExempt[field]:
		return passTargetExempt
	case e.commonlyWrong[field]:
		return passTargetCommonlyWrong
	default:
		return passTargetDefault
	}
}

// IsIdentityExempt reports whether the field bypasses consensus gating.
func (e *Engine) IsIdentityExempt(field string) bool {
	return e.identityExempt[field]
}

// IsInstrumented reports whether the field requires lab/review-grade
// corroboration.
func (e *Engine) IsInstrumented(field string) bool {
	return e.instrumented[field]
}

// IsInstrumentedHost reports whether a host is an explicitly configured
// lab/review host. Tier-2 sources count as instrumented regardless.
func (e *Engine) IsInstrumentedHost(host string) bool {
	return e.instrumentedHosts[host]
}
