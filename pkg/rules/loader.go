package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/knmi/sdsrules/pkg/errs"
)

// resolveRelative resolves ref against the directory containing base when
// ref is not already absolute, so a rule-sequence document can name its
// rule_map with a path relative to itself.
func resolveRelative(base, ref string) string {
	if filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(filepath.Dir(base), ref)
}

// ConditionRef is one entry of a RuleDefinition's conditions list, as
// decoded from the rule-map JSON document. FunctionName may carry a leading
// '!' to request negation.
type ConditionRef struct {
	FunctionName string         `json:"function_name"`
	Options      map[string]any `json:"options"`
}

// RuleDefinition is one entry of the rule-map document.
type RuleDefinition struct {
	FunctionName string         `json:"function_name"`
	Options      map[string]any `json:"options"`
	Conditions   []ConditionRef `json:"conditions"`
	Timeout      int            `json:"timeout,omitempty"`
	Description  string         `json:"description,omitempty"`
}

// RuleMap is the rule_name -> RuleDefinition document.
type RuleMap map[string]RuleDefinition

// RuleSequenceDoc is the { rule_map, sequence } document.
type RuleSequenceDoc struct {
	RuleMap  string   `json:"rule_map"`
	Sequence []string `json:"sequence"`
}

// BoundRule is one fully-resolved step of a loaded pipeline: a bound action,
// its bound conditions in order, the rule's display name, and its effective
// timeout.
type BoundRule struct {
	Name       string
	Action     BoundAction
	Conditions []BoundCondition
	Timeout    time.Duration
}

// Catalog is the materialized, validated pipeline: an ordered list of
// BoundRule, one per entry of the rule sequence (duplicates preserved, so a
// rule named twice in sequence runs twice).
type Catalog struct {
	Rules []BoundRule
}

// knownRuleKeys is the schema's required/optional key set for one rule-map
// entry. No other keys are permitted (spec: "No extra keys allowed").
var knownRuleKeys = map[string]bool{
	"function_name": true,
	"options":       true,
	"conditions":    true,
	"timeout":       true,
	"description":   true,
}

var knownConditionKeys = map[string]bool{
	"function_name": true,
	"options":       true,
}

// Load reads the rule-sequence document at seqPath and the rule-map document
// it references (resolved relative to seqPath's directory if not absolute),
// validates both against the schema in archive spec §4.4, resolves every
// function_name against the supplied registries, and returns the bound
// pipeline in sequence order.
func Load(seqPath string, conditions *ConditionRegistry, actions *ActionRegistry, defaultTimeout time.Duration) (*Catalog, error) {
	seq, err := loadSequenceDoc(seqPath)
	if err != nil {
		return nil, err
	}

	ruleMapPath := resolveRelative(seqPath, seq.RuleMap)
	ruleMap, err := loadRuleMapDoc(ruleMapPath)
	if err != nil {
		return nil, err
	}

	catalog := &Catalog{}
	for _, name := range seq.Sequence {
		def, ok := ruleMap[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q listed in sequence but absent from rule map", errs.ErrUnknownRule, name)
		}

		action, err := actions.Resolve(def.FunctionName, Options(def.Options))
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", name, err)
		}

		boundConds := make([]BoundCondition, 0, len(def.Conditions))
		for _, ref := range def.Conditions {
			bc, err := conditions.Resolve(ref)
			if err != nil {
				return nil, fmt.Errorf("rule %q condition: %w", name, err)
			}
			boundConds = append(boundConds, bc)
		}

		timeout := defaultTimeout
		if def.Timeout > 0 {
			timeout = time.Duration(def.Timeout) * time.Second
		}

		catalog.Rules = append(catalog.Rules, BoundRule{
			Name:       name,
			Action:     action,
			Conditions: boundConds,
			Timeout:    timeout,
		})
	}

	return catalog, nil
}

func loadSequenceDoc(path string) (RuleSequenceDoc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return RuleSequenceDoc{}, fmt.Errorf("%w: %s: %v", errs.ErrConfigNotFound, path, err)
	}
	var seq RuleSequenceDoc
	if err := json.Unmarshal(raw, &seq); err != nil {
		return RuleSequenceDoc{}, fmt.Errorf("%w: %s: %v", errs.ErrSchemaError, path, err)
	}
	return seq, nil
}

func loadRuleMapDoc(path string) (RuleMap, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errs.ErrConfigNotFound, path, err)
	}

	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(raw, &rawMap); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errs.ErrSchemaError, path, err)
	}

	ruleMap := make(RuleMap, len(rawMap))
	for name, rawDef := range rawMap {
		if err := validateRuleKeys(name, rawDef); err != nil {
			return nil, err
		}

		var def RuleDefinition
		if err := json.Unmarshal(rawDef, &def); err != nil {
			return nil, fmt.Errorf("%w: rule %q: %v", errs.ErrSchemaError, name, err)
		}
		if def.FunctionName == "" {
			return nil, fmt.Errorf("%w: rule %q missing function_name", errs.ErrSchemaError, name)
		}
		for _, c := range def.Conditions {
			if c.FunctionName == "" {
				return nil, fmt.Errorf("%w: rule %q has a condition missing function_name", errs.ErrSchemaError, name)
			}
		}
		ruleMap[name] = def
	}

	return ruleMap, nil
}

func validateRuleKeys(ruleName string, raw json.RawMessage) error {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("%w: rule %q: %v", errs.ErrSchemaError, ruleName, err)
	}
	for key := range generic {
		if !knownRuleKeys[key] {
			return fmt.Errorf("%w: rule %q has unknown key %q", errs.ErrSchemaError, ruleName, key)
		}
	}

	if rawConds, ok := generic["conditions"]; ok {
		var conds []map[string]json.RawMessage
		if err := json.Unmarshal(rawConds, &conds); err != nil {
			return fmt.Errorf("%w: rule %q: conditions: %v", errs.ErrSchemaError, ruleName, err)
		}
		for _, c := range conds {
			for key := range c {
				if !knownConditionKeys[key] {
					return fmt.Errorf("%w: rule %q has a condition with unknown key %q", errs.ErrSchemaError, ruleName, key)
				}
			}
		}
	}

	return nil
}
