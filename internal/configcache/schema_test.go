package configcache

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestLevelPayoutTableUnmarshal(t *testing.T) {
	var table LevelPayoutTable
	if err := json.Unmarshal([]byte(`{"level_2": 20.00, "level_3": 5.00, "level_10": 0.50}`), &table); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := LevelPayoutTable{2: 20.00, 3: 5.00, 10: 0.50}
	if !reflect.DeepEqual(table, want) {
		t.Errorf("table = %v, want %v", table, want)
	}
}

func TestLevelPayoutTableUnmarshalInvalidKey(t *testing.T) {
	tests := []string{
		`{"2": 20.00}`,
		`{"level_abc": 20.00}`,
		`{"level_0": 20.00}`,
	}
	for _, payload := range tests {
		var table LevelPayoutTable
		if err := json.Unmarshal([]byte(payload), &table); err == nil {
			t.Errorf("payload %s should fail to unmarshal", payload)
		}
	}
}

func TestHierarchySettingsValidate(t *testing.T) {
	valid := HierarchySettings{MaxLevels: 3, Currency: "USD", MinimumPayout: 0.01}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid settings rejected: %v", err)
	}

	if err := (HierarchySettings{MaxLevels: 0}).Validate(); err == nil {
		t.Error("zero max_levels should be rejected")
	}
	if err := (HierarchySettings{MaxLevels: 3, MinimumPayout: -1}).Validate(); err == nil {
		t.Error("negative minimum_payout should be rejected")
	}
}

func TestRuleSetIsEmpty(t *testing.T) {
	var nilRules *RuleSet
	if !nilRules.IsEmpty() {
		t.Error("nil rule set should be empty")
	}
	if !(&RuleSet{RuleID: "r1"}).IsEmpty() {
		t.Error("rule set without groups should be empty")
	}
	rules := &RuleSet{
		RuleID:   "r1",
		Operator: OperatorAnd,
		Groups:   []RuleGroup{{Operator: OperatorOr}},
	}
	if rules.IsEmpty() {
		t.Error("rule set with groups should not be empty")
	}
}

func TestRuleSetValidate(t *testing.T) {
	if err := (&RuleSet{}).Validate(); err != nil {
		t.Errorf("empty rule set should validate: %v", err)
	}

	bad := &RuleSet{
		RuleID:   "r1",
		Operator: "XOR",
		Groups:   []RuleGroup{{Operator: OperatorAnd}},
	}
	if err := bad.Validate(); err == nil {
		t.Error("unknown top-level operator should be rejected")
	}

	badGroup := &RuleSet{
		RuleID:   "r1",
		Operator: OperatorAnd,
		Groups:   []RuleGroup{{Operator: "NOT"}},
	}
	if err := badGroup.Validate(); err == nil {
		t.Error("unknown group operator should be rejected")
	}

	mixedCase := &RuleSet{
		RuleID:   "r1",
		Operator: "and",
		Groups:   []RuleGroup{{Operator: "or"}},
	}
	if err := mixedCase.Validate(); err != nil {
		t.Errorf("lowercase operators should validate: %v", err)
	}
}

func TestParseValue(t *testing.T) {
	table, err := ParseValue(KeyLevelPayoutTable, json.RawMessage(`{"level_2": 20.00}`))
	if err != nil {
		t.Fatalf("parse payout table: %v", err)
	}
	if _, ok := table.(LevelPayoutTable); !ok {
		t.Errorf("payout table parsed to %T", table)
	}

	settings, err := ParseValue(KeyHierarchySettings, json.RawMessage(`{"max_levels": 3, "currency": "USD", "minimum_payout": 0.01}`))
	if err != nil {
		t.Fatalf("parse settings: %v", err)
	}
	if _, ok := settings.(HierarchySettings); !ok {
		t.Errorf("settings parsed to %T", settings)
	}

	rules, err := ParseValue(KeyValidationRuleSet, json.RawMessage(`{"rule_id": "r1", "operator": "AND", "groups": []}`))
	if err != nil {
		t.Fatalf("parse rules: %v", err)
	}
	if _, ok := rules.(*RuleSet); !ok {
		t.Errorf("rules parsed to %T", rules)
	}

	if _, err := ParseValue("unknown-key", json.RawMessage(`{}`)); err == nil {
		t.Error("unknown key should be rejected")
	}
	if _, err := ParseValue(KeyHierarchySettings, json.RawMessage(`{"max_levels": 0}`)); err == nil {
		t.Error("invalid settings should be rejected at parse")
	}
}
