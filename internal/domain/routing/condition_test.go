package routing_test

import (
	"encoding/json"
	"testing"

	"github.com/muhammad-robitulloh/vareon/internal/domain/routing"
)

func mustParse(t *testing.T, raw string) routing.Condition {
	t.Helper()
	c, err := routing.ParseCondition(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	return c
}

func TestEvaluateLeafOperators(t *testing.T) {
	facts := routing.Facts{Intent: "Code_Generation", Prompt: "Please write a parser in Go"}

	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"equals case-insensitive", `{"fact":"intent","operator":"equals","value":"code_generation"}`, true},
		{"equals mismatch", `{"fact":"intent","operator":"equals","value":"reasoning"}`, false},
		{"contains", `{"fact":"prompt","operator":"contains","value":"PARSER"}`, true},
		{"startsWith", `{"fact":"prompt","operator":"startsWith","value":"please"}`, true},
		{"endsWith", `{"fact":"prompt","operator":"endsWith","value":"in go"}`, true},
		{"unknown fact", `{"fact":"mood","operator":"equals","value":"happy"}`, false},
		{"unknown operator", `{"fact":"intent","operator":"matches","value":"code"}`, false},
		{"empty node", `{}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := routing.Evaluate(mustParse(t, tt.raw), facts); got != tt.want {
				t.Errorf("Evaluate(%s) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestEvaluateGroups(t *testing.T) {
	facts := routing.Facts{Intent: "chat", Prompt: "hello there"}

	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"empty all is true", `{"all":[]}`, true},
		{"empty any is false", `{"any":[]}`, false},
		{
			"all requires every child",
			`{"all":[
				{"fact":"intent","operator":"equals","value":"chat"},
				{"fact":"prompt","operator":"startsWith","value":"hello"}
			]}`,
			true,
		},
		{
			"all fails on one child",
			`{"all":[
				{"fact":"intent","operator":"equals","value":"chat"},
				{"fact":"prompt","operator":"startsWith","value":"goodbye"}
			]}`,
			false,
		},
		{
			"any needs one child",
			`{"any":[
				{"fact":"intent","operator":"equals","value":"reasoning"},
				{"fact":"prompt","operator":"contains","value":"there"}
			]}`,
			true,
		},
		{
			"nested groups",
			`{"any":[
				{"all":[
					{"fact":"intent","operator":"equals","value":"chat"},
					{"any":[]}
				]},
				{"all":[]}
			]}`,
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := routing.Evaluate(mustParse(t, tt.raw), facts); got != tt.want {
				t.Errorf("Evaluate(%s) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseConditionMalformed(t *testing.T) {
	if _, err := routing.ParseCondition(json.RawMessage(`{"all": "nope"}`)); err == nil {
		t.Errorf("expected error for malformed condition")
	}
	if _, err := routing.ParseCondition(nil); err != nil {
		t.Errorf("empty condition must parse: %v", err)
	}
}
