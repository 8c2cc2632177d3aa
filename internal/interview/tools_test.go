package interview

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		want Kind
	}{
		{ToolRecordFinding, KindSilent},
		{ToolCollectDemographics, KindClient},
		{ToolGenerateDifferentials, KindTerminal},
	}
	for _, tt := range tests {
		got, err := classify(tt.name)
		if err != nil {
			t.Errorf("classify(%q) = %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("classify(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}

	if _, err := classify("drop_tables"); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("classify(unknown) = %v, want ErrUnknownTool", err)
	}
}

func TestOfferedTools_ProfileGating(t *testing.T) {
	names := func(profileExists bool) map[string]bool {
		out := make(map[string]bool)
		for _, tool := range offeredTools(profileExists) {
			out[tool.Name] = true
		}
		return out
	}

	without := names(false)
	if !without[ToolCollectDemographics] {
		t.Error("demographics tool should be offered while no profile exists")
	}
	if without[ToolGenerateDifferentials] {
		t.Error("terminal tool must not be offered before a profile exists")
	}
	if !without[ToolRecordFinding] {
		t.Error("silent finding tool should always be offered")
	}

	with := names(true)
	if with[ToolCollectDemographics] {
		t.Error("demographics tool must not be offered once a profile exists")
	}
	if !with[ToolGenerateDifferentials] {
		t.Error("terminal tool should be offered once a profile exists")
	}
}

func TestParseFindingArgs(t *testing.T) {
	findings, err := parseFindingArgs(json.RawMessage(
		`{"findings":[{"category":"symptom","value":"fever"},{"category":"duration","value":"three days"}]}`))
	if err != nil {
		t.Fatalf("parseFindingArgs() = %v", err)
	}
	if len(findings) != 2 {
		t.Fatalf("got %d findings, want 2", len(findings))
	}
	if findings[0].Category != "symptom" || findings[0].Value != "fever" {
		t.Errorf("findings[0] = %+v", findings[0])
	}
}

func TestParseFindingArgs_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"bad json", `{`},
		{"unknown category", `{"findings":[{"category":"mood","value":"sad"}]}`},
		{"empty value", `{"findings":[{"category":"symptom","value":""}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseFindingArgs(json.RawMessage(tt.raw)); !errors.Is(err, ErrMalformedToolArgs) {
				t.Errorf("parseFindingArgs() = %v, want ErrMalformedToolArgs", err)
			}
		})
	}
}

func TestParseFindingArgsLenient_DropsInvalidEntries(t *testing.T) {
	findings, dropped, err := parseFindingArgsLenient(json.RawMessage(
		`{"findings":[{"category":"symptom","value":"fever"},{"category":"mood","value":"sad"},{"category":"severity","value":""}]}`))
	if err != nil {
		t.Fatalf("parseFindingArgsLenient() = %v", err)
	}
	if len(findings) != 1 || findings[0].Value != "fever" {
		t.Errorf("findings = %+v", findings)
	}
	if len(dropped) != 2 || dropped[0] != "mood" {
		t.Errorf("dropped = %v", dropped)
	}
}

func TestParseFindingArgsLenient_BadJSON(t *testing.T) {
	if _, _, err := parseFindingArgsLenient(json.RawMessage(`{`)); !errors.Is(err, ErrMalformedToolArgs) {
		t.Errorf("parseFindingArgsLenient() = %v, want ErrMalformedToolArgs", err)
	}
}

func TestParseDifferentialArgs(t *testing.T) {
	diagnoses, err := parseDifferentialArgs(json.RawMessage(
		`{"differentials":[{"condition":"Migraine","confidence":"high"},{"condition":"Tension headache","confidence":"moderate"}]}`))
	if err != nil {
		t.Fatalf("parseDifferentialArgs() = %v", err)
	}
	if len(diagnoses) != 2 {
		t.Fatalf("got %d diagnoses, want 2", len(diagnoses))
	}
	if diagnoses[0].Position != 0 || diagnoses[1].Position != 1 {
		t.Error("positions should preserve the model's ranking")
	}
}

func TestParseDifferentialArgs_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty list", `{"differentials":[]}`},
		{"bad confidence", `{"differentials":[{"condition":"Flu","confidence":"certain"}]}`},
		{"empty condition", `{"differentials":[{"condition":"","confidence":"low"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseDifferentialArgs(json.RawMessage(tt.raw)); !errors.Is(err, ErrMalformedToolArgs) {
				t.Errorf("parseDifferentialArgs() = %v, want ErrMalformedToolArgs", err)
			}
		})
	}
}
