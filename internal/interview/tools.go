package interview

import (
	"encoding/json"
	"fmt"

	"github.com/boganlabs/bogan/internal/conversation"
	"github.com/boganlabs/bogan/internal/llm"
)

// Tool names offered to the model.
const (
	ToolRecordFinding       = "record_clinical_finding"
	ToolCollectDemographics = "collect_demographics"
	ToolGenerateDifferentials = "generate_differentials"
)

// Kind buckets every tool call: silent tools resolve server-side and
// feed a tool-result turn back invisibly; client tools suspend the
// turn until the client supplies input; terminal tools complete the
// interview and trigger synthesis.
type Kind int

const (
	KindSilent Kind = iota
	KindClient
	KindTerminal
)

// classify maps a tool name to its kind.
func classify(name string) (Kind, error) {
	switch name {
	case ToolRecordFinding:
		return KindSilent, nil
	case ToolCollectDemographics:
		return KindClient, nil
	case ToolGenerateDifferentials:
		return KindTerminal, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
}

// offeredTools returns the tool schemas eligible for the next turn.
// Demographics collection is offered only while no profile exists;
// the terminal differential tool only once one does.
func offeredTools(profileExists bool) []llm.ToolSchema {
	tools := []llm.ToolSchema{recordFindingSchema()}
	if profileExists {
		tools = append(tools, generateDifferentialsSchema())
	} else {
		tools = append(tools, collectDemographicsSchema())
	}
	return tools
}

func recordFindingSchema() llm.ToolSchema {
	return llm.ToolSchema{
		Name: ToolRecordFinding,
		Description: "Silently record clinical findings mentioned by the patient. " +
			"The patient never sees this. Use it whenever the patient reveals a symptom, " +
			"timing, severity, history, medication, or allergy.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"findings": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"category": map[string]any{
								"type": "string",
								"enum": conversation.Categories,
							},
							"value": map[string]any{"type": "string"},
						},
						"required": []string{"category", "value"},
					},
				},
			},
			"required": []string{"findings"},
		},
	}
}

func collectDemographicsSchema() llm.ToolSchema {
	return llm.ToolSchema{
		Name: ToolCollectDemographics,
		Description: "Ask the patient for their age and biological sex through a form. " +
			"Call this once, early in the interview, before exploring symptoms in depth.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"reason": map[string]any{
					"type":        "string",
					"description": "Short explanation shown to the patient for why demographics are needed.",
				},
			},
			"required": []string{"reason"},
		},
	}
}

func generateDifferentialsSchema() llm.ToolSchema {
	return llm.ToolSchema{
		Name: ToolGenerateDifferentials,
		Description: "Conclude the interview with a ranked differential diagnosis. " +
			"Call this only when enough findings have been gathered to commit to differentials.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"differentials": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"condition": map[string]any{"type": "string"},
							"confidence": map[string]any{
								"type": "string",
								"enum": []string{
									conversation.ConfidenceHigh,
									conversation.ConfidenceModerate,
									conversation.ConfidenceLow,
								},
							},
						},
						"required": []string{"condition", "confidence"},
					},
					"minItems": 1,
				},
			},
			"required": []string{"differentials"},
		},
	}
}

// findingArgs is the parsed input of a record_clinical_finding call.
type findingArgs struct {
	Findings []struct {
		Category string `json:"category"`
		Value    string `json:"value"`
	} `json:"findings"`
}

// parseFindingArgs validates a silent tool call's arguments.
func parseFindingArgs(raw json.RawMessage) ([]conversation.Finding, error) {
	var args findingArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToolArgs, err)
	}
	findings := make([]conversation.Finding, 0, len(args.Findings))
	for _, f := range args.Findings {
		if !conversation.ValidCategory(f.Category) {
			return nil, fmt.Errorf("%w: unknown category %q", ErrMalformedToolArgs, f.Category)
		}
		if f.Value == "" {
			return nil, fmt.Errorf("%w: empty finding value", ErrMalformedToolArgs)
		}
		findings = append(findings, conversation.Finding{Category: f.Category, Value: f.Value})
	}
	return findings, nil
}

// parseFindingArgsLenient parses extraction output. Unlike the strict
// parse used for live tool calls, entries with an unknown category or
// empty value are dropped rather than failing the whole batch; the
// dropped categories are returned for logging.
func parseFindingArgsLenient(raw json.RawMessage) (findings []conversation.Finding, dropped []string, err error) {
	var args findingArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedToolArgs, err)
	}
	for _, f := range args.Findings {
		if !conversation.ValidCategory(f.Category) || f.Value == "" {
			dropped = append(dropped, f.Category)
			continue
		}
		findings = append(findings, conversation.Finding{Category: f.Category, Value: f.Value})
	}
	return findings, dropped, nil
}

// differentialArgs is the parsed input of a generate_differentials call.
type differentialArgs struct {
	Differentials []struct {
		Condition  string `json:"condition"`
		Confidence string `json:"confidence"`
	} `json:"differentials"`
}

// parseDifferentialArgs validates a terminal tool call's arguments.
func parseDifferentialArgs(raw json.RawMessage) ([]conversation.Diagnosis, error) {
	var args differentialArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToolArgs, err)
	}
	if len(args.Differentials) == 0 {
		return nil, fmt.Errorf("%w: empty differential list", ErrMalformedToolArgs)
	}
	diagnoses := make([]conversation.Diagnosis, 0, len(args.Differentials))
	for i, d := range args.Differentials {
		if d.Condition == "" {
			return nil, fmt.Errorf("%w: empty condition name", ErrMalformedToolArgs)
		}
		if !conversation.ValidConfidence(d.Confidence) {
			return nil, fmt.Errorf("%w: unknown confidence %q", ErrMalformedToolArgs, d.Confidence)
		}
		diagnoses = append(diagnoses, conversation.Diagnosis{
			Condition:  d.Condition,
			Confidence: d.Confidence,
			Position:   i,
		})
	}
	return diagnoses, nil
}
