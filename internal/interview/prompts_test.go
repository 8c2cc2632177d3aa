package interview

import (
	"strings"
	"testing"

	"github.com/boganlabs/bogan/internal/conversation"
	"github.com/boganlabs/bogan/internal/translate"
)

func TestBuildSystemPrompt_NoProfile(t *testing.T) {
	prompt := buildSystemPrompt(nil, translate.English)

	if !strings.Contains(prompt, "collect_demographics") {
		t.Error("prompt without profile should instruct demographics collection")
	}
	if strings.Contains(prompt, "generate_differentials") {
		t.Error("prompt without profile must not mention differentials tool")
	}
	if strings.Contains(prompt, "Patient:") {
		t.Error("prompt without profile must not include a patient line")
	}
}

func TestBuildSystemPrompt_WithProfile(t *testing.T) {
	profile := &conversation.Profile{Age: 34, BiologicalSex: "female"}
	prompt := buildSystemPrompt(profile, translate.English)

	if !strings.Contains(prompt, "Patient: 34-year-old female.") {
		t.Errorf("prompt missing patient line:\n%s", prompt)
	}
	if !strings.Contains(prompt, "generate_differentials") {
		t.Error("prompt with profile should instruct differentials tool")
	}
	if strings.Contains(prompt, "collect_demographics") {
		t.Error("prompt with profile must not offer demographics collection")
	}
}

func TestBuildSystemPrompt_TwiInstruction(t *testing.T) {
	if prompt := buildSystemPrompt(nil, translate.Twi); !strings.Contains(prompt, "Twi") {
		t.Error("Twi session prompt missing translation instruction")
	}
	if prompt := buildSystemPrompt(nil, translate.English); strings.Contains(prompt, "Twi") {
		t.Error("English session prompt must not mention Twi")
	}
}

func TestBuildExtractionPrompt_Empty(t *testing.T) {
	if got := buildExtractionPrompt(nil); got != extractionPrompt {
		t.Errorf("empty findings should return the base prompt, got:\n%s", got)
	}
}

func TestBuildExtractionPrompt_GroupsByCategory(t *testing.T) {
	existing := []conversation.Finding{
		{Category: "symptom", Value: "fever"},
		{Category: "medication", Value: "paracetamol"},
		{Category: "symptom", Value: "headache"},
	}
	got := buildExtractionPrompt(existing)

	if !strings.Contains(got, "symptom: fever; headache") {
		t.Errorf("same-category values not grouped:\n%s", got)
	}
	if !strings.Contains(got, "medication: paracetamol") {
		t.Errorf("missing medication group:\n%s", got)
	}
	if !strings.Contains(got, "Do not re-extract these.") {
		t.Errorf("missing re-extraction guard:\n%s", got)
	}
	// Category order follows first appearance.
	if strings.Index(got, "symptom:") > strings.Index(got, "medication:") {
		t.Errorf("categories out of first-appearance order:\n%s", got)
	}
}

func TestSessionGreeting(t *testing.T) {
	if got := sessionGreeting(translate.English); got != Greeting {
		t.Errorf("English greeting = %q", got)
	}
	if got := sessionGreeting(translate.Twi); got != GreetingTwi {
		t.Errorf("Twi greeting = %q", got)
	}
}
