package interview

import (
	"fmt"
	"strings"

	"github.com/boganlabs/bogan/internal/conversation"
	"github.com/boganlabs/bogan/internal/translate"
)

// Greeting is the assistant turn every session opens with. It is
// persisted but elided from model calls, since history supplied to a
// generation call must not begin with an assistant turn.
const Greeting = "I'll help you work through your symptoms. Let's take a closer look."

// GreetingTwi is the greeting shown in Twi sessions.
const GreetingTwi = "Mɛboa wo ma woahwɛ wo yare nsɛnkyerɛnne mu. Ma yɛnhwɛ mu yiye."

const basePrompt = `You are Dr. Bogan, a careful and warm clinician conducting a structured patient interview.

Interview approach:
- Ask one focused question at a time. Short questions get better answers.
- Work through the presenting complaint systematically: onset, location, duration, character, aggravating and relieving factors, associated symptoms, relevant history, medications, allergies.
- Record every clinical finding the patient reveals using the record_clinical_finding tool. The patient never sees this.
- Never diagnose in conversation. Never recommend treatment in conversation.
- Be plain-spoken and kind. No medical jargon unless the patient uses it first.`

const demographicsInstruction = `
You do not yet have the patient's age and biological sex. Early in the interview, once the patient has described their main complaint, call the collect_demographics tool to request them. Do not ask for age or sex in conversation text.`

const differentialsInstruction = `
When you have gathered enough findings to commit to a ranked differential diagnosis, call the generate_differentials tool. Do not announce the differentials in conversation text; the tool handles it.`

const twiInstruction = `
The patient speaks Twi. The conversation you see has been translated to English; reply in English and the system will translate your reply back to Twi. Keep sentences short and simple so translation stays faithful.`

// buildSystemPrompt assembles the interview system instruction for the
// next generation turn.
func buildSystemPrompt(profile *conversation.Profile, language string) string {
	var sb strings.Builder
	sb.WriteString(basePrompt)

	if profile == nil {
		sb.WriteString(demographicsInstruction)
	} else {
		fmt.Fprintf(&sb, "\nPatient: %d-year-old %s.", profile.Age, profile.BiologicalSex)
		sb.WriteString(differentialsInstruction)
	}

	if language == translate.Twi {
		sb.WriteString(twiInstruction)
	}

	return sb.String()
}

const extractionPrompt = `Extract clinical findings from the patient's message. Record each distinct finding with its category. Only extract what the patient actually said; do not infer findings they did not mention.`

// buildExtractionPrompt lists already-recorded findings grouped by
// category so the extractor does not re-emit them.
func buildExtractionPrompt(existing []conversation.Finding) string {
	if len(existing) == 0 {
		return extractionPrompt
	}

	grouped := make(map[string][]string)
	var order []string
	for _, f := range existing {
		if _, seen := grouped[f.Category]; !seen {
			order = append(order, f.Category)
		}
		grouped[f.Category] = append(grouped[f.Category], f.Value)
	}

	var sb strings.Builder
	sb.WriteString(extractionPrompt)
	sb.WriteString("\n\nAlready recorded: ")
	for i, cat := range order {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %s", cat, strings.Join(grouped[cat], "; "))
	}
	sb.WriteString(". Do not re-extract these.")
	return sb.String()
}

// sessionGreeting returns the greeting text for the session language.
func sessionGreeting(language string) string {
	if language == translate.Twi {
		return GreetingTwi
	}
	return Greeting
}
