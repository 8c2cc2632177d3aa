// Package conversation manages interview sessions and their persisted
// state: turns, patient profiles, clinical findings, and differential
// diagnoses.
package conversation

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Block types within a turn's content.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// Diagnosis confidence levels.
const (
	ConfidenceHigh     = "high"
	ConfidenceModerate = "moderate"
	ConfidenceLow      = "low"
)

// Finding categories. These mirror the CHECK constraint on the
// findings table.
const (
	CategorySymptom           = "symptom"
	CategoryLocation          = "location"
	CategoryOnset             = "onset"
	CategoryDuration          = "duration"
	CategorySeverity          = "severity"
	CategoryCharacter         = "character"
	CategoryAggravatingFactor = "aggravating_factor"
	CategoryRelievingFactor   = "relieving_factor"
	CategoryAssociatedSymptom = "associated_symptom"
	CategoryMedicalHistory    = "medical_history"
	CategoryMedication        = "medication"
	CategoryAllergy           = "allergy"
)

// Categories lists all valid finding categories.
var Categories = []string{
	CategorySymptom, CategoryLocation, CategoryOnset, CategoryDuration,
	CategorySeverity, CategoryCharacter, CategoryAggravatingFactor,
	CategoryRelievingFactor, CategoryAssociatedSymptom,
	CategoryMedicalHistory, CategoryMedication, CategoryAllergy,
}

// ValidCategory reports whether c is a known finding category.
func ValidCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ValidConfidence reports whether c is a known confidence level.
func ValidConfidence(c string) bool {
	return c == ConfidenceHigh || c == ConfidenceModerate || c == ConfidenceLow
}

// Session is one patient interview.
type Session struct {
	ID        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	Language  string     `json:"language"`
	Completed bool       `json:"completed"`
	// Assessment and AssessmentCitations are set once when the
	// interview reaches its terminal state.
	Assessment          *string    `json:"assessment,omitempty"`
	AssessmentCitations []Citation `json:"assessment_citations,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// Block is one content element of a turn. Text blocks carry prose;
// tool_use blocks record a model tool invocation; tool_result blocks
// record the outcome fed back to the model.
type Block struct {
	Type string `json:"type"`

	// Text block
	Text string `json:"text,omitempty"`

	// Tool use block
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// Tool result block
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

// Turn is one persisted conversation turn. Content is stored as a
// JSONB block array. For non-English sessions, Content holds the
// English canonical text and OriginalContent preserves what the
// patient actually typed or was shown.
type Turn struct {
	ID               uuid.UUID `json:"id"`
	SessionID        uuid.UUID `json:"session_id"`
	Role             string    `json:"role"`
	Blocks           []Block   `json:"blocks"`
	OriginalContent  *string   `json:"original_content,omitempty"`
	OriginalLanguage *string   `json:"original_language,omitempty"`
	SequenceNumber   int64     `json:"sequence_number"`
	CreatedAt        time.Time `json:"created_at"`
}

// Text concatenates the turn's text blocks.
func (t *Turn) Text() string {
	var sb strings.Builder
	for _, b := range t.Blocks {
		if b.Type == BlockText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// PendingToolUse returns the tool_use block with the given name if the
// turn contains one, or nil.
func (t *Turn) PendingToolUse(name string) *Block {
	for i := range t.Blocks {
		if t.Blocks[i].Type == BlockToolUse && t.Blocks[i].Name == name {
			return &t.Blocks[i]
		}
	}
	return nil
}

// Profile is the patient demographics collected once per session.
type Profile struct {
	SessionID     uuid.UUID `json:"session_id"`
	Age           int       `json:"age"`
	BiologicalSex string    `json:"biological_sex"`
	CreatedAt     time.Time `json:"created_at"`
}

// Finding is one extracted clinical data point.
type Finding struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	Category  string    `json:"category"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// Diagnosis is one differential produced at the end of the interview.
// Position preserves the model's ranking.
type Diagnosis struct {
	ID         uuid.UUID `json:"id"`
	SessionID  uuid.UUID `json:"session_id"`
	Condition  string    `json:"condition"`
	Confidence string    `json:"confidence"`
	Position   int       `json:"position"`
	CreatedAt  time.Time `json:"created_at"`
}

// Citation links a span of the assessment to the guideline chunk that
// supports it.
type Citation struct {
	ChunkID    uuid.UUID `json:"chunk_id"`
	Source     string    `json:"source"`
	Section    string    `json:"section"`
	Condition  string    `json:"condition"`
	Confidence string    `json:"confidence"`
	Similarity float64   `json:"similarity"`
}
