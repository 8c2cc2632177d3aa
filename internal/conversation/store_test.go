package conversation_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/boganlabs/bogan/internal/conversation"
	"github.com/boganlabs/bogan/internal/log"
	"github.com/boganlabs/bogan/internal/testutil"
)

func setupStore(t *testing.T) *conversation.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed store test in short mode")
	}
	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)
	return conversation.NewStore(db.Pool, log.NewNop())
}

func TestStore_SessionLifecycle(t *testing.T) {
	store := setupStore(t)
	ctx := t.Context()

	sess, err := store.CreateSession(ctx, "New interview", "en")
	if err != nil {
		t.Fatalf("CreateSession = %v", err)
	}
	if sess.ID == uuid.Nil || sess.Completed || sess.Assessment != nil {
		t.Errorf("fresh session = %+v", sess)
	}

	got, err := store.Session(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Session = %v", err)
	}
	if got.Title != "New interview" || got.Language != "en" {
		t.Errorf("fetched session = %+v", got)
	}

	if _, err := store.Session(ctx, uuid.New()); !errors.Is(err, conversation.ErrSessionNotFound) {
		t.Errorf("Session(unknown) = %v, want ErrSessionNotFound", err)
	}

	if err := store.MarkCompleted(ctx, sess.ID); err != nil {
		t.Fatalf("MarkCompleted = %v", err)
	}
	got, _ = store.Session(ctx, sess.ID)
	if !got.Completed {
		t.Error("session not completed after MarkCompleted")
	}

	if err := store.MarkCompleted(ctx, uuid.New()); !errors.Is(err, conversation.ErrSessionNotFound) {
		t.Errorf("MarkCompleted(unknown) = %v, want ErrSessionNotFound", err)
	}
}

func TestStore_AppendTurnsSequencing(t *testing.T) {
	store := setupStore(t)
	ctx := t.Context()
	sess, err := store.CreateSession(ctx, "test", "en")
	if err != nil {
		t.Fatalf("CreateSession = %v", err)
	}

	first := &conversation.Turn{
		Role:   conversation.RoleAssistant,
		Blocks: []conversation.Block{{Type: conversation.BlockText, Text: "Hello."}},
	}
	if err := store.AppendTurns(ctx, sess.ID, []*conversation.Turn{first}); err != nil {
		t.Fatalf("AppendTurns = %v", err)
	}
	if first.SequenceNumber != 1 {
		t.Errorf("first sequence = %d, want 1", first.SequenceNumber)
	}

	batch := []*conversation.Turn{
		{Role: conversation.RoleUser, Blocks: []conversation.Block{{Type: conversation.BlockText, Text: "I have a fever."}}},
		{Role: conversation.RoleAssistant, Blocks: []conversation.Block{
			{Type: conversation.BlockText, Text: "Noted."},
			{Type: conversation.BlockToolUse, ID: "call_1", Name: "record_clinical_finding",
				Input: []byte(`{"findings":[{"category":"symptom","value":"fever"}]}`)},
		}},
	}
	if err := store.AppendTurns(ctx, sess.ID, batch); err != nil {
		t.Fatalf("AppendTurns batch = %v", err)
	}

	turns, err := store.Turns(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Turns = %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("len(turns) = %d, want 3", len(turns))
	}
	for i, turn := range turns {
		if turn.SequenceNumber != int64(i+1) {
			t.Errorf("turn %d sequence = %d, want %d", i, turn.SequenceNumber, i+1)
		}
	}

	// Block round-trip through JSONB.
	last := turns[2]
	if len(last.Blocks) != 2 || last.Blocks[1].Type != conversation.BlockToolUse ||
		last.Blocks[1].ID != "call_1" {
		t.Errorf("blocks = %+v", last.Blocks)
	}

	if err := store.AppendTurns(ctx, uuid.New(), batch[:1]); !errors.Is(err, conversation.ErrSessionNotFound) {
		t.Errorf("AppendTurns(unknown session) = %v, want ErrSessionNotFound", err)
	}
}

func TestStore_LastAssistantTurn(t *testing.T) {
	store := setupStore(t)
	ctx := t.Context()
	sess, _ := store.CreateSession(ctx, "test", "en")

	got, err := store.LastAssistantTurn(ctx, sess.ID)
	if err != nil {
		t.Fatalf("LastAssistantTurn = %v", err)
	}
	if got != nil {
		t.Errorf("empty session returned turn %+v", got)
	}

	turns := []*conversation.Turn{
		{Role: conversation.RoleAssistant, Blocks: []conversation.Block{{Type: conversation.BlockText, Text: "first"}}},
		{Role: conversation.RoleUser, Blocks: []conversation.Block{{Type: conversation.BlockText, Text: "reply"}}},
		{Role: conversation.RoleAssistant, Blocks: []conversation.Block{{Type: conversation.BlockText, Text: "second"}}},
	}
	if err := store.AppendTurns(ctx, sess.ID, turns); err != nil {
		t.Fatalf("AppendTurns = %v", err)
	}

	got, err = store.LastAssistantTurn(ctx, sess.ID)
	if err != nil {
		t.Fatalf("LastAssistantTurn = %v", err)
	}
	if got == nil || got.Text() != "second" {
		t.Errorf("last assistant turn = %+v, want the later one", got)
	}
}

func TestStore_ProfileUniquePerSession(t *testing.T) {
	store := setupStore(t)
	ctx := t.Context()
	sess, _ := store.CreateSession(ctx, "test", "en")

	if _, err := store.Profile(ctx, sess.ID); !errors.Is(err, conversation.ErrProfileNotFound) {
		t.Errorf("Profile before create = %v, want ErrProfileNotFound", err)
	}

	p := &conversation.Profile{SessionID: sess.ID, Age: 34, BiologicalSex: "female"}
	if err := store.CreateProfile(ctx, p); err != nil {
		t.Fatalf("CreateProfile = %v", err)
	}

	dup := &conversation.Profile{SessionID: sess.ID, Age: 35, BiologicalSex: "male"}
	if err := store.CreateProfile(ctx, dup); !errors.Is(err, conversation.ErrProfileExists) {
		t.Errorf("duplicate CreateProfile = %v, want ErrProfileExists", err)
	}

	orphan := &conversation.Profile{SessionID: uuid.New(), Age: 34, BiologicalSex: "female"}
	if err := store.CreateProfile(ctx, orphan); !errors.Is(err, conversation.ErrSessionNotFound) {
		t.Errorf("orphan CreateProfile = %v, want ErrSessionNotFound", err)
	}

	got, err := store.Profile(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Profile = %v", err)
	}
	if got.Age != 34 || got.BiologicalSex != "female" {
		t.Errorf("profile = %+v", got)
	}
}

func TestStore_FindingsInsertionOrder(t *testing.T) {
	store := setupStore(t)
	ctx := t.Context()
	sess, _ := store.CreateSession(ctx, "test", "en")

	batch := []conversation.Finding{
		{Category: conversation.CategorySymptom, Value: "fever"},
		{Category: conversation.CategoryDuration, Value: "two days"},
	}
	if err := store.AddFindings(ctx, sess.ID, batch); err != nil {
		t.Fatalf("AddFindings = %v", err)
	}
	if err := store.AddFindings(ctx, sess.ID, []conversation.Finding{
		{Category: conversation.CategoryAssociatedSymptom, Value: "chills"},
	}); err != nil {
		t.Fatalf("AddFindings second batch = %v", err)
	}

	findings, err := store.Findings(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Findings = %v", err)
	}
	if len(findings) != 3 {
		t.Fatalf("len(findings) = %d, want 3", len(findings))
	}
	values := []string{findings[0].Value, findings[1].Value, findings[2].Value}
	want := []string{"fever", "two days", "chills"}
	for i := range want {
		if values[i] != want[i] {
			t.Errorf("findings order = %v, want %v", values, want)
			break
		}
	}
}

func TestStore_DiagnosesWriteOnce(t *testing.T) {
	store := setupStore(t)
	ctx := t.Context()
	sess, _ := store.CreateSession(ctx, "test", "en")

	diagnoses := []conversation.Diagnosis{
		{Condition: "Malaria", Confidence: conversation.ConfidenceHigh},
		{Condition: "Typhoid fever", Confidence: conversation.ConfidenceModerate},
	}
	if err := store.AddDiagnoses(ctx, sess.ID, diagnoses); err != nil {
		t.Fatalf("AddDiagnoses = %v", err)
	}

	err := store.AddDiagnoses(ctx, sess.ID, []conversation.Diagnosis{
		{Condition: "Dengue", Confidence: conversation.ConfidenceLow},
	})
	if !errors.Is(err, conversation.ErrDiagnosesExist) {
		t.Errorf("second AddDiagnoses = %v, want ErrDiagnosesExist", err)
	}

	got, err := store.Diagnoses(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Diagnoses = %v", err)
	}
	if len(got) != 2 || got[0].Position != 0 || got[0].Condition != "Malaria" ||
		got[1].Position != 1 || got[1].Condition != "Typhoid fever" {
		t.Errorf("diagnoses = %+v", got)
	}
}

func TestStore_AssessmentRoundTrip(t *testing.T) {
	store := setupStore(t)
	ctx := t.Context()
	sess, _ := store.CreateSession(ctx, "test", "en")

	citations := []conversation.Citation{{
		ChunkID:    uuid.New(),
		Source:     "WHO Malaria 2023",
		Section:    "Diagnosis",
		Condition:  "Malaria",
		Confidence: conversation.ConfidenceHigh,
		Similarity: 0.91,
	}}
	if err := store.SetAssessment(ctx, sess.ID, "ASSESSMENT: likely malaria.", citations); err != nil {
		t.Fatalf("SetAssessment = %v", err)
	}

	got, err := store.Session(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Session = %v", err)
	}
	if got.Assessment == nil || *got.Assessment != "ASSESSMENT: likely malaria." {
		t.Errorf("assessment = %v", got.Assessment)
	}
	if len(got.AssessmentCitations) != 1 || got.AssessmentCitations[0].ChunkID != citations[0].ChunkID ||
		got.AssessmentCitations[0].Similarity != 0.91 {
		t.Errorf("citations = %+v", got.AssessmentCitations)
	}

	if err := store.SetAssessment(ctx, uuid.New(), "x", nil); !errors.Is(err, conversation.ErrSessionNotFound) {
		t.Errorf("SetAssessment(unknown) = %v, want ErrSessionNotFound", err)
	}
}
