// Package interview orchestrates one patient interview: it drives
// streaming generation turns, classifies tool calls, runs background
// finding extraction, and on the terminal diagnosis call fans out
// guideline retrieval and synthesizes the final cited assessment.
package interview

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/boganlabs/bogan/internal/assessment"
	"github.com/boganlabs/bogan/internal/conversation"
	"github.com/boganlabs/bogan/internal/guideline"
	"github.com/boganlabs/bogan/internal/llm"
	"github.com/boganlabs/bogan/internal/log"
	"github.com/boganlabs/bogan/internal/translate"
)

// Store is the persistence surface the orchestrator needs.
// *conversation.Store implements it.
type Store interface {
	CreateSession(ctx context.Context, title, language string) (*conversation.Session, error)
	Session(ctx context.Context, id uuid.UUID) (*conversation.Session, error)
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	SetAssessment(ctx context.Context, id uuid.UUID, assessment string, citations []conversation.Citation) error
	AppendTurns(ctx context.Context, sessionID uuid.UUID, turns []*conversation.Turn) error
	Turns(ctx context.Context, sessionID uuid.UUID) ([]*conversation.Turn, error)
	LastAssistantTurn(ctx context.Context, sessionID uuid.UUID) (*conversation.Turn, error)
	CreateProfile(ctx context.Context, p *conversation.Profile) error
	Profile(ctx context.Context, sessionID uuid.UUID) (*conversation.Profile, error)
	AddFindings(ctx context.Context, sessionID uuid.UUID, findings []conversation.Finding) error
	Findings(ctx context.Context, sessionID uuid.UUID) ([]conversation.Finding, error)
	AddDiagnoses(ctx context.Context, sessionID uuid.UUID, diagnoses []conversation.Diagnosis) error
	Diagnoses(ctx context.Context, sessionID uuid.UUID) ([]conversation.Diagnosis, error)
}

// Retriever finds guideline support for one condition.
type Retriever interface {
	Retrieve(ctx context.Context, condition string, findings []conversation.Finding) ([]guideline.Scored, error)
}

// Synthesizer produces the final assessment.
type Synthesizer interface {
	Synthesize(ctx context.Context, profile *conversation.Profile, findings []conversation.Finding,
		diagnoses []conversation.Diagnosis, evidence []assessment.Evidence) (*assessment.Result, error)
}

// Translator converts text between session languages.
type Translator interface {
	Translate(ctx context.Context, text, from, to string) (string, error)
}

// Config assembles an Orchestrator.
type Config struct {
	Generator       llm.TextGenerator
	Store           Store
	Retriever       Retriever
	Synthesizer     Synthesizer
	Translator      Translator
	Logger          log.Logger
	Model           string
	ExtractionModel string
	MaxTokens       int
}

func (c *Config) validate() error {
	if c.Generator == nil {
		return errors.New("generator is required")
	}
	if c.Store == nil {
		return errors.New("store is required")
	}
	if c.Retriever == nil {
		return errors.New("retriever is required")
	}
	if c.Synthesizer == nil {
		return errors.New("synthesizer is required")
	}
	if c.Translator == nil {
		return errors.New("translator is required")
	}
	if c.Model == "" {
		return errors.New("model is required")
	}
	if c.ExtractionModel == "" {
		return errors.New("extraction model is required")
	}
	return nil
}

// Orchestrator is the transport-facing entry point for interview turns.
// Safe for concurrent use across sessions; per session, generation is
// single-flight.
type Orchestrator struct {
	cfg    Config
	logger log.Logger
	guard  *turnGuard
	tracer trace.Tracer
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid orchestrator config: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Orchestrator{
		cfg:    cfg,
		logger: logger,
		guard:  newTurnGuard(),
		tracer: otel.Tracer("bogan/interview"),
	}, nil
}

// StartSession creates a session in the given language and persists
// the opening greeting. The greeting is shown to the patient but
// elided from model calls.
func (o *Orchestrator) StartSession(ctx context.Context, language string) (*conversation.Session, error) {
	if !translate.Supported(language) {
		return nil, fmt.Errorf("%w: %q", translate.ErrUnsupportedLanguage, language)
	}

	sess, err := o.cfg.Store.CreateSession(ctx, "New interview", language)
	if err != nil {
		return nil, err
	}

	greeting := &conversation.Turn{
		Role:   conversation.RoleAssistant,
		Blocks: []conversation.Block{{Type: conversation.BlockText, Text: Greeting}},
	}
	if language != translate.English {
		shown := sessionGreeting(language)
		greeting.OriginalContent = &shown
		greeting.OriginalLanguage = &sess.Language
	}
	if err := o.cfg.Store.AppendTurns(ctx, sess.ID, []*conversation.Turn{greeting}); err != nil {
		return nil, err
	}
	return sess, nil
}

// AppendUserMessage persists a patient message. For non-English
// sessions the text is translated to English for canonical storage;
// the original is preserved alongside. Translation failure (after the
// gateway's single retry) is ErrTranslationFailed and nothing is
// persisted, so the patient can resend.
func (o *Orchestrator) AppendUserMessage(ctx context.Context, sessionID uuid.UUID, text string) error {
	sess, err := o.cfg.Store.Session(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Completed {
		return ErrSessionCompleted
	}

	turn := &conversation.Turn{Role: conversation.RoleUser}
	canonical := text
	if sess.Language != translate.English {
		canonical, err = o.cfg.Translator.Translate(ctx, text, sess.Language, translate.English)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTranslationFailed, err)
		}
		turn.OriginalContent = &text
		turn.OriginalLanguage = &sess.Language
	}
	turn.Blocks = []conversation.Block{{Type: conversation.BlockText, Text: canonical}}

	return o.cfg.Store.AppendTurns(ctx, sessionID, []*conversation.Turn{turn})
}

// RunTurn drives one generation turn and emits events until the turn's
// single terminal event. The caller maps the returned error to the
// transport's error event; on error no assistant turn was persisted.
func (o *Orchestrator) RunTurn(ctx context.Context, sessionID uuid.UUID, emit EmitFunc) error {
	release, err := o.guard.acquire(sessionID)
	if err != nil {
		return err
	}
	defer release()

	ctx, span := o.tracer.Start(ctx, "interview.turn",
		trace.WithAttributes(attribute.String("session.id", sessionID.String())))
	defer span.End()

	sess, err := o.cfg.Store.Session(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Completed {
		return ErrSessionCompleted
	}

	profile, err := o.cfg.Store.Profile(ctx, sessionID)
	if err != nil && !errors.Is(err, conversation.ErrProfileNotFound) {
		return err
	}

	turns, err := o.cfg.Store.Turns(ctx, sessionID)
	if err != nil {
		return err
	}

	req := llm.Request{
		Model:     o.cfg.Model,
		System:    buildSystemPrompt(profile, sess.Language),
		Messages:  buildHistory(turns),
		Tools:     offeredTools(profile != nil),
		MaxTokens: o.cfg.MaxTokens,
	}

	// English sessions stream deltas straight through. Translated
	// sessions buffer the full reply and emit one text event after
	// translation, since deltas cannot be translated incrementally.
	var onText func(string) error
	if sess.Language == translate.English {
		onText = func(delta string) error {
			return emit(Event{Kind: EventText, Text: delta})
		}
	}

	result, err := dispatch(ctx, o.cfg.Generator, req, onText)
	if err != nil {
		return err
	}

	// Classify and parse everything before persisting anything, so a
	// malformed call leaves no partial state.
	classified, err := classifyCalls(result.Calls)
	if err != nil {
		return err
	}

	displayText := result.Text
	if sess.Language != translate.English && result.Text != "" {
		displayText, err = o.cfg.Translator.Translate(ctx, result.Text, translate.English, sess.Language)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTranslationFailed, err)
		}
	}

	if err := o.persistAssistantTurn(ctx, sess, result, displayText); err != nil {
		return err
	}

	if sess.Language != translate.English && displayText != "" {
		if err := emit(Event{Kind: EventText, Text: displayText}); err != nil {
			return err
		}
	}

	if err := o.resolveSilentCalls(ctx, sessionID, classified.silent); err != nil {
		return err
	}

	// Background extraction over the latest patient message. Awaited,
	// but failure never reaches the patient.
	o.runExtraction(ctx, sessionID, turns)

	if classified.client != nil {
		if err := emit(Event{Kind: EventTool, Tool: &ToolEvent{
			ID:    classified.client.ID,
			Name:  classified.client.Name,
			Input: classified.client.Arguments,
		}}); err != nil {
			return err
		}
		return emit(Event{Kind: EventDone, Done: &DoneMeta{AwaitingInput: true}})
	}

	if classified.terminal != nil {
		return o.completeInterview(ctx, sess, profile, classified.diagnoses, emit)
	}

	return emit(Event{Kind: EventDone, Done: &DoneMeta{}})
}

// classifiedCalls is the outcome of routing one turn's tool calls.
type classifiedCalls struct {
	silent    []silentCall
	client    *llm.ToolCall
	terminal  *llm.ToolCall
	diagnoses []conversation.Diagnosis
}

type silentCall struct {
	call     llm.ToolCall
	findings []conversation.Finding
}

// classifyCalls routes every tool call by name and parses its
// arguments. At most one client-interactive and one terminal call are
// honored per turn.
func classifyCalls(calls []llm.ToolCall) (*classifiedCalls, error) {
	var out classifiedCalls
	for _, call := range calls {
		kind, err := classify(call.Name)
		if err != nil {
			return nil, err
		}
		switch kind {
		case KindSilent:
			findings, err := parseFindingArgs(call.Arguments)
			if err != nil {
				return nil, err
			}
			out.silent = append(out.silent, silentCall{call: call, findings: findings})
		case KindClient:
			if out.client == nil {
				out.client = &call
			}
		case KindTerminal:
			if out.terminal == nil {
				diagnoses, err := parseDifferentialArgs(call.Arguments)
				if err != nil {
					return nil, err
				}
				out.terminal = &call
				out.diagnoses = diagnoses
			}
		}
	}
	return &out, nil
}

// persistAssistantTurn appends the assistant's response as a block
// sequence: text first, then one tool_use block per call.
func (o *Orchestrator) persistAssistantTurn(
	ctx context.Context,
	sess *conversation.Session,
	result *dispatchResult,
	displayText string,
) error {
	var blocks []conversation.Block
	if result.Text != "" {
		blocks = append(blocks, conversation.Block{Type: conversation.BlockText, Text: result.Text})
	}
	for _, call := range result.Calls {
		blocks = append(blocks, conversation.Block{
			Type:  conversation.BlockToolUse,
			ID:    call.ID,
			Name:  call.Name,
			Input: call.Arguments,
		})
	}
	if len(blocks) == 0 {
		return nil
	}

	turn := &conversation.Turn{Role: conversation.RoleAssistant, Blocks: blocks}
	if sess.Language != translate.English && displayText != "" {
		turn.OriginalContent = &displayText
		turn.OriginalLanguage = &sess.Language
	}
	return o.cfg.Store.AppendTurns(ctx, sess.ID, []*conversation.Turn{turn})
}

// resolveSilentCalls persists each silent call's findings and appends
// its tool-result turn, in call order, before anything that could
// reference them.
func (o *Orchestrator) resolveSilentCalls(ctx context.Context, sessionID uuid.UUID, calls []silentCall) error {
	for _, sc := range calls {
		if err := o.cfg.Store.AddFindings(ctx, sessionID, sc.findings); err != nil {
			return err
		}
		resultTurn := &conversation.Turn{
			Role: conversation.RoleUser,
			Blocks: []conversation.Block{{
				Type:      conversation.BlockToolResult,
				ToolUseID: sc.call.ID,
				Content:   fmt.Sprintf("Recorded %d finding(s).", len(sc.findings)),
			}},
		}
		if err := o.cfg.Store.AppendTurns(ctx, sessionID, []*conversation.Turn{resultTurn}); err != nil {
			return err
		}
	}
	return nil
}

// runExtraction extracts findings from the latest user turn. Failures
// are logged and swallowed; they never abort the turn.
func (o *Orchestrator) runExtraction(ctx context.Context, sessionID uuid.UUID, turns []*conversation.Turn) {
	userText := lastUserText(turns)
	if userText == "" {
		return
	}

	existing, err := o.cfg.Store.Findings(ctx, sessionID)
	if err != nil {
		o.logger.Warn("extraction skipped, loading findings failed",
			"session_id", sessionID, "error", err)
		return
	}

	findings, dropped, err := extractFindings(ctx, o.cfg.Generator, o.cfg.ExtractionModel, userText, existing)
	if err != nil {
		o.logger.Warn("finding extraction failed", "session_id", sessionID, "error", err)
		return
	}
	if len(dropped) > 0 {
		o.logger.Warn("dropped extracted findings with invalid categories",
			"session_id", sessionID, "categories", dropped)
	}
	if len(findings) == 0 {
		return
	}

	if err := o.cfg.Store.AddFindings(ctx, sessionID, findings); err != nil {
		o.logger.Warn("persisting extracted findings failed",
			"session_id", sessionID, "error", err)
		return
	}
	o.logger.Debug("extracted findings", "session_id", sessionID, "count", len(findings))
}

// completeInterview handles the terminal tool call: persist the
// differentials, mark the session complete, fan out per-condition
// retrieval, synthesize the assessment, and emit the final done event.
func (o *Orchestrator) completeInterview(
	ctx context.Context,
	sess *conversation.Session,
	profile *conversation.Profile,
	diagnoses []conversation.Diagnosis,
	emit EmitFunc,
) error {
	ctx, span := o.tracer.Start(ctx, "interview.synthesis")
	defer span.End()

	if err := o.cfg.Store.AddDiagnoses(ctx, sess.ID, diagnoses); err != nil {
		return err
	}
	if err := o.cfg.Store.MarkCompleted(ctx, sess.ID); err != nil {
		return err
	}

	if err := emit(Event{Kind: EventAssessmentLoading}); err != nil {
		return err
	}

	findings, err := o.cfg.Store.Findings(ctx, sess.ID)
	if err != nil {
		return err
	}

	// Conditions are independent; retrieve them concurrently. A single
	// failed retrieval degrades to no evidence for that condition, so
	// the group only errors on context cancellation.
	evidence := make([]assessment.Evidence, len(diagnoses))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range diagnoses {
		g.Go(func() error {
			chunks, err := o.cfg.Retriever.Retrieve(gctx, d.Condition, findings)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				o.logger.Warn("guideline retrieval failed",
					"session_id", sess.ID, "condition", d.Condition, "error", err)
				chunks = nil
			}
			evidence[i] = assessment.Evidence{
				Condition:  d.Condition,
				Confidence: d.Confidence,
				Chunks:     chunks,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	result, err := o.cfg.Synthesizer.Synthesize(ctx, profile, findings, diagnoses, evidence)
	if err != nil {
		return err
	}

	assessmentText := result.Text
	if sess.Language != translate.English {
		assessmentText, err = o.cfg.Translator.Translate(ctx, result.Text, translate.English, sess.Language)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTranslationFailed, err)
		}
	}

	if err := o.cfg.Store.SetAssessment(ctx, sess.ID, result.Text, result.Citations); err != nil {
		return err
	}

	return emit(Event{Kind: EventDone, Done: &DoneMeta{
		Diagnosed:  true,
		Assessment: assessmentText,
		Citations:  result.Citations,
	}})
}

// SubmitDemographics resolves a pending collect_demographics tool call
// with human-confirmed values. Validation happens before any
// persistence; the tool-result turn references the pending call's id.
func (o *Orchestrator) SubmitDemographics(ctx context.Context, sessionID uuid.UUID, age int, biologicalSex string) error {
	if err := conversation.ValidateProfile(age, biologicalSex); err != nil {
		return err
	}

	sess, err := o.cfg.Store.Session(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Completed {
		return ErrSessionCompleted
	}

	last, err := o.cfg.Store.LastAssistantTurn(ctx, sessionID)
	if err != nil {
		return err
	}
	if last == nil {
		return ErrNoPendingToolCall
	}
	pending := last.PendingToolUse(ToolCollectDemographics)
	if pending == nil {
		return ErrNoPendingToolCall
	}

	if err := o.cfg.Store.CreateProfile(ctx, &conversation.Profile{
		SessionID:     sessionID,
		Age:           age,
		BiologicalSex: biologicalSex,
	}); err != nil {
		return err
	}

	resultTurn := &conversation.Turn{
		Role: conversation.RoleUser,
		Blocks: []conversation.Block{{
			Type:      conversation.BlockToolResult,
			ToolUseID: pending.ID,
			Content:   fmt.Sprintf("Patient is a %d-year-old %s.", age, biologicalSex),
		}},
	}
	return o.cfg.Store.AppendTurns(ctx, sessionID, []*conversation.Turn{resultTurn})
}

// lastUserText returns the text of the most recent plain user turn.
func lastUserText(turns []*conversation.Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role != conversation.RoleUser {
			continue
		}
		if text := turns[i].Text(); text != "" {
			return text
		}
	}
	return ""
}
