// Package dialogue composes the corpus, stage selector, prompt builder and
// generation backend into conversation turns.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/evac-dialogue/internal/conversation"
	"github.com/ashureev/evac-dialogue/internal/corpus"
	"github.com/ashureev/evac-dialogue/internal/domain"
	"github.com/ashureev/evac-dialogue/internal/llm"
	"github.com/ashureev/evac-dialogue/internal/prompt"
	"github.com/ashureev/evac-dialogue/internal/sanitize"
	"github.com/ashureev/evac-dialogue/internal/similarity"
	"github.com/ashureev/evac-dialogue/internal/stage"
)

// DefaultHistoryWindow is the number of messages rendered into prompts.
const DefaultHistoryWindow = 10

// ErrNoUsableResponse is returned when sanitizing leaves nothing to say.
var ErrNoUsableResponse = errors.New("no usable response")

// PersonaSource supplies persona text by lowercase character id.
type PersonaSource interface {
	Persona(id string) string
	ExampleDialogue(id string) string
	DisplayName(id string) string
}

// ExampleRanker orders examples by relevance to a query.
type ExampleRanker interface {
	Rank(ctx context.Context, query string, candidates []string) ([]similarity.Scored, error)
}

// TurnRecorder archives accepted utterances.
type TurnRecorder interface {
	SaveTurn(ctx context.Context, turn *domain.Turn) error
}

// Orchestrator runs conversation turns. It is safe for concurrent use; no
// store lock is held while the backend is generating.
type Orchestrator struct {
	corpus   *corpus.Corpus
	personas PersonaSource
	prompts  *prompt.Builder
	store    *conversation.Store
	gen      llm.Generator
	ranker   ExampleRanker
	recorder TurnRecorder
	window   int
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithHistoryWindow sets how many messages are rendered into prompts.
func WithHistoryWindow(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.window = n
		}
	}
}

// WithTimeout bounds each backend call.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithRanker reorders stage examples by similarity to the last message.
func WithRanker(r ExampleRanker) Option {
	return func(o *Orchestrator) { o.ranker = r }
}

// WithRecorder archives every accepted utterance.
func WithRecorder(r TurnRecorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an orchestrator.
func New(c *corpus.Corpus, personas PersonaSource, prompts *prompt.Builder, store *conversation.Store, gen llm.Generator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		corpus:   c,
		personas: personas,
		prompts:  prompts,
		store:    store,
		gen:      gen,
		window:   DefaultHistoryWindow,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// TurnRequest is one interactive turn.
type TurnRequest struct {
	SessionID  string
	TownPerson string
	Speaker    string
	UserInput  string
}

// Diagnostics describes how a response was produced.
type Diagnostics struct {
	Category      string      `json:"category"`
	Speaker       string      `json:"speaker"`
	Examples      []string    `json:"examples"`
	Intent        string      `json:"intent,omitempty"`
	Prompt        string      `json:"prompt,omitempty"`
	Flags         stage.Flags `json:"flags"`
	StageSelected bool        `json:"stage_selected"`
}

// TurnResult carries either a response or an error message, never both.
type TurnResult struct {
	SessionID   string      `json:"session_id"`
	Speaker     string      `json:"speaker,omitempty"`
	Response    string      `json:"response,omitempty"`
	Diagnostics Diagnostics `json:"retrieved_info"`
	Error       string      `json:"error,omitempty"`
}

type turnPlan struct {
	responder string
	category  string
	prompt    string
	diag      Diagnostics
}

// AdvanceTurn persists the caller's input and generates the other side's reply.
//
// When the caller speaks as the operator, the town person replies using the
// stage track for the character. When the caller speaks as the town person,
// the operator replies. Failures after the input is stored are returned in
// TurnResult.Error; the stored input is kept so a retry resumes correctly.
func (o *Orchestrator) AdvanceTurn(ctx context.Context, req TurnRequest) TurnResult {
	speaker := strings.TrimSpace(req.Speaker)
	if speaker == "" {
		speaker = domain.OperatorName
	}
	if input := strings.TrimSpace(req.UserInput); input != "" {
		o.store.AddMessage(req.SessionID, speaker, input)
		o.record(ctx, req.SessionID, req.TownPerson, speaker, input, "", false)
	}

	var (
		plan turnPlan
		err  error
	)
	if domain.IsOperator(speaker) {
		plan, err = o.planTownPersonTurn(ctx, req)
	} else {
		plan, err = o.planOperatorTurn(req)
	}
	res := TurnResult{SessionID: req.SessionID, Speaker: plan.responder, Diagnostics: plan.diag}
	if err != nil {
		return o.fail(res, err)
	}

	response, err := o.generate(ctx, req.SessionID, plan.prompt)
	if err != nil {
		return o.fail(res, err)
	}

	o.appendUnlessPresent(ctx, req.SessionID, req.TownPerson, plan.responder, response, plan.category, plan.diag.StageSelected)
	res.Response = response
	return res
}

func (o *Orchestrator) planTownPersonTurn(ctx context.Context, req TurnRequest) (turnPlan, error) {
	name := o.personas.DisplayName(req.TownPerson)
	last, _ := o.store.Last(req.SessionID)
	d := stage.Select(o.store.Len(req.SessionID), last.Content, last.Speaker, req.TownPerson)

	category := corpus.CategoryGeneral
	instruction := fmt.Sprintf("Respond as %s to the operator's last message.", name)
	if d.Selected {
		category = d.Stage.Category()
		instruction = d.Instruction
	} else {
		o.logger.Info("No stage selected, using general examples",
			"session_id", req.SessionID,
			"town_person", req.TownPerson,
			"ending_conversation", d.Flags.EndingConversation,
		)
	}

	examples := o.rankExamples(ctx, last.Content, o.corpus.Get(req.TownPerson, category))
	plan := turnPlan{
		responder: name,
		category:  category,
		diag: Diagnostics{
			Category:      category,
			Speaker:       name,
			Examples:      examples,
			Intent:        d.Intent,
			Flags:         d.Flags,
			StageSelected: d.Selected,
		},
	}

	text, err := o.prompts.Render(prompt.StageTurn, map[string]string{
		"name":        name,
		"persona":     o.personas.Persona(req.TownPerson),
		"dialogue":    o.personas.ExampleDialogue(req.TownPerson),
		"history":     o.store.History(req.SessionID, o.window),
		"instruction": instruction,
		"examples":    o.prompts.FormatExamples(category, name, examples),
	})
	if err != nil {
		return plan, err
	}
	plan.prompt = text
	plan.diag.Prompt = text
	return plan, nil
}

func (o *Orchestrator) planOperatorTurn(req TurnRequest) (turnPlan, error) {
	name := o.personas.DisplayName(req.TownPerson)
	d := stage.Select(o.store.Len(req.SessionID), "", "", "")

	category := corpus.CategoryGeneral
	if d.Selected {
		category = d.Stage.Category()
	}
	examples := o.operatorExamples(category)
	plan := turnPlan{
		responder: domain.OperatorName,
		category:  category,
		diag: Diagnostics{
			Category:      category,
			Speaker:       domain.OperatorName,
			Examples:      examples,
			Intent:        d.Intent,
			StageSelected: d.Selected,
		},
	}

	text, err := o.prompts.Render(prompt.Interactive, map[string]string{
		"name":     name,
		"persona":  o.personas.Persona(req.TownPerson),
		"dialogue": o.personas.ExampleDialogue(req.TownPerson),
		"history":  o.store.History(req.SessionID, o.window),
		"examples": o.prompts.FormatExamples(category, domain.OperatorName, examples),
	})
	if err != nil {
		return plan, err
	}
	plan.prompt = text
	plan.diag.Prompt = text
	return plan, nil
}

// StartConversation generates the operator's opening line for a new session.
func (o *Orchestrator) StartConversation(ctx context.Context, sessionID, townPerson string) TurnResult {
	g := o.greetingPrompt(
		o.personas.DisplayName(townPerson),
		o.personas.Persona(townPerson),
		o.personas.ExampleDialogue(townPerson),
	)
	res := TurnResult{SessionID: sessionID, Speaker: domain.OperatorName, Diagnostics: g.diag}
	if g.err != nil {
		return o.fail(res, g.err)
	}

	response, err := o.generate(ctx, sessionID, g.prompt)
	if err != nil {
		return o.fail(res, err)
	}
	o.appendUnlessPresent(ctx, sessionID, townPerson, domain.OperatorName, response, corpus.CategoryGreetings, true)
	res.Response = response
	return res
}

// History returns the last max messages of a session.
func (o *Orchestrator) History(sessionID string, max int) []domain.Message {
	return o.store.Messages(sessionID, max)
}

// Reset drops a session's in-memory log.
func (o *Orchestrator) Reset(sessionID string) bool {
	return o.store.Delete(sessionID)
}

func (o *Orchestrator) operatorExamples(category string) []string {
	if examples := o.corpus.Get(corpus.OperatorID, category); len(examples) > 0 {
		return examples
	}
	return []string{o.corpus.OperatorResponse(category)}
}

func (o *Orchestrator) rankExamples(ctx context.Context, query string, examples []string) (out []string) {
	if o.ranker == nil || query == "" || len(examples) < 2 {
		return examples
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Example ranker panicked, keeping corpus order", "panic", r)
			out = examples
		}
	}()
	ranked, err := o.ranker.Rank(ctx, query, examples)
	if err != nil {
		o.logger.Warn("Example ranking failed, keeping corpus order", "error", err)
		return examples
	}
	out = make([]string, len(ranked))
	for i, s := range ranked {
		out[i] = s.Text
	}
	return out
}

// generate calls the backend and sanitizes its output. A backend panic is
// reported as ErrBackendUnavailable so one bad call cannot take down a turn.
func (o *Orchestrator) generate(ctx context.Context, sessionID, text string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Generation backend panicked", "session_id", sessionID, "panic", r)
			out, err = "", fmt.Errorf("%w: backend panic: %v", llm.ErrBackendUnavailable, r)
		}
	}()

	ctx = llm.WithSession(ctx, sessionID)
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	raw, err := o.gen.Generate(ctx, text)
	if err != nil {
		return "", err
	}
	cleaned := sanitize.Clean(raw)
	if cleaned == "" {
		return "", fmt.Errorf("%w: raw output %q", ErrNoUsableResponse, raw)
	}
	return cleaned, nil
}

// appendUnlessPresent stores a generated reply unless the windowed history
// already contains it.
func (o *Orchestrator) appendUnlessPresent(ctx context.Context, sessionID, townPerson, speaker, content, category string, selected bool) {
	if strings.Contains(o.store.History(sessionID, o.window), content) {
		o.logger.Debug("Skipping duplicate response", "session_id", sessionID)
		return
	}
	o.store.AddMessage(sessionID, speaker, content)
	o.record(ctx, sessionID, townPerson, speaker, content, category, selected)
}

func (o *Orchestrator) record(ctx context.Context, sessionID, townPerson, speaker, content, category string, selected bool) {
	if o.recorder == nil || sessionID == "" {
		return
	}
	err := o.recorder.SaveTurn(ctx, &domain.Turn{
		SessionID:     sessionID,
		TownPerson:    strings.ToLower(strings.TrimSpace(townPerson)),
		Speaker:       speaker,
		Content:       content,
		Category:      category,
		StageSelected: selected,
		CreatedAt:     time.Now(),
	})
	if err != nil {
		o.logger.Warn("Failed to archive turn", "session_id", sessionID, "error", err)
	}
}

func (o *Orchestrator) fail(res TurnResult, err error) TurnResult {
	if !o.logPromptError(res.SessionID, err) {
		o.logger.Warn("Turn failed", "session_id", res.SessionID, "error", err)
	}
	res.Response = ""
	res.Error = err.Error()
	return res
}

// logPromptError logs template wiring mistakes at error level and reports
// whether err was one.
func (o *Orchestrator) logPromptError(sessionID string, err error) bool {
	var missing *prompt.MissingVariableError
	if !errors.As(err, &missing) {
		return false
	}
	o.logger.Error("Prompt template is missing a variable",
		"session_id", sessionID,
		"template", missing.Template,
		"variable", missing.Variable,
	)
	return true
}
