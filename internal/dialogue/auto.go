package dialogue

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashureev/evac-dialogue/internal/conversation"
	"github.com/ashureev/evac-dialogue/internal/corpus"
	"github.com/ashureev/evac-dialogue/internal/domain"
	"github.com/ashureev/evac-dialogue/internal/prompt"
)

// scriptedTurn is one fixed step of the auto sequence after the greeting.
type scriptedTurn struct {
	townPerson  bool
	category    string
	instruction string
}

// autoScript moves the town person from resistance through concern and
// agreement to closing.
var autoScript = []scriptedTurn{
	{true, corpus.CategoryResponseToOperatorGreetings,
		"{{name}} answers the Agent's greeting and resists leaving, saying they are busy or that the fire is not serious."},
	{false, corpus.CategoryProgression,
		"The Agent explains the danger of the fire and insists that {{name}} must evacuate now."},
	{true, corpus.CategoryProgression,
		"{{name}} starts to show concern but still hesitates, asking about their belongings or work."},
	{false, corpus.CategoryGeneral,
		"The Agent stresses that {{name}}'s life is more valuable than any property and offers help."},
	{true, corpus.CategoryProgression,
		"{{name}} agrees to evacuate and asks where to go."},
	{false, corpus.CategoryClosing,
		"The Agent gives the evacuation route and closes the conversation."},
	{true, corpus.CategoryClosing,
		"{{name}} thanks the Agent and says goodbye."},
}

// AutoSteps is the number of steps RunAutoSequence produces.
var AutoSteps = len(autoScript) + 1

// AutoRequest identifies the character to run the demo sequence for. A
// non-empty SessionID also appends every step to the conversation store.
type AutoRequest struct {
	SessionID  string
	TownPerson string
}

// AutoStep is one generated utterance of the auto sequence.
type AutoStep struct {
	Index       int         `json:"index"`
	Speaker     string      `json:"speaker"`
	Text        string      `json:"text"`
	Diagnostics Diagnostics `json:"retrieved_info"`
}

// AutoResult is the transcript of an auto run. On failure it holds the steps
// produced before the error.
type AutoResult struct {
	Transcript string        `json:"transcript"`
	Steps      []AutoStep    `json:"steps"`
	Retrieved  []Diagnostics `json:"retrieved_info"`
	Error      string        `json:"error,omitempty"`
}

// RunAutoSequence generates a greeting followed by the fixed scripted turns.
// There is no branching; each step has its own category and instruction.
// onStep, when non-nil, is called after each step.
func (o *Orchestrator) RunAutoSequence(ctx context.Context, req AutoRequest, onStep func(AutoStep)) AutoResult {
	name := o.personas.DisplayName(req.TownPerson)
	persona := o.personas.Persona(req.TownPerson)
	dialogue := o.personas.ExampleDialogue(req.TownPerson)

	var (
		res     AutoResult
		history []domain.Message
	)
	emit := func(step AutoStep) {
		history = append(history, domain.Message{Speaker: step.Speaker, Content: step.Text})
		res.Steps = append(res.Steps, step)
		res.Retrieved = append(res.Retrieved, step.Diagnostics)
		if req.SessionID != "" {
			o.store.AddMessage(req.SessionID, step.Speaker, step.Text)
			o.record(ctx, req.SessionID, req.TownPerson, step.Speaker, step.Text, step.Diagnostics.Category, true)
		}
		if onStep != nil {
			onStep(step)
		}
	}
	finish := func(err error) AutoResult {
		res.Transcript = conversation.FormatHistory(history)
		if err != nil {
			if !o.logPromptError(req.SessionID, err) {
				o.logger.Warn("Auto sequence stopped",
					"town_person", req.TownPerson,
					"step", len(res.Steps)+1,
					"error", err,
				)
			}
			res.Error = err.Error()
		}
		return res
	}

	greeting := o.greetingPrompt(name, persona, dialogue)
	if greeting.err != nil {
		return finish(greeting.err)
	}
	text, err := o.generate(ctx, req.SessionID, greeting.prompt)
	if err != nil {
		return finish(err)
	}
	emit(AutoStep{Index: 1, Speaker: domain.OperatorName, Text: text, Diagnostics: greeting.diag})

	for i, turn := range autoScript {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}

		speaker, next := domain.OperatorName, name
		examples := o.operatorExamples(turn.category)
		if turn.townPerson {
			speaker, next = name, domain.OperatorName
			examples = o.corpus.Get(req.TownPerson, turn.category)
		}
		diag := Diagnostics{
			Category:      turn.category,
			Speaker:       speaker,
			Examples:      examples,
			StageSelected: true,
		}

		p, err := o.prompts.Render(prompt.AutoTurn, map[string]string{
			"name":         name,
			"persona":      persona,
			"dialogue":     dialogue,
			"history":      conversation.FormatHistory(history),
			"speaker":      speaker,
			"next_speaker": next,
			"instruction":  strings.ReplaceAll(turn.instruction, "{{name}}", name),
			"examples":     o.prompts.FormatExamples(turn.category, speaker, examples),
		})
		if err != nil {
			return finish(err)
		}
		diag.Prompt = p

		text, err := o.generate(ctx, req.SessionID, p)
		if err != nil {
			return finish(fmt.Errorf("step %d: %w", i+2, err))
		}
		emit(AutoStep{Index: i + 2, Speaker: speaker, Text: text, Diagnostics: diag})
	}
	return finish(nil)
}

type renderedPrompt struct {
	prompt string
	diag   Diagnostics
	err    error
}

// greetingPrompt renders the operator's opening prompt.
func (o *Orchestrator) greetingPrompt(name, persona, dialogue string) renderedPrompt {
	examples := o.operatorExamples(corpus.CategoryGreetings)
	diag := Diagnostics{
		Category:      corpus.CategoryGreetings,
		Speaker:       domain.OperatorName,
		Examples:      examples,
		StageSelected: true,
	}
	text, err := o.prompts.Render(prompt.InitialGreeting, map[string]string{
		"name":     name,
		"persona":  persona,
		"dialogue": dialogue,
		"examples": o.prompts.FormatExamples(corpus.CategoryGreetings, domain.OperatorName, examples),
	})
	if err != nil {
		return renderedPrompt{diag: diag, err: err}
	}
	diag.Prompt = text
	return renderedPrompt{prompt: text, diag: diag}
}
