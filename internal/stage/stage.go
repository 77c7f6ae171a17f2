// Package stage selects the next conversation stage for a town person's reply.
//
// Selection is a pure function of the session's message count, the last
// message and its speaker, and the character. Each character track is a
// transition table keyed by message count; a row picks a stage, optionally
// using keyword flags from the last operator message.
package stage

import (
	"fmt"
	"strings"

	"github.com/ashureev/evac-dialogue/internal/corpus"
	"github.com/ashureev/evac-dialogue/internal/domain"
	"github.com/orsinium-labs/enum"
)

// Stage is a conversation stage. Its value doubles as the corpus category.
type Stage enum.Member[string]

var (
	Greetings                   = Stage{corpus.CategoryGreetings}
	ResponseToOperatorGreetings = Stage{corpus.CategoryResponseToOperatorGreetings}
	Progression                 = Stage{corpus.CategoryProgression}
	Closing                     = Stage{corpus.CategoryClosing}
	WorkResistance              = Stage{"work_resistance"}
	DecisionPoint               = Stage{"decision_point"}
	MinimalEngagement           = Stage{"minimal_engagement"}
	FinalRefusal                = Stage{"final_refusal"}

	Stages = enum.New(
		Greetings,
		ResponseToOperatorGreetings,
		Progression,
		Closing,
		WorkResistance,
		DecisionPoint,
		MinimalEngagement,
		FinalRefusal,
	)
)

// Category returns the corpus category for the stage.
func (s Stage) Category() string { return s.Value }

// Parse looks up a stage by its category name.
func Parse(category string) (Stage, bool) {
	s := Stages.Parse(category)
	if s == nil {
		return Stage{}, false
	}
	return *s, true
}

// Transition is one row of a track: message counts in [From, To] select a
// stage. To == 0 leaves the range open.
type Transition struct {
	From   int
	To     int
	Intent string
	Pick   func(Flags) Stage
}

func (t Transition) matches(count int) bool {
	return count >= t.From && (t.To == 0 || count <= t.To)
}

func always(s Stage) func(Flags) Stage {
	return func(Flags) Stage { return s }
}

// GeneralTrack applies to every character without a dedicated track.
var GeneralTrack = []Transition{
	{From: 1, To: 1, Intent: "initial resistance", Pick: always(ResponseToOperatorGreetings)},
	{From: 2, To: 2, Intent: "continued resistance", Pick: always(ResponseToOperatorGreetings)},
	{From: 3, To: 3, Intent: "continued resistance", Pick: always(Progression)},
	{From: 4, To: 5, Intent: "starting agreement", Pick: always(Progression)},
	{From: 6, To: 0, Intent: "final agreement", Pick: always(Closing)},
}

// BobTrack is the scripted track for the character "bob". Counts outside the
// table select no stage.
var BobTrack = []Transition{
	{From: 1, To: 1, Intent: "greeting", Pick: always(Greetings)},
	{From: 3, To: 3, Intent: "resisting because of work", Pick: always(WorkResistance)},
	{From: 5, To: 5, Intent: "deciding whether to leave", Pick: func(f Flags) Stage {
		if f.EmphasizesDanger {
			return DecisionPoint
		}
		return MinimalEngagement
	}},
	{From: 7, To: 7, Intent: "final answer", Pick: func(f Flags) Stage {
		if f.EmphasizesDanger || f.EmphasizesValueOfLife {
			return Progression
		}
		return FinalRefusal
	}},
}

// Tracks maps lowercase character ids to their dedicated tracks.
var Tracks = map[string][]Transition{
	"bob": BobTrack,
}

// Decision is the outcome of Select.
type Decision struct {
	Stage       Stage
	Selected    bool
	Flags       Flags
	Intent      string
	Instruction string
}

// Select picks the stage for the next town person reply. Keyword flags are
// only computed when the last speaker is the operator.
func Select(count int, lastMessage, lastSpeaker, character string) Decision {
	var d Decision
	if domain.IsOperator(lastSpeaker) {
		d.Flags = Evaluate(lastMessage)
	}

	track, ok := Tracks[strings.ToLower(strings.TrimSpace(character))]
	if !ok {
		track = GeneralTrack
	}
	for _, t := range track {
		if t.matches(count) {
			d.Stage = t.Pick(d.Flags)
			d.Selected = true
			d.Intent = t.Intent
			d.Instruction = instruction(character, d.Stage, t.Intent)
			return d
		}
	}
	return d
}

func instruction(character string, s Stage, intent string) string {
	return fmt.Sprintf(
		"Respond as %s in the %q stage of the conversation (%s). Follow the style of the examples below.",
		character, s.Value, intent,
	)
}
