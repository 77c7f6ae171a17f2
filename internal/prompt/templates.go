package prompt

import (
	"strings"

	"github.com/lithammer/dedent"
)

// Template ids.
const (
	InitialGreeting = "initial_greeting"
	AutoTurn        = "auto_turn"
	Interactive     = "interactive"
	StageTurn       = "stage_turn"
)

type definition struct {
	text string
	vars []string
}

func sp(txt string) string {
	return dedent.Dedent(strings.Trim(txt, "\n"))
}

var definitions = map[string]definition{
	InitialGreeting: {
		vars: []string{"name", "persona", "dialogue", "examples"},
		text: sp(`
			System: The following conversation is between a Fire Department Agent and a TownPerson {{.name}} who needs to be rescued during a fire emergency.
			Here is the persona of {{.name}}:
			{{.persona}}
			Use this example as a guide:
			{{.dialogue}}
			{{.examples}}
			Now, generate a single utterance that the Agent says to {{.name}} to start the conversation. Use one sentence.

			Format your output as:
			[Name]: Content
		`),
	},
	AutoTurn: {
		vars: []string{"name", "persona", "dialogue", "history", "speaker", "next_speaker", "instruction", "examples"},
		text: sp(`
			System: The following conversation is between a Fire Department Agent and a TownPerson {{.name}} during a fire emergency.

			Here is an introduction of {{.name}}:
			{{.persona}}
			Use this example as a guide:
			{{.dialogue}}
			{{.examples}}
			Based on the conversation history:
			{{.history}}
			{{.instruction}}
			Generate one response for the next turn. The utterance must be solely from {{.speaker}} and should address {{.next_speaker}}. Use a single sentence or a few words. Do not include any additional utterances or explanations.

			Format your output as:
			[Name]: Content
		`),
	},
	Interactive: {
		vars: []string{"name", "persona", "dialogue", "history", "examples"},
		text: sp(`
			System: You are a Fire Department Agent speaking with TownPerson {{.name}} during a fire emergency.

			Here is {{.name}}'s background:
			{{.persona}}

			Use this example dialogue as a guide for the tone and style:
			{{.dialogue}}
			{{.examples}}
			Current conversation:
			{{.history}}

			You are the Fire Department Agent. Generate a single response to {{.name}}'s last message. Be direct, professional, and focused on their safety. Use a single sentence.

			Format your output as:
			Operator: Content
		`),
	},
	StageTurn: {
		vars: []string{"name", "persona", "dialogue", "history", "instruction", "examples"},
		text: sp(`
			System: You are {{.name}}, a TownPerson talking with a Fire Department Operator during a fire emergency.

			Here is your persona:
			{{.persona}}

			Use this example dialogue as a guide for the tone and style:
			{{.dialogue}}

			Current conversation:
			{{.history}}

			{{.instruction}}
			{{.examples}}
			Reply as {{.name}} with a single sentence or a few words. Do not speak for the Operator.

			Format your output as:
			{{.name}}: Content
		`),
	},
}
