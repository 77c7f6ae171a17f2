package agent

import (
	"context"

	"github.com/ashureev/evac-dialogue/internal/dialogue"
	"github.com/ashureev/evac-dialogue/internal/persona"
)

// Dialogue defines the conversation operations served over HTTP.
// This interface is implemented by the dialogue orchestrator.
type Dialogue interface {
	// AdvanceTurn stores the caller's input and generates the reply.
	AdvanceTurn(ctx context.Context, req dialogue.TurnRequest) dialogue.TurnResult

	// StartConversation generates the operator's opening line.
	StartConversation(ctx context.Context, sessionID, townPerson string) dialogue.TurnResult

	// RunAutoSequence generates the scripted demo conversation.
	RunAutoSequence(ctx context.Context, req dialogue.AutoRequest, onStep func(dialogue.AutoStep)) dialogue.AutoResult
}

// Catalog looks up town person personas.
type Catalog interface {
	Get(id string) (persona.Persona, bool)
	IDs() []string
}

// Ensure the concrete types implement the interfaces.
var (
	_ Dialogue = (*dialogue.Orchestrator)(nil)
	_ Catalog  = (*persona.Store)(nil)
)
