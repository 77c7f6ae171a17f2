// Package agent implements the HTTP and websocket surface of the dialogue simulator.
package agent

import (
	"github.com/ashureev/evac-dialogue/internal/dialogue"
)

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	TownPerson string `json:"townPerson"`
	UserInput  string `json:"userInput"`
	Mode       string `json:"mode"`
	Speaker    string `json:"speaker"`
}

// ChatResponse answers interactive and interactive_start requests.
type ChatResponse struct {
	SessionID     string               `json:"session_id"`
	Speaker       string               `json:"speaker,omitempty"`
	Response      string               `json:"response"`
	RetrievedInfo dialogue.Diagnostics `json:"retrieved_info"`
	Error         string               `json:"error,omitempty"`
}

// AutoResponse answers auto requests.
type AutoResponse struct {
	SessionID     string                 `json:"session_id"`
	Transcript    string                 `json:"transcript"`
	RetrievedInfo []dialogue.Diagnostics `json:"retrieved_info"`
	Error         string                 `json:"error,omitempty"`
}

// PersonaResponse answers GET /api/persona/{name}.
type PersonaResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Persona  string `json:"persona"`
	Dialogue string `json:"dialogue"`
}

// StreamMessage is one websocket frame of an auto stream.
type StreamMessage struct {
	Type       string             `json:"type"` // "step", "done" or "error"
	SessionID  string             `json:"session_id,omitempty"`
	Step       *dialogue.AutoStep `json:"step,omitempty"`
	Transcript string             `json:"transcript,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// Stream message types.
const (
	StreamStep  = "step"
	StreamDone  = "done"
	StreamError = "error"
)
