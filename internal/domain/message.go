// Package domain holds the types shared by the dialogue engine and its adapters.
package domain

import (
	"strings"
	"time"

	"github.com/orsinium-labs/enum"
)

// Role identifies which side of the evacuation call produced a message.
type Role enum.Member[string]

var (
	RoleOperator   = Role{"Operator"}
	RoleTownPerson = Role{"TownPerson"}

	Roles = enum.New(RoleOperator, RoleTownPerson)
)

// OperatorName is the speaker label used for every fire department utterance.
const OperatorName = "Operator"

// Message is a single utterance in a session log.
type Message struct {
	Speaker   string    `json:"speaker"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// IsOperator reports whether a speaker label refers to the fire department side.
// "Agent" is accepted because generated text uses both labels.
func IsOperator(speaker string) bool {
	s := strings.TrimSpace(speaker)
	return strings.EqualFold(s, OperatorName) || strings.EqualFold(s, "agent")
}

// RoleOf maps a speaker label to its role.
func RoleOf(speaker string) Role {
	if IsOperator(speaker) {
		return RoleOperator
	}
	return RoleTownPerson
}
