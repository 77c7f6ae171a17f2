package domain

import "time"

// Turn is an archived utterance, written after the session log accepts it.
type Turn struct {
	ID            int64     `json:"id"`
	SessionID     string    `json:"session_id"`
	TownPerson    string    `json:"town_person"`
	Speaker       string    `json:"speaker"`
	Content       string    `json:"content"`
	Category      string    `json:"category,omitempty"`
	StageSelected bool      `json:"stage_selected"`
	CreatedAt     time.Time `json:"created_at"`
}
