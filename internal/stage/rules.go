package stage

import "strings"

// Flag names a keyword signal detected in an operator message.
type Flag int

const (
	FlagDanger Flag = iota
	FlagValueOfLife
	FlagEnding
)

// Rule maps a keyword set to a flag. Matching is case-insensitive substring
// containment with no stemming or negation handling.
type Rule struct {
	Flag     Flag
	Keywords []string
}

// Rules are evaluated in order; earlier flags take priority when stages are chosen.
var Rules = []Rule{
	{Flag: FlagDanger, Keywords: []string{"danger", "fire", "emergency", "threatening", "die"}},
	{Flag: FlagValueOfLife, Keywords: []string{"not worth", "work isn't worth", "nothing is worth", "life"}},
	{Flag: FlagEnding, Keywords: []string{"fine", "alright", "sure", "ok"}},
}

// Flags holds the keyword signals for one message.
type Flags struct {
	EmphasizesDanger      bool `json:"emphasizes_danger"`
	EmphasizesValueOfLife bool `json:"emphasizes_value_of_life"`
	EndingConversation    bool `json:"ending_conversation"`
}

// Evaluate applies Rules to text.
func Evaluate(text string) Flags {
	lower := strings.ToLower(text)
	var f Flags
	for _, rule := range Rules {
		if !containsAny(lower, rule.Keywords) {
			continue
		}
		switch rule.Flag {
		case FlagDanger:
			f.EmphasizesDanger = true
		case FlagValueOfLife:
			f.EmphasizesValueOfLife = true
		case FlagEnding:
			f.EndingConversation = true
		}
	}
	return f
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
