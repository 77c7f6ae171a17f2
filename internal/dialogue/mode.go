package dialogue

import (
	"strings"

	"github.com/orsinium-labs/enum"
)

// Mode selects how a chat request is served.
type Mode enum.Member[string]

var (
	ModeInteractive      = Mode{"interactive"}
	ModeInteractiveStart = Mode{"interactive_start"}
	ModeAuto             = Mode{"auto"}

	Modes = enum.New(ModeInteractive, ModeInteractiveStart, ModeAuto)
)

// ParseMode resolves a mode name. An empty name means interactive.
func ParseMode(name string) (Mode, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ModeInteractive, true
	}
	m := Modes.Parse(name)
	if m == nil {
		return Mode{}, false
	}
	return *m, true
}
