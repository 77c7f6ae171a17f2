package main

import (
	"fmt"
	"strings"

	"github.com/ashureev/evac-dialogue/internal/dialogue"
	"github.com/ashureev/evac-dialogue/internal/identity"
	"github.com/spf13/cobra"
)

var autoCmd = &cobra.Command{
	Use:   "auto <town-person>",
	Short: "Generate a complete scripted evacuation dialogue",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuto,
}

func runAuto(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	core, cleanup, err := buildCore(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	townPerson := strings.ToLower(strings.TrimSpace(args[0]))
	if _, ok := core.Personas.Get(townPerson); !ok {
		return fmt.Errorf("unknown town person %q", args[0])
	}

	out := cmd.OutOrStdout()
	req := dialogue.AutoRequest{TownPerson: townPerson}
	if record {
		req.SessionID = identity.NewSessionID()
		fmt.Fprintf(out, "session %s\n", req.SessionID)
	}
	res := core.Orchestrator.RunAutoSequence(ctx, req, func(step dialogue.AutoStep) {
		fmt.Fprintf(out, "%s: %s\n", step.Speaker, step.Text)
	})
	if res.Error != "" {
		return fmt.Errorf("auto sequence stopped after %d of %d steps: %s", len(res.Steps), dialogue.AutoSteps, res.Error)
	}
	return nil
}
