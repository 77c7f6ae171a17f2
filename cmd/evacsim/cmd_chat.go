package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/ashureev/evac-dialogue/internal/dialogue"
	"github.com/ashureev/evac-dialogue/internal/domain"
	"github.com/ashureev/evac-dialogue/internal/identity"
	"github.com/spf13/cobra"
)

var chatRole string

var chatCmd = &cobra.Command{
	Use:   "chat <town-person>",
	Short: "Hold an interactive dialogue, one line per turn",
	Long: `Reads one utterance per line from stdin. Playing the operator, the model
answers as the town person; playing the town person, the operator opens the
call and the model answers as the operator.

Type /history to print the conversation and /quit to leave.`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	role := strings.ToLower(strings.TrimSpace(chatRole))
	if role != "operator" && role != "townperson" {
		return fmt.Errorf("--as must be operator or townperson, got %q", chatRole)
	}

	ctx, cancel := commandContext()
	defer cancel()

	core, cleanup, err := buildCore(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	townPerson := strings.ToLower(strings.TrimSpace(args[0]))
	p, ok := core.Personas.Get(townPerson)
	if !ok {
		return fmt.Errorf("unknown town person %q", args[0])
	}

	out := cmd.OutOrStdout()
	sessionID := identity.NewSessionID()
	speaker := domain.OperatorName
	if role == "townperson" {
		speaker = p.Name
		res := core.Orchestrator.StartConversation(ctx, sessionID, townPerson)
		if res.Error != "" {
			return fmt.Errorf("start conversation: %s", res.Error)
		}
		fmt.Fprintf(out, "%s: %s\n", res.Speaker, res.Response)
	}

	in := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprintf(out, "%s> ", speaker)
		if !in.Scan() {
			break
		}
		line := strings.TrimSpace(in.Text())
		switch line {
		case "":
			continue
		case "/quit":
			return nil
		case "/history":
			fmt.Fprintln(out, core.Sessions.History(sessionID, core.Sessions.Len(sessionID)))
			continue
		}

		res := core.Orchestrator.AdvanceTurn(ctx, dialogue.TurnRequest{
			SessionID:  sessionID,
			TownPerson: townPerson,
			Speaker:    speaker,
			UserInput:  line,
		})
		if res.Error != "" {
			fmt.Fprintf(out, "error: %s\n", res.Error)
			continue
		}
		fmt.Fprintf(out, "%s: %s\n", res.Speaker, res.Response)
	}
	return in.Err()
}
