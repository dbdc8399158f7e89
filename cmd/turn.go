package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/speccyhq/speccy/internal/orchestrator"
	"github.com/speccyhq/speccy/internal/output"
)

var turnCmd = &cobra.Command{
	Use:   "turn <session-id> <text>",
	Short: "Send one turn into a session",
	Long:  "Send a user message into an interview session and print the assistant's reply.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}

		name, _ := cmd.Flags().GetString("name")
		role, _ := cmd.Flags().GetString("role")

		orch := buildOrchestrator(s)
		result, err := orch.ProcessTurn(cmd.Context(), orchestrator.TurnInput{
			SessionID: args[0],
			Text:      args[1],
			Actor: orchestrator.Actor{
				Name: name,
				Role: orchestrator.ActorRole(role),
			},
		})
		if err != nil {
			return err
		}

		if result.Err != nil {
			ui.Error("Turn failed (%s): %s", result.Err.Kind, result.Err.Message)
			return nil
		}

		if result.Content != "" {
			fmt.Fprintln(ui.Out, result.Content)
		}
		if result.Question != nil {
			ui.Info("Question: %s", result.Question.Question)
			for i, opt := range result.Question.Options {
				fmt.Fprintf(ui.Out, "  %d. %s: %s\n", i+1, opt.Label, opt.Description)
			}
		}
		if result.ClientBrief != nil {
			ui.Success("Client brief produced: %s", result.ClientBrief.Title)
		}
		if result.TeamSpec != nil {
			ui.Success("Team spec produced: %s (%d chunks)", result.TeamSpec.Title, len(result.TeamSpec.Chunks))
		}
		if result.Handoff != nil {
			ui.Warning("Handoff requested (%s): %s", result.Handoff.TargetRole, result.Handoff.Reason)
			if result.Handoff.Token != "" {
				ui.Info("Invite token: %s", result.Handoff.Token)
			}
		}

		ui.VerboseLog("phase=%s status=%s turns=%d/%d",
			output.PhaseColor(string(result.Phase)), output.StatusColor(string(result.Status)),
			result.TurnsUsed, result.TurnBudget)
		return nil
	},
}

func init() {
	turnCmd.Flags().String("name", "", "Actor display name")
	turnCmd.Flags().String("role", "member", "Actor role: owner, member, client")
	rootCmd.AddCommand(turnCmd)
}
