package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/speccyhq/speccy/internal/models"
	"github.com/speccyhq/speccy/internal/output"
	"github.com/speccyhq/speccy/internal/store"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage spec interview sessions",
}

var sessionNewCmd = &cobra.Command{
	Use:   "new <project-id>",
	Short: "Start a new interview session for a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		budget, _ := cmd.Flags().GetInt("budget")
		if budget <= 0 {
			budget = viper.GetInt("turn_budget")
		}
		channel, _ := cmd.Flags().GetString("channel")

		version, err := s.NextSessionVersion(ctx, args[0])
		if err != nil {
			return err
		}

		sess := &models.Session{
			ProjectID:  args[0],
			Phase:      models.PhaseExplore,
			Status:     models.SessionStatusActive,
			Version:    version,
			TurnBudget: budget,
			Channel:    models.Channel(channel),
			Model:      viper.GetString("anthropic.model"),
		}
		if err := s.CreateSession(ctx, sess); err != nil {
			return err
		}

		ui.Success("Created session %s (v%d) for project %s", sess.ID, sess.Version, sess.ProjectID)
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}

		projectID, _ := cmd.Flags().GetString("project")
		status, _ := cmd.Flags().GetString("status")

		sessions, err := s.ListSessions(cmd.Context(), store.SessionListFilter{
			ProjectID: projectID,
			Status:    models.SessionStatus(status),
		})
		if err != nil {
			return err
		}

		if len(sessions) == 0 {
			ui.Info("No sessions found")
			return nil
		}

		table := ui.Table([]string{"ID", "Project", "Ver", "Phase", "Status", "Turns", "Channel"})
		for _, sess := range sessions {
			table.Append([]string{
				sess.ID,
				sess.ProjectID,
				fmt.Sprintf("%d", sess.Version),
				output.PhaseColor(string(sess.Phase)),
				output.StatusColor(string(sess.Status)),
				fmt.Sprintf("%d/%d", sess.TurnsUsed, sess.TurnBudget),
				string(sess.Channel),
			})
		}
		return table.Render()
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session and its conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		sess, err := s.GetSession(ctx, args[0])
		if err != nil {
			return err
		}

		ui.Info("Session %s (v%d) project=%s phase=%s status=%s turns=%d/%d",
			sess.ID, sess.Version, sess.ProjectID,
			output.PhaseColor(string(sess.Phase)), output.StatusColor(string(sess.Status)),
			sess.TurnsUsed, sess.TurnBudget)

		messages, err := s.ListMessages(ctx, sess.ID)
		if err != nil {
			return err
		}
		for _, m := range messages {
			prefix := output.Cyan(fmt.Sprintf("%3d %-9s", m.TurnNumber, m.Role))
			content := m.Content
			if m.ToolName != "" {
				content = fmt.Sprintf("%s [%s]", content, output.Yellow(m.ToolName))
			}
			fmt.Fprintf(ui.Out, "%s %s\n", prefix, content)
		}

		return showCards(ctx, s, sess.ID)
	},
}

func showCards(ctx context.Context, s store.Store, sessionID string) error {
	cards, err := s.ListCards(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(cards) == 0 {
		return nil
	}

	ui.Info("Cards:")
	table := ui.Table([]string{"Pos", "Title", "Status", "UI"})
	for _, c := range cards {
		hasUI := ""
		if c.HasUI {
			hasUI = "yes"
		}
		table.Append([]string{
			fmt.Sprintf("%d", c.Position),
			c.Title,
			string(c.Status),
			hasUI,
		})
	}
	return table.Render()
}

var sessionArchiveCmd = &cobra.Command{
	Use:   "archive <session-id>",
	Short: "Archive a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		sess, err := s.GetSession(ctx, args[0])
		if err != nil {
			return err
		}
		sess.Status = models.SessionStatusArchived
		if err := s.UpdateSession(ctx, sess); err != nil {
			return err
		}

		ui.Success("Archived session %s", sess.ID)
		return nil
	},
}

func init() {
	sessionNewCmd.Flags().Int("budget", 0, "Turn budget (default from config)")
	sessionNewCmd.Flags().String("channel", "web", "Delivery channel: web, slack, guest")

	sessionListCmd.Flags().String("project", "", "Filter by project id")
	sessionListCmd.Flags().String("status", "", "Filter by status")

	sessionCmd.AddCommand(sessionNewCmd, sessionListCmd, sessionShowCmd, sessionArchiveCmd)
	rootCmd.AddCommand(sessionCmd)
}
