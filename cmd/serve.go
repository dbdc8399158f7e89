package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/speccyhq/speccy/internal/api"
	"github.com/speccyhq/speccy/internal/handoff"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the speccy HTTP API server",
	Long:  "Start an HTTP server exposing the session, turn, handoff, and card endpoints.\nBy default it listens on port 8080. Use --port to change it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}

		orch := buildOrchestrator(s)
		hs := handoff.NewService(s, handoffTTL())
		server := api.NewServer(s, orch, hs, nil)

		port := viper.GetInt("port")
		addr := fmt.Sprintf(":%d", port)
		ui.Info("Serving API at http://localhost%s", addr)
		return http.ListenAndServe(addr, server.Router())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	viper.SetDefault("port", 8080)
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
}
