package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/handbook-assistant/server/internal/agent/model"
)

var askThread string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question",
	Example: `  handbook ask "How many vacation days do I get?"
  handbook ask --thread onboarding-42 "And what about sick leave?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildAgent(cmd.Context(), appCfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Runner.Ask(cmd.Context(), model.QueryInput{
			ThreadID: askThread,
			Question: strings.Join(args, " "),
		})
		if err != nil {
			return err
		}
		printAnswer(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	askCmd.Flags().StringVar(&askThread, "thread", model.DefaultThreadID, "conversation thread id")
}
