package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/handbook-assistant/server/internal/agent/graph"
	"github.com/handbook-assistant/server/internal/agent/model"
)

var chatThread string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the assistant in the terminal",
	Long: `Starts an interactive session on a single conversation thread.
Type exit, quit or q to leave.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := buildAgent(cmd.Context(), appCfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		threadID := chatThread
		if threadID == "" {
			threadID = "chat-" + uuid.NewString()
		}
		return chatLoop(cmd.Context(), a.Runner, threadID, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatThread, "thread", "", "conversation thread id (default: a new random thread)")
}

var exitWords = map[string]bool{"exit": true, "quit": true, "q": true}

// chatLoop reads questions line by line until an exit word, EOF or ctx ends.
// A failed turn is reported and the session continues.
func chatLoop(ctx context.Context, runner graph.Runner, threadID string, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "Handbook assistant (thread %s). Type 'exit' to quit.\n", threadID)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\nYou: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case exitWords[strings.ToLower(line)]:
			fmt.Fprintln(out, "Bye!")
			return nil
		case line == "":
			fmt.Fprintln(out, "Please type a question, or 'exit' to quit.")
			continue
		}

		res, err := runner.Ask(ctx, model.QueryInput{ThreadID: threadID, Question: line})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		printAnswer(out, res)
	}
}

func printAnswer(out io.Writer, res *model.TurnResult) {
	fmt.Fprintf(out, "Assistant [%s]: %s\n", res.Source, res.Answer)
}
