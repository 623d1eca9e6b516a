package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Ask a question about the registered people",
	Long: `Answer a question about the registry, for example:

  face-registry query "how many registered?"
  face-registry query "who was registered this week?"
  face-registry query "when was Jane Doe added?"

Questions the built-in rules do not understand are passed to the configured
AI provider (OPENAI_TOKEN, GEMINI_API_KEY or a local Ollama).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().Bool("json", false, "Output as JSON")
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	local, err := openLocal(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer local.Close()

	answer, err := newAssistant(ctx, cfg, local.store).Ask(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(answer)
	}
	fmt.Println(answer.Answer)
	if u := answer.Usage; u != nil && (u.InputTokens > 0 || u.OutputTokens > 0) {
		fmt.Printf("\nToken usage: %d input, %d output\n", u.InputTokens, u.OutputTokens)
	}
	return nil
}
