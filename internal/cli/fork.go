package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mlundqvist/matechat-go/internal/chat"
	"github.com/mlundqvist/matechat-go/internal/settings"
)

var forkCmd = &cobra.Command{
	Use:   "fork <conversation-id> <message-id>",
	Short: "Fork a conversation at a message",
	Long: `Copy a conversation up to and including the given message into a
new conversation. The fork keeps the target language and any
per-conversation settings, so you can explore a different direction
from that point.

Examples:
  matechat fork 4f7c... 91ab...`,
	Args: cobra.ExactArgs(2),
	RunE: runFork,
}

func runFork(cmd *cobra.Command, args []string) error {
	orch := chat.NewOrchestrator(st, settings.NewResolver(st), aiClient, chat.Options{})
	if err := orch.SetConversation(args[0]); err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}

	fork, err := orch.Fork(args[1])
	if err != nil {
		return fmt.Errorf("fork: %w", err)
	}

	fmt.Printf("Forked into %s (%d messages).\n", fork.ID, len(fork.Messages))
	fmt.Printf("Continue it with 'matechat chat %s'.\n", fork.ID)
	return nil
}
