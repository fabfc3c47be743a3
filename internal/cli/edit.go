package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mlundqvist/matechat-go/internal/chat"
	"github.com/mlundqvist/matechat-go/internal/settings"
)

var editCmd = &cobra.Command{
	Use:   "edit <conversation-id> <message-id> <new text>",
	Short: "Edit one of your messages",
	Long: `Rewrite the content of one of your own messages. Agent replies
cannot be edited; regenerate them from the chat view instead.

Examples:
  matechat edit 4f7c... 91ab... "Hej, hur mår du?"`,
	Args: cobra.MinimumNArgs(3),
	RunE: runEdit,
}

func runEdit(cmd *cobra.Command, args []string) error {
	content := strings.Join(args[2:], " ")
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("new text must not be empty")
	}

	orch := chat.NewOrchestrator(st, settings.NewResolver(st), aiClient, chat.Options{})
	if err := orch.SetConversation(args[0]); err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	if err := orch.EditMessage(args[1], content); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}

	fmt.Println("Message updated.")
	return nil
}
