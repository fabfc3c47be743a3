package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mlundqvist/matechat-go/internal/models"
)

var showReasoning bool

var showCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Print a conversation transcript",
	Long: `Print a conversation transcript to stdout.

Examples:
  matechat show 4f7c...
  matechat show 4f7c... --reasoning`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showReasoning, "reasoning", false, "include model reasoning")
}

var roleLabels = map[models.Role]string{
	models.RoleUser:       "You",
	models.RoleChatMate:   "Chat Mate",
	models.RoleEditorMate: "Editor Mate",
}

func runShow(cmd *cobra.Command, args []string) error {
	conv, ok := st.Conversation(args[0])
	if !ok {
		return fmt.Errorf("conversation not found: %s", args[0])
	}

	title := conv.Title
	if title == "" {
		title = "(untitled)"
	}
	fmt.Printf("%s [%s]\n", title, conv.TargetLanguage)
	fmt.Printf("Created %s, %d messages\n\n", conv.CreatedAt.Format("2006-01-02 15:04"), len(conv.Messages))

	for _, m := range conv.Messages {
		fmt.Printf("[%s] %s\n", roleLabels[m.Role], m.ID)
		if showReasoning && m.Reasoning != "" {
			fmt.Printf("  (reasoning) %s\n", m.Reasoning)
		}
		fmt.Printf("  %s\n\n", m.Content)
	}

	return nil
}
