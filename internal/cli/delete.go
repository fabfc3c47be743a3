package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	deleteForce   bool
	deleteMessage string
	deleteBelow   bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete a conversation or a message",
	Long: `Delete a conversation, a single message, or a message plus
everything after it.

Deleting a conversation also removes its settings override.
Requires confirmation unless --force is used.

Examples:
  matechat delete 4f7c...
  matechat delete 4f7c... --force
  matechat delete 4f7c... --message 91ab...
  matechat delete 4f7c... --message 91ab... --below`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "skip confirmation")
	deleteCmd.Flags().StringVarP(&deleteMessage, "message", "m", "", "delete this message instead of the whole conversation")
	deleteCmd.Flags().BoolVar(&deleteBelow, "below", false, "with --message, also delete every later message")
}

func runDelete(cmd *cobra.Command, args []string) error {
	conversationID := args[0]

	conv, ok := st.Conversation(conversationID)
	if !ok {
		return fmt.Errorf("conversation not found: %s", conversationID)
	}

	if deleteBelow && deleteMessage == "" {
		return fmt.Errorf("--below requires --message")
	}

	var prompt string
	switch {
	case deleteMessage != "" && deleteBelow:
		idx := conv.MessageIndex(deleteMessage)
		if idx < 0 {
			return fmt.Errorf("message not found: %s", deleteMessage)
		}
		prompt = fmt.Sprintf("About to delete %d message(s) from %q", len(conv.Messages)-idx, displayTitle(conv.Title))
	case deleteMessage != "":
		prompt = fmt.Sprintf("About to delete one message from %q", displayTitle(conv.Title))
	default:
		prompt = fmt.Sprintf("About to delete conversation %q (%d messages)", displayTitle(conv.Title), len(conv.Messages))
	}

	if !deleteForce && !confirm(prompt) {
		fmt.Println("Cancelled.")
		return nil
	}

	switch {
	case deleteMessage != "" && deleteBelow:
		if err := st.DeleteMessagesFrom(conversationID, deleteMessage); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		fmt.Println("Deleted message and everything after it.")
	case deleteMessage != "":
		if err := st.DeleteMessage(conversationID, deleteMessage); err != nil {
			return fmt.Errorf("delete message: %w", err)
		}
		fmt.Println("Deleted message.")
	default:
		if err := st.DeleteConversation(conversationID); err != nil {
			return fmt.Errorf("delete conversation: %w", err)
		}
		fmt.Println("Deleted conversation.")
	}

	return nil
}

func displayTitle(title string) string {
	if title == "" {
		return "(untitled)"
	}
	return title
}

// confirm asks a y/N question on stdin.
func confirm(prompt string) bool {
	fmt.Printf("%s\n\nContinue? [y/N]: ", prompt)

	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
