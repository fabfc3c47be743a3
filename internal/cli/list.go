package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listLimit int

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	Long: `List stored conversations, most recently updated first.

Examples:
  matechat list
  matechat list --limit 10
  matechat list -v`,
	RunE: runList,
}

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "max results (0 = all)")
}

func runList(cmd *cobra.Command, args []string) error {
	conversations := st.ListConversations()
	if listLimit > 0 && len(conversations) > listLimit {
		conversations = conversations[:listLimit]
	}

	if len(conversations) == 0 {
		fmt.Println("No conversations yet. Start one with 'matechat chat'.")
		return nil
	}

	fmt.Printf("Conversations (%d):\n\n", len(conversations))
	for _, c := range conversations {
		title := c.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("- %s [%s] %s\n", title, c.TargetLanguage, c.ID)
		if verbose {
			counts := c.CountByRole()
			total := 0
			for _, n := range counts {
				total += n
			}
			fmt.Printf("  %d messages, updated %s\n", total, c.UpdatedAt.Format("2006-01-02 15:04"))
		}
	}

	return nil
}
