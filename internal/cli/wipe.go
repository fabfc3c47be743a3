package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	wipeChats bool
	wipeAll   bool
	wipeForce bool
)

var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Delete stored data",
	Long: `Delete stored data.

--chats removes all conversations and their per-conversation settings
but keeps your global settings. --all resets everything to defaults.

Examples:
  matechat wipe --chats
  matechat wipe --all --force`,
	RunE: runWipe,
}

func init() {
	wipeCmd.Flags().BoolVar(&wipeChats, "chats", false, "delete all conversations, keep global settings")
	wipeCmd.Flags().BoolVar(&wipeAll, "all", false, "delete everything and reset settings to defaults")
	wipeCmd.Flags().BoolVarP(&wipeForce, "force", "f", false, "skip confirmation")
}

func runWipe(cmd *cobra.Command, args []string) error {
	if wipeChats == wipeAll {
		return fmt.Errorf("specify exactly one of --chats or --all")
	}

	prompt := "About to delete all conversations (global settings kept)"
	if wipeAll {
		prompt = "About to delete ALL data, including settings"
	}
	if !wipeForce && !confirm(prompt) {
		fmt.Println("Cancelled.")
		return nil
	}

	if wipeAll {
		if err := st.WipeEverything(); err != nil {
			return fmt.Errorf("wipe: %w", err)
		}
		fmt.Println("All data deleted, settings reset to defaults.")
		return nil
	}

	if err := st.WipeChats(); err != nil {
		return fmt.Errorf("wipe: %w", err)
	}
	fmt.Println("All conversations deleted.")
	return nil
}
