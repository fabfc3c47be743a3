package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mlundqvist/matechat-go/internal/models"
)

var settingsConversation string

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect and change settings",
	Long: `Inspect and change global settings, or per-conversation overrides
with --conversation.

Subcommands:
  get          Print current settings
  set <k> <v>  Change one setting

Keys: language, chat-personality, editor-personality, model, api-key,
feedback-style (encouraging|direct|detailed), streaming, reasoning,
reasoning-expanded, cultural-context, progressive-complexity.

Examples:
  matechat settings get
  matechat settings set language Japanese
  matechat settings set feedback-style direct
  matechat settings set api-key -
  matechat settings set model claude-sonnet-4-5 --conversation 4f7c...`,
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print current settings",
	RunE:  runSettingsGet,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting",
	Args:  cobra.ExactArgs(2),
	RunE:  runSettingsSet,
}

func init() {
	settingsCmd.PersistentFlags().StringVarP(&settingsConversation, "conversation", "c", "", "target a conversation's override instead of global settings")
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
}

func runSettingsGet(cmd *cobra.Command, args []string) error {
	g := st.GlobalSettings()

	if settingsConversation != "" {
		override, ok := st.Override(settingsConversation)
		if !ok {
			fmt.Println("No override for this conversation; it follows global settings.")
			return nil
		}
		printOverride(override)
		return nil
	}

	fmt.Println("Global settings:")
	fmt.Printf("  language:                %s\n", g.TargetLanguage)
	fmt.Printf("  chat-personality:        %s\n", g.ChatMatePersonality)
	fmt.Printf("  editor-personality:      %s\n", g.EditorMatePersonality)
	fmt.Printf("  model:                   %s\n", g.Model)
	fmt.Printf("  api-key:                 %s\n", maskKey(g.APIKey))
	fmt.Printf("  feedback-style:          %s\n", g.FeedbackStyle)
	fmt.Printf("  streaming:               %v\n", g.EnableStreaming)
	fmt.Printf("  reasoning:               %v\n", g.EnableReasoning)
	fmt.Printf("  reasoning-expanded:      %v\n", g.ReasoningExpanded)
	fmt.Printf("  cultural-context:        %v\n", g.CulturalContext)
	fmt.Printf("  progressive-complexity:  %v\n", g.ProgressiveComplexity)
	return nil
}

func printOverride(o models.SettingsOverride) {
	fmt.Println("Conversation override (unset keys follow global):")
	printIfSet := func(key string, v *string) {
		if v != nil {
			fmt.Printf("  %s: %s\n", key, *v)
		}
	}
	printBoolIfSet := func(key string, v *bool) {
		if v != nil {
			fmt.Printf("  %s: %v\n", key, *v)
		}
	}
	printIfSet("language", o.TargetLanguage)
	printIfSet("chat-personality", o.ChatMatePersonality)
	printIfSet("editor-personality", o.EditorMatePersonality)
	printIfSet("model", o.Model)
	if o.APIKey != nil {
		fmt.Printf("  api-key: %s\n", maskKey(*o.APIKey))
	}
	if o.FeedbackStyle != nil {
		fmt.Printf("  feedback-style: %s\n", *o.FeedbackStyle)
	}
	printBoolIfSet("streaming", o.EnableStreaming)
	printBoolIfSet("cultural-context", o.CulturalContext)
	printBoolIfSet("progressive-complexity", o.ProgressiveComplexity)
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	// "-" prompts for the API key without echoing it.
	if key == "api-key" && value == "-" {
		entered, err := readSecret("API key: ")
		if err != nil {
			return err
		}
		value = entered
	}

	if settingsConversation != "" {
		return setOverride(settingsConversation, key, value)
	}
	return setGlobal(key, value)
}

func setGlobal(key, value string) error {
	g := st.GlobalSettings()
	switch key {
	case "language":
		g.TargetLanguage = value
	case "chat-personality":
		g.ChatMatePersonality = value
	case "editor-personality":
		g.EditorMatePersonality = value
	case "model":
		g.Model = value
	case "api-key":
		g.APIKey = value
	case "feedback-style":
		style := models.FeedbackStyle(value)
		if !style.Valid() {
			return fmt.Errorf("invalid feedback style %q (encouraging|direct|detailed)", value)
		}
		g.FeedbackStyle = style
	case "streaming", "reasoning", "reasoning-expanded", "cultural-context", "progressive-complexity":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s expects true or false", key)
		}
		switch key {
		case "streaming":
			g.EnableStreaming = b
		case "reasoning":
			g.EnableReasoning = b
		case "reasoning-expanded":
			g.ReasoningExpanded = b
		case "cultural-context":
			g.CulturalContext = b
		case "progressive-complexity":
			g.ProgressiveComplexity = b
		}
	default:
		return fmt.Errorf("unknown setting: %s", key)
	}

	if err := st.SetGlobalSettings(g); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	fmt.Printf("Set %s.\n", key)
	return nil
}

func setOverride(conversationID, key, value string) error {
	if _, ok := st.Conversation(conversationID); !ok {
		return fmt.Errorf("conversation not found: %s", conversationID)
	}

	override, _ := st.Override(conversationID)
	switch key {
	case "language":
		override.TargetLanguage = &value
	case "chat-personality":
		override.ChatMatePersonality = &value
	case "editor-personality":
		override.EditorMatePersonality = &value
	case "model":
		override.Model = &value
	case "api-key":
		override.APIKey = &value
	case "feedback-style":
		style := models.FeedbackStyle(value)
		if !style.Valid() {
			return fmt.Errorf("invalid feedback style %q (encouraging|direct|detailed)", value)
		}
		override.FeedbackStyle = &style
	case "streaming", "cultural-context", "progressive-complexity":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s expects true or false", key)
		}
		switch key {
		case "streaming":
			override.EnableStreaming = &b
		case "cultural-context":
			override.CulturalContext = &b
		case "progressive-complexity":
			override.ProgressiveComplexity = &b
		}
	case "reasoning", "reasoning-expanded":
		return fmt.Errorf("%s is global-only; set it without --conversation", key)
	default:
		return fmt.Errorf("unknown setting: %s", key)
	}

	if err := st.SetOverride(conversationID, override); err != nil {
		return fmt.Errorf("save override: %w", err)
	}
	fmt.Printf("Set %s for this conversation.\n", key)
	return nil
}

// readSecret reads a line from the terminal without echo.
func readSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func maskKey(key string) string {
	if key == "" {
		return "(unset)"
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
