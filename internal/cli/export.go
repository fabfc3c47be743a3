package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export <path>",
	Short: "Export all data to a JSON file",
	Long: `Export conversations and settings to a single JSON file for
backup or migration.

Examples:
  matechat export backup.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Import data from a JSON export",
	Long: `Replace all local data with the contents of a JSON export.

The import is all-or-nothing: an invalid file leaves the current data
untouched. Requires confirmation unless --force is used.

Examples:
  matechat import backup.json
  matechat import backup.json --force`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var importForce bool

func init() {
	importCmd.Flags().BoolVarP(&importForce, "force", "f", false, "skip confirmation")
}

func runExport(cmd *cobra.Command, args []string) error {
	raw, err := st.ExportAll()
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := os.WriteFile(args[0], raw, 0o644); err != nil {
		return fmt.Errorf("write export file: %w", err)
	}

	fmt.Printf("Exported %d conversation(s) to %s\n", len(st.ListConversations()), args[0])
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read import file: %w", err)
	}

	existing := len(st.ListConversations())
	if existing > 0 && !importForce {
		if !confirm(fmt.Sprintf("Importing replaces your current %d conversation(s)", existing)) {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := st.ImportAll(raw); err != nil {
		return fmt.Errorf("import: %w", err)
	}

	fmt.Printf("Imported %d conversation(s) from %s\n", len(st.ListConversations()), args[0])
	return nil
}
