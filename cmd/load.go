package cmd

import (
	"fmt"
	"os"

	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"

	"github.com/agentic-research/arbor/api"
	"github.com/agentic-research/arbor/internal/config"
	"github.com/agentic-research/arbor/internal/store"
	"github.com/agentic-research/arbor/internal/treeops"
)

var loadDBPath string

var loadCmd = &cobra.Command{
	Use:   "load [forest.json]",
	Short: "Replace the stored forest from a JSON file",
	Long: `Reads a JSON file describing a forest (an array of nested
{name, data, children} objects, or a single such object) and atomically
replaces the stored forest with it. Prints the created forest with its
assigned ids.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read forest file: %w", err)
		}

		var forest []api.NodeInput
		if err := oj.Unmarshal(raw, &forest); err != nil {
			var single api.NodeInput
			if err2 := oj.Unmarshal(raw, &single); err2 != nil {
				return fmt.Errorf("parse forest file: %w", err)
			}
			forest = []api.NodeInput{single}
		}

		st, err := openStoreAt(loadDBPath)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }() // best-effort

		created, err := treeops.New(st).ReplaceTree(cmd.Context(), forest)
		if err != nil {
			return err
		}
		fmt.Println(oj.JSON(created, 2))
		return nil
	},
}

// openStoreAt opens the store at the given path, falling back to the
// DATABASE_URL-derived path when the flag is unset. Never resets.
func openStoreAt(path string) (*store.Store, error) {
	if path == "" {
		cfg, err := config.FromEnv()
		if err != nil {
			return nil, err
		}
		path = cfg.DBPath
	}
	return store.Open(path, false)
}

func init() {
	loadCmd.Flags().StringVar(&loadDBPath, "db", "", "SQLite database path (default from DATABASE_URL)")
	rootCmd.AddCommand(loadCmd)
}
