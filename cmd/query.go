package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"

	"github.com/agentic-research/arbor/internal/treeops"
)

var queryDBPath string

var queryCmd = &cobra.Command{
	Use:   "query [jsonpath]",
	Short: "Evaluate a JSONPath expression against the stored forest",
	Long: `Assembles the stored forest and evaluates a JSONPath expression
against it, e.g.:

  arbor query '$[*].name'
  arbor query '$..children[?(@.data != null)].data'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		x, err := jp.ParseString(args[0])
		if err != nil {
			return fmt.Errorf("invalid jsonpath %q: %w", args[0], err)
		}

		st, err := openStoreAt(queryDBPath)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }() // best-effort

		forest, err := treeops.New(st).GetTree(cmd.Context())
		if err != nil {
			return err
		}

		// Round-trip through JSON so jp walks plain maps and slices.
		raw, err := json.Marshal(forest)
		if err != nil {
			return fmt.Errorf("encode forest: %w", err)
		}
		doc, err := oj.Parse(raw)
		if err != nil {
			return fmt.Errorf("reparse forest: %w", err)
		}

		fmt.Println(oj.JSON(x.Get(doc), 2))
		return nil
	},
}

func init() {
	queryCmd.Flags().StringVar(&queryDBPath, "db", "", "SQLite database path (default from DATABASE_URL)")
	rootCmd.AddCommand(queryCmd)
}
