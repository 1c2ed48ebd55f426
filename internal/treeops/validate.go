package treeops

import (
	"errors"
	"fmt"
	"strings"

	"github.com/agentic-research/arbor/api"
)

// ErrValidation marks malformed replace input. Nothing is written when
// validation fails.
var ErrValidation = errors.New("invalid forest input")

const (
	// maxDepth bounds nesting of a submitted forest. The input is a nested
	// literal so cycles are impossible by construction, but unbounded depth
	// would blow the recursive insert.
	maxDepth = 64
	// maxNodes bounds the size of one replace submission.
	maxNodes = 100_000
)

// ValidateForest walks a submitted forest before any mutation: every node
// needs a non-blank name, nesting must stay within maxDepth, and the total
// node count within maxNodes.
func ValidateForest(forest []api.NodeInput) error {
	count := 0
	var walk func(nodes []api.NodeInput, depth int) error
	walk = func(nodes []api.NodeInput, depth int) error {
		if depth > maxDepth {
			return fmt.Errorf("nesting exceeds %d levels: %w", maxDepth, ErrValidation)
		}
		for i := range nodes {
			n := &nodes[i]
			if strings.TrimSpace(n.Name) == "" {
				return fmt.Errorf("node at depth %d has empty name: %w", depth, ErrValidation)
			}
			count++
			if count > maxNodes {
				return fmt.Errorf("forest exceeds %d nodes: %w", maxNodes, ErrValidation)
			}
			if err := walk(n.Children, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(forest, 1)
}
