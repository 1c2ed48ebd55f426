package store

import (
	"errors"
	"fmt"

	"github.com/agentic-research/arbor/api"
)

// ErrOrphanedNode means a row's parent id does not exist in the set being
// assembled — corrupted data, surfaced rather than reshaped into extra roots.
var ErrOrphanedNode = errors.New("orphaned node: parent missing from set")

// ErrCyclicForest means some rows form a parent cycle and are unreachable
// from any root. The store's write paths cannot produce this; it indicates
// external tampering with the database.
var ErrCyclicForest = errors.New("cyclic parent chain in node set")

// AssembleForest converts the flat node set into the nested read model.
//
// One pass groups rows by parent id (roots under a synthetic nil key), then
// children are attached recursively starting from the root group — linear in
// node count, no per-node queries. Sibling order follows the input order,
// which ListAll guarantees is ascending id.
func AssembleForest(nodes []api.Node) ([]api.NestedNode, error) {
	if len(nodes) == 0 {
		return nil, nil
	}

	byID := make(map[int64]struct{}, len(nodes))
	for i := range nodes {
		byID[nodes[i].ID] = struct{}{}
	}

	const rootKey = int64(-1) // ids are AUTOINCREMENT-positive, -1 is free
	children := make(map[int64][]*api.Node)
	for i := range nodes {
		n := &nodes[i]
		key := rootKey
		if n.ParentID != nil {
			if _, ok := byID[*n.ParentID]; !ok {
				return nil, fmt.Errorf("node %d (%s) references parent %d: %w",
					n.ID, n.Name, *n.ParentID, ErrOrphanedNode)
			}
			key = *n.ParentID
		}
		children[key] = append(children[key], n)
	}

	var attach func(parentKey int64) []api.NestedNode
	attach = func(parentKey int64) []api.NestedNode {
		group := children[parentKey]
		if len(group) == 0 {
			return nil
		}
		out := make([]api.NestedNode, 0, len(group))
		for _, n := range group {
			out = append(out, api.NestedNode{
				ID:       n.ID,
				Name:     n.Name,
				Data:     n.Data,
				Children: attach(n.ID),
			})
		}
		return out
	}

	forest := attach(rootKey)
	if got := api.CountNested(forest); got != len(nodes) {
		return nil, fmt.Errorf("%d of %d nodes unreachable from roots: %w",
			len(nodes)-got, len(nodes), ErrCyclicForest)
	}
	return forest, nil
}
