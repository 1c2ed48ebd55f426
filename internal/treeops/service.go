// Package treeops exposes the five tree operations the transport layer
// calls: nested read, flat read, whole-forest replace, payload update, and
// subtree delete. It owns input validation and the flat→nested assembly;
// persistence lives in the store.
package treeops

import (
	"context"

	"github.com/agentic-research/arbor/api"
	"github.com/agentic-research/arbor/internal/store"
)

// Service runs the tree operations against an injected store. Zero value is
// not usable; construct with New.
type Service struct {
	store *store.Store
}

func New(s *store.Store) *Service {
	return &Service{store: s}
}

// GetTree returns the stored forest in nested form, roots ordered by id.
func (s *Service) GetTree(ctx context.Context) ([]api.NestedNode, error) {
	nodes, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return store.AssembleForest(nodes)
}

// GetAllFlat returns every stored node ordered by id.
func (s *Service) GetAllFlat(ctx context.Context) ([]api.Node, error) {
	return s.store.ListAll(ctx)
}

// ReplaceTree validates the submitted forest, then atomically swaps the
// stored forest for it. Returns the created forest with assigned ids.
// Validation failure performs zero writes; a mid-insert failure rolls the
// whole transaction back, restoring the pre-replace forest.
func (s *Service) ReplaceTree(ctx context.Context, forest []api.NodeInput) ([]api.NestedNode, error) {
	if err := ValidateForest(forest); err != nil {
		return nil, err
	}
	return s.store.ReplaceForest(ctx, forest)
}

// UpdateNodeData sets one node's payload, leaving name, parent and children
// untouched, and returns the updated node. store.ErrNotFound if absent.
func (s *Service) UpdateNodeData(ctx context.Context, id int64, data *string) (*api.Node, error) {
	return s.store.UpdateData(ctx, id, data)
}

// DeleteSubtree removes the node and all descendants, returning the count
// removed. store.ErrNotFound (and no mutation) if the id is absent.
func (s *Service) DeleteSubtree(ctx context.Context, id int64) (int64, error) {
	return s.store.DeleteSubtree(ctx, id)
}

// NodeCount reports the stored node count, for the observability gauge.
func (s *Service) NodeCount(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}
