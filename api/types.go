// Package api defines the wire types shared by the store, the service
// layer, and the HTTP transport.
package api

// Node is a single stored tree row, the flat read model.
type Node struct {
	// ID is assigned by the store on insert and never reused.
	ID int64 `json:"id"`
	// Name is the required display label.
	Name string `json:"name"`
	// Data is the optional opaque payload.
	Data *string `json:"data"`
	// ParentID references another Node's ID; nil marks a root.
	ParentID *int64 `json:"parent_id"`
}

// NestedNode is the tree-shaped read model: a Node with its children
// embedded, derived from the flat rows at read time.
type NestedNode struct {
	ID       int64        `json:"id"`
	Name     string       `json:"name"`
	Data     *string      `json:"data"`
	Children []NestedNode `json:"children,omitempty"`
}

// NodeInput describes one node of a forest submitted for replacement.
// IDs are assigned by the store, so input carries none.
type NodeInput struct {
	Name     string      `json:"name"`
	Data     *string     `json:"data"`
	Children []NodeInput `json:"children"`
}

// CountNested returns the number of nodes reachable from the given forest,
// walking every root's subtree.
func CountNested(forest []NestedNode) int {
	n := 0
	for i := range forest {
		n += 1 + CountNested(forest[i].Children)
	}
	return n
}
