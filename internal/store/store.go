// Package store persists the node forest in SQLite and exposes the raw
// mutation primitives the service layer builds on. One table holds every
// node; the parent relation is a nullable self-referencing foreign key.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/agentic-research/arbor/api"
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound means the id does not reference a stored node.
	ErrNotFound = errors.New("node not found")
	// ErrParentNotFound means an insert referenced a parent id that does
	// not exist at write time.
	ErrParentNotFound = errors.New("parent node not found")
)

const schema = `
CREATE TABLE IF NOT EXISTS tree_items (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	name      TEXT NOT NULL CHECK (length(name) > 0),
	data      TEXT,
	parent_id INTEGER REFERENCES tree_items(id)
);
CREATE INDEX IF NOT EXISTS idx_tree_items_parent ON tree_items(parent_id);
`

// Store is the durable node store. It is safe for concurrent use; the
// *sql.DB pool is the only shared state, and every multi-row mutation runs
// inside a single transaction so readers see either the fully-pre or
// fully-post forest.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and ensures
// the schema exists. With reset set, any existing table is dropped first —
// the development-startup behavior.
//
// AUTOINCREMENT keeps ids monotonic, so id order equals insertion order and
// deleted ids are never reused.
func Open(path string, reset bool) (*Store, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(4)

	if reset {
		if _, err := db.Exec("DROP TABLE IF EXISTS tree_items"); err != nil {
			_ = db.Close() // ignore error
			return nil, fmt.Errorf("drop tree_items: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close() // ignore error
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert adds one node and returns its assigned id. A non-nil parentID must
// reference an existing node; otherwise ErrParentNotFound.
func (s *Store) Insert(ctx context.Context, name string, data *string, parentID *int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // no-op after commit

	id, err := insertOne(ctx, tx, name, data, parentID)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert: %w", err)
	}
	return id, nil
}

func insertOne(ctx context.Context, tx *sql.Tx, name string, data *string, parentID *int64) (int64, error) {
	if parentID != nil {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM tree_items WHERE id = ?", *parentID).Scan(&exists)
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("insert %q under %d: %w", name, *parentID, ErrParentNotFound)
		}
		if err != nil {
			return 0, fmt.Errorf("check parent %d: %w", *parentID, err)
		}
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO tree_items (name, data, parent_id) VALUES (?, ?, ?)",
		name, data, parentID)
	if err != nil {
		return 0, fmt.Errorf("insert %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert %q: last id: %w", name, err)
	}
	return id, nil
}

// GetByID fetches a single node, or ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id int64) (*api.Node, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, data, parent_id FROM tree_items WHERE id = ?", id)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get node %d: %w", id, err)
	}
	return n, nil
}

// ListAll returns every stored node ordered by id ascending. Under
// AUTOINCREMENT that is insertion order, which makes the listing (and the
// sibling order derived from it) deterministic.
func (s *Store) ListAll(ctx context.Context) ([]api.Node, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, data, parent_id FROM tree_items ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	var nodes []api.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node row: %w", err)
		}
		nodes = append(nodes, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	return nodes, nil
}

// Count returns the number of stored nodes.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tree_items").Scan(&n); err != nil {
		return 0, fmt.Errorf("count nodes: %w", err)
	}
	return n, nil
}

// UpdateData sets the payload of one node, leaving name and parent
// untouched, and returns the updated row. ErrNotFound if the id is absent;
// the store is unchanged in that case. Update and read-back are one
// RETURNING statement, so a concurrent delete cannot slip between them.
func (s *Store) UpdateData(ctx context.Context, id int64, data *string) (*api.Node, error) {
	row := s.db.QueryRowContext(ctx,
		"UPDATE tree_items SET data = ? WHERE id = ? RETURNING id, name, data, parent_id",
		data, id)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update node %d: %w", id, err)
	}
	return n, nil
}

// DeleteSubtree removes the node and every descendant in one transaction,
// returning the number of rows removed. ErrNotFound (and no mutation) if the
// id is absent. The recursive CTE collects the whole subtree in one
// statement, so a concurrent reader never observes a half-deleted forest.
func (s *Store) DeleteSubtree(ctx context.Context, id int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // no-op after commit

	res, err := tx.ExecContext(ctx, `
		WITH RECURSIVE subtree(id) AS (
			SELECT id FROM tree_items WHERE id = ?
			UNION ALL
			SELECT t.id FROM tree_items t JOIN subtree s ON t.parent_id = s.id
		)
		DELETE FROM tree_items WHERE id IN (SELECT id FROM subtree)`, id)
	if err != nil {
		return 0, fmt.Errorf("delete subtree %d: %w", id, err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete subtree %d: rows affected: %w", id, err)
	}
	if count == 0 {
		return 0, ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete subtree %d: %w", id, err)
	}
	return count, nil
}

// ClearAll removes every node. Used by ReplaceForest; exposed for tests.
func (s *Store) ClearAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM tree_items"); err != nil {
		return fmt.Errorf("clear nodes: %w", err)
	}
	return nil
}

// ReplaceForest atomically swaps the stored forest for the submitted one:
// a single transaction clears every row and depth-first inserts the new
// structure, each child carrying its freshly assigned parent id. On any
// failure the transaction rolls back and the pre-replace forest — including
// the cleared rows — is restored. Returns the created forest with ids.
//
// Callers are expected to have validated the input; this layer only
// enforces what SQLite enforces.
func (s *Store) ReplaceForest(ctx context.Context, forest []api.NodeInput) ([]api.NestedNode, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin replace tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM tree_items"); err != nil {
		return nil, fmt.Errorf("clear before replace: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO tree_items (name, data, parent_id) VALUES (?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("prepare replace insert: %w", err)
	}
	defer func() { _ = stmt.Close() }() // safe to ignore

	created, err := insertForest(ctx, stmt, forest, nil)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit replace: %w", err)
	}
	return created, nil
}

func insertForest(ctx context.Context, stmt *sql.Stmt, forest []api.NodeInput, parentID *int64) ([]api.NestedNode, error) {
	var out []api.NestedNode
	for i := range forest {
		in := &forest[i]
		res, err := stmt.ExecContext(ctx, in.Name, in.Data, parentID)
		if err != nil {
			return nil, fmt.Errorf("insert %q: %w", in.Name, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("insert %q: last id: %w", in.Name, err)
		}
		children, err := insertForest(ctx, stmt, in.Children, &id)
		if err != nil {
			return nil, err
		}
		out = append(out, api.NestedNode{
			ID:       id,
			Name:     in.Name,
			Data:     in.Data,
			Children: children,
		})
	}
	return out, nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanNode(sc scanner) (*api.Node, error) {
	var (
		n      api.Node
		data   sql.NullString
		parent sql.NullInt64
	)
	if err := sc.Scan(&n.ID, &n.Name, &data, &parent); err != nil {
		return nil, err
	}
	if data.Valid {
		n.Data = &data.String
	}
	if parent.Valid {
		n.ParentID = &parent.Int64
	}
	return &n, nil
}
