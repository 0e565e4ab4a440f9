// Package registry is the gateway's address book of agent nodes.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/nodeagent/internal/storage"
)

// DefaultPort is the agent port used when a node is added without one.
const DefaultPort = 30081

var (
	// ErrNotFound is returned for unknown node names.
	ErrNotFound = errors.New("node not found")
	// ErrDuplicate is returned when adding a name that is already taken.
	ErrDuplicate = errors.New("node name already registered")
	// ErrInvalid is returned for nodes missing a name or host, or with a bad port.
	ErrInvalid = errors.New("invalid node")
)

// Node is one registered agent.
type Node struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Host      string    `json:"ip"`
	Port      int       `json:"port"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists nodes in SQLite.
type Store struct {
	db          *sql.DB
	defaultPort int
	now         func() time.Time
}

// Open opens or creates the registry database at path.
func Open(ctx context.Context, path string, defaultPort int) (*Store, error) {
	db, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	return New(db, defaultPort), nil
}

// New wraps an already bootstrapped database.
func New(db *sql.DB, defaultPort int) *Store {
	if defaultPort <= 0 {
		defaultPort = DefaultPort
	}
	return &Store{db: db, defaultPort: defaultPort, now: time.Now}
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Add registers n and returns it with ID, port and creation time filled in.
func (s *Store) Add(ctx context.Context, n Node) (Node, error) {
	n.Name = strings.TrimSpace(n.Name)
	n.Host = strings.TrimSpace(n.Host)
	if n.Port == 0 {
		n.Port = s.defaultPort
	}
	if err := validate(n); err != nil {
		return Node{}, err
	}
	n.ID = uuid.NewString()
	n.CreatedAt = s.now().UTC().Truncate(time.Second)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Node{}, fmt.Errorf("begin add node: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM nodes WHERE name = ?;`, n.Name).Scan(&exists); err != nil {
		return Node{}, fmt.Errorf("check node %q: %w", n.Name, err)
	}
	if exists > 0 {
		return Node{}, fmt.Errorf("%w: %q", ErrDuplicate, n.Name)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO nodes(id, name, host, port, created_at) VALUES(?, ?, ?, ?, ?);`,
		n.ID, n.Name, n.Host, n.Port, n.CreatedAt.Format(time.RFC3339),
	); err != nil {
		return Node{}, fmt.Errorf("insert node %q: %w", n.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return Node{}, fmt.Errorf("commit add node: %w", err)
	}
	return n, nil
}

func validate(n Node) error {
	if n.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if strings.ContainsAny(n.Name, "/ \t") {
		return fmt.Errorf("%w: name %q must not contain slashes or spaces", ErrInvalid, n.Name)
	}
	if n.Host == "" {
		return fmt.Errorf("%w: ip is required", ErrInvalid)
	}
	if n.Port < 1 || n.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, n.Port)
	}
	return nil
}

// Get returns the node called name.
func (s *Store) Get(ctx context.Context, name string) (Node, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, host, port, created_at FROM nodes WHERE name = ?;`, name)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Node{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return n, err
}

// List returns every node ordered by name.
func (s *Store) List(ctx context.Context) ([]Node, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, host, port, created_at FROM nodes ORDER BY name;`)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	nodes := []Node{}
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	return nodes, nil
}

// Remove deletes the node called name.
func (s *Store) Remove(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM nodes WHERE name = ?;`, name)
	if err != nil {
		return fmt.Errorf("remove node %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove node %q: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(row scanner) (Node, error) {
	var (
		n       Node
		created string
	)
	if err := row.Scan(&n.ID, &n.Name, &n.Host, &n.Port, &created); err != nil {
		return Node{}, err
	}
	t, err := time.Parse(time.RFC3339, created)
	if err != nil {
		return Node{}, fmt.Errorf("parse created_at of %q: %w", n.Name, err)
	}
	n.CreatedAt = t
	return n, nil
}
