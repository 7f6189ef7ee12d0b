// Package sqlite is the on-disk vector store. Documents live in a single
// table; similarity is computed in process over the filtered rows.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"reviewrag/internal/adapter/sqlite/migrations"
	"reviewrag/internal/vector"
)

const dbFile = "vectors.db"

var filterColumns = map[string]string{
	vector.KeyProductID:   "product_id",
	vector.KeyType:        "type",
	vector.KeyProductName: "product_name",
	vector.KeyCategory:    "category",
}

type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the store under dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	dbPath := filepath.Join(dir, dbFile)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Path() string { return s.path }

func (s *Store) migrate(fsys fs.FS) error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// Upsert writes all documents in one transaction. The last write for an id
// wins.
func (s *Store) Upsert(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (id, product_id, type, product_name, category, text, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			product_id = excluded.product_id,
			type = excluded.type,
			product_name = excluded.product_name,
			category = excluded.category,
			text = excluded.text,
			embedding = excluded.embedding,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("upsert: document id is empty")
		}
		md := d.Metadata
		if _, err := stmt.ExecContext(ctx, d.ID, md.ProductID, md.Type, md.ProductName, md.Category,
			d.Text, float32SliceToBytes(d.Embedding)); err != nil {
			return fmt.Errorf("upsert %s: %w", d.ID, err)
		}
	}

	return tx.Commit()
}

// Query ranks the documents matching filter by cosine distance to embedding
// and returns at most topK of them.
func (s *Store) Query(ctx context.Context, embedding []float32, topK int, filter vector.Filter) ([]vector.Match, error) {
	if topK <= 0 {
		return []vector.Match{}, nil
	}

	where, args, err := whereClause(filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, product_id, type, product_name, category, text, embedding FROM documents"+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	matches := []vector.Match{}
	for rows.Next() {
		var (
			m    vector.Match
			blob []byte
		)
		if err := rows.Scan(&m.ID, &m.Metadata.ProductID, &m.Metadata.Type, &m.Metadata.ProductName,
			&m.Metadata.Category, &m.Text, &blob); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		m.Distance = vector.CosineDistance(embedding, bytesToFloat32Slice(blob))
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	vector.SortMatches(matches)
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// GetAll returns the metadata of every document in insertion order.
func (s *Store) GetAll(ctx context.Context) ([]vector.Metadata, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT product_id, type, product_name, category FROM documents ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("list metadata: %w", err)
	}
	defer rows.Close()

	out := []vector.Metadata{}
	for rows.Next() {
		var md vector.Metadata
		if err := rows.Scan(&md.ProductID, &md.Type, &md.ProductName, &md.Category); err != nil {
			return nil, err
		}
		out = append(out, md)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, filter vector.Filter) ([]vector.Record, error) {
	where, args, err := whereClause(filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, product_id, type, product_name, category, text FROM documents"+where+" ORDER BY rowid", args...)
	if err != nil {
		return nil, fmt.Errorf("get documents: %w", err)
	}
	defer rows.Close()

	out := []vector.Record{}
	for rows.Next() {
		var r vector.Record
		if err := rows.Scan(&r.ID, &r.Metadata.ProductID, &r.Metadata.Type, &r.Metadata.ProductName,
			&r.Metadata.Category, &r.Text); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteExcept removes the product's documents whose ids are not in keep.
func (s *Store) DeleteExcept(ctx context.Context, productID string, keep []string) error {
	query := "DELETE FROM documents WHERE product_id = ?"
	args := []any{productID}
	if len(keep) > 0 {
		query += " AND id NOT IN (" + strings.TrimSuffix(strings.Repeat("?,", len(keep)), ",") + ")"
		for _, id := range keep {
			args = append(args, id)
		}
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete stale documents: %w", err)
	}
	return nil
}

func whereClause(filter vector.Filter) (string, []any, error) {
	if err := filter.Validate(); err != nil {
		return "", nil, err
	}
	if len(filter) == 0 {
		return "", nil, nil
	}

	var (
		conds []string
		args  []any
	)
	for _, k := range filter.Keys() {
		conds = append(conds, filterColumns[k]+" = ?")
		args = append(args, filter[k])
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
