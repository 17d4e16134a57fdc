// Package sqlitecas stores blocks in a single SQLite database file.
//
// It uses the pure-Go modernc.org/sqlite driver.
package sqlitecas

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	_ "modernc.org/sqlite"

	"xdao.co/xdoc/cidutil"
	"xdao.co/xdoc/storage"
)

const schema = `CREATE TABLE IF NOT EXISTS blocks (
	cid  TEXT PRIMARY KEY,
	data BLOB NOT NULL
)`

// CAS is a SQLite-backed content-addressable store. It is safe for
// concurrent use; database/sql pools the connections.
type CAS struct {
	db *sql.DB
}

var _ storage.CAS = (*CAS)(nil)

// Open opens (creating if needed) the database at path. Use ":memory:" for
// a private in-memory database.
func Open(path string) (*CAS, error) {
	if path == "" {
		return nil, errors.New("sqlitecas: database path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	return &CAS{db: db}, nil
}

// Close closes the database connection.
func (c *CAS) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *CAS) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	id, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		return cid.Undef, err
	}
	if data == nil {
		data = []byte{}
	}

	res, err := c.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO blocks (cid, data) VALUES (?, ?)",
		id.String(), data,
	)
	if err != nil {
		return cid.Undef, fmt.Errorf("saving block: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return cid.Undef, err
	}
	if n == 0 {
		existing, err := c.Get(ctx, id)
		if err != nil || !bytes.Equal(existing, data) {
			return cid.Undef, storage.ErrImmutable
		}
	}
	return id, nil
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	var data []byte
	err := c.db.QueryRowContext(ctx, "SELECT data FROM blocks WHERE cid = ?", id.String()).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("querying block: %w", err)
	}
	ok, err := cidutil.Verify(id, data)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storage.ErrCIDMismatch
	}
	return data, nil
}

func (c *CAS) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if !id.Defined() {
		return false, nil
	}
	var one int
	err := c.db.QueryRowContext(ctx, "SELECT 1 FROM blocks WHERE cid = ?", id.String()).Scan(&one)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	default:
		return false, fmt.Errorf("querying block: %w", err)
	}
}

// Count returns the number of stored blocks.
func (c *CAS) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM blocks").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting blocks: %w", err)
	}
	return n, nil
}
