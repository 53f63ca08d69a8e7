// Package testutil provides an in-memory stand-in for the postgres state
// table used by the document store tests.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

var driverSeq atomic.Int64

// StubConn keeps the state table as bucket payloads. Upserts made inside a
// transaction only land on Commit.
type StubConn struct {
	mu      sync.Mutex
	Execs   []string
	State   map[string][]byte
	pending map[string][]byte
	inTx    bool

	FailExec   bool
	FailBegin  bool
	FailCommit bool
	FailQuery  bool
}

// NewStubDB registers a uniquely named driver over a fresh StubConn and opens it.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{State: make(map[string][]byte)}
	name := fmt.Sprintf("alignercore-stubpg-%d", driverSeq.Add(1))
	sql.Register(name, stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// Payload returns the committed payload of bucket.
func (c *StubConn) Payload(bucket string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.State[bucket]
	return p, ok
}

type stubDriver struct {
	conn *StubConn
}

func (d stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

// Prepare implements driver.Conn. Every statement goes through the context
// fast paths instead.
func (c *StubConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("stub: prepare not supported: %s", query)
}

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	if c.FailExec {
		return fmt.Errorf("stub: ping failed")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailBegin {
		return nil, fmt.Errorf("stub: begin failed")
	}
	c.inTx = true
	c.pending = make(map[string][]byte)
	return stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext. Only upserts into state change
// anything; DDL is recorded and accepted.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("stub: exec failed")
	}
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "INSERT INTO STATE") {
		return driver.RowsAffected(0), nil
	}
	if len(args) != 2 {
		return nil, fmt.Errorf("stub: upsert wants bucket and payload, got %d args", len(args))
	}
	bucket := fmt.Sprint(args[0].Value)
	payload := append([]byte(nil), asBytes(args[1].Value)...)
	if c.inTx {
		c.pending[bucket] = payload
	} else {
		c.State[bucket] = payload
	}
	return driver.RowsAffected(1), nil
}

// QueryContext implements driver.QueryerContext for the two state reads: the
// full table and a single bucket's payload.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailQuery {
		return nil, fmt.Errorf("stub: query failed")
	}
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	switch {
	case normalized == "select bucket, payload from state":
		buckets := make([]string, 0, len(c.State))
		for b := range c.State {
			buckets = append(buckets, b)
		}
		sort.Strings(buckets)
		rows := &stubRows{cols: []string{"bucket", "payload"}}
		for _, b := range buckets {
			rows.rows = append(rows.rows, []driver.Value{b, c.State[b]})
		}
		return rows, nil
	case strings.HasPrefix(normalized, "select payload from state where bucket ="):
		if len(args) != 1 {
			return nil, fmt.Errorf("stub: bucket lookup wants one arg")
		}
		rows := &stubRows{cols: []string{"payload"}}
		if p, ok := c.State[fmt.Sprint(args[0].Value)]; ok {
			rows.rows = append(rows.rows, []driver.Value{p})
		}
		return rows, nil
	}
	return nil, fmt.Errorf("stub: unsupported query: %s", query)
}

func asBytes(v driver.Value) []byte {
	switch p := v.(type) {
	case []byte:
		return p
	case string:
		return []byte(p)
	}
	return []byte(fmt.Sprint(v))
}

type stubTx struct {
	conn *StubConn
}

func (t stubTx) Commit() error {
	c := t.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.endTx()
	if c.FailCommit {
		return fmt.Errorf("stub: commit failed")
	}
	for b, p := range c.pending {
		c.State[b] = p
	}
	return nil
}

func (t stubTx) Rollback() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	t.conn.endTx()
	return nil
}

func (c *StubConn) endTx() {
	c.inTx = false
	c.pending = nil
}

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}
