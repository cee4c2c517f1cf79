// Package relational implements a node.Node backend over a SQL table,
// with Postgres and SQLite dialects: §4.3. Both share one
// read/prefix-scan/delete implementation over database/sql; placeholder
// style, the upsert statement and schema DDL differ per dialect.
package relational

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
	"github.com/bandeira-tech/b3nd-sdk/pkg/record"
)

// Dialect captures the SQL differences between backends: placeholder
// syntax and upsert clause. Postgres and SQLite are the two concrete
// dialects in use; both speak database/sql so the rest of Store is
// shared.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

// Store is a relational node.Node backend: single table
// {uri primary key, data, ts, created_at, updated_at}.
type Store struct {
	db      *sql.DB
	dialect Dialect
	table   string
}

// NewPostgres wraps db (opened with lib/pq) as a node.Node. Init must be
// called once to create the schema.
func NewPostgres(db *sql.DB) *Store {
	return &Store{db: db, dialect: Postgres, table: "records"}
}

// NewSQLite wraps db (opened with modernc.org/sqlite) as a node.Node.
// Init must be called once to create the schema.
func NewSQLite(db *sql.DB) *Store {
	return &Store{db: db, dialect: SQLite, table: "records"}
}

var _ node.Node = (*Store)(nil)

// Init creates the backing table if it does not already exist.
func (s *Store) Init(ctx context.Context) error {
	var ddl string
	switch s.dialect {
	case Postgres:
		ddl = `
CREATE TABLE IF NOT EXISTS records (
	uri TEXT PRIMARY KEY,
	data JSONB NOT NULL,
	ts BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS records_uri_prefix_idx ON records (uri text_pattern_ops);
`
	default:
		ddl = `
CREATE TABLE IF NOT EXISTS records (
	uri TEXT PRIMARY KEY,
	data TEXT NOT NULL,
	ts INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS records_uri_prefix_idx ON records (uri);
`
	}
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) ph(n int) string {
	if s.dialect == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (s *Store) Receive(ctx context.Context, in node.ReceiveInput) node.ReceiveResult {
	if _, err := record.Parse(in.URI); err != nil {
		return node.ReceiveResult{Accepted: false, Error: node.NewError(node.KindValidation, err.Error(), err)}
	}
	payload, err := json.Marshal(in.Data)
	if err != nil {
		return node.ReceiveResult{Accepted: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}
	ts := time.Now().UnixMilli()

	var execErr error
	switch s.dialect {
	case Postgres:
		query := fmt.Sprintf(`
INSERT INTO records (uri, data, ts, created_at, updated_at)
VALUES (%s, %s, %s, now(), now())
ON CONFLICT (uri) DO UPDATE SET data = EXCLUDED.data, ts = EXCLUDED.ts, updated_at = now()`,
			s.ph(1), s.ph(2), s.ph(3))
		_, execErr = s.db.ExecContext(ctx, query, in.URI, string(payload), ts)
	default:
		now := time.Now().Unix()
		query := `
INSERT INTO records (uri, data, ts, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (uri) DO UPDATE SET data = excluded.data, ts = excluded.ts, updated_at = excluded.updated_at`
		_, execErr = s.db.ExecContext(ctx, query, in.URI, string(payload), ts, now, now)
	}
	if execErr != nil {
		return node.ReceiveResult{Accepted: false, Error: node.NewError(node.KindBackend, execErr.Error(), execErr)}
	}
	return node.ReceiveResult{Accepted: true, ResolvedURI: in.URI}
}

func (s *Store) Read(ctx context.Context, uri string) node.ReadResult {
	query := fmt.Sprintf(`SELECT data, ts FROM records WHERE uri = %s`, s.ph(1))
	var data string
	var ts int64
	err := s.db.QueryRowContext(ctx, query, uri).Scan(&data, &ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return node.ReadResult{OK: false, Error: node.NewError(node.KindNotFound, uri, nil)}
		}
		return node.ReadResult{OK: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}
	value, err := decodeJSON(data)
	if err != nil {
		return node.ReadResult{OK: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}
	return node.ReadResult{OK: true, Record: record.Record{TS: ts, Data: value}}
}

func (s *Store) ReadMulti(ctx context.Context, uris []string) node.ReadMultiResult {
	if err := node.CheckBatchSize(uris); err != nil {
		return node.ReadMultiResult{Results: map[string]node.ReadResult{}, Summary: node.BatchSummary{Total: len(uris), Failed: len(uris)}}
	}
	results := make(map[string]node.ReadResult, len(uris))
	summary := node.BatchSummary{Total: len(uris)}
	for _, u := range uris {
		r := s.Read(ctx, u)
		results[u] = r
		if r.OK {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	return node.ReadMultiResult{Results: results, Summary: summary}
}

func (s *Store) List(ctx context.Context, uri string, opts node.ListOptions) node.ListResult {
	if !strings.Contains(uri, "://") || strings.HasSuffix(uri, "://") {
		return node.ListResult{Items: []record.ListItem{}, Page: node.PageInfo{Page: opts.Page, Limit: opts.Limit}}
	}
	prefix := uri + "/"
	query := fmt.Sprintf(`SELECT uri, ts FROM records WHERE uri LIKE %s`, s.ph(1))
	rows, err := s.db.QueryContext(ctx, query, escapeLike(prefix)+"%")
	if err != nil {
		return node.ListResult{Items: []record.ListItem{}, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}
	defer rows.Close()

	kinds := map[string]record.Kind{}
	tsByURI := map[string]int64{}
	for rows.Next() {
		var u string
		var ts int64
		if err := rows.Scan(&u, &ts); err != nil {
			return node.ListResult{Items: []record.ListItem{}, Error: node.NewError(node.KindBackend, err.Error(), err)}
		}
		remainder := strings.TrimPrefix(u, prefix)
		seg, hasMore := record.FirstSegment(remainder)
		if seg == "" {
			continue
		}
		child := uri + "/" + seg
		tsByURI[child] = ts
		if hasMore {
			kinds[child] = record.KindDirectory
		} else if _, exists := kinds[child]; !exists {
			kinds[child] = record.KindLeaf
		}
	}

	items := make([]record.ListItem, 0, len(kinds))
	for u, k := range kinds {
		if opts.Pattern != "" && !strings.Contains(u, opts.Pattern) {
			continue
		}
		items = append(items, record.ListItem{URI: u, Kind: k})
	}
	sortItems(items, opts, tsByURI)
	return paginate(items, opts)
}

func sortItems(items []record.ListItem, opts node.ListOptions, tsByURI map[string]int64) {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch opts.SortBy {
		case node.SortByTS:
			ta, tb := tsByURI[a.URI], tsByURI[b.URI]
			if ta != tb {
				if opts.SortOrder == node.SortDesc {
					return ta > tb
				}
				return ta < tb
			}
			return a.URI < b.URI
		default:
			if opts.SortOrder == node.SortDesc {
				return a.URI > b.URI
			}
			return a.URI < b.URI
		}
	})
}

func paginate(items []record.ListItem, opts node.ListOptions) node.ListResult {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = node.DefaultListOptions().Limit
	}
	total := len(items)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return node.ListResult{Items: items[start:end], Page: node.PageInfo{Page: page, Limit: limit, Total: total}}
}

func (s *Store) Delete(ctx context.Context, uri string) node.DeleteResult {
	query := fmt.Sprintf(`DELETE FROM records WHERE uri = %s`, s.ph(1))
	res, err := s.db.ExecContext(ctx, query, uri)
	if err != nil {
		return node.DeleteResult{OK: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return node.DeleteResult{OK: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}
	if n == 0 {
		return node.DeleteResult{OK: false, Error: node.NewError(node.KindNotFound, uri, nil)}
	}
	return node.DeleteResult{OK: true}
}

func (s *Store) Health(ctx context.Context) node.HealthResult {
	if err := s.db.PingContext(ctx); err != nil {
		return node.HealthResult{Status: node.HealthUnhealthy, Info: map[string]string{"error": err.Error()}}
	}
	return node.HealthResult{Status: node.HealthHealthy}
}

func (s *Store) ListPrograms(ctx context.Context) []string {
	rows, err := s.db.QueryContext(ctx, `SELECT uri FROM records`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	seen := map[string]bool{}
	var programs []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			continue
		}
		parsed, err := record.Parse(u)
		if err != nil {
			continue
		}
		pk := parsed.ProgramKey()
		if !seen[pk] {
			seen[pk] = true
			programs = append(programs, pk)
		}
	}
	sort.Strings(programs)
	return programs
}

func (s *Store) Close() error {
	return s.db.Close()
}

func decodeJSON(data string) (interface{}, error) {
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "%", "\\%", "_", "\\_")
	return r.Replace(s)
}
