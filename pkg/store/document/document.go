// Package document implements a node.Node backend over a single bbolt
// bucket: §4.3. Keys are URIs; values are JSON-encoded
// {ts, data}. List uses a cursor.Seek prefix scan with in-application
// directory collapsing, the same scheme used by pkg/store/relational.
package document

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
	"github.com/bandeira-tech/b3nd-sdk/pkg/record"
)

var bucketName = []byte("records")

// Store is a bbolt-backed node.Node.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) a bbolt database at path and returns a Store
// with its bucket ensured.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// New wraps an already-open bbolt.DB, ensuring the bucket exists.
func New(db *bbolt.DB) (*Store, error) {
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

var _ node.Node = (*Store)(nil)

type storedRecord struct {
	TS   int64           `json:"ts"`
	Data json.RawMessage `json:"data"`
}

func (s *Store) Receive(_ context.Context, in node.ReceiveInput) node.ReceiveResult {
	if _, err := record.Parse(in.URI); err != nil {
		return node.ReceiveResult{Accepted: false, Error: node.NewError(node.KindValidation, err.Error(), err)}
	}
	dataBytes, err := json.Marshal(in.Data)
	if err != nil {
		return node.ReceiveResult{Accepted: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}

	var ts int64
	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		ts = nextTS(b, in.URI)
		encoded, err := json.Marshal(storedRecord{TS: ts, Data: dataBytes})
		if err != nil {
			return err
		}
		return b.Put([]byte(in.URI), encoded)
	})
	if err != nil {
		return node.ReceiveResult{Accepted: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}
	return node.ReceiveResult{Accepted: true, ResolvedURI: in.URI}
}

func nextTS(b *bbolt.Bucket, uri string) int64 {
	existing := b.Get([]byte(uri))
	var prevTS int64
	if existing != nil {
		var rec storedRecord
		if json.Unmarshal(existing, &rec) == nil {
			prevTS = rec.TS
		}
	}
	now := nowMillis()
	if now <= prevTS {
		return prevTS + 1
	}
	return now
}

func (s *Store) Read(_ context.Context, uri string) node.ReadResult {
	var result node.ReadResult
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		raw := b.Get([]byte(uri))
		if raw == nil {
			result = node.ReadResult{OK: false, Error: node.NewError(node.KindNotFound, uri, nil)}
			return nil
		}
		var rec storedRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		var data interface{}
		if err := json.Unmarshal(rec.Data, &data); err != nil {
			return err
		}
		result = node.ReadResult{OK: true, Record: record.Record{TS: rec.TS, Data: data}}
		return nil
	})
	if err != nil {
		return node.ReadResult{OK: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}
	return result
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

func (s *Store) List(_ context.Context, uri string, opts node.ListOptions) node.ListResult {
	if !strings.Contains(uri, "://") || strings.HasSuffix(uri, "://") {
		return node.ListResult{Items: []record.ListItem{}, Page: node.PageInfo{Page: opts.Page, Limit: opts.Limit}}
	}
	prefix := []byte(uri + "/")
	kinds := map[string]record.Kind{}

	_ = s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			remainder := strings.TrimPrefix(string(k), uri+"/")
			seg, hasMore := record.FirstSegment(remainder)
			if seg == "" {
				continue
			}
			child := uri + "/" + seg
			if hasMore {
				kinds[child] = record.KindDirectory
			} else if _, exists := kinds[child]; !exists {
				kinds[child] = record.KindLeaf
			}
		}
		return nil
	})

	items := make([]record.ListItem, 0, len(kinds))
	for u, k := range kinds {
		if opts.Pattern != "" && !strings.Contains(u, opts.Pattern) {
			continue
		}
		items = append(items, record.ListItem{URI: u, Kind: k})
	}
	sort.Slice(items, func(i, j int) bool {
		if opts.SortOrder == node.SortDesc {
			return items[i].URI > items[j].URI
		}
		return items[i].URI < items[j].URI
	})
	return paginate(items, opts)
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

func (s *Store) Delete(_ context.Context, uri string) node.DeleteResult {
	var found bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b.Get([]byte(uri)) == nil {
			return nil
		}
		found = true
		return b.Delete([]byte(uri))
	})
	if err != nil {
		return node.DeleteResult{OK: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}
	if !found {
		return node.DeleteResult{OK: false, Error: node.NewError(node.KindNotFound, uri, nil)}
	}
	return node.DeleteResult{OK: true}
}

func (s *Store) Health(context.Context) node.HealthResult {
	return node.HealthResult{Status: node.HealthHealthy, Info: map[string]string{"path": s.db.Path()}}
}

func (s *Store) ListPrograms(context.Context) []string {
	seen := map[string]bool{}
	var programs []string
	_ = s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			u, err := record.Parse(string(k))
			if err != nil {
				continue
			}
			pk := u.ProgramKey()
			if !seen[pk] {
				seen[pk] = true
				programs = append(programs, pk)
			}
		}
		return nil
	})
	sort.Strings(programs)
	return programs
}

func (s *Store) Close() error {
	return s.db.Close()
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
