// Package memory implements an in-process node.Node backend: a map from
// URI to record, with list served by a linear prefix scan and then
// sorted: §4.3.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
	"github.com/bandeira-tech/b3nd-sdk/pkg/record"
)

// Store is a concurrency-safe, in-memory node.Node. Zero value is not
// usable; construct with New.
type Store struct {
	mu      sync.RWMutex
	records map[string]record.Record
	lastTS  int64
}

// New returns an empty Store.
func New() *Store {
	return &Store{records: map[string]record.Record{}}
}

var _ node.Node = (*Store)(nil)

func (s *Store) Receive(_ context.Context, in node.ReceiveInput) node.ReceiveResult {
	if _, err := record.Parse(in.URI); err != nil {
		return node.ReceiveResult{Accepted: false, Error: node.NewError(node.KindValidation, err.Error(), err)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := nowMillis()
	if ts <= s.lastTS {
		ts = s.lastTS + 1
	}
	s.lastTS = ts
	s.records[in.URI] = record.Record{TS: ts, Data: in.Data}
	return node.ReceiveResult{Accepted: true, ResolvedURI: in.URI}
}

func (s *Store) Read(_ context.Context, uri string) node.ReadResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[uri]
	if !ok {
		return node.ReadResult{OK: false, Error: node.NewError(node.KindNotFound, uri, nil)}
	}
	return node.ReadResult{OK: true, Record: r}
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
	prefix := uri + "/"

	s.mu.RLock()
	kinds := map[string]record.Kind{}
	for k := range s.records {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		remainder := k[len(prefix):]
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
	s.mu.RUnlock()

	items := make([]record.ListItem, 0, len(kinds))
	for u, k := range kinds {
		if opts.Pattern != "" && !strings.Contains(u, opts.Pattern) {
			continue
		}
		items = append(items, record.ListItem{URI: u, Kind: k})
	}

	s.sortItems(items, opts)
	return paginate(items, opts)
}

func (s *Store) sortItems(items []record.ListItem, opts node.ListOptions) {
	less := func(i, j int) bool {
		a, b := items[i], items[j]
		switch opts.SortBy {
		case node.SortByTS:
			ta, tb := s.tsOf(a.URI), s.tsOf(b.URI)
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
	}
	sort.Slice(items, less)
}

func (s *Store) tsOf(uri string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[uri].TS
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
	return node.ListResult{
		Items: items[start:end],
		Page:  node.PageInfo{Page: page, Limit: limit, Total: total},
	}
}

func (s *Store) Delete(_ context.Context, uri string) node.DeleteResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[uri]; !ok {
		return node.DeleteResult{OK: false, Error: node.NewError(node.KindNotFound, uri, nil)}
	}
	delete(s.records, uri)
	return node.DeleteResult{OK: true}
}

func (s *Store) Health(context.Context) node.HealthResult {
	return node.HealthResult{Status: node.HealthHealthy}
}

func (s *Store) ListPrograms(context.Context) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]bool{}
	var programs []string
	for k := range s.records {
		u, err := record.Parse(k)
		if err != nil {
			continue
		}
		pk := u.ProgramKey()
		if !seen[pk] {
			seen[pk] = true
			programs = append(programs, pk)
		}
	}
	sort.Strings(programs)
	return programs
}

func (s *Store) Close() error { return nil }

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
