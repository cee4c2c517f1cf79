package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
	"github.com/bandeira-tech/b3nd-sdk/pkg/record"
)

// GCSStore is a node.Node backed by a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// GCSConfig configures a GCSStore.
type GCSConfig struct {
	Bucket string
}

// NewGCSStore constructs a GCS-backed node.Node. It uses application
// default credentials.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket}, nil
}

var _ node.Node = (*GCSStore)(nil)

func (g *GCSStore) Receive(ctx context.Context, in node.ReceiveInput) node.ReceiveResult {
	if _, err := record.Parse(in.URI); err != nil {
		return node.ReceiveResult{Accepted: false, Error: node.NewError(node.KindValidation, err.Error(), err)}
	}
	dataBytes, err := json.Marshal(in.Data)
	if err != nil {
		return node.ReceiveResult{Accepted: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}

	ts := nowMillis()
	if existing := g.Read(ctx, in.URI); existing.OK && ts <= existing.Record.TS {
		ts = existing.Record.TS + 1
	}
	body, err := json.Marshal(blobRecord{TS: ts, Data: dataBytes})
	if err != nil {
		return node.ReceiveResult{Accepted: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}

	obj := g.client.Bucket(g.bucket).Object(in.URI)
	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return node.ReceiveResult{Accepted: false, Error: node.NewError(node.KindBackend, "gcs write: "+err.Error(), err)}
	}
	if err := w.Close(); err != nil {
		return node.ReceiveResult{Accepted: false, Error: node.NewError(node.KindBackend, "gcs close: "+err.Error(), err)}
	}
	return node.ReceiveResult{Accepted: true, ResolvedURI: in.URI}
}

func (g *GCSStore) Read(ctx context.Context, uri string) node.ReadResult {
	r, err := g.client.Bucket(g.bucket).Object(uri).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return node.ReadResult{OK: false, Error: node.NewError(node.KindNotFound, uri, nil)}
		}
		return node.ReadResult{OK: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return node.ReadResult{OK: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}
	var rec blobRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return node.ReadResult{OK: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}
	var data interface{}
	if err := json.Unmarshal(rec.Data, &data); err != nil {
		return node.ReadResult{OK: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}
	return node.ReadResult{OK: true, Record: record.Record{TS: rec.TS, Data: data}}
}

func (g *GCSStore) ReadMulti(ctx context.Context, uris []string) node.ReadMultiResult {
	if err := node.CheckBatchSize(uris); err != nil {
		return node.ReadMultiResult{Results: map[string]node.ReadResult{}, Summary: node.BatchSummary{Total: len(uris), Failed: len(uris)}}
	}
	results := make(map[string]node.ReadResult, len(uris))
	summary := node.BatchSummary{Total: len(uris)}
	for _, u := range uris {
		r := g.Read(ctx, u)
		results[u] = r
		if r.OK {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	return node.ReadMultiResult{Results: results, Summary: summary}
}

func (g *GCSStore) List(ctx context.Context, uri string, opts node.ListOptions) node.ListResult {
	if !strings.Contains(uri, "://") || strings.HasSuffix(uri, "://") {
		return node.ListResult{Items: []record.ListItem{}, Page: node.PageInfo{Page: opts.Page, Limit: opts.Limit}}
	}
	prefix := uri + "/"
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix, Delimiter: "/"})

	var items []record.ListItem
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return node.ListResult{Items: []record.ListItem{}, Error: node.NewError(node.KindBackend, err.Error(), err)}
		}
		if attrs.Prefix != "" {
			child := strings.TrimSuffix(attrs.Prefix, "/")
			items = append(items, record.ListItem{URI: child, Kind: record.KindDirectory})
			continue
		}
		if attrs.Name == prefix {
			continue
		}
		items = append(items, record.ListItem{URI: attrs.Name, Kind: record.KindLeaf})
	}

	if opts.Pattern != "" {
		filtered := items[:0]
		for _, i := range items {
			if strings.Contains(i.URI, opts.Pattern) {
				filtered = append(filtered, i)
			}
		}
		items = filtered
	}
	sort.Slice(items, func(i, j int) bool {
		if opts.SortOrder == node.SortDesc {
			return items[i].URI > items[j].URI
		}
		return items[i].URI < items[j].URI
	})
	return paginate(items, opts)
}

func (g *GCSStore) Delete(ctx context.Context, uri string) node.DeleteResult {
	existing := g.Read(ctx, uri)
	if !existing.OK {
		return node.DeleteResult{OK: false, Error: existing.Error}
	}
	if err := g.client.Bucket(g.bucket).Object(uri).Delete(ctx); err != nil {
		return node.DeleteResult{OK: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}
	return node.DeleteResult{OK: true}
}

func (g *GCSStore) Health(ctx context.Context) node.HealthResult {
	if _, err := g.client.Bucket(g.bucket).Attrs(ctx); err != nil {
		return node.HealthResult{Status: node.HealthUnhealthy, Info: map[string]string{"error": err.Error()}}
	}
	return node.HealthResult{Status: node.HealthHealthy}
}

func (g *GCSStore) ListPrograms(ctx context.Context) []string {
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{})
	seen := map[string]bool{}
	var programs []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return programs
		}
		u, err := record.Parse(attrs.Name)
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

func (g *GCSStore) Close() error {
	return g.client.Close()
}
