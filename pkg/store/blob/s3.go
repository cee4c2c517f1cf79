// Package blob implements node.Node backends over object storage (S3 and
// GCS), enrichment beyond the distilled spec's storage-backend list: a
// URI is stored as an object whose key is the URI itself, letting each
// provider's native prefix+delimiter listing do the directory
// collapsing that pkg/store/memory and pkg/store/relational otherwise
// compute in application code.
package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
	"github.com/bandeira-tech/b3nd-sdk/pkg/record"
)

// S3Store is a node.Node backed by an S3 (or S3-compatible) bucket.
type S3Store struct {
	client *s3.Client
	bucket string
}

// S3Config configures an S3Store.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string // optional custom endpoint (MinIO, LocalStack)
}

// NewS3Store constructs an S3-backed node.Node.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

var _ node.Node = (*S3Store)(nil)

type blobRecord struct {
	TS   int64           `json:"ts"`
	Data json.RawMessage `json:"data"`
}

func (s *S3Store) Receive(ctx context.Context, in node.ReceiveInput) node.ReceiveResult {
	if _, err := record.Parse(in.URI); err != nil {
		return node.ReceiveResult{Accepted: false, Error: node.NewError(node.KindValidation, err.Error(), err)}
	}
	dataBytes, err := json.Marshal(in.Data)
	if err != nil {
		return node.ReceiveResult{Accepted: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}
	ts, err := currentTS(ctx, s, in.URI)
	if err != nil {
		return node.ReceiveResult{Accepted: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}
	body, err := json.Marshal(blobRecord{TS: ts, Data: dataBytes})
	if err != nil {
		return node.ReceiveResult{Accepted: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(in.URI),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return node.ReceiveResult{Accepted: false, Error: node.NewError(node.KindBackend, "s3 put: "+err.Error(), err)}
	}
	return node.ReceiveResult{Accepted: true, ResolvedURI: in.URI}
}

// currentTS reads the existing record (if any) to keep per-URI
// monotonicity across overwrites, the same invariant pkg/store/memory
// and pkg/store/document enforce.
func currentTS(ctx context.Context, s *S3Store, uri string) (int64, error) {
	existing := s.Read(ctx, uri)
	now := nowMillis()
	if existing.OK && now <= existing.Record.TS {
		return existing.Record.TS + 1, nil
	}
	return now, nil
}

func (s *S3Store) Read(ctx context.Context, uri string) node.ReadResult {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(uri),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return node.ReadResult{OK: false, Error: node.NewError(node.KindNotFound, uri, nil)}
		}
		return node.ReadResult{OK: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}
	defer out.Body.Close()

	var rec blobRecord
	if err := json.NewDecoder(out.Body).Decode(&rec); err != nil {
		return node.ReadResult{OK: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}
	var data interface{}
	if err := json.Unmarshal(rec.Data, &data); err != nil {
		return node.ReadResult{OK: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}
	return node.ReadResult{OK: true, Record: record.Record{TS: rec.TS, Data: data}}
}

func (s *S3Store) ReadMulti(ctx context.Context, uris []string) node.ReadMultiResult {
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

func (s *S3Store) List(ctx context.Context, uri string, opts node.ListOptions) node.ListResult {
	if !strings.Contains(uri, "://") || strings.HasSuffix(uri, "://") {
		return node.ListResult{Items: []record.ListItem{}, Page: node.PageInfo{Page: opts.Page, Limit: opts.Limit}}
	}
	prefix := uri + "/"
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	if err != nil {
		return node.ListResult{Items: []record.ListItem{}, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}

	var items []record.ListItem
	for _, p := range out.CommonPrefixes {
		child := strings.TrimSuffix(aws.ToString(p.Prefix), "/")
		items = append(items, record.ListItem{URI: child, Kind: record.KindDirectory})
	}
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		if key == prefix {
			continue
		}
		items = append(items, record.ListItem{URI: key, Kind: record.KindLeaf})
	}

	if opts.Pattern != "" {
		filtered := items[:0]
		for _, it := range items {
			if strings.Contains(it.URI, opts.Pattern) {
				filtered = append(filtered, it)
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

func (s *S3Store) Delete(ctx context.Context, uri string) node.DeleteResult {
	existing := s.Read(ctx, uri)
	if !existing.OK {
		return node.DeleteResult{OK: false, Error: existing.Error}
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(uri),
	})
	if err != nil {
		return node.DeleteResult{OK: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}
	return node.DeleteResult{OK: true}
}

func (s *S3Store) Health(ctx context.Context) node.HealthResult {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return node.HealthResult{Status: node.HealthUnhealthy, Info: map[string]string{"error": err.Error()}}
	}
	return node.HealthResult{Status: node.HealthHealthy}
}

func (s *S3Store) ListPrograms(ctx context.Context) []string {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)})
	if err != nil {
		return nil
	}
	seen := map[string]bool{}
	var programs []string
	for _, obj := range out.Contents {
		u, err := record.Parse(aws.ToString(obj.Key))
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

func (s *S3Store) Close() error { return nil }
