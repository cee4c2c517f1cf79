// Package bootstrap wires a node.Node stack from configuration, shared
// by cmd/node-server and cmd/nodectl's embedded "node" subcommand so
// the two binaries agree on exactly what BACKEND_URL and SCHEMA_MODULE
// mean.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/bandeira-tech/b3nd-sdk/pkg/compose"
	"github.com/bandeira-tech/b3nd-sdk/pkg/config"
	"github.com/bandeira-tech/b3nd-sdk/pkg/envelope"
	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
	"github.com/bandeira-tech/b3nd-sdk/pkg/schema"
	"github.com/bandeira-tech/b3nd-sdk/pkg/store/blob"
	"github.com/bandeira-tech/b3nd-sdk/pkg/store/document"
	"github.com/bandeira-tech/b3nd-sdk/pkg/store/httpremote"
	"github.com/bandeira-tech/b3nd-sdk/pkg/store/memory"
	"github.com/bandeira-tech/b3nd-sdk/pkg/store/relational"
	"github.com/bandeira-tech/b3nd-sdk/pkg/store/wsremote"
	"github.com/bandeira-tech/b3nd-sdk/pkg/validated"
)

// BuildBackend turns cfg.BackendURL into a single node.Node. A single
// spec is used directly; multiple specs are combined into a
// parallel-broadcast write side over a first-match read side (§4.4).
func BuildBackend(ctx context.Context, cfg *config.Config) (node.Node, error) {
	specs := config.ParseBackendURLs(cfg.BackendURL)
	peers := make([]node.Node, 0, len(specs))
	for _, spec := range specs {
		peer, err := buildOne(ctx, cfg, spec)
		if err != nil {
			return nil, fmt.Errorf("backend %q: %w", spec.Raw, err)
		}
		peers = append(peers, peer)
	}
	if len(peers) == 1 {
		return peers[0], nil
	}
	return &compose.Split{
		Write:  compose.NewBroadcast(peers...),
		Reader: compose.NewFirstMatch(peers...),
	}, nil
}

func buildOne(ctx context.Context, cfg *config.Config, spec config.BackendSpec) (node.Node, error) {
	switch spec.Kind {
	case "memory":
		return memory.New(), nil
	case "postgres":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			return nil, err
		}
		return relational.NewPostgres(db), nil
	case "sqlite":
		db, err := sql.Open("sqlite", cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return relational.NewSQLite(db), nil
	case "bolt":
		db, err := bbolt.Open(cfg.BoltPath, 0o600, nil)
		if err != nil {
			return nil, err
		}
		return document.New(db)
	case "s3":
		return blob.NewS3Store(ctx, blob.S3Config{Bucket: cfg.S3Bucket})
	case "gcs":
		return blob.NewGCSStore(ctx, blob.GCSConfig{Bucket: cfg.GCSBucket})
	case "http", "https":
		return httpremote.New(spec.Raw, "/api/v1"), nil
	case "ws", "wss":
		return wsremote.Dial(spec.Raw, wsremote.WithReconnect(30*time.Second))
	default:
		return nil, fmt.Errorf("unknown backend kind %q", spec.Kind)
	}
}

// BuildRegistry loads cfg.SchemaModule if set, otherwise returns an
// empty registry (every write fails no-schema until one is registered).
func BuildRegistry(cfg *config.Config) (*schema.Registry, error) {
	if cfg.SchemaModule == "" {
		return schema.NewRegistry(), nil
	}
	return config.LoadSchemaModule(cfg.SchemaModule)
}

// BuildValidatedBackend composes BuildBackend and BuildRegistry into the
// validated.Client every node-server installation runs behind. The
// backend is wrapped in envelope.Client and that in validated.Client,
// so validation runs first, on the incoming write as given; once it is
// accepted, a batch write lands as a hash-addressed envelope record
// with its outputs unpacked to their own URIs.
func BuildValidatedBackend(ctx context.Context, cfg *config.Config) (node.Node, error) {
	backend, err := BuildBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	registry, err := BuildRegistry(cfg)
	if err != nil {
		return nil, err
	}
	return validated.New(envelope.New(backend), registry), nil
}
