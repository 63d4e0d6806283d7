// Package db is chronicle's facade: it wires storage, the event log, the
// entity store, the time-travel engine and the flush coordinator into one
// handle, the way cli/root.go wires api+db+queue+security into a single
// runServer call.
package db

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/evalgo-chronicle/chronicle/commit"
	"github.com/evalgo-chronicle/chronicle/config"
	cherrors "github.com/evalgo-chronicle/chronicle/errors"
	"github.com/evalgo-chronicle/chronicle/entity"
	"github.com/evalgo-chronicle/chronicle/event"
	"github.com/evalgo-chronicle/chronicle/flush"
	"github.com/evalgo-chronicle/chronicle/obslog"
	"github.com/evalgo-chronicle/chronicle/storage"
	"github.com/evalgo-chronicle/chronicle/timetravel"
)

// Options carries the collaborators config.Config alone can't describe:
// which optional pieces to build and how.
type Options struct {
	// ReadModelCachePath opens a BoltCache at this path when non-empty;
	// the store runs cache-less otherwise.
	ReadModelCachePath string

	// EmbedRedisURL, when non-empty, wires a RedisEmbedQueue as the
	// store's EmbedDispatcher.
	EmbedRedisURL string
	EmbedQueueKey string

	// CommitIndex, when non-nil, opens a secondary commit index.
	CommitIndex *commit.IndexConfig

	Filter entity.FilterEvaluator
}

// DB is the open handle a chronicle process or cmd builds once at startup
// and passes down into every command/request.
type DB struct {
	Backend    storage.Backend
	Events     *event.Log
	Entities   *entity.Store
	TimeTravel *timetravel.Engine
	Flush      *flush.Coordinator
	Commits    *commit.Index

	cache entity.ReadModelCache
	log   *logrus.Entry
}

// Open builds every subsystem from cfg and opts. The returned DB is ready
// to accept entity operations; no background goroutine runs until the
// first Flush.Append.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*DB, error) {
	log := obslog.New(cfg.Service)

	backend, err := openBackend(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	eventLog := event.New(backend)

	var cache entity.ReadModelCache
	if opts.ReadModelCachePath != "" {
		bc, err := entity.OpenBoltCache(opts.ReadModelCachePath)
		if err != nil {
			return nil, cherrors.Wrap(cherrors.Internal, opts.ReadModelCachePath, err)
		}
		cache = bc
	}

	var embedder entity.EmbedDispatcher
	if opts.EmbedRedisURL != "" {
		q, err := entity.NewRedisEmbedQueue(ctx, opts.EmbedRedisURL, opts.EmbedQueueKey)
		if err != nil {
			return nil, cherrors.Wrap(cherrors.Internal, opts.EmbedRedisURL, err)
		}
		embedder = q
	}

	store := entity.NewStore(eventLog, cache, opts.Filter, embedder)

	tt := timetravel.New(eventLog, store)
	store.SetReplayer(tt)

	coordinator := flush.New(eventLog)

	var commits *commit.Index
	if opts.CommitIndex != nil {
		idx, err := commit.OpenIndex(ctx, *opts.CommitIndex)
		if err != nil {
			return nil, err
		}
		commits = idx
	}

	return &DB{
		Backend:    backend,
		Events:     eventLog,
		Entities:   store,
		TimeTravel: tt,
		Flush:      coordinator,
		Commits:    commits,
		cache:      cache,
		log:        log,
	}, nil
}

// Dispose flushes pending events and releases every collaborator opened
// by Open. It is safe to call even when some optional pieces were never
// configured.
func (d *DB) Dispose(ctx context.Context) error {
	var first error
	record := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	record(d.Flush.Flush(ctx))

	if closer, ok := d.cache.(interface{ Close() error }); ok && closer != nil {
		record(closer.Close())
	}
	if d.Commits != nil {
		record(d.Commits.Close())
	}

	d.log.Info("database disposed")
	return first
}

func openBackend(ctx context.Context, cfg config.StorageConfig) (storage.Backend, error) {
	switch cfg.Kind {
	case "memory":
		return storage.NewMemoryBackend(), nil
	case "local":
		return storage.NewLocalBackend(cfg.LocalPath)
	case "s3":
		return storage.NewS3Backend(ctx, storage.S3Config{
			Bucket:   cfg.S3Bucket,
			Prefix:   cfg.S3Prefix,
			Endpoint: cfg.S3Endpoint,
			Region:   cfg.S3Region,
		})
	default:
		return nil, cherrors.Newf(cherrors.Validation, "unknown storage kind %q", cfg.Kind)
	}
}
