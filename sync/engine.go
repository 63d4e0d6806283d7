// Package sync implements the bidirectional sync engine (C7): a lock
// protocol guarding concurrent pushes/pulls against the same database, a
// pure manifest diff, and push/pull/sync operations that carry the diff's
// resolutions out to storage with progress reporting.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	cherrors "github.com/evalgo-chronicle/chronicle/errors"
	"github.com/evalgo-chronicle/chronicle/manifest"
	"github.com/evalgo-chronicle/chronicle/storage"
)

const manifestPath = "_meta/manifest.json"

// ConflictStrategy selects how Sync resolves manifest.Diff's Conflicts set
// (paths where hashes differ and neither side's ModifiedAt is strictly
// later than the other's).
type ConflictStrategy string

const (
	LocalWins  ConflictStrategy = "local-wins"
	RemoteWins ConflictStrategy = "remote-wins"
	Newest     ConflictStrategy = "newest"
	Manual     ConflictStrategy = "manual"
)

// FileError records one path's failure during an upload/download pass.
type FileError struct {
	Path      string
	Operation string
	Err       error
}

// Result is the outcome of a Push, Pull, or Sync call.
type Result struct {
	Success          bool
	DryRun           bool
	Diff             manifest.DiffResult
	Uploaded         []string
	Downloaded       []string
	ConflictsPending []string
	Errors           []FileError
	Manifest         manifest.Manifest
}

// Engine drives sync operations between a local and a remote backend for
// one database.
type Engine struct {
	Local       storage.Backend
	Remote      storage.Backend
	DatabaseID  string
	Name        string
	Visibility  string
	OwnerID     string
	LockTimeout time.Duration
	Recorder    *StateRecorder // optional
}

// New builds an Engine with the spec's default 30s lock timeout.
func New(local, remote storage.Backend, databaseID, ownerID string) *Engine {
	return &Engine{
		Local:       local,
		Remote:      remote,
		DatabaseID:  databaseID,
		OwnerID:     ownerID,
		LockTimeout: 30 * time.Second,
	}
}

// PushOptions configures Push.
type PushOptions struct {
	DryRun   bool
	Progress ProgressFunc
}

// PullOptions configures Pull.
type PullOptions struct {
	DryRun   bool
	Progress ProgressFunc
}

// SyncOptions configures Sync.
type SyncOptions struct {
	Strategy ConflictStrategy
	DryRun   bool
	Progress ProgressFunc
}

// Push uploads every locally-newer or local-only file to the remote.
func (e *Engine) Push(ctx context.Context, opts PushOptions) (Result, error) {
	return e.run(ctx, "push", func(ctx context.Context, d manifest.DiffResult) (toUpload, toDownload, pending []string) {
		return d.ToUpload, nil, d.Conflicts
	}, opts.DryRun, opts.Progress)
}

// Pull downloads every remotely-newer or remote-only file. If the remote
// has no manifest yet, Pull reports failure without acquiring locks or
// raising a Go error, matching the "nothing to pull from" case.
func (e *Engine) Pull(ctx context.Context, opts PullOptions) (Result, error) {
	st, err := e.Remote.Stat(ctx, manifestPath)
	if err != nil {
		return Result{}, err
	}
	if st == nil {
		notFound := cherrors.WithPath(cherrors.NotFound, manifestPath, "remote has no manifest to pull from")
		return Result{Success: false, Errors: []FileError{{Path: manifestPath, Operation: "pull", Err: notFound}}}, nil
	}
	return e.run(ctx, "pull", func(ctx context.Context, d manifest.DiffResult) (toUpload, toDownload, pending []string) {
		return nil, d.ToDownload, d.Conflicts
	}, opts.DryRun, opts.Progress)
}

// Sync reconciles both sides, resolving Conflicts per strategy:
//   - local-wins / remote-wins: the losing side's conflicting paths move
//     into the winning side's transfer lane.
//   - newest / manual: Diff already resolved every non-tied difference by
//     timestamp, so only true ties reach Conflicts; both strategies leave
//     ties pending rather than guessing.
func (e *Engine) Sync(ctx context.Context, opts SyncOptions) (Result, error) {
	strategy := opts.Strategy
	if strategy == "" {
		strategy = Newest
	}
	return e.run(ctx, "sync", func(ctx context.Context, d manifest.DiffResult) (toUpload, toDownload, pending []string) {
		switch strategy {
		case LocalWins:
			return append(append([]string{}, d.ToUpload...), d.Conflicts...), d.ToDownload, nil
		case RemoteWins:
			return d.ToUpload, append(append([]string{}, d.ToDownload...), d.Conflicts...), nil
		default: // Newest, Manual
			return d.ToUpload, d.ToDownload, d.Conflicts
		}
	}, opts.DryRun, opts.Progress)
}

// run holds the lock/scan/diff/transfer/manifest sequence common to
// Push, Pull and Sync; resolve maps a computed Diff onto upload/download/
// pending lanes per the calling operation's semantics.
func (e *Engine) run(ctx context.Context, opName string, resolve func(context.Context, manifest.DiffResult) (toUpload, toDownload, pending []string), dryRun bool, progress ProgressFunc) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.LockTimeout)
	defer cancel()

	if e.Recorder != nil {
		e.Recorder.Record(ctx, e.DatabaseID, opName, PhaseStarted)
	}

	if err := acquireLock(ctx, e.Local, e.DatabaseID, e.OwnerID); err != nil {
		if dlErr := checkDeadline(ctx); dlErr != nil {
			err = dlErr
		}
		e.recordFailure(ctx, opName, err)
		return Result{}, err
	}
	defer releaseLock(e.Local, e.DatabaseID)

	if err := acquireLock(ctx, e.Remote, e.DatabaseID, e.OwnerID); err != nil {
		if dlErr := checkDeadline(ctx); dlErr != nil {
			err = dlErr
		}
		e.recordFailure(ctx, opName, err)
		return Result{}, err
	}
	defer releaseLock(e.Remote, e.DatabaseID)

	if err := checkDeadline(ctx); err != nil {
		e.recordFailure(ctx, opName, err)
		return Result{}, err
	}

	report(progress, ProgressEvent{Operation: OpScanning})
	localManifest, err := manifest.Build(ctx, e.Local, e.DatabaseID, e.Name, e.Visibility)
	if err != nil {
		e.recordFailure(ctx, opName, err)
		return Result{}, err
	}
	remoteManifest, err := loadOrEmptyManifest(ctx, e.Remote, e.DatabaseID, e.Name, e.Visibility)
	if err != nil {
		e.recordFailure(ctx, opName, err)
		return Result{}, err
	}

	if err := checkDeadline(ctx); err != nil {
		e.recordFailure(ctx, opName, err)
		return Result{}, err
	}

	report(progress, ProgressEvent{Operation: OpComputingDiff})
	d := manifest.Diff(localManifest, remoteManifest)

	if dryRun {
		if e.Recorder != nil {
			e.Recorder.Record(ctx, e.DatabaseID, opName, PhaseCompleted)
		}
		return Result{DryRun: true, Diff: d}, nil
	}

	toUpload, toDownload, pending := resolve(ctx, d)

	if err := checkDeadline(ctx); err != nil {
		e.recordFailure(ctx, opName, err)
		return Result{}, err
	}

	var errs []FileError
	uploaded := e.transfer(ctx, toUpload, e.Local, e.Remote, OpUploading, "upload", progress, &errs)
	downloaded := e.transfer(ctx, toDownload, e.Remote, e.Local, OpDownloading, "download", progress, &errs)

	report(progress, ProgressEvent{Operation: OpWritingManifest})
	finalManifest, mErr := manifest.Build(ctx, e.Local, e.DatabaseID, e.Name, e.Visibility)
	if mErr == nil {
		finalManifest.LastSyncedAt = time.Now().UTC()
		if err := saveManifest(ctx, e.Local, finalManifest); err != nil {
			errs = append(errs, FileError{Path: manifestPath, Operation: "write-local-manifest", Err: err})
		}
		if err := saveManifest(ctx, e.Remote, finalManifest); err != nil {
			errs = append(errs, FileError{Path: manifestPath, Operation: "write-remote-manifest", Err: err})
		}
	} else {
		errs = append(errs, FileError{Path: manifestPath, Operation: "rebuild-manifest", Err: mErr})
	}

	result := Result{
		Success:          len(errs) == 0,
		Uploaded:         uploaded,
		Downloaded:       downloaded,
		ConflictsPending: pending,
		Errors:           errs,
		Diff:             d,
		Manifest:         finalManifest,
	}

	if e.Recorder != nil {
		if result.Success {
			e.Recorder.Record(ctx, e.DatabaseID, opName, PhaseCompleted)
		} else {
			e.Recorder.Record(ctx, e.DatabaseID, opName, PhaseFailed)
		}
	}

	return result, nil
}

// checkDeadline reports a TIMEOUT error once ctx's lock-acquisition window
// (e.LockTimeout, applied in run) has elapsed. Storage backends don't watch
// ctx themselves, so run calls this between phases rather than relying on
// a cancelled read/write to surface the deadline on its own.
func checkDeadline(ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded {
		return cherrors.New(cherrors.Timeout, "sync operation exceeded lock timeout")
	}
	return nil
}

func (e *Engine) recordFailure(ctx context.Context, opName string, err error) {
	if e.Recorder != nil {
		e.Recorder.Record(context.Background(), e.DatabaseID, opName, PhaseFailed)
	}
}

func (e *Engine) transfer(ctx context.Context, paths []string, from, to storage.Backend, op, label string, progress ProgressFunc, errs *[]FileError) []string {
	var done []string
	for i, path := range paths {
		if dlErr := checkDeadline(ctx); dlErr != nil {
			*errs = append(*errs, FileError{Path: path, Operation: label, Err: dlErr})
			break
		}
		report(progress, ProgressEvent{Operation: op, Total: len(paths), Processed: i, CurrentFile: path})
		data, err := from.Read(ctx, path)
		if err != nil {
			*errs = append(*errs, FileError{Path: path, Operation: label, Err: err})
			continue
		}
		if _, err := to.WriteAtomic(ctx, path, data, storage.WriteOptions{}); err != nil {
			*errs = append(*errs, FileError{Path: path, Operation: label, Err: err})
			continue
		}
		done = append(done, path)
	}
	return done
}

func loadOrEmptyManifest(ctx context.Context, backend storage.Backend, databaseID, name, visibility string) (manifest.Manifest, error) {
	data, err := backend.Read(ctx, manifestPath)
	if err != nil {
		if cherrors.CodeOf(err) == cherrors.NotFound {
			return manifest.Manifest{Version: 1, DatabaseID: databaseID, Name: name, Visibility: visibility, Files: map[string]manifest.FileEntry{}}, nil
		}
		return manifest.Manifest{}, err
	}
	var m manifest.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return manifest.Manifest{}, cherrors.Wrap(cherrors.Validation, manifestPath, err)
	}
	return m, nil
}

func saveManifest(ctx context.Context, backend storage.Backend, m manifest.Manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	_, err = backend.WriteAtomic(ctx, manifestPath, data, storage.WriteOptions{ContentType: "application/json"})
	return err
}
