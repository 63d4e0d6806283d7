package sync

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Operation names reported through ProgressFunc, matching the phases a
// push/pull/sync call moves through in order.
const (
	OpScanning        = "scanning"
	OpComputingDiff   = "computing-diff"
	OpUploading       = "uploading"
	OpDownloading     = "downloading"
	OpWritingManifest = "writing-manifest"
)

// ProgressEvent is one step of a sync operation's progress.
type ProgressEvent struct {
	Operation   string
	Total       int
	Processed   int
	CurrentFile string
	BytesDone   uint64
	BytesTotal  uint64
}

// ProgressFunc receives progress events. Nil is a valid no-op subscriber.
type ProgressFunc func(ProgressEvent)

func report(cb ProgressFunc, ev ProgressEvent) {
	if cb != nil {
		cb(ev)
	}
}

// String renders a human-readable progress line, e.g. for CLI output:
// "uploading 3/10 data/posts.parquet (1.2 MB/4.5 MB)".
func (e ProgressEvent) String() string {
	if e.BytesTotal > 0 {
		return fmt.Sprintf("%s %d/%d %s (%s/%s)", e.Operation, e.Processed, e.Total, e.CurrentFile,
			humanize.Bytes(e.BytesDone), humanize.Bytes(e.BytesTotal))
	}
	if e.Total > 0 {
		return fmt.Sprintf("%s %d/%d %s", e.Operation, e.Processed, e.Total, e.CurrentFile)
	}
	return e.Operation
}
