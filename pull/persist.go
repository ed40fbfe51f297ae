package pull

import (
	"context"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/pithecene-io/dredge/archive"
	"github.com/pithecene-io/dredge/log"
	"github.com/pithecene-io/dredge/metrics"
	"github.com/pithecene-io/dredge/types"
)

const (
	// DefaultChunkSize is the write buffer size for streaming report
	// bodies to disk. Bounds memory for arbitrarily large reports.
	DefaultChunkSize = 1024

	// UnprocessedDir is the subdirectory reports land in before any
	// downstream processing picks them up.
	UnprocessedDir = "unprocessed"
)

// SaveResult is one resolved reference's persistence disposition.
type SaveResult struct {
	// Ref is the reference the outcome belongs to.
	Ref Reference
	// Status is the final disposition.
	Status types.ReferenceStatus
	// Filename is the header-provided name the body was saved under.
	Filename string
	// Bytes is the number of body bytes written.
	Bytes int64
	// Err is the transport or write error, when Status is failed.
	Err error
}

// PersisterConfig configures where and how report bodies land.
type PersisterConfig struct {
	// Dir is the reports root directory. Bodies are written under
	// Dir/unprocessed.
	Dir string
	// ChunkSize is the streaming write buffer size. Zero means
	// DefaultChunkSize.
	ChunkSize int
	// Archiver optionally mirrors each saved file to a remote backend.
	// Nil disables mirroring.
	Archiver archive.Archiver
}

// Persister consumes resolved outcomes: successful responses stream to
// disk under the filename the response names, failures are logged and
// their handles cancelled, and completed responses without a filename
// header are logged and discarded.
type Persister struct {
	dir       string
	chunkSize int
	archiver  archive.Archiver
	logger    *log.Logger
	collector *metrics.Collector
}

// NewPersister creates a Persister. The collector may be nil.
func NewPersister(config PersisterConfig, logger *log.Logger, collector *metrics.Collector) *Persister {
	chunkSize := config.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Persister{
		dir:       config.Dir,
		chunkSize: chunkSize,
		archiver:  config.Archiver,
		logger:    logger,
		collector: collector,
	}
}

// SaveAll processes a batch of resolved handles and reports each one's
// disposition. Persistence order within the batch is the slice order;
// a failure on one outcome never blocks the rest.
func (p *Persister) SaveAll(ctx context.Context, handles []*Handle) []SaveResult {
	results := make([]SaveResult, 0, len(handles))
	for _, h := range handles {
		results = append(results, p.save(ctx, h))
	}
	return results
}

// save handles one resolved outcome.
func (p *Persister) save(ctx context.Context, h *Handle) SaveResult {
	out := h.Outcome()

	if !out.Completed() {
		p.collector.IncFailed()
		p.logger.Error("report request failed", map[string]any{
			"url":   out.Ref.URL,
			"error": out.Err.Error(),
		})
		// Release the underlying request resources; failures are not
		// retried from here.
		h.Cancel()
		return SaveResult{Ref: out.Ref, Status: types.ReferenceFailed, Err: out.Err}
	}

	p.collector.IncCompleted()
	resp := out.Response

	filename := filenameFromHeader(resp.Header.Get("Content-Disposition"))
	if filename == "" {
		p.collector.IncMissingHeader()
		p.logger.Error("content-disposition header not found, cannot save report", map[string]any{
			"url":    out.Ref.URL,
			"status": resp.StatusCode,
		})
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return SaveResult{Ref: out.Ref, Status: types.ReferenceMissingHeader}
	}

	written, err := p.stream(resp.Body, filename)
	_ = resp.Body.Close()
	if err != nil {
		p.collector.IncSaveFailure()
		p.logger.Error("failed to save report", map[string]any{
			"url":      out.Ref.URL,
			"filename": filename,
			"error":    err.Error(),
		})
		return SaveResult{Ref: out.Ref, Status: types.ReferenceFailed, Filename: filename, Err: err}
	}

	p.collector.IncSaved()
	p.collector.AddBytesWritten(written)
	p.logger.Info("csv report saved", map[string]any{
		"filename": filename,
		"path":     filepath.Join(p.dir, UnprocessedDir, filename),
		"bytes":    written,
	})

	p.mirror(ctx, filename)

	return SaveResult{Ref: out.Ref, Status: types.ReferenceSaved, Filename: filename, Bytes: written}
}

// stream appends the body to Dir/unprocessed/filename in fixed-size
// chunks. The filename is used verbatim; uniqueness per run is the
// provider's contract.
func (p *Persister) stream(body io.Reader, filename string) (int64, error) {
	dir := filepath.Join(p.dir, UnprocessedDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, err
	}

	f, err := os.OpenFile(filepath.Join(dir, filename), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return 0, err
	}

	written, err := io.CopyBuffer(f, body, make([]byte, p.chunkSize))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return written, err
}

// mirror uploads a saved file to the archive backend. Best effort: a
// failure is logged and counted, never surfaced to the run.
func (p *Persister) mirror(ctx context.Context, filename string) {
	if p.archiver == nil {
		return
	}

	path := filepath.Join(p.dir, UnprocessedDir, filename)
	f, err := os.Open(path)
	if err != nil {
		p.collector.IncArchiveFailure()
		p.logger.Warn("archive mirror skipped, cannot reopen report", map[string]any{
			"path":  path,
			"error": err.Error(),
		})
		return
	}
	defer func() { _ = f.Close() }()

	if err := p.archiver.Store(ctx, filename, f); err != nil {
		p.collector.IncArchiveFailure()
		p.logger.Warn("archive mirror failed", map[string]any{
			"filename": filename,
			"error":    err.Error(),
		})
		return
	}
	p.collector.IncArchived()
}

// filenameFromHeader extracts the filename parameter from a
// Content-Disposition header. Falls back to a tolerant split for
// malformed headers the provider has been known to emit; the returned
// value is used verbatim.
func filenameFromHeader(header string) string {
	if header == "" {
		return ""
	}

	if _, params, err := mime.ParseMediaType(header); err == nil {
		if name := params["filename"]; name != "" {
			return name
		}
	}

	if i := strings.LastIndex(header, "filename="); i >= 0 {
		return strings.Trim(header[i+len("filename="):], `"`)
	}
	return ""
}
