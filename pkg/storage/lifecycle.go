package storage

import (
	"context"
	"os"
	"time"

	"github.com/cartoprint/cartoprint/pkg/infrastructure/logging"
)

// LifecycleMover transitions artifacts between namespaces and deletes
// them. The payload rename is the authoritative action: if the metadata
// update fails after the payload has moved, the failure is logged and the
// move still reports success, since a temporarily stale record is
// preferred over a stranded payload. The reconciliation sweep repairs
// stale records.
type LifecycleMover struct {
	dirs      *DirectoryManager
	meta      *metadataStore
	retry     *RetryExecutor
	logger    *logging.Logger
	metrics   *Metrics
	urlPrefix string
}

// Move relocates an artifact's payload into the destination namespace and
// updates its metadata record with the new namespace and a transition
// timestamp.
func (lm *LifecycleMover) Move(ctx context.Context, filename string, from, to Namespace) (*StoredFile, error) {
	start := time.Now()
	defer lm.metrics.ObserveDuration("move", start)

	if !from.IsPayload() || !to.IsPayload() {
		return nil, NewValidationError("namespace", "must be payload namespaces").
			WithDetail("from", string(from)).
			WithDetail("to", string(to))
	}
	if from == to {
		return nil, NewValidationError("namespace", "source and destination are the same").
			WithDetail("namespace", string(from))
	}

	srcPath, err := lm.dirs.PathFor(from, filename)
	if err != nil {
		return nil, err
	}
	dstPath, err := lm.dirs.PathFor(to, filename)
	if err != nil {
		return nil, err
	}

	if _, statErr := os.Stat(srcPath); statErr != nil {
		if os.IsNotExist(statErr) {
			return nil, NewError(KindFileNotFound, "source file does not exist", statErr).
				WithDetail("filename", filename).
				WithDetail("namespace", string(from))
		}
		return nil, lm.retry.classifier.Classify(statErr, "stat source", srcPath)
	}

	if err := lm.retry.Execute(ctx, "move payload", func() error {
		return os.Rename(srcPath, dstPath)
	}); err != nil {
		return nil, err
	}

	movedAt := time.Now().UTC()
	stored := &StoredFile{
		Filename:  filename,
		Namespace: to,
		Status:    StatusReady,
		CreatedAt: movedAt,
		URL:       artifactURL(lm.urlPrefix, to, filename),
	}

	record, readErr := lm.meta.read(ctx, filename)
	if readErr == nil {
		record.Namespace = to
		record.MovedAt = &movedAt
		stored.Size = record.Size
		stored.Checksum = record.Checksum
		stored.CreatedAt = record.CreatedAt
		if err := lm.meta.write(ctx, record); err != nil {
			readErr = err
		}
	}
	if readErr != nil {
		// The payload has already moved; that is the authoritative
		// state. The stale record is repaired by the next sweep.
		lm.logger.Error("metadata update failed after payload move", map[string]interface{}{
			"filename": filename,
			"from":     string(from),
			"to":       string(to),
		})
	} else {
		lm.logger.Info("artifact moved", map[string]interface{}{
			"filename": filename,
			"from":     string(from),
			"to":       string(to),
		})
	}

	return stored, nil
}

// Delete removes an artifact's payload and metadata. Deleting a file that
// is already gone succeeds: deletion must tolerate already-deleted files.
// A metadata cleanup failure after a successful payload removal is logged
// and treated as non-fatal since the visible artifact is already gone.
func (lm *LifecycleMover) Delete(ctx context.Context, filename string, ns Namespace) error {
	start := time.Now()
	defer lm.metrics.ObserveDuration("delete", start)

	if !ns.IsPayload() {
		return NewValidationError("namespace", "must be a payload namespace").
			WithDetail("namespace", string(ns))
	}

	path, err := lm.dirs.PathFor(ns, filename)
	if err != nil {
		return err
	}

	if err := lm.retry.Execute(ctx, "delete payload", func() error {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}); err != nil {
		return err
	}

	if err := lm.meta.remove(ctx, filename); err != nil {
		lm.logger.Warn("metadata cleanup failed after delete", map[string]interface{}{
			"filename":  filename,
			"namespace": string(ns),
		})
	}

	lm.logger.Info("artifact deleted", map[string]interface{}{
		"filename":  filename,
		"namespace": string(ns),
	})
	return nil
}
