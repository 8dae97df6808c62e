package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/cartoprint/cartoprint/pkg/infrastructure/logging"
)

// tmpSuffix marks in-flight writes. A reader never sees these names; the
// reconciliation sweep removes stale ones left behind by crashes.
const tmpSuffix = ".tmp"

// AtomicWriter persists artifact payloads so that a reader can never
// observe a half-written file. The payload is written to a temp sibling
// and renamed into place; the rename is the sole moment the file becomes
// visible under its real name. The metadata sidecar follows as a second
// atomic step, so "payload present, metadata missing" is a valid transient
// state while the reverse must never occur.
type AtomicWriter struct {
	dirs    *DirectoryManager
	codec   *FilenameCodec
	quota   *QuotaGuard
	retry   *RetryExecutor
	meta    *metadataStore
	logger  *logging.Logger
	metrics *Metrics

	maxFileSize int64
	urlPrefix   string
}

// Save validates the request, checks quota, mints a filename and writes
// payload then metadata. Every filesystem call is wrapped by the retry
// executor.
func (aw *AtomicWriter) Save(ctx context.Context, req SaveRequest) (*StoredFile, error) {
	start := time.Now()
	defer aw.metrics.ObserveDuration("save", start)

	ns := req.Namespace
	if ns == "" {
		ns = NamespaceTemporary
	}
	if !ns.IsPayload() {
		return nil, NewValidationError("namespace", "must be a payload namespace").
			WithDetail("namespace", string(ns))
	}
	if req.OwnerID == "" {
		return nil, NewValidationError("owner id", "must not be empty")
	}
	if req.ResourceID == "" {
		return nil, NewValidationError("resource id", "must not be empty")
	}

	size := int64(len(req.Data))
	if aw.maxFileSize > 0 && size > aw.maxFileSize {
		aw.metrics.RecordSave(ns, "rejected", 0)
		return nil, NewError(KindFileTooLarge, "payload exceeds configured maximum", nil).
			WithDetail("size_bytes", size).
			WithDetail("max_bytes", aw.maxFileSize).
			WithDetail("owner_id", req.OwnerID)
	}
	if size == 0 {
		aw.logger.Warn("saving zero-length payload", map[string]interface{}{
			"owner_id":    req.OwnerID,
			"resource_id": req.ResourceID,
		})
	}

	if err := aw.quota.Reserve(ctx, ns, size); err != nil {
		aw.metrics.RecordQuotaRejection(ns)
		aw.metrics.RecordSave(ns, "rejected", 0)
		return nil, err
	}
	defer aw.quota.Release(ns, size)

	filename, err := aw.codec.Generate(req.OwnerID, req.ResourceID, req.Variant, req.Extension, time.Now())
	if err != nil {
		return nil, err
	}
	path, err := aw.dirs.PathFor(ns, filename)
	if err != nil {
		return nil, err
	}

	if err := aw.retry.Execute(ctx, "write payload", func() error {
		return atomicWriteFile(path, req.Data)
	}); err != nil {
		aw.metrics.RecordSave(ns, "failure", 0)
		return nil, err
	}

	checksum := computeChecksum(req.Data)
	now := time.Now().UTC()

	record := &MetadataRecord{
		Filename:   filename,
		Namespace:  ns,
		OwnerID:    req.OwnerID,
		ResourceID: req.ResourceID,
		Variant:    req.Variant,
		Size:       size,
		CreatedAt:  now,
		Status:     StatusReady,
		Checksum:   checksum,
		ZeroLength: size == 0,
		Extra:      req.Extra,
	}
	if err := aw.meta.write(ctx, record); err != nil {
		// The payload is already visible; without its sidecar it reads
		// as a still-processing artifact until the next reconciliation
		// sweep picks it up. Surface the failure rather than guessing.
		aw.logger.Error("metadata write failed after payload rename", map[string]interface{}{
			"filename":  filename,
			"namespace": string(ns),
		})
		aw.metrics.RecordSave(ns, "failure", 0)
		return nil, err
	}

	aw.metrics.RecordSave(ns, "success", size)
	aw.logger.Info("artifact saved", map[string]interface{}{
		"filename":  filename,
		"namespace": string(ns),
		"size":      size,
	})

	return &StoredFile{
		Filename:  filename,
		Namespace: ns,
		Size:      size,
		Checksum:  checksum,
		CreatedAt: now,
		Status:    StatusReady,
		URL:       artifactURL(aw.urlPrefix, ns, filename),
	}, nil
}

// computeChecksum returns the hex digest recorded for payload bytes.
func computeChecksum(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// artifactURL builds the caller-facing relative URL for a stored file.
func artifactURL(prefix string, ns Namespace, filename string) string {
	return fmt.Sprintf("%s/%s/%s", prefix, ns, filename)
}

// atomicWriteFile writes data to a temp sibling, syncs it, and renames it
// to path. On any failure the temp file is removed and path is untouched.
func atomicWriteFile(path string, data []byte) error {
	tmp := path + tmpSuffix

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
