package storage

import (
	"context"
	"os"
	"time"

	"github.com/cartoprint/cartoprint/pkg/infrastructure/logging"
)

// IntegrityVerifier recomputes checksums over stored bytes and compares
// them against the values recorded at write time. Checksum and size are
// both compared; a partial match is still corruption, never "probably
// fine".
type IntegrityVerifier struct {
	dirs    *DirectoryManager
	meta    *metadataStore
	retry   *RetryExecutor
	logger  *logging.Logger
	metrics *Metrics
}

// Verify checks the artifact's current bytes against its metadata record.
// A file that has vanished entirely reports FILE_NOT_FOUND, which callers
// must treat as "no longer present" rather than corruption: a verify
// racing a concurrent delete is a clean miss, not a damaged file.
func (iv *IntegrityVerifier) Verify(ctx context.Context, filename string, ns Namespace) (*VerificationResult, error) {
	start := time.Now()
	defer iv.metrics.ObserveDuration("verify", start)

	if !ns.IsPayload() {
		return nil, NewValidationError("namespace", "must be a payload namespace").
			WithDetail("namespace", string(ns))
	}

	record, err := iv.meta.read(ctx, filename)
	if err != nil {
		return nil, err
	}

	path, err := iv.dirs.PathFor(ns, filename)
	if err != nil {
		return nil, err
	}

	var data []byte
	readErr := iv.retry.Execute(ctx, "read payload", func() error {
		var err error
		data, err = os.ReadFile(path)
		return err
	})
	if readErr != nil {
		return nil, readErr
	}

	actualChecksum := computeChecksum(data)
	actualSize := int64(len(data))
	checksumMismatch := actualChecksum != record.Checksum
	sizeMismatch := actualSize != record.Size

	if checksumMismatch || sizeMismatch {
		iv.metrics.RecordCorruption()
		iv.logger.Error("corruption detected", map[string]interface{}{
			"filename":          filename,
			"namespace":         string(ns),
			"checksum_mismatch": checksumMismatch,
			"size_mismatch":     sizeMismatch,
		})
		return nil, NewError(KindCorruptionDetected, "stored bytes do not match recorded checksum", nil).
			WithDetail("filename", filename).
			WithDetail("namespace", string(ns)).
			WithDetail("expected_checksum", record.Checksum).
			WithDetail("actual_checksum", actualChecksum).
			WithDetail("expected_size", record.Size).
			WithDetail("actual_size", actualSize).
			WithDetail("checksum_mismatch", checksumMismatch).
			WithDetail("size_mismatch", sizeMismatch)
	}

	return &VerificationResult{
		Filename:   filename,
		Namespace:  ns,
		Size:       actualSize,
		Checksum:   actualChecksum,
		VerifiedAt: time.Now().UTC(),
	}, nil
}
