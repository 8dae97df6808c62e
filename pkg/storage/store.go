package storage

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/cartoprint/cartoprint/pkg/infrastructure/logging"
	"github.com/cartoprint/cartoprint/pkg/infrastructure/workers"
	"github.com/prometheus/client_golang/prometheus"
)

// Store is the facade callers use. It wires the directory manager, quota
// guard, retry executor and the operation components together behind one
// constructor; callers hold filenames and URLs, never paths.
type Store struct {
	config   *Config
	dirs     *DirectoryManager
	codec    *FilenameCodec
	quota    *QuotaGuard
	retry    *RetryExecutor
	meta     *metadataStore
	writer   *AtomicWriter
	verifier *IntegrityVerifier
	catalog  *CatalogReader
	mover    *LifecycleMover
	logger   *logging.Logger
	metrics  *Metrics
}

// StoreOption customizes store construction.
type StoreOption func(*storeOptions)

type storeOptions struct {
	registerer prometheus.Registerer
}

// WithMetrics registers the store's metrics on the given registerer.
func WithMetrics(reg prometheus.Registerer) StoreOption {
	return func(o *storeOptions) {
		o.registerer = reg
	}
}

// NewStore creates a store rooted at cfg.RootPath, creating the namespace
// directories if needed.
func NewStore(cfg *Config, logger *logging.Logger, opts ...StoreOption) (*Store, error) {
	if cfg == nil {
		return nil, NewValidationError("config", "must not be nil")
	}
	if cfg.URLPrefix == "" {
		cfg.URLPrefix = DefaultURLPrefix
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewLogger(nil)
	}
	logger = logger.WithComponent("storage")

	var options storeOptions
	for _, opt := range opts {
		opt(&options)
	}
	var metrics *Metrics
	if options.registerer != nil {
		metrics = NewMetrics(options.registerer)
	}

	dirs, err := NewDirectoryManager(cfg.RootPath, logger)
	if err != nil {
		return nil, err
	}

	classifier := NewErrorClassifier()
	retry := NewRetryExecutor(classifier, logger, metrics)
	meta := newMetadataStore(dirs, retry)
	catalog := &CatalogReader{
		dirs:      dirs,
		meta:      meta,
		logger:    logger.WithComponent("catalog"),
		urlPrefix: cfg.URLPrefix,
	}
	quota := NewQuotaGuard(catalog, cfg.Quotas.Ceilings())

	store := &Store{
		config:  cfg,
		dirs:    dirs,
		codec:   NewFilenameCodec(),
		quota:   quota,
		retry:   retry,
		meta:    meta,
		catalog: catalog,
		logger:  logger,
		metrics: metrics,
	}
	store.writer = &AtomicWriter{
		dirs:        dirs,
		codec:       store.codec,
		quota:       quota,
		retry:       retry,
		meta:        meta,
		logger:      logger.WithComponent("writer"),
		metrics:     metrics,
		maxFileSize: int64(cfg.MaxFileSize),
		urlPrefix:   cfg.URLPrefix,
	}
	store.verifier = &IntegrityVerifier{
		dirs:    dirs,
		meta:    meta,
		retry:   retry,
		logger:  logger.WithComponent("integrity"),
		metrics: metrics,
	}
	store.mover = &LifecycleMover{
		dirs:      dirs,
		meta:      meta,
		retry:     retry,
		logger:    logger.WithComponent("lifecycle"),
		metrics:   metrics,
		urlPrefix: cfg.URLPrefix,
	}
	return store, nil
}

// Save persists an artifact payload and its metadata record.
func (s *Store) Save(ctx context.Context, req SaveRequest) (*StoredFile, error) {
	stored, err := s.writer.Save(ctx, req)
	return stored, s.noteFailure(err)
}

// Verify checks an artifact's bytes against its recorded checksum and size.
func (s *Store) Verify(ctx context.Context, filename string, ns Namespace) (*VerificationResult, error) {
	result, err := s.verifier.Verify(ctx, filename, ns)
	return result, s.noteFailure(err)
}

// List returns the artifacts in a namespace, filtered and paginated.
func (s *Store) List(ctx context.Context, ns Namespace, opts ListOptions) ([]ListEntry, error) {
	entries, err := s.catalog.List(ctx, ns, opts)
	return entries, s.noteFailure(err)
}

// Stats aggregates a namespace's catalog.
func (s *Store) Stats(ctx context.Context, ns Namespace) (*NamespaceStats, error) {
	stats, err := s.catalog.Stats(ctx, ns)
	return stats, s.noteFailure(err)
}

// Move transitions an artifact to another namespace.
func (s *Store) Move(ctx context.Context, filename string, from, to Namespace) (*StoredFile, error) {
	stored, err := s.mover.Move(ctx, filename, from, to)
	return stored, s.noteFailure(err)
}

// Delete removes an artifact and its metadata; deleting an artifact that
// is already gone succeeds.
func (s *Store) Delete(ctx context.Context, filename string, ns Namespace) error {
	return s.noteFailure(s.mover.Delete(ctx, filename, ns))
}

// Metadata returns the raw metadata record for a filename.
func (s *Store) Metadata(ctx context.Context, filename string) (*MetadataRecord, error) {
	record, err := s.meta.read(ctx, filename)
	return record, s.noteFailure(err)
}

// Open returns a read handle on a stored payload for the boundary layer's
// file server. The filename must parse under the grammar so arbitrary
// names cannot escape the namespace directory; callers get a handle, never
// a path.
func (s *Store) Open(filename string, ns Namespace) (*os.File, error) {
	if !ns.IsPayload() {
		return nil, NewValidationError("namespace", "must be a payload namespace").
			WithDetail("namespace", string(ns))
	}
	if _, err := s.codec.Parse(filename); err != nil {
		return nil, err
	}
	path, err := s.dirs.PathFor(ns, filename)
	if err != nil {
		return nil, err
	}
	f, openErr := os.Open(path)
	if openErr != nil {
		return nil, s.noteFailure(s.retry.classifier.Classify(openErr, "open payload", path))
	}
	return f, nil
}

// AuditFailure describes one artifact that failed its integrity check
// during a catalog audit.
type AuditFailure struct {
	Filename  string    `json:"filename"`
	Namespace Namespace `json:"namespace"`
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
}

// AuditReport summarizes a full-catalog integrity audit.
type AuditReport struct {
	AuditedAt time.Time      `json:"audited_at"`
	Checked   int            `json:"checked"`
	Skipped   []string       `json:"skipped,omitempty"`
	Failures  []AuditFailure `json:"failures,omitempty"`
}

// Audit verifies every cataloged artifact against its recorded checksum,
// fanning the checks out over a bounded worker pool. Artifacts whose
// metadata records do not decode are reported as skipped.
func (s *Store) Audit(ctx context.Context, workerCount int) (*AuditReport, error) {
	records, skipped, err := s.meta.readAll(ctx)
	if err != nil {
		return nil, s.noteFailure(err)
	}

	items := make([]workers.Item, 0, len(records))
	for _, record := range records {
		if !record.Namespace.IsPayload() {
			continue
		}
		items = append(items, workers.Item{
			Namespace: string(record.Namespace),
			Filename:  record.Filename,
		})
	}

	pool := workers.NewPool(workerCount)
	failed := pool.ParallelCheck(ctx, items, func(ctx context.Context, ns, filename string) error {
		_, err := s.verifier.Verify(ctx, filename, Namespace(ns))
		return err
	})

	report := &AuditReport{
		AuditedAt: time.Now().UTC(),
		Checked:   len(items),
		Skipped:   skipped,
	}
	for _, f := range failed {
		failure := AuditFailure{
			Filename:  f.Filename,
			Namespace: Namespace(f.Namespace),
			Kind:      KindIOError,
			Message:   f.Err.Error(),
		}
		var serr *StorageError
		if errors.As(f.Err, &serr) {
			failure.Kind = serr.Kind
			failure.Message = serr.Message
		}
		report.Failures = append(report.Failures, failure)
	}

	s.logger.Info("catalog audit complete", map[string]interface{}{
		"checked":  report.Checked,
		"failed":   len(report.Failures),
		"skipped":  len(report.Skipped),
		"audit_at": report.AuditedAt,
	})
	return report, nil
}

// Reconciler returns a reconciler bound to this store's directories.
func (s *Store) Reconciler() *Reconciler {
	return NewReconciler(s.dirs, s.meta, s.codec, s.logger)
}

// Watcher returns a filesystem watcher that triggers debounced
// reconciliation sweeps over this store's namespaces.
func (s *Store) Watcher(debounce time.Duration) (*Watcher, error) {
	return NewWatcher(s.Reconciler(), s.dirs, s.logger, debounce)
}

// noteFailure records a classified failure in metrics and passes the error
// through unchanged.
func (s *Store) noteFailure(err error) error {
	if err == nil {
		return nil
	}
	if serr, ok := err.(*StorageError); ok {
		s.metrics.RecordFailure(serr.Kind)
	}
	return err
}
