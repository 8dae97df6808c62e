package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cartoprint/cartoprint/pkg/infrastructure/logging"
)

// tempFileMaxAge is how long an in-flight temp file may exist before the
// sweep treats it as crash debris.
const tempFileMaxAge = time.Hour

// Reconciler repairs the known inconsistencies the write and move
// protocols can leave behind: payloads without metadata (a crash between
// the two atomic writes), metadata whose namespace field no longer matches
// the payload's location (a move whose metadata update failed), and stale
// temp files from interrupted writes. Orphaned payloads are reported, not
// deleted; they read as still-processing artifacts awaiting operator
// attention.
type Reconciler struct {
	dirs   *DirectoryManager
	meta   *metadataStore
	codec  *FilenameCodec
	logger *logging.Logger
}

// NewReconciler creates a reconciler over the given directories.
func NewReconciler(dirs *DirectoryManager, meta *metadataStore, codec *FilenameCodec, logger *logging.Logger) *Reconciler {
	if logger == nil {
		logger = logging.NewLogger(nil)
	}
	return &Reconciler{
		dirs:   dirs,
		meta:   meta,
		codec:  codec,
		logger: logger.WithComponent("reconciler"),
	}
}

// OrphanRef identifies a payload file that has no metadata record.
type OrphanRef struct {
	Filename  string    `json:"filename"`
	Namespace Namespace `json:"namespace"`
}

// SweepReport summarizes one reconciliation pass.
type SweepReport struct {
	SweptAt          time.Time   `json:"swept_at"`
	OrphanedPayloads []OrphanRef `json:"orphaned_payloads,omitempty"`
	OrphanedMetadata []string    `json:"orphaned_metadata,omitempty"`
	RepairedMetadata []string    `json:"repaired_metadata,omitempty"`
	TempFilesRemoved int         `json:"temp_files_removed"`
}

// Sweep walks the namespaces once and repairs what it safely can.
func (r *Reconciler) Sweep(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{SweptAt: time.Now().UTC()}

	// Index every payload by filename so stale metadata can be pointed
	// at the payload's actual location.
	locations := make(map[string]Namespace)
	for _, ns := range PayloadNamespaces() {
		if err := ctx.Err(); err != nil {
			return nil, NewError(KindOperationTimeout, "sweep aborted", err)
		}
		names, removed, err := r.scanNamespace(ns)
		if err != nil {
			return nil, err
		}
		report.TempFilesRemoved += removed
		for _, name := range names {
			locations[name] = ns
		}
	}
	removed, err := r.cleanTempFiles(r.dirs.namespaceRoot(NamespaceMetadata))
	if err != nil {
		return nil, err
	}
	report.TempFilesRemoved += removed

	records, skipped, err := r.meta.readAll(ctx)
	if err != nil {
		return nil, err
	}
	report.OrphanedMetadata = append(report.OrphanedMetadata, skipped...)

	recorded := make(map[string]bool, len(records))
	for _, record := range records {
		recorded[record.Filename] = true

		actual, found := locations[record.Filename]
		if !found {
			report.OrphanedMetadata = append(report.OrphanedMetadata, record.Filename)
			continue
		}
		if actual == record.Namespace {
			continue
		}

		// The payload move is authoritative; bring the record back in
		// line with where the payload actually lives.
		movedAt := time.Now().UTC()
		record.Namespace = actual
		record.MovedAt = &movedAt
		if err := r.meta.write(ctx, record); err != nil {
			r.logger.Error("failed to repair stale metadata", map[string]interface{}{
				"filename": record.Filename,
			})
			continue
		}
		report.RepairedMetadata = append(report.RepairedMetadata, record.Filename)
		r.logger.Info("repaired stale metadata", map[string]interface{}{
			"filename":  record.Filename,
			"namespace": string(actual),
		})
	}

	for name, ns := range locations {
		if !recorded[name] {
			report.OrphanedPayloads = append(report.OrphanedPayloads, OrphanRef{
				Filename:  name,
				Namespace: ns,
			})
		}
	}
	if len(report.OrphanedPayloads) > 0 {
		r.logger.Warn("found payloads without metadata", map[string]interface{}{
			"count": len(report.OrphanedPayloads),
		})
	}

	return report, nil
}

// scanNamespace lists the well-formed payload filenames in a namespace and
// removes stale temp files along the way.
func (r *Reconciler) scanNamespace(ns Namespace) ([]string, int, error) {
	root := r.dirs.namespaceRoot(ns)

	removed, err := r.cleanTempFiles(root)
	if err != nil {
		return nil, 0, err
	}

	entries, readErr := os.ReadDir(root)
	if readErr != nil {
		return nil, 0, NewError(KindIOError, "failed to scan namespace", readErr).
			WithDetail("namespace", string(ns))
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), tmpSuffix) {
			continue
		}
		if !r.codec.IsValid(entry.Name()) {
			r.logger.Warn("ignoring file with malformed name", map[string]interface{}{
				"namespace": string(ns),
				"filename":  entry.Name(),
			})
			continue
		}
		names = append(names, entry.Name())
	}
	return names, removed, nil
}

func (r *Reconciler) cleanTempFiles(root string) (int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return 0, NewError(KindIOError, "failed to scan for temp files", err).
			WithDetail("path", root)
	}

	removed := 0
	cutoff := time.Now().Add(-tempFileMaxAge)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), tmpSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(root, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// Watcher triggers reconciliation sweeps when namespace directories
// change, debounced so a burst of writes causes one sweep instead of one
// per event.
type Watcher struct {
	reconciler *Reconciler
	dirs       *DirectoryManager
	logger     *logging.Logger
	debounce   time.Duration

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}

	timerMu sync.Mutex
	timer   *time.Timer
}

// NewWatcher creates a watcher that sweeps after directory activity
// settles for the given debounce interval.
func NewWatcher(reconciler *Reconciler, dirs *DirectoryManager, logger *logging.Logger, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = 5 * time.Second
	}
	if logger == nil {
		logger = logging.NewLogger(nil)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, NewError(KindIOError, "failed to create filesystem watcher", err)
	}

	return &Watcher{
		reconciler: reconciler,
		dirs:       dirs,
		logger:     logger.WithComponent("watcher"),
		debounce:   debounce,
		watcher:    fsWatcher,
		done:       make(chan struct{}),
	}, nil
}

// Start watches the payload namespaces and runs sweeps until the context
// is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	for _, ns := range PayloadNamespaces() {
		if err := w.watcher.Add(w.dirs.namespaceRoot(ns)); err != nil {
			return NewError(KindIOError, "failed to watch namespace directory", err).
				WithDetail("namespace", string(ns))
		}
	}

	ctx, w.cancel = context.WithCancel(ctx)
	go w.eventLoop(ctx)
	return nil
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// Temp files churn on every write; only settled names
			// matter to the sweep.
			if strings.HasSuffix(event.Name, tmpSuffix) {
				continue
			}
			w.scheduleSweep(ctx)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watcher error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}

func (w *Watcher) scheduleSweep(ctx context.Context) {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		report, err := w.reconciler.Sweep(ctx)
		if err != nil {
			w.logger.Error("reconciliation sweep failed", map[string]interface{}{
				"error": err.Error(),
			})
			return
		}
		w.logger.Debug("reconciliation sweep complete", map[string]interface{}{
			"orphaned_payloads": len(report.OrphanedPayloads),
			"orphaned_metadata": len(report.OrphanedMetadata),
			"repaired_metadata": len(report.RepairedMetadata),
			"temp_removed":      report.TempFilesRemoved,
		})
	})
}

// Close stops watching and waits for the event loop to exit.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	if w.cancel != nil {
		w.cancel()
		<-w.done
	}
	return err
}
