package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cartoprint/cartoprint/pkg/infrastructure/logging"
)

// DirectoryManager owns the on-disk roots of the four lifecycle
// namespaces. Every other component asks it for paths; nothing outside
// this package ever sees an absolute path, which keeps the layout an
// implementation detail.
type DirectoryManager struct {
	root   string
	logger *logging.Logger
}

// NewDirectoryManager creates the manager and ensures all namespace
// directories exist. Creation is idempotent; pre-existing directories are
// not an error.
func NewDirectoryManager(root string, logger *logging.Logger) (*DirectoryManager, error) {
	if root == "" {
		return nil, NewValidationError("root path", "must not be empty")
	}
	if logger == nil {
		logger = logging.NewLogger(nil)
	}

	dm := &DirectoryManager{
		root:   root,
		logger: logger.WithComponent("directories"),
	}
	if err := dm.ensureAll(); err != nil {
		return nil, err
	}
	return dm, nil
}

func (dm *DirectoryManager) ensureAll() error {
	for _, ns := range []Namespace{NamespaceProcessing, NamespaceTemporary, NamespacePermanent, NamespaceMetadata} {
		dir := dm.namespaceRoot(ns)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return NewError(KindIOError, fmt.Sprintf("failed to create %s directory", ns), err).
				WithDetail("path", dir)
		}
	}
	dm.logger.Debug("storage directories ready", map[string]interface{}{"root": dm.root})
	return nil
}

func (dm *DirectoryManager) namespaceRoot(ns Namespace) string {
	return filepath.Join(dm.root, string(ns))
}

// PathFor returns the absolute path of a file inside a namespace. The
// filename must be a bare name; anything that would escape the namespace
// directory is rejected.
func (dm *DirectoryManager) PathFor(ns Namespace, filename string) (string, error) {
	if !ns.Valid() {
		return "", NewValidationError("namespace", "unknown namespace").
			WithDetail("namespace", string(ns))
	}
	if filename == "" || filename != filepath.Base(filename) {
		return "", NewValidationError("filename", "must be a bare file name").
			WithDetail("filename", filename)
	}
	return filepath.Join(dm.namespaceRoot(ns), filename), nil
}

// MetadataPath returns the path of the sidecar record for a filename. The
// sidecar name is derived from the artifact filename, never the reverse.
func (dm *DirectoryManager) MetadataPath(filename string) (string, error) {
	return dm.PathFor(NamespaceMetadata, metadataName(filename))
}

// metadataName derives the sidecar record name from an artifact filename.
func metadataName(filename string) string {
	return filename + ".json"
}
