package storage

import (
	"context"
	"encoding/json"
	"os"
	"strings"
)

// metadataStore persists MetadataRecords as JSON sidecar files in the
// metadata namespace. All I/O goes through the retry executor.
type metadataStore struct {
	dirs  *DirectoryManager
	retry *RetryExecutor
}

func newMetadataStore(dirs *DirectoryManager, retry *RetryExecutor) *metadataStore {
	return &metadataStore{dirs: dirs, retry: retry}
}

// write persists a record through the same temp-then-rename sequence used
// for payloads, so a reader never observes a half-written record.
func (ms *metadataStore) write(ctx context.Context, record *MetadataRecord) error {
	path, err := ms.dirs.MetadataPath(record.Filename)
	if err != nil {
		return err
	}

	data, jsonErr := json.MarshalIndent(record, "", "  ")
	if jsonErr != nil {
		return NewError(KindIOError, "failed to encode metadata record", jsonErr).
			WithDetail("filename", record.Filename)
	}

	return ms.retry.Execute(ctx, "write metadata", func() error {
		return atomicWriteFile(path, data)
	})
}

// read loads the record for an artifact filename. A missing sidecar is a
// FILE_NOT_FOUND; a sidecar that does not decode is INVALID_FORMAT, since
// guessing at a corrupt record would defeat the integrity checks built on
// top of it.
func (ms *metadataStore) read(ctx context.Context, filename string) (*MetadataRecord, error) {
	path, err := ms.dirs.MetadataPath(filename)
	if err != nil {
		return nil, err
	}

	var data []byte
	readErr := ms.retry.Execute(ctx, "read metadata", func() error {
		var err error
		data, err = os.ReadFile(path)
		return err
	})
	if readErr != nil {
		return nil, readErr
	}

	var record MetadataRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, NewError(KindInvalidFormat, "metadata record is not valid JSON", err).
			WithDetail("filename", filename).
			WithDetail("path", path)
	}
	return &record, nil
}

// remove deletes the sidecar record. A record that is already gone is not
// an error.
func (ms *metadataStore) remove(ctx context.Context, filename string) error {
	path, err := ms.dirs.MetadataPath(filename)
	if err != nil {
		return err
	}
	return ms.retry.Execute(ctx, "delete metadata", func() error {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	})
}

// readAll loads every record in the metadata namespace. Records that fail
// to decode are skipped; skipped names are returned so callers can surface
// them instead of silently narrowing the catalog.
func (ms *metadataStore) readAll(ctx context.Context) ([]*MetadataRecord, []string, error) {
	root := ms.dirs.namespaceRoot(NamespaceMetadata)

	var entries []os.DirEntry
	listErr := ms.retry.Execute(ctx, "list metadata", func() error {
		var err error
		entries, err = os.ReadDir(root)
		return err
	})
	if listErr != nil {
		return nil, nil, listErr
	}

	records := make([]*MetadataRecord, 0, len(entries))
	var skipped []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		record, err := ms.read(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			skipped = append(skipped, name)
			continue
		}
		records = append(records, record)
	}
	return records, skipped, nil
}
