package storage

import (
	"context"
	"os"
	"sort"

	"github.com/cartoprint/cartoprint/pkg/infrastructure/logging"
)

// CatalogReader lists and aggregates stored artifacts by reading their
// metadata records. Listings favor recency: newest first.
type CatalogReader struct {
	dirs      *DirectoryManager
	meta      *metadataStore
	logger    *logging.Logger
	urlPrefix string
}

// List returns the artifacts in a namespace, filtered and paginated. A
// record whose payload file is missing is returned flagged Exists=false
// rather than silently excluded, so operators can spot orphaned metadata.
func (cr *CatalogReader) List(ctx context.Context, ns Namespace, opts ListOptions) ([]ListEntry, error) {
	if !ns.IsPayload() {
		return nil, NewValidationError("namespace", "must be a payload namespace").
			WithDetail("namespace", string(ns))
	}

	records, skipped, err := cr.meta.readAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(skipped) > 0 {
		cr.logger.Warn("skipped unreadable metadata records", map[string]interface{}{
			"count": len(skipped),
			"names": skipped,
		})
	}

	filtered := make([]*MetadataRecord, 0, len(records))
	for _, record := range records {
		if record.Namespace != ns {
			continue
		}
		if opts.OwnerID != "" && record.OwnerID != opts.OwnerID {
			continue
		}
		if opts.Variant != "" && record.Variant != opts.Variant {
			continue
		}
		filtered = append(filtered, record)
	}

	sort.Slice(filtered, func(i, j int) bool {
		if !filtered[i].CreatedAt.Equal(filtered[j].CreatedAt) {
			return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
		}
		return filtered[i].Filename < filtered[j].Filename
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(filtered) {
			filtered = nil
		} else {
			filtered = filtered[opts.Offset:]
		}
	}
	if opts.Limit > 0 && opts.Limit < len(filtered) {
		filtered = filtered[:opts.Limit]
	}

	entries := make([]ListEntry, 0, len(filtered))
	for _, record := range filtered {
		entries = append(entries, ListEntry{
			MetadataRecord: *record,
			Exists:         cr.payloadExists(record),
			URL:            artifactURL(cr.urlPrefix, record.Namespace, record.Filename),
		})
	}
	return entries, nil
}

// Stats aggregates the namespace's catalog: artifact count and total
// payload bytes as recorded in metadata.
func (cr *CatalogReader) Stats(ctx context.Context, ns Namespace) (*NamespaceStats, error) {
	if !ns.IsPayload() {
		return nil, NewValidationError("namespace", "must be a payload namespace").
			WithDetail("namespace", string(ns))
	}

	records, _, err := cr.meta.readAll(ctx)
	if err != nil {
		return nil, err
	}

	stats := &NamespaceStats{Namespace: ns}
	for _, record := range records {
		if record.Namespace != ns {
			continue
		}
		stats.Count++
		stats.TotalBytes += record.Size
	}
	return stats, nil
}

func (cr *CatalogReader) payloadExists(record *MetadataRecord) bool {
	path, err := cr.dirs.PathFor(record.Namespace, record.Filename)
	if err != nil {
		return false
	}
	_, statErr := os.Stat(path)
	return statErr == nil
}
