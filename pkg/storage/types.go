package storage

import (
	"time"
)

// Namespace identifies one of the fixed lifecycle directories an artifact
// can live in. A stored artifact belongs to exactly one payload namespace
// at a time; NamespaceMetadata holds the sidecar records for all of them.
type Namespace string

const (
	NamespaceProcessing Namespace = "processing"
	NamespaceTemporary  Namespace = "temporary"
	NamespacePermanent  Namespace = "permanent"
	NamespaceMetadata   Namespace = "metadata"
)

// PayloadNamespaces lists the namespaces that hold artifact payloads,
// in lifecycle order.
func PayloadNamespaces() []Namespace {
	return []Namespace{NamespaceProcessing, NamespaceTemporary, NamespacePermanent}
}

// IsPayload returns true if the namespace holds artifact payloads
// (as opposed to metadata records).
func (ns Namespace) IsPayload() bool {
	switch ns {
	case NamespaceProcessing, NamespaceTemporary, NamespacePermanent:
		return true
	default:
		return false
	}
}

// Valid returns true if the namespace is one of the four known directories.
func (ns Namespace) Valid() bool {
	return ns.IsPayload() || ns == NamespaceMetadata
}

// Artifact status values recorded in metadata.
const (
	StatusProcessing = "processing"
	StatusReady      = "ready"
)

// SaveRequest carries an artifact payload and its ownership metadata into
// the store. OwnerID and ResourceID are opaque identifiers supplied by the
// upstream pipeline; the store never interprets them beyond encoding them
// into the generated filename.
type SaveRequest struct {
	Data       []byte
	OwnerID    string
	ResourceID string
	Variant    string
	Extension  string
	Namespace  Namespace

	// Extra holds free-form caller-supplied fields (display format,
	// paper size label, ...) persisted verbatim in the metadata record.
	Extra map[string]string
}

// StoredFile is what a caller gets back after a successful save. It carries
// everything needed to address or verify the artifact later; callers never
// see an absolute filesystem path.
type StoredFile struct {
	Filename  string    `json:"filename"`
	Namespace Namespace `json:"namespace"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status"`
	URL       string    `json:"url"`
}

// MetadataRecord is the sidecar record persisted for every stored artifact.
// It lives in the metadata namespace under a name derived from the
// artifact's filename, so metadata is always locatable from the filename.
type MetadataRecord struct {
	Filename   string            `json:"filename"`
	Namespace  Namespace         `json:"namespace"`
	OwnerID    string            `json:"owner_id"`
	ResourceID string            `json:"resource_id"`
	Variant    string            `json:"variant"`
	Size       int64             `json:"size"`
	CreatedAt  time.Time         `json:"created_at"`
	Status     string            `json:"status"`
	Checksum   string            `json:"checksum"`
	MovedAt    *time.Time        `json:"moved_at,omitempty"`
	ZeroLength bool              `json:"zero_length,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// ListOptions filters and paginates a catalog listing.
type ListOptions struct {
	OwnerID string
	Variant string
	Offset  int
	Limit   int
}

// ListEntry is one row of a catalog listing. Exists reports whether the
// payload file is actually present on disk; records whose payload is
// missing are returned flagged rather than silently excluded so operators
// can spot orphaned metadata.
type ListEntry struct {
	MetadataRecord
	Exists bool   `json:"exists"`
	URL    string `json:"url"`
}

// NamespaceStats aggregates a namespace's catalog.
type NamespaceStats struct {
	Namespace  Namespace `json:"namespace"`
	Count      int       `json:"count"`
	TotalBytes int64     `json:"total_bytes"`
}

// VerificationResult reports a successful integrity check.
type VerificationResult struct {
	Filename   string    `json:"filename"`
	Namespace  Namespace `json:"namespace"`
	Size       int64     `json:"size"`
	Checksum   string    `json:"checksum"`
	VerifiedAt time.Time `json:"verified_at"`
}
