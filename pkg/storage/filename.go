package storage

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// filenamePrefix is the fixed kind segment of every generated filename.
const filenamePrefix = "map"

// filenameSegments is the number of underscore-delimited segments in a
// valid filename: kind, owner, resource, variant, timestamp, salt.
const filenameSegments = 6

// saltHexLen is the length of the collision-avoidance salt in hex chars.
const saltHexLen = 8

// defaultExtension is used when a save request does not name one.
const defaultExtension = "png"

// FilenameCodec mints and parses artifact filenames of the form
//
//	map_<ownerId>_<resourceId>_<variant>_<timestampMillis>_<salt8hex>.<ext>
//
// The salt is derived from hashing the identifying fields together with a
// random component, so two concurrent requests for the same
// owner/resource/variant within the same millisecond still get distinct
// names without a central sequence allocator.
type FilenameCodec struct{}

// NewFilenameCodec creates a filename codec.
func NewFilenameCodec() *FilenameCodec {
	return &FilenameCodec{}
}

// ParsedFilename holds the fields recovered from a generated filename.
type ParsedFilename struct {
	Kind       string
	OwnerID    string
	ResourceID string
	Variant    string
	Timestamp  time.Time
	Salt       string
	Extension  string
}

// Generate mints a filename for the given identifying fields. Segment
// values must be non-empty and free of underscores and path separators;
// anything else is a validation failure, not something to silently mangle.
func (fc *FilenameCodec) Generate(ownerID, resourceID, variant, extension string, now time.Time) (string, error) {
	if extension == "" {
		extension = defaultExtension
	}
	for _, seg := range []struct{ name, value string }{
		{"owner id", ownerID},
		{"resource id", resourceID},
		{"variant", variant},
	} {
		if err := validateSegment(seg.name, seg.value); err != nil {
			return "", err
		}
	}
	if strings.ContainsAny(extension, "_/\\.") {
		return "", NewValidationError("extension", "must not contain separators")
	}

	millis := now.UnixMilli()
	salt := deriveSalt(ownerID, resourceID, variant, millis)
	return fmt.Sprintf("%s_%s_%s_%s_%d_%s.%s",
		filenamePrefix, ownerID, resourceID, variant, millis, salt, extension), nil
}

// Parse is the strict inverse of Generate. A name that does not match the
// grammar exactly is rejected with a validation error, never coerced.
func (fc *FilenameCodec) Parse(filename string) (*ParsedFilename, error) {
	dot := strings.LastIndex(filename, ".")
	if dot <= 0 || dot == len(filename)-1 {
		return nil, malformedFilename(filename, "missing extension")
	}
	base := filename[:dot]
	ext := filename[dot+1:]
	if strings.ContainsAny(ext, "_/\\.") {
		return nil, malformedFilename(filename, "invalid extension")
	}

	parts := strings.Split(base, "_")
	if len(parts) != filenameSegments {
		return nil, malformedFilename(filename, fmt.Sprintf("expected %d segments, got %d", filenameSegments, len(parts)))
	}
	if parts[0] != filenamePrefix {
		return nil, malformedFilename(filename, "unknown kind prefix")
	}
	for i := 1; i < 4; i++ {
		if parts[i] == "" {
			return nil, malformedFilename(filename, "empty segment")
		}
	}

	millis, err := strconv.ParseInt(parts[4], 10, 64)
	if err != nil || millis < 0 {
		return nil, malformedFilename(filename, "invalid timestamp segment")
	}

	salt := parts[5]
	if len(salt) != saltHexLen {
		return nil, malformedFilename(filename, "invalid salt segment")
	}
	if _, err := hex.DecodeString(salt); err != nil {
		return nil, malformedFilename(filename, "invalid salt segment")
	}

	return &ParsedFilename{
		Kind:       parts[0],
		OwnerID:    parts[1],
		ResourceID: parts[2],
		Variant:    parts[3],
		Timestamp:  time.UnixMilli(millis).UTC(),
		Salt:       salt,
		Extension:  ext,
	}, nil
}

// IsValid reports whether a filename matches the grammar.
func (fc *FilenameCodec) IsValid(filename string) bool {
	_, err := fc.Parse(filename)
	return err == nil
}

func validateSegment(name, value string) *StorageError {
	if value == "" {
		return NewValidationError(name, "must not be empty")
	}
	if strings.ContainsAny(value, "_/\\") || strings.ContainsAny(value, " \t\n") {
		return NewValidationError(name, "must not contain separators or whitespace")
	}
	return nil
}

func malformedFilename(filename, problem string) *StorageError {
	return NewValidationError("filename", "malformed name").
		WithDetail("filename", filename).
		WithDetail("problem", problem)
}

// deriveSalt hashes the identifying fields plus a random component and
// truncates to 8 hex characters.
func deriveSalt(ownerID, resourceID, variant string, millis int64) string {
	sum := blake2b.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d|%s",
		ownerID, resourceID, variant, millis, uuid.NewString())))
	return hex.EncodeToString(sum[:])[:saltHexLen]
}
