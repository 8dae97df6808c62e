package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateParseInverse(t *testing.T) {
	codec := NewFilenameCodec()
	now := time.UnixMilli(1712345678901)

	filename, err := codec.Generate("user42", "activity7", "A4", "png", now)
	require.NoError(t, err)

	parsed, err := codec.Parse(filename)
	require.NoError(t, err)
	assert.Equal(t, "map", parsed.Kind)
	assert.Equal(t, "user42", parsed.OwnerID)
	assert.Equal(t, "activity7", parsed.ResourceID)
	assert.Equal(t, "A4", parsed.Variant)
	assert.Equal(t, now.UnixMilli(), parsed.Timestamp.UnixMilli())
	assert.Equal(t, "png", parsed.Extension)
	assert.Len(t, parsed.Salt, 8)
}

func TestGenerateDefaultExtension(t *testing.T) {
	codec := NewFilenameCodec()
	filename, err := codec.Generate("u1", "a1", "A3", "", time.Now())
	require.NoError(t, err)
	assert.True(t, codec.IsValid(filename))

	parsed, err := codec.Parse(filename)
	require.NoError(t, err)
	assert.Equal(t, "png", parsed.Extension)
}

func TestGenerateSaltsDiffer(t *testing.T) {
	codec := NewFilenameCodec()
	now := time.Now()

	// Identical inputs within the same millisecond still yield distinct
	// names.
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		filename, err := codec.Generate("u1", "a1", "A4", "png", now)
		require.NoError(t, err)
		assert.False(t, seen[filename], "duplicate filename %s", filename)
		seen[filename] = true
	}
}

func TestGenerateRejectsInvalidSegments(t *testing.T) {
	codec := NewFilenameCodec()
	now := time.Now()

	cases := []struct {
		name                           string
		owner, resource, variant, ext string
	}{
		{"empty owner", "", "a1", "A4", "png"},
		{"empty resource", "u1", "", "A4", "png"},
		{"empty variant", "u1", "a1", "", "png"},
		{"underscore in owner", "u_1", "a1", "A4", "png"},
		{"underscore in variant", "u1", "a1", "A_4", "png"},
		{"slash in resource", "u1", "a/1", "A4", "png"},
		{"whitespace in owner", "u 1", "a1", "A4", "png"},
		{"dot in extension", "u1", "a1", "A4", "tar.gz"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := codec.Generate(tc.owner, tc.resource, tc.variant, tc.ext, now)
			var serr *StorageError
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, KindValidationFailed, serr.Kind)
		})
	}
}

func TestParseRejectsMalformedNames(t *testing.T) {
	codec := NewFilenameCodec()

	cases := []struct {
		name     string
		filename string
	}{
		{"no extension", "map_u1_a1_A4_1712345678901_deadbeef"},
		{"empty name", ""},
		{"too few segments", "map_u1_a1_1712345678901_deadbeef.png"},
		{"too many segments", "map_u1_a1_A4_extra_1712345678901_deadbeef.png"},
		{"wrong prefix", "poster_u1_a1_A4_1712345678901_deadbeef.png"},
		{"non-numeric timestamp", "map_u1_a1_A4_notatime_deadbeef.png"},
		{"negative timestamp", "map_u1_a1_A4_-17_deadbeef.png"},
		{"short salt", "map_u1_a1_A4_1712345678901_dead.png"},
		{"non-hex salt", "map_u1_a1_A4_1712345678901_zzzzzzzz.png"},
		{"empty owner segment", "map__a1_A4_1712345678901_deadbeef.png"},
		{"metadata sidecar name", "map_u1_a1_A4_1712345678901_deadbeef.png.json"},
		{"arbitrary file", "notes.txt"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := codec.Parse(tc.filename)
			var serr *StorageError
			require.ErrorAs(t, err, &serr, "filename %q should be rejected", tc.filename)
			assert.Equal(t, KindValidationFailed, serr.Kind)
			assert.False(t, codec.IsValid(tc.filename))
		})
	}
}
