package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyRawErrors(t *testing.T) {
	classifier := NewErrorClassifier()

	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"not exist", fs.ErrNotExist, KindFileNotFound},
		{"wrapped not exist", fmt.Errorf("reading: %w", fs.ErrNotExist), KindFileNotFound},
		{"permission", fs.ErrPermission, KindAccessDenied},
		{"exists", fs.ErrExist, KindFileExists},
		{"no space", syscall.ENOSPC, KindStorageFull},
		{"disk quota", syscall.EDQUOT, KindStorageFull},
		{"too many open files", syscall.EMFILE, KindTooManyOpenFiles},
		{"file table overflow", syscall.ENFILE, KindTooManyOpenFiles},
		{"busy", syscall.EBUSY, KindConcurrentAccess},
		{"deadline", context.DeadlineExceeded, KindOperationTimeout},
		{"textual timeout", errors.New("operation timed out"), KindOperationTimeout},
		{"textual not found", errors.New("descriptor not found"), KindFileNotFound},
		{"textual no space", errors.New("write failed: no space left on device"), KindStorageFull},
		{"unknown", errors.New("something odd happened"), KindIOError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			serr := classifier.Classify(tc.err, "test op", "/some/path")
			require.NotNil(t, serr)
			assert.Equal(t, tc.want, serr.Kind)
			assert.Equal(t, "/some/path", serr.Details["path"])
			assert.Equal(t, "test op", serr.Details["operation"])
		})
	}
}

func TestClassifyNilIsNil(t *testing.T) {
	assert.Nil(t, NewErrorClassifier().Classify(nil, "op", ""))
}

func TestClassifyPassesThroughStorageErrors(t *testing.T) {
	classifier := NewErrorClassifier()
	original := NewError(KindCorruptionDetected, "checksum mismatch", nil).
		WithDetail("expected_checksum", "aa").
		WithDetail("actual_checksum", "bb")

	got := classifier.Classify(fmt.Errorf("wrapped: %w", original), "verify", "")
	assert.Same(t, original, got)
	assert.Equal(t, "aa", got.Details["expected_checksum"])
}

func TestUserMessageNeverEchoesSystemError(t *testing.T) {
	classifier := NewErrorClassifier()
	raw := errors.New("open /var/lib/secret-root/file: no space left on device")

	serr := classifier.Classify(raw, "write payload", "/var/lib/secret-root/file")
	assert.NotContains(t, serr.UserMessage(), "secret-root")
	assert.NotContains(t, serr.UserMessage(), "no space left")

	// The raw text is preserved in structured context for server logs.
	assert.Contains(t, serr.Details["cause"], "no space left")
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[ErrorKind]int{
		KindFileNotFound:            404,
		KindAccessDenied:            403,
		KindInsufficientPermissions: 403,
		KindStorageFull:             507,
		KindQuotaExceeded:           507,
		KindFileTooLarge:            413,
		KindInvalidFormat:           415,
		KindValidationFailed:        400,
		KindCorruptionDetected:      500,
		KindOperationTimeout:        504,
		KindConcurrentAccess:        409,
		KindFileExists:              409,
		KindTooManyOpenFiles:        503,
		KindIOError:                 500,
	}
	for kind, want := range cases {
		serr := NewError(kind, "test", nil)
		assert.Equal(t, want, serr.HTTPStatus(), "kind %s", kind)
		assert.NotEmpty(t, serr.UserMessage(), "kind %s", kind)
	}
}

func TestToResponse(t *testing.T) {
	serr := NewError(KindStorageFull, "ceiling exceeded", nil).
		WithDetail("namespace", "temporary").
		WithDetail("ceiling_bytes", int64(100))

	resp := serr.ToResponse()
	assert.Equal(t, 507, resp.Status)
	assert.Equal(t, KindStorageFull, resp.Body.Error)
	assert.Equal(t, serr.UserMessage(), resp.Body.Message)
	assert.Equal(t, "temporary", resp.Body.Details["namespace"])
	assert.False(t, resp.Body.Timestamp.IsZero())
}

func TestStorageErrorUnwrap(t *testing.T) {
	cause := fs.ErrNotExist
	serr := NewError(KindFileNotFound, "missing", cause)
	assert.True(t, errors.Is(serr, fs.ErrNotExist))
}
