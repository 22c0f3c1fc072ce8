package vfs

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	err := ErrNotFound("src/app.tsx")
	assert.Contains(t, err.Error(), "src/app.tsx")
	assert.Equal(t, CodeNotFound, err.Code)
}

func TestErrorAppendsCause(t *testing.T) {
	cause := errors.New("device gone")
	err := NewError(CodeFilesystem, "write failed", "a.txt", cause)
	assert.Contains(t, err.Error(), "write failed")
	assert.Contains(t, err.Error(), "device gone")
	assert.ErrorIs(t, err, cause)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeNotFound, CodeOf(ErrNotFound("x")))
	assert.Equal(t, CodeFilesystem, CodeOf(errors.New("plain")))

	wrapped := fmt.Errorf("outer: %w", ErrPermissionDenied("y"))
	assert.Equal(t, CodePermissionDenied, CodeOf(wrapped))
}

func TestWrapNative(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Code
	}{
		{"not found", fs.ErrNotExist, CodeNotFound},
		{"permission", fs.ErrPermission, CodePermissionDenied},
		{"exists", fs.ErrExist, CodeAlreadyExists},
		{"invalid", fs.ErrInvalid, CodeInvalidPath},
		{"not empty", syscall.ENOTEMPTY, CodeDirectoryNotEmpty},
		{"no space", syscall.ENOSPC, CodeQuotaExceeded},
		{"quota", syscall.EDQUOT, CodeQuotaExceeded},
		{"other", errors.New("boom"), CodeFilesystem},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := WrapNative(fmt.Errorf("op: %w", tc.err), "p")
			require.NotNil(t, e)
			assert.Equal(t, tc.want, e.Code)
			assert.Equal(t, "p", e.Path)
			assert.ErrorIs(t, e, tc.err)
		})
	}
}

func TestWrapNative_PassthroughTaxonomy(t *testing.T) {
	orig := ErrDirectoryNotEmpty("d")
	assert.Same(t, orig, WrapNative(orig, "other"))
	assert.Nil(t, WrapNative(nil, "p"))
}
