package scanerr

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsSentinel(t *testing.T) {
	err := E(KindNotFound, "load metadata", errors.New("no such item"))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrCorrupted))
	assert.Equal(t, "load metadata: no such item", err.Error())

	wrapped := fmt.Errorf("get item: %w", err)
	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
}

func TestErrorWithoutCause(t *testing.T) {
	err := E(KindInvalidOperation, "add page", nil)
	assert.Equal(t, "add page: invalid operation", err.Error())
	assert.Equal(t, "invalid operation", (&Error{Kind: KindInvalidOperation}).Error())
}

func TestFromFS(t *testing.T) {
	_, statErr := os.Stat("/definitely/not/here")
	err := FromFS("stat page", statErr)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	err = FromFS("write page", errors.New("disk full"))
	assert.Equal(t, KindIOFailure, KindOf(err))

	// An already classified error keeps its kind.
	err = FromFS("reorder", E(KindInvalidArgument, "check order", nil))
	assert.Equal(t, KindInvalidArgument, KindOf(err))

	assert.NoError(t, FromFS("noop", nil))
}

func TestKindOfPlainSentinel(t *testing.T) {
	assert.Equal(t, KindMigrationFailed, KindOf(fmt.Errorf("x: %w", ErrMigrationFailed)))
	assert.Equal(t, KindUnknown, KindOf(errors.New("other")))
	assert.Equal(t, KindUnknown, KindOf(nil))
	assert.Equal(t, "Corrupted", KindCorrupted.String())
}
