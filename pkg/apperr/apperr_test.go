package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrappedChain(t *testing.T) {
	base := errors.New("disk full")
	err := Wrap(IOFailure, "extract", base, "写入 %s 失败", "a.txt")
	wrapped := fmt.Errorf("assemble: %w", err)

	assert.Equal(t, IOFailure, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, IOFailure))
	assert.True(t, errors.Is(wrapped, base))
	assert.True(t, errors.Is(wrapped, &Error{Kind: IOFailure}))
	assert.False(t, errors.Is(wrapped, &Error{Kind: NotFound}))
	assert.Equal(t, "extract: 写入 a.txt 失败: disk full", err.Error())
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Unknown, KindOf(errors.New("boom")))
	assert.False(t, IsKind(nil, Unknown))
	assert.Nil(t, Wrap(NotFound, "op", nil, "ignored"))
}

func TestKindStringsAreDistinct(t *testing.T) {
	seen := map[string]Kind{}
	for k := Unknown; k <= Unavailable; k++ {
		name := k.String()
		if prev, ok := seen[name]; ok {
			t.Fatalf("kind %d and %d share name %q", prev, k, name)
		}
		seen[name] = k
	}
	assert.Equal(t, "unknown", Kind(99).String())
}
