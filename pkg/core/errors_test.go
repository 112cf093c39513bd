package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewErr(t *testing.T) {
	err := NewErr("vectrust.GetItem", KindNotFound, "item not found")

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrAlreadyExists))
	assert.Contains(t, err.Error(), "vectrust.GetItem")
	assert.Contains(t, err.Error(), "not found")
}

func TestWrapErr(t *testing.T) {
	t.Run("nil error passes through", func(t *testing.T) {
		assert.Nil(t, WrapErr("op", KindIO, nil))
	})

	t.Run("wrapped error matches its sentinel and unwraps", func(t *testing.T) {
		cause := errors.New("disk full")
		err := WrapErr("optimized.writeVector", KindStorage, cause)

		assert.True(t, errors.Is(err, ErrStorage))
		assert.True(t, errors.Is(err, cause))
	})
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindNotFound, "not found"},
		{KindAlreadyExists, "already exists"},
		{KindDimensionMismatch, "dimension mismatch"},
		{KindInvalidVector, "invalid vector"},
		{KindStorage, "storage error"},
		{KindSerialization, "serialization error"},
		{KindIO, "io error"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.String())
	}
}
