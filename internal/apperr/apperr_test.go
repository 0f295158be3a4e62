package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type abortError struct{}

func (abortError) Error() string { return "request interrupted" }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("connection refused"), KindUnknown},
		{"context canceled", context.Canceled, KindCancelled},
		{"wrapped context canceled", fmt.Errorf("fetch: %w", context.Canceled), KindCancelled},
		{"deadline is a failure", context.DeadlineExceeded, KindUnknown},
		{"explicit cancelled", Cancelled("op", nil), KindCancelled},
		{"explicit unknown", Unknown("op", errors.New("boom")), KindUnknown},
		{"explicit unknown wrapping cancel", Unknown("op", context.Canceled), KindCancelled},
		{"message marker", errors.New("The operation was aborted"), KindCancelled},
		{"message marker mixed case", errors.New("Request CANCELLED by user"), KindCancelled},
		{"type name marker", abortError{}, KindCancelled},
		{"superseded", ErrSuperseded, KindCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "", Message(nil))
	assert.Equal(t, "", Message(context.Canceled))
	assert.Equal(t, "disk full", Message(errors.New("  disk full ")))
	assert.Equal(t, "queue.set-queue: boom", Message(Unknown("queue.set-queue", errors.New("boom"))))
	assert.Equal(t, "unknown error", Message(errors.New(" ")))
}

func TestError_Format(t *testing.T) {
	assert.Equal(t, "op: boom", Unknown("op", errors.New("boom")).Error())
	assert.Equal(t, "op: cancelled", Cancelled("op", nil).Error())
	assert.Equal(t, "cancelled", (&Error{Kind: KindCancelled}).Error())

	inner := errors.New("inner")
	assert.True(t, errors.Is(Unknown("op", inner), inner))
}

func TestFrom(t *testing.T) {
	assert.Nil(t, From("op", nil))

	err := From("scan.trigger", context.Canceled)
	assert.Equal(t, KindCancelled, err.Kind)
	assert.Equal(t, "scan.trigger", err.Op)

	inner := Unknown("", errors.New("boom"))
	got := From("library.albums", inner)
	assert.Equal(t, "library.albums", got.Op)
	assert.Equal(t, KindUnknown, got.Kind)
	assert.ErrorIs(t, got, inner)
	assert.Equal(t, "library.albums: boom", got.Error())

	assert.ErrorIs(t, From("theme.palette", ErrSuperseded), ErrSuperseded)

	named := Unknown("first", errors.New("boom"))
	assert.Same(t, named, From("second", named))
}
