package enginerr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fensak-dev/approval-engine/internal/enginerr"
)

func TestNew_NoCause(t *testing.T) {
	err := enginerr.New(enginerr.InvalidPatch, "bad hunk header")
	assert.Equal(t, "InvalidPatch: bad hunk header", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestWrap_IncludesCause(t *testing.T) {
	cause := errors.New("boom")
	err := enginerr.Wrap(enginerr.EngineInternalError, "building envelope", cause)
	assert.Contains(t, err.Error(), "EngineInternalError")
	assert.Contains(t, err.Error(), "boom")
	assert.ErrorIs(t, err, cause)
}

func TestNewf_FormatsMessage(t *testing.T) {
	err := enginerr.Newf(enginerr.NonBooleanResult, "main returned %T", 42)
	assert.Equal(t, "NonBooleanResult: main returned int", err.Error())
}

func TestIs_MatchesKind(t *testing.T) {
	err := enginerr.New(enginerr.Timeout, "exceeded max runtime")
	assert.True(t, enginerr.Is(err, enginerr.Timeout))
	assert.False(t, enginerr.Is(err, enginerr.ParseFailure))
}

func TestIs_FalseForNonEngineError(t *testing.T) {
	assert.False(t, enginerr.Is(errors.New("plain"), enginerr.Timeout))
}
