package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderError_UnwrapAndMessage(t *testing.T) {
	inner := errors.New("rate limited")
	err := &ProviderError{Provider: "gemini-text", Err: inner, Retryable: true}

	assert.Contains(t, err.Error(), "gemini-text")
	assert.True(t, errors.Is(err, inner))
	assert.True(t, err.Retryable)
}

func TestOptionalFailure_Unwrap(t *testing.T) {
	inner := errors.New("embedder unavailable")
	err := &OptionalFailure{Source: "consistency_metrics", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "consistency_metrics")
}

func TestPresetVersionConflict_Message(t *testing.T) {
	err := &PresetVersionConflict{PresetID: "p-1", ExpectedVersion: 2, ActualVersion: 3}
	msg := err.Error()
	assert.Contains(t, msg, "p-1")
	assert.Contains(t, msg, "2")
	assert.Contains(t, msg, "3")
}

func TestContractViolation_Message(t *testing.T) {
	err := &ContractViolation{Stage: "strategy", Msg: "missing suggested_marketing_strategies"}
	assert.Contains(t, err.Error(), "strategy")
	assert.Contains(t, err.Error(), "missing suggested_marketing_strategies")
}
