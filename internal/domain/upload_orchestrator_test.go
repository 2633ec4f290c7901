package domain

import (
	"errors"
	"testing"

	"github.com/Vovarama1992/voicememo/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadOrchestratorSuccess(t *testing.T) {
	o := NewUploadOrchestrator()
	assert.Equal(t, models.OutcomeNotStarted, o.Outcome().Kind())

	attempt, err := o.Begin()
	require.NoError(t, err)
	assert.True(t, o.InFlight())

	ok := o.Resolve(attempt, models.UploadResult{Transcript: "hello", Size: 42})
	require.True(t, ok)

	out := o.Outcome()
	assert.Equal(t, models.OutcomeSuccess, out.Kind())
	assert.Equal(t, "hello", out.Transcript())
	assert.Equal(t, int64(42), out.SizeBytes())
	assert.Empty(t, out.Message())
}

func TestUploadOrchestratorRefusesSecondBegin(t *testing.T) {
	o := NewUploadOrchestrator()
	_, err := o.Begin()
	require.NoError(t, err)

	_, err = o.Begin()
	assert.ErrorIs(t, err, ErrUploadInFlight)
}

func TestUploadOrchestratorReject(t *testing.T) {
	o := NewUploadOrchestrator()
	attempt, _ := o.Begin()

	upErr := &models.UploadError{Kind: models.UploadErrStatus, StatusCode: 500, Message: "server responded with status 500: disk full"}
	require.True(t, o.Reject(attempt, upErr))

	out := o.Outcome()
	assert.Equal(t, models.OutcomeFailure, out.Kind())
	assert.Contains(t, out.Message(), "disk full")
	assert.Empty(t, out.Transcript())
}

func TestUploadOrchestratorRejectWithoutMessage(t *testing.T) {
	o := NewUploadOrchestrator()
	attempt, _ := o.Begin()
	require.True(t, o.Reject(attempt, nil))
	assert.Equal(t, "upload failed", o.Outcome().Message())
}

func TestUploadOrchestratorIgnoresStaleResults(t *testing.T) {
	o := NewUploadOrchestrator()
	first, _ := o.Begin()
	require.True(t, o.Reject(first, errors.New("boom")))

	second, err := o.Begin()
	require.NoError(t, err)
	assert.Equal(t, models.OutcomePending, o.Outcome().Kind())

	assert.False(t, o.Resolve(first, models.UploadResult{Transcript: "old"}))
	assert.True(t, o.Resolve(second, models.UploadResult{Transcript: "new", Size: 3}))
	assert.Equal(t, "new", o.Outcome().Transcript())

	assert.False(t, o.Reject(second, errors.New("late")))
	assert.Equal(t, models.OutcomeSuccess, o.Outcome().Kind())
}

func TestUploadOrchestratorResetKeepsPending(t *testing.T) {
	o := NewUploadOrchestrator()
	attempt, _ := o.Begin()

	o.Reset()
	assert.True(t, o.InFlight())

	o.Resolve(attempt, models.UploadResult{})
	o.Reset()
	assert.Equal(t, models.OutcomeNotStarted, o.Outcome().Kind())
}
