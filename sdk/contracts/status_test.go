package contracts

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerStatus_DiagnosticRoundTrip(t *testing.T) {
	assert.Nil(t, Running().Diagnostic())
	assert.Nil(t, Unknown().Diagnostic())

	diag := Failed("Keystation disconnected").Diagnostic()
	require.NotNil(t, diag)
	assert.Equal(t, "Keystation disconnected", *diag)

	assert.Equal(t, Running(), StatusFromDiagnostic(nil))
	assert.Equal(t, Failed("Keystation disconnected"), StatusFromDiagnostic(diag))
}

func TestWorkerStatus_ExactlyOneDisplay(t *testing.T) {
	assert.Equal(t, DisplayLoading, Unknown().Display())
	assert.Equal(t, DisplayRunning, Running().Display())
	assert.Equal(t, DisplayFailed, Failed("").Display())
}

func TestParseStatusKind(t *testing.T) {
	for _, k := range []StatusKind{StatusUnknown, StatusRunning, StatusFailed} {
		assert.Equal(t, k, ParseStatusKind(k.String()))
	}
	assert.Equal(t, StatusUnknown, ParseStatusKind("bogus"))
}

func TestErrorClassification(t *testing.T) {
	ve := &ValidationError{Field: FieldChannel, Reason: "must be between 1 and 16"}
	got, ok := IsValidation(fmt.Errorf("saving: %w", ve))
	require.True(t, ok)
	assert.Same(t, ve, got)
	assert.Equal(t, "invalid channel: must be between 1 and 16", ve.Error())

	ce := &CommunicationError{Op: "get_error", Err: errors.New("connection refused")}
	assert.True(t, IsCommunication(fmt.Errorf("poll: %w", ce)))
	assert.False(t, IsCommunication(ve))

	cause := errors.New("Keystation is busy")
	wse := &WorkerStartError{Err: cause}
	assert.Equal(t, "Keystation is busy", wse.Error(), "diagnostic is passed through verbatim")
	assert.ErrorIs(t, wse, cause)
}

func TestParseLogLevel(t *testing.T) {
	for _, l := range []LogLevel{DebugLevel, InfoLevel, WarnLevel, ErrorLevel, FatalLevel} {
		got, err := ParseLogLevel(l.String())
		require.NoError(t, err)
		assert.Equal(t, l, got)
	}
	_, err := ParseLogLevel("chatty")
	assert.Error(t, err)
}
