package speech

import (
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecCapabilityRejectsBadCommands(t *testing.T) {
	_, err := NewExecCapability("", nil)
	assert.Error(t, err)

	_, err = NewExecCapability("definitely-not-a-recognizer-binary --x", nil)
	assert.True(t, errors.Is(err, ErrUnsupported))
}

func TestExecRecognizerStreamsResults(t *testing.T) {
	requireShell(t)
	script := `sh -c 'echo "{\"type\":\"result\",\"results\":[{\"text\":\"hello\",\"final\":false}]}"; echo "not json"; echo "{\"type\":\"result\",\"results\":[{\"text\":\"hello world\",\"final\":true}]}"; echo "{\"type\":\"error\",\"code\":\"no-speech\"}"'`
	capability, err := NewExecCapability(script, newTestLogger())
	require.NoError(t, err)

	out := &sinkRecorder{}
	s := NewSession(capability, out.sink)
	defer s.Close()
	s.Start()

	// the process exits after printing, the session restarts it while listening
	require.Eventually(t, func() bool {
		return len(out.got()) >= 2
	}, 5*time.Second, 5*time.Millisecond)
	s.Stop()
	assert.Equal(t, "hello world", out.got()[0])
}

func TestExecRecognizerFailingCommandEndsSession(t *testing.T) {
	requireShell(t)
	capability, err := NewExecCapability(`sh -c 'exit 3'`, newTestLogger())
	require.NoError(t, err)

	s := NewSession(capability, nil)
	defer s.Close()
	s.Start()

	require.Eventually(t, func() bool {
		return s.Snapshot().Phase == PhaseIdle
	}, 5*time.Second, 5*time.Millisecond)
}
