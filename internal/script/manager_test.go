package script

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frigate-wa-bridge/internal/model"
	"frigate-wa-bridge/internal/state"
)

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func TestManager_StartStop(t *testing.T) {
	s := state.New(nil, quietLog())
	m := NewManager("sleep", []string{"30"}, s, quietLog())

	proc, err := m.Start()
	require.NoError(t, err)
	assert.True(t, proc.Running)
	assert.NotZero(t, proc.PID)
	assert.NotEmpty(t, proc.RunID)
	assert.Equal(t, "sleep 30", proc.Command)
	assert.Equal(t, proc, m.Status())

	_, err = m.Start()
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	require.NoError(t, m.Stop(5*time.Second))
	assert.False(t, m.Running())
	assert.Equal(t, model.ScriptProcess{}, m.Status())

	assert.ErrorIs(t, m.Stop(time.Second), ErrNotRunning)
}

func TestManager_ExitClearsStatus(t *testing.T) {
	s := state.New(nil, quietLog())
	m := NewManager("true", nil, s, quietLog())

	_, err := m.Start()
	require.NoError(t, err)

	require.Eventually(t, func() bool { return !m.Status().Running && !m.Running() }, 5*time.Second, 10*time.Millisecond)
}

func TestManager_NoCommand(t *testing.T) {
	m := NewManager("", nil, state.New(nil, quietLog()), quietLog())
	_, err := m.Start()
	assert.ErrorIs(t, err, ErrNoCommand)
}

func TestManager_StartFailure(t *testing.T) {
	m := NewManager("/nonexistent/filter-script", nil, state.New(nil, quietLog()), quietLog())
	_, err := m.Start()
	assert.Error(t, err)
	assert.False(t, m.Running())
}
