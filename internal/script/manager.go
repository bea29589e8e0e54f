package script

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"frigate-wa-bridge/internal/model"
	"frigate-wa-bridge/internal/state"
)

var (
	ErrAlreadyRunning = errors.New("script is already running")
	ErrNotRunning     = errors.New("no script is running")
	ErrNoCommand      = errors.New("no script configured")
)

// Manager runs at most one auxiliary filter process and mirrors its status
// into the store.
type Manager struct {
	command string
	args    []string
	store   *state.Store
	log     *logrus.Entry

	mu      sync.Mutex
	cmd     *exec.Cmd
	runID   string
	exited  chan struct{}
	stopped bool
}

func NewManager(command string, args []string, store *state.Store, log *logrus.Entry) *Manager {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Manager{command: command, args: args, store: store, log: log}
}

func (m *Manager) Start() (model.ScriptProcess, error) {
	if m.command == "" {
		return model.ScriptProcess{}, ErrNoCommand
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cmd != nil {
		m.log.Warn("script is already running")
		return model.ScriptProcess{}, ErrAlreadyRunning
	}

	cmd := exec.Command(m.command, m.args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return model.ScriptProcess{}, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return model.ScriptProcess{}, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return model.ScriptProcess{}, fmt.Errorf("start script: %w", err)
	}

	runID := uuid.NewString()
	log := m.log.WithField("run", runID)
	proc := model.ScriptProcess{
		Running:   true,
		PID:       cmd.Process.Pid,
		RunID:     runID,
		Command:   strings.TrimSpace(m.command + " " + strings.Join(m.args, " ")),
		StartedAt: time.Now().UTC(),
	}
	m.cmd = cmd
	m.runID = runID
	m.exited = make(chan struct{})
	m.stopped = false

	var pipes sync.WaitGroup
	pipes.Add(2)
	go pipe(&pipes, stdout, log, logrus.InfoLevel)
	go pipe(&pipes, stderr, log, logrus.ErrorLevel)
	go m.wait(cmd, runID, &pipes, m.exited, log)

	m.store.SetScriptProcess(proc)
	log.WithField("pid", proc.PID).Info("script started")
	return proc, nil
}

func pipe(wg *sync.WaitGroup, r io.Reader, log *logrus.Entry, level logrus.Level) {
	defer wg.Done()
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		log.Log(level, sc.Text())
	}
}

func (m *Manager) wait(cmd *exec.Cmd, runID string, pipes *sync.WaitGroup, exited chan struct{}, log *logrus.Entry) {
	pipes.Wait()
	err := cmd.Wait()

	code := 0
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}
	log.WithError(err).WithField("code", code).Info("script exited")

	m.mu.Lock()
	if m.runID == runID {
		m.cmd = nil
		m.runID = ""
		m.store.SetScriptProcess(model.ScriptProcess{})
	}
	m.mu.Unlock()
	close(exited)
}

// Stop signals the running script and waits up to timeout for it to exit
// before killing it.
func (m *Manager) Stop(timeout time.Duration) error {
	m.mu.Lock()
	cmd, exited := m.cmd, m.exited
	if cmd == nil || m.stopped {
		m.mu.Unlock()
		m.log.Warn("no script is running")
		return ErrNotRunning
	}
	m.stopped = true
	m.mu.Unlock()

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		m.log.WithError(err).Debug("sigterm failed")
	}
	select {
	case <-exited:
	case <-time.After(timeout):
		m.log.Warn("script ignored SIGTERM, killing")
		_ = cmd.Process.Kill()
		<-exited
	}
	m.log.Info("script stopped")
	return nil
}

func (m *Manager) Status() model.ScriptProcess {
	return m.store.ScriptProcess()
}

func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cmd != nil
}
