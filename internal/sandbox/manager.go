// Package sandbox owns the single long-running execution container: image
// presence, orphan cleanup, the in-container proxy, health probing, and
// serialized script execution with timeout enforcement.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/mcphub/internal/config"
	"github.com/flemzord/mcphub/internal/workspace"
)

// State is the sandbox lifecycle state.
type State string

// Sandbox states.
const (
	StateAbsent    State = "absent"
	StateStarting  State = "starting"
	StateHealthy   State = "healthy"
	StateUnhealthy State = "unhealthy"
)

// Execution states.
const (
	ExecPending   = "pending"
	ExecRunning   = "running"
	ExecCompleted = "completed"
	ExecTimedOut  = "timed_out"
	ExecFailed    = "failed"
)

// timeoutExitCode is reported when the wall-clock budget expires, matching
// the shell timeout convention.
const timeoutExitCode = 124

// Health probe cadence per the startup contract.
const (
	probeInterval = 200 * time.Millisecond
	probeBudget   = 30 * time.Second
)

// containerRoot is the fixed path the workspace root is bound to.
const containerRoot = "/workspace"

// Execution is the record of one script run.
type Execution struct {
	ID        string        `json:"id"`
	State     string        `json:"state"`
	ExitCode  int           `json:"exit_code"`
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Source    string        `json:"-"`
}

// Recorder persists finished executions. Implemented by the history store.
type Recorder interface {
	Record(ctx context.Context, exec Execution) error
}

// Manager is the process-wide singleton owning the container handle. At
// most one sandbox exists per process; once a container id is set the
// manager is obligated to stop it on orderly shutdown.
type Manager struct {
	cfg        config.SandboxConfig
	ws         *workspace.Workspace
	configPath string
	exePath    string
	logger     *slog.Logger
	recorder   Recorder
	streams    *streamHub

	execMu sync.Mutex // serializes Execute against the single sandbox

	mu          sync.Mutex
	state       State
	containerID string
}

// NewManager creates a manager. configPath is the host config file bound
// into the container for the in-container proxy.
func NewManager(cfg config.SandboxConfig, ws *workspace.Workspace, configPath string, recorder Recorder, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("sandbox: resolving executable: %w", err)
	}
	return &Manager{
		cfg:        cfg,
		ws:         ws,
		configPath: configPath,
		exePath:    exe,
		logger:     logger,
		recorder:   recorder,
		streams:    newStreamHub(),
		state:      StateAbsent,
	}, nil
}

// State returns the current sandbox state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe attaches to the live output of a running execution.
func (m *Manager) Subscribe(execID string) (<-chan Chunk, func()) {
	return m.streams.Subscribe(execID)
}

// Ensure brings the sandbox to healthy: orphan cleanup, image build, start,
// in-container proxy, health probe. Called at startup and again by Execute
// whenever the sandbox is absent or unhealthy.
func (m *Manager) Ensure(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateHealthy && m.containerID != "" {
		m.mu.Unlock()
		return nil
	}
	stale := m.containerID
	m.state = StateStarting
	m.containerID = ""
	m.mu.Unlock()

	if !m.runtimePresent() {
		m.setState(StateAbsent)
		return fmt.Errorf("%w: %q not on PATH", ErrRuntimeMissing, m.cfg.Runtime)
	}
	if stale != "" {
		m.stopContainer(stale)
	}
	if err := m.CleanupOrphans(ctx); err != nil {
		m.setState(StateAbsent)
		return err
	}
	if err := m.ensureImage(ctx); err != nil {
		m.setState(StateAbsent)
		return err
	}

	id, err := m.startContainer(ctx)
	if err != nil {
		m.setState(StateAbsent)
		return fmt.Errorf("%w: %v", ErrUnhealthy, err)
	}

	m.mu.Lock()
	m.containerID = id
	m.mu.Unlock()

	if err := m.probe(ctx); err != nil {
		m.stopContainer(id)
		m.mu.Lock()
		m.containerID = ""
		m.state = StateUnhealthy
		m.mu.Unlock()
		return err
	}

	m.setState(StateHealthy)
	m.logger.Info("sandbox healthy", "container", id[:12])
	return nil
}

// probe polls the in-container proxy over loopback HTTP until it answers
// or the budget expires.
func (m *Manager) probe(ctx context.Context) error {
	url := fmt.Sprintf("http://127.0.0.1:%d/health", m.cfg.ProxyPort)
	client := &http.Client{Timeout: probeInterval}
	deadline := time.Now().Add(probeBudget)

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		resp, err := client.Get(url)
		if err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(probeInterval)
	}
	return fmt.Errorf("%w: proxy did not answer on %s within %s", ErrUnhealthy, url, probeBudget)
}

// Execute runs one script inside the sandbox. Executions are serialized by
// a mutex; concurrent submissions queue. On timeout the in-container
// process is killed, partial output collected so far is returned, and the
// state is timed_out. The script file is removed afterwards.
func (m *Manager) Execute(ctx context.Context, code string, timeout time.Duration) (Execution, error) {
	m.execMu.Lock()
	defer m.execMu.Unlock()

	if err := m.Ensure(ctx); err != nil {
		return Execution{}, err
	}

	m.mu.Lock()
	containerID := m.containerID
	m.mu.Unlock()
	if containerID == "" {
		return Execution{}, ErrNotRunning
	}

	ex := Execution{
		ID:        uuid.NewString(),
		State:     ExecPending,
		Source:    code,
		StartedAt: time.Now(),
	}

	// Stage the script under the workspace with the implicit import line
	// so generated bindings are in scope.
	script := "from servers import *\n\n" + code
	hostPath := filepath.Join(m.ws.RunsDir(), ex.ID+".py")
	if err := os.WriteFile(hostPath, []byte(script), 0o644); err != nil {
		return Execution{}, fmt.Errorf("sandbox: staging script: %w", err)
	}
	defer os.Remove(hostPath)

	containerPath := containerRoot + "/workspace/.runs/" + ex.ID + ".py"
	ex.State = ExecRunning
	result := m.runScript(ctx, containerID, ex, containerPath, timeout)

	if m.recorder != nil {
		if err := m.recorder.Record(context.WithoutCancel(ctx), result); err != nil {
			m.logger.Warn("recording execution failed", "id", result.ID, "error", err)
		}
	}
	return result, nil
}

// runScript drives the in-container interpreter and classifies the outcome.
func (m *Manager) runScript(ctx context.Context, containerID string, ex Execution, containerPath string, timeout time.Duration) Execution {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, m.cfg.Runtime,
		"exec",
		"-e", "PYTHONPATH="+containerRoot+"/generated:"+containerRoot+"/workspace/skills",
		"-e", fmt.Sprintf("MCPHUB_PROXY_URL=http://127.0.0.1:%d/mcp", m.cfg.ProxyPort),
		containerID,
		"python3", containerPath,
	)
	cmd.Stdout = io.MultiWriter(&stdout, &hubWriter{hub: m.streams, execID: ex.ID, stream: "stdout"})
	cmd.Stderr = io.MultiWriter(&stderr, &hubWriter{hub: m.streams, execID: ex.ID, stream: "stderr"})

	err := cmd.Run()
	m.streams.finish(ex.ID)

	ex.Stdout = stdout.String()
	ex.Stderr = stderr.String()
	ex.Duration = time.Since(ex.StartedAt)

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		// Best-effort kill of the in-container process; the exec client
		// is already gone.
		m.killScript(containerPath)
		ex.State = ExecTimedOut
		ex.ExitCode = timeoutExitCode
	case err == nil:
		ex.State = ExecCompleted
		ex.ExitCode = 0
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			ex.State = ExecCompleted
			ex.ExitCode = exitErr.ExitCode()
		} else {
			// The exec itself failed: the container is gone or the
			// runtime faulted. Mark the sandbox for recovery.
			ex.State = ExecFailed
			ex.ExitCode = -1
			ex.Stderr = ex.Stderr + "\n" + err.Error()
			m.setState(StateUnhealthy)
		}
	}
	return ex
}

// killScript terminates a timed-out interpreter inside the container.
func (m *Manager) killScript(containerPath string) {
	m.mu.Lock()
	id := m.containerID
	m.mu.Unlock()
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = m.runtimeCmd(ctx, "exec", id, "pkill", "-f", containerPath)
}

// Shutdown stops and removes the container. Idempotent: safe to call from
// the signal handler, the defer path, and tests.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	id := m.containerID
	m.containerID = ""
	m.state = StateAbsent
	m.mu.Unlock()

	if id == "" {
		return
	}
	m.logger.Info("stopping sandbox", "container", id[:12])
	m.stopContainer(id)
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}
