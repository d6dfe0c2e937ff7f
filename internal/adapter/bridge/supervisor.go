package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"courier-ai/internal/domain"
	"courier-ai/internal/infra/config"
)

// ControlResult reports the outcome of a supervisor action.
type ControlResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	RunID   string `json:"run_id,omitempty"`
	PID     int    `json:"pid,omitempty"`
}

// Supervisor starts and stops the external bridge process. At most one
// bridge process runs at a time; each run gets a ULID for log correlation.
type Supervisor struct {
	command    string
	args       []string
	workDir    string
	startGrace time.Duration
	client     *Client
	logger     *slog.Logger

	mu    sync.Mutex
	cmd   *exec.Cmd
	runID string
}

// NewSupervisor builds a supervisor from config. The client is used for
// post-start liveness probes and status cache invalidation.
func NewSupervisor(cfg config.BridgeConfig, client *Client, logger *slog.Logger) *Supervisor {
	grace := cfg.StartGrace
	if grace <= 0 {
		grace = 2 * time.Second
	}
	return &Supervisor{
		command:    cfg.Command,
		args:       cfg.Args,
		workDir:    cfg.WorkDir,
		startGrace: grace,
		client:     client,
		logger:     logger,
	}
}

// Start launches the bridge process. Starting an already-live bridge is a
// no-op success.
func (s *Supervisor) Start(ctx context.Context) (*ControlResult, error) {
	if s.client.Alive(ctx) {
		return &ControlResult{Status: "success", Message: "bridge already running"}, nil
	}
	if s.command == "" {
		return nil, fmt.Errorf("%w: no bridge command configured", domain.ErrBridgeUnavailable)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	runID := ulid.Make().String()
	cmd := exec.Command(s.command, s.args...)
	cmd.Dir = s.workDir
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start bridge: %v", domain.ErrBridgeUnavailable, err)
	}
	s.cmd = cmd
	s.runID = runID

	// Reap the process when it exits so it never zombies.
	go func() {
		err := cmd.Wait()
		s.logger.Info("bridge process exited", "run_id", runID, "err", err)
		s.mu.Lock()
		if s.runID == runID {
			s.cmd = nil
			s.runID = ""
		}
		s.mu.Unlock()
	}()

	s.logger.Info("bridge process started",
		"run_id", runID, "pid", cmd.Process.Pid, "command", s.command)

	// Give the bridge a moment to bind before probing.
	select {
	case <-time.After(s.startGrace):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.client.InvalidateStatus()
	if !s.client.Alive(ctx) {
		return nil, fmt.Errorf("%w: bridge did not come up", domain.ErrBridgeUnavailable)
	}

	return &ControlResult{
		Status:  "success",
		Message: "bridge started",
		RunID:   runID,
		PID:     cmd.Process.Pid,
	}, nil
}

// Stop terminates the supervised bridge process if one is running.
func (s *Supervisor) Stop(ctx context.Context) (*ControlResult, error) {
	s.mu.Lock()
	cmd := s.cmd
	runID := s.runID
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return &ControlResult{Status: "success", Message: "bridge not running"}, nil
	}

	if err := cmd.Process.Kill(); err != nil {
		return nil, fmt.Errorf("%w: stop bridge: %v", domain.ErrBridgeUnavailable, err)
	}

	s.client.InvalidateStatus()
	s.logger.Info("bridge process stopped", "run_id", runID)
	return &ControlResult{Status: "success", Message: "bridge stopped", RunID: runID}, nil
}

// Status reports bridge liveness using the client's cached probe.
func (s *Supervisor) Status(ctx context.Context) *ControlResult {
	if s.client.Alive(ctx) {
		return &ControlResult{Status: "success", Message: "bridge running"}
	}
	return &ControlResult{Status: "down", Message: "bridge not responding"}
}
