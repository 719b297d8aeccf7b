package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leandrodaf/midicc/internal/logger"
	"github.com/leandrodaf/midicc/sdk/contracts"
)

const (
	defaultStartupGrace = 500 * time.Millisecond
	defaultStopTimeout  = 3 * time.Second
)

// ExecLauncher runs each worker instance as a child process
// ("<Path> worker --device N ..."). A child that exits within StartupGrace is
// treated as a failed launch, and its last stderr line becomes the diagnostic.
type ExecLauncher struct {
	Path         string
	Args         []string // inserted before the worker flags, e.g. {"worker"}
	ProbeEvery   int
	StartupGrace time.Duration
	StopTimeout  time.Duration
	Logger       contracts.Logger
}

// WorkerArgs renders the command-line flags understood by "midicc worker".
func WorkerArgs(s contracts.Settings, probeEvery int) []string {
	args := []string{
		"--device", strconv.Itoa(s.Device.Index),
		"--interval", strconv.Itoa(s.SamplingIntervalMs),
		"--channel", strconv.Itoa(s.Channel),
		"--cc", strconv.Itoa(s.Controller),
	}
	if s.Device.Name != "" {
		args = append(args, "--device-name", s.Device.Name)
	}
	if probeEvery > 0 {
		args = append(args, "--probe-every", strconv.Itoa(probeEvery))
	}
	return args
}

// Launch starts the child and waits out the startup grace period.
func (l *ExecLauncher) Launch(ctx context.Context, settings contracts.Settings) (Handle, error) {
	log := l.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	grace := l.StartupGrace
	if grace <= 0 {
		grace = defaultStartupGrace
	}

	args := append(append([]string{}, l.Args...), WorkerArgs(settings, l.ProbeEvery)...)
	cmd := exec.Command(l.Path, args...)
	setSysProcAttr(cmd)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting worker process: %w", err)
	}

	h := &processHandle{
		id:          uuid.NewString(),
		cmd:         cmd,
		done:        make(chan struct{}),
		stopTimeout: l.StopTimeout,
	}
	if h.stopTimeout <= 0 {
		h.stopTimeout = defaultStopTimeout
	}
	go h.wait(stderr, log)

	log.Debug("worker process started",
		log.Field().String("instance", h.id),
		log.Field().Int("pid", cmd.Process.Pid))

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-h.done:
		if err := h.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("worker exited during startup")
	case <-ctx.Done():
		_ = h.Stop(context.Background())
		return nil, ctx.Err()
	case <-timer.C:
		return h, nil
	}
}

type processHandle struct {
	id          string
	cmd         *exec.Cmd
	done        chan struct{}
	stopTimeout time.Duration

	mu       sync.Mutex
	lastLine string
	exitErr  error
	stopped  bool
}

// wait drains stderr, keeping the last non-empty line, then reaps the child.
func (h *processHandle) wait(stderr io.Reader, log contracts.Logger) {
	defer close(h.done)

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		h.mu.Lock()
		h.lastLine = line
		h.mu.Unlock()
		log.Debug("worker stderr", log.Field().String("instance", h.id), log.Field().String("line", line))
	}
	err := h.cmd.Wait()

	h.mu.Lock()
	h.exitErr = err
	h.mu.Unlock()
}

func (h *processHandle) ID() string            { return h.id }
func (h *processHandle) Done() <-chan struct{} { return h.done }

// Err prefers the child's own last stderr line over the exit status, since
// that is where the worker writes its diagnostic. A child killed by a signal
// never wrote one, so the signal is reported instead.
func (h *processHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(h.exitErr, &exitErr) && exitErr.ExitCode() == -1 {
		return fmt.Errorf("worker process: %w", h.exitErr)
	}
	if h.lastLine != "" {
		return errors.New(h.lastLine)
	}
	if h.exitErr != nil {
		return fmt.Errorf("worker process: %w", h.exitErr)
	}
	return nil
}

func (h *processHandle) Stop(ctx context.Context) error {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()

	select {
	case <-h.done:
		return nil
	default:
	}

	if err := sendTermSignal(h.cmd.Process); err != nil {
		_ = sendKillSignal(h.cmd.Process)
	}
	timer := time.NewTimer(h.stopTimeout)
	defer timer.Stop()
	select {
	case <-h.done:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}
	if err := sendKillSignal(h.cmd.Process); err != nil {
		return fmt.Errorf("killing worker process: %w", err)
	}
	<-h.done
	return nil
}
