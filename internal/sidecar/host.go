package sidecar

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"backplane/internal/contract"
	"backplane/internal/protocol"
)

// maxLineBytes bounds a single protocol line. Final envelopes carry whole
// receipts, so this is generous.
const maxLineBytes = 16 * 1024 * 1024

// pipeWaitDelay bounds how long Wait keeps the I/O pipes open after the
// child exits, in case a descendant that survived the group kill still
// holds the write ends.
const pipeWaitDelay = 3 * time.Second

// Spec describes how to launch a sidecar process.
type Spec struct {
	Command    string
	Args       []string
	Env        map[string]string
	Dir        string
	RunTimeout time.Duration
}

// Host supervises exactly one sidecar process for exactly one run. The
// orchestrator spawns a fresh Host per run and closes it afterwards.
type Host struct {
	log  *zap.Logger
	spec Spec
	lc   *Lifecycle

	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan []byte
	done  chan struct{}
	grp   *errgroup.Group

	backend contract.BackendIdentity
	caps    contract.CapabilityManifest

	closeOnce sync.Once
}

// Spawn launches the process and performs the hello handshake. The first
// stdout line must be a hello envelope carrying a matching contract
// version; anything else marks the process Crashed and kills it.
func Spawn(ctx context.Context, spec Spec, log *zap.Logger) (*Host, error) {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Host{
		log:   log.Named("sidecar"),
		spec:  spec,
		lc:    NewLifecycle(),
		lines: make(chan []byte, 64),
		done:  make(chan struct{}),
	}

	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.WaitDelay = pipeWaitDelay
	setupProcessGroup(cmd)
	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open sidecar stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open sidecar stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("open sidecar stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start sidecar %q: %w", spec.Command, err)
	}
	h.cmd = cmd
	h.stdin = stdin
	h.log.Debug("sidecar process started",
		zap.String("command", spec.Command),
		zap.Int("pid", cmd.Process.Pid))

	h.grp = &errgroup.Group{}
	h.grp.Go(func() error { return h.readStdout(stdout) })
	h.grp.Go(func() error { return h.drainStderr(stderr) })

	_ = h.lc.To(StateAwaitingHello, "process started")
	if err := h.handshake(ctx); err != nil {
		_ = h.lc.To(StateCrashed, err.Error())
		h.terminate()
		return nil, err
	}
	_ = h.lc.To(StateReady, "hello received")
	return h, nil
}

// readStdout copies protocol lines into h.lines and closes it on EOF.
func (h *Host) readStdout(r io.Reader) error {
	defer close(h.lines)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := make([]byte, len(sc.Bytes()))
		copy(line, sc.Bytes())
		select {
		case h.lines <- line:
		case <-h.done:
			return nil
		}
	}
	return sc.Err()
}

// drainStderr forwards the child's stderr to the diagnostic log. It never
// feeds the protocol demux.
func (h *Host) drainStderr(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		h.log.Warn("sidecar stderr", zap.String("line", sc.Text()))
	}
	return sc.Err()
}

func (h *Host) handshake(ctx context.Context) error {
	var line []byte
	var ok bool
	select {
	case line, ok = <-h.lines:
		if !ok {
			return &HandshakeError{Reason: "process exited before emitting hello"}
		}
	case <-ctx.Done():
		return &HandshakeError{Reason: "context canceled while awaiting hello", Err: ctx.Err()}
	}

	env, err := protocol.Decode(line)
	if err != nil {
		return &HandshakeError{Reason: "first line is not a valid envelope", Err: err}
	}
	if env.T != protocol.KindHello {
		return &HandshakeError{Reason: fmt.Sprintf("expected hello, got %q", env.T)}
	}
	if env.ContractVersion != contract.ContractVersion {
		return &HandshakeError{Reason: fmt.Sprintf(
			"contract version mismatch: backend speaks %q, orchestrator speaks %q",
			env.ContractVersion, contract.ContractVersion)}
	}
	h.backend = *env.Backend
	h.caps = env.Capabilities.Clone()
	h.log.Info("sidecar handshake complete",
		zap.String("backend", h.backend.ID),
		zap.Int("capabilities", len(h.caps)))
	return nil
}

// Backend returns the identity announced in the hello envelope.
func (h *Host) Backend() contract.BackendIdentity { return h.backend }

// Capabilities returns the manifest announced in the hello envelope.
func (h *Host) Capabilities() contract.CapabilityManifest { return h.caps }

// State returns the current lifecycle state.
func (h *Host) State() State { return h.lc.State() }

// History returns the lifecycle transition history.
func (h *Host) History() []Transition { return h.lc.History() }

// Run dispatches one work order and demultiplexes the response stream.
// Events are forwarded to the events channel (if non-nil) as they arrive
// and also collected for the receipt. Returns:
//
//   - (receipt, nil) when the backend emits final;
//   - (synthesized failed receipt, *TimeoutError) when the per-run
//     timeout elapses, after killing the process;
//   - (zero, *FatalError) when the backend emits fatal;
//   - (zero, *CrashedError) when the process exits before final.
//
// Malformed lines and envelopes referencing other run ids are logged and
// skipped; they never abort the run.
func (h *Host) Run(ctx context.Context, runID uuid.UUID, wo contract.WorkOrder, events chan<- contract.AgentEvent) (contract.Receipt, error) {
	if err := h.lc.To(StateRunInFlight, "run dispatched"); err != nil {
		return contract.Receipt{}, err
	}
	started := time.Now().UTC()
	id := runID.String()

	line, err := protocol.Encode(protocol.Run(id, wo))
	if err != nil {
		_ = h.lc.To(StateFailed, "encode run envelope")
		h.terminate()
		return contract.Receipt{}, err
	}
	if _, err := h.stdin.Write(line); err != nil {
		_ = h.lc.To(StateCrashed, "write run envelope")
		h.terminate()
		return contract.Receipt{}, &CrashedError{ExitCode: h.exitCode(), Err: err}
	}

	var timeout <-chan time.Time
	if h.spec.RunTimeout > 0 {
		t := time.NewTimer(h.spec.RunTimeout)
		defer t.Stop()
		timeout = t.C
	}

	var observed []contract.AgentEvent
	for {
		select {
		case raw, ok := <-h.lines:
			if !ok {
				_ = h.lc.To(StateCrashed, "stdout closed before final")
				h.terminate()
				return contract.Receipt{}, &CrashedError{ExitCode: h.exitCode()}
			}
			env, err := protocol.Decode(raw)
			if err != nil {
				h.log.Warn("skipping malformed sidecar line", zap.Error(err))
				continue
			}
			switch env.T {
			case protocol.KindEvent:
				if env.RefID != id {
					h.log.Warn("event for unknown run id, skipping",
						zap.String("ref_id", env.RefID))
					continue
				}
				observed = append(observed, *env.Event)
				if events != nil {
					select {
					case events <- *env.Event:
					case <-ctx.Done():
						_ = h.lc.To(StateFailed, "context canceled")
						h.terminate()
						return contract.Receipt{}, ctx.Err()
					}
				}
			case protocol.KindFinal:
				if env.RefID != id {
					h.log.Warn("final for unknown run id, skipping",
						zap.String("ref_id", env.RefID))
					continue
				}
				_ = h.lc.To(StateCompleted, "final received")
				h.terminate()
				return *env.Receipt, nil
			case protocol.KindFatal:
				_ = h.lc.To(StateFailed, "fatal received")
				h.terminate()
				return contract.Receipt{}, &FatalError{RunID: env.RefID, Message: env.Error}
			default:
				h.log.Warn("unexpected envelope kind mid-run, skipping",
					zap.String("kind", string(env.T)))
			}

		case <-timeout:
			_ = h.lc.To(StateTimedOut, "run timeout elapsed")
			h.terminate()
			return h.synthesizeTimedOut(runID, wo, started, observed),
				&TimeoutError{RunID: id, Timeout: h.spec.RunTimeout.String()}

		case <-ctx.Done():
			_ = h.lc.To(StateFailed, "context canceled")
			h.terminate()
			return contract.Receipt{}, ctx.Err()
		}
	}
}

// synthesizeTimedOut builds a failed receipt from the partial trace so the
// caller still gets an auditable record of what happened before the kill.
func (h *Host) synthesizeTimedOut(runID uuid.UUID, wo contract.WorkOrder, started time.Time, observed []contract.AgentEvent) contract.Receipt {
	trace := append(observed, contract.NewError(
		fmt.Sprintf("backend timed out after %s; process killed", h.spec.RunTimeout)))
	return contract.NewReceipt(h.backend).
		RunID(runID).
		WorkOrderID(wo.ID).
		Window(started, time.Now().UTC()).
		Capabilities(h.caps).
		Outcome(contract.OutcomeFailed).
		Trace(trace).
		Build()
}

// terminate kills the whole process tree if still alive and reaps it and
// the pipe goroutines. The child runs in its own process group, so stuck
// descendants die with it instead of holding the stdout pipe open; Wait
// runs before the reader goroutines are collected because it closes the
// pipes once the child is gone. Idempotent.
func (h *Host) terminate() {
	h.closeOnce.Do(func() {
		close(h.done)
		_ = h.stdin.Close()
		_ = killProcessGroup(h.cmd)
		_ = h.cmd.Wait()
		_ = h.grp.Wait()
	})
}

// Close tears the process down. Safe to call after Run has already
// terminated it.
func (h *Host) Close() error {
	h.terminate()
	if !h.lc.State().Terminal() {
		_ = h.lc.To(StateFailed, "closed by caller")
	}
	return nil
}

func (h *Host) exitCode() int {
	if h.cmd.ProcessState == nil {
		return -1
	}
	return h.cmd.ProcessState.ExitCode()
}
