package sidecar

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"backplane/internal/contract"
	"backplane/internal/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// jsonLine renders an envelope without the trailing newline so it can be
// passed to a shell script through the environment.
func jsonLine(t *testing.T, env protocol.Envelope) string {
	t.Helper()
	line, err := protocol.Encode(env)
	require.NoError(t, err)
	return strings.TrimSuffix(string(line), "\n")
}

func helloLine(t *testing.T) string {
	return jsonLine(t, protocol.Hello(
		contract.BackendIdentity{ID: "sh-agent", BackendVersion: "1.0.0"},
		contract.CapabilityManifest{
			contract.CapStreaming: contract.SupportNative,
			contract.CapToolBash:  contract.SupportNative,
		},
	))
}

// spawnScript runs a /bin/sh script whose protocol lines arrive through
// environment variables.
func spawnScript(t *testing.T, ctx context.Context, script string, env map[string]string, timeout time.Duration) (*Host, error) {
	t.Helper()
	return Spawn(ctx, Spec{
		Command:    "sh",
		Args:       []string{"-c", script},
		Env:        env,
		RunTimeout: timeout,
	}, nil)
}

func TestHostHappyPath(t *testing.T) {
	runID := uuid.New()
	wo := contract.NewWorkOrder("say hello").Build()

	rec := contract.NewReceipt(contract.BackendIdentity{ID: "sh-agent"}).
		RunID(runID).
		WorkOrderID(wo.ID).
		AppendEvent(contract.NewRunStarted("go")).
		AppendEvent(contract.NewRunCompleted("done")).
		Build()

	env := map[string]string{
		"HELLO":       helloLine(t),
		"EV_STARTED":  jsonLine(t, protocol.Event(runID.String(), contract.NewRunStarted("go"))),
		"EV_FINISHED": jsonLine(t, protocol.Event(runID.String(), contract.NewRunCompleted("done"))),
		"FINAL":       jsonLine(t, protocol.Final(runID.String(), rec)),
	}
	script := `echo "$HELLO"; read line; echo "$EV_STARTED"; echo "$EV_FINISHED"; echo "$FINAL"`

	h, err := spawnScript(t, context.Background(), script, env, 5*time.Second)
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, StateReady, h.State())
	assert.Equal(t, "sh-agent", h.Backend().ID)
	assert.Equal(t, contract.SupportNative, h.Capabilities().Level(contract.CapStreaming))

	events := make(chan contract.AgentEvent, 16)
	got, err := h.Run(context.Background(), runID, wo, events)
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, h.State())
	assert.Equal(t, runID, got.Meta.RunID)
	assert.True(t, contract.BookendsHold(got.Trace))

	close(events)
	var streamed []contract.AgentEvent
	for ev := range events {
		streamed = append(streamed, ev)
	}
	require.Len(t, streamed, 2)
	assert.Equal(t, contract.EventRunStarted, streamed[0].Type)
	assert.Equal(t, contract.EventRunCompleted, streamed[1].Type)
}

func TestHostMalformedLinesSkipped(t *testing.T) {
	runID := uuid.New()
	wo := contract.NewWorkOrder("noisy backend").Build()
	rec := contract.NewReceipt(contract.BackendIdentity{ID: "sh-agent"}).RunID(runID).Build()

	env := map[string]string{
		"HELLO": helloLine(t),
		"EV":    jsonLine(t, protocol.Event(runID.String(), contract.NewAssistantMessage("hi"))),
		"FINAL": jsonLine(t, protocol.Final(runID.String(), rec)),
	}
	script := `echo "$HELLO"; read line
echo "this is not json at all"
echo "$EV"
echo '{"t":"telemetry"}'
echo "$FINAL"`

	h, err := spawnScript(t, context.Background(), script, env, 5*time.Second)
	require.NoError(t, err)
	defer h.Close()

	events := make(chan contract.AgentEvent, 16)
	_, err = h.Run(context.Background(), runID, wo, events)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, h.State())
	assert.Len(t, events, 1)
}

func TestHostCrashBeforeFinal(t *testing.T) {
	runID := uuid.New()
	wo := contract.NewWorkOrder("doomed").Build()

	env := map[string]string{
		"HELLO": helloLine(t),
		"EV":    jsonLine(t, protocol.Event(runID.String(), contract.NewRunStarted("go"))),
	}
	script := `echo "$HELLO"; read line; echo "$EV"; exit 3`

	h, err := spawnScript(t, context.Background(), script, env, 5*time.Second)
	require.NoError(t, err)
	defer h.Close()

	_, err = h.Run(context.Background(), runID, wo, nil)
	require.Error(t, err)

	var crashed *CrashedError
	require.True(t, errors.As(err, &crashed))
	assert.Equal(t, 3, crashed.ExitCode)
	assert.Equal(t, StateCrashed, h.State())
}

func TestHostFatalEnvelope(t *testing.T) {
	runID := uuid.New()
	wo := contract.NewWorkOrder("fatal").Build()

	env := map[string]string{
		"HELLO": helloLine(t),
		"FATAL": jsonLine(t, protocol.Fatal(runID.String(), "model quota exhausted")),
	}
	script := `echo "$HELLO"; read line; echo "$FATAL"; sleep 1`

	h, err := spawnScript(t, context.Background(), script, env, 5*time.Second)
	require.NoError(t, err)
	defer h.Close()

	_, err = h.Run(context.Background(), runID, wo, nil)
	require.Error(t, err)

	var fatal *FatalError
	require.True(t, errors.As(err, &fatal))
	assert.Contains(t, fatal.Message, "quota exhausted")
	assert.Equal(t, StateFailed, h.State())
}

func TestHostTimeoutSynthesizesReceipt(t *testing.T) {
	runID := uuid.New()
	wo := contract.NewWorkOrder("slow").Build()

	env := map[string]string{
		"HELLO": helloLine(t),
		"EV":    jsonLine(t, protocol.Event(runID.String(), contract.NewRunStarted("go"))),
	}
	script := `echo "$HELLO"; read line; echo "$EV"; sleep 30`

	h, err := spawnScript(t, context.Background(), script, env, 300*time.Millisecond)
	require.NoError(t, err)
	defer h.Close()

	rec, err := h.Run(context.Background(), runID, wo, nil)
	require.Error(t, err)

	var timedOut *TimeoutError
	require.True(t, errors.As(err, &timedOut))
	assert.Equal(t, StateTimedOut, h.State())

	// The synthesized receipt carries the partial trace plus a
	// terminal error event.
	assert.Equal(t, contract.OutcomeFailed, rec.Outcome)
	assert.Equal(t, runID, rec.Meta.RunID)
	require.NotEmpty(t, rec.Trace)
	last := rec.Trace[len(rec.Trace)-1]
	assert.Equal(t, contract.EventError, last.Type)
	assert.Contains(t, last.Message, "timed out")
}

func TestHostTimeoutKillsProcessTree(t *testing.T) {
	runID := uuid.New()
	wo := contract.NewWorkOrder("stuck tool").Build()

	// The child spawns its own stuck grandchild. Killing only the
	// direct child would leave the grandchild holding the stdout pipe
	// and the timeout branch waiting out the full sleep.
	env := map[string]string{"HELLO": helloLine(t)}
	script := `echo "$HELLO"; read line; sh -c 'sleep 30'`

	start := time.Now()
	h, err := spawnScript(t, context.Background(), script, env, 300*time.Millisecond)
	require.NoError(t, err)
	defer h.Close()

	rec, err := h.Run(context.Background(), runID, wo, nil)
	elapsed := time.Since(start)

	var timedOut *TimeoutError
	require.True(t, errors.As(err, &timedOut))
	assert.Equal(t, StateTimedOut, h.State())
	assert.Equal(t, contract.OutcomeFailed, rec.Outcome)
	assert.Less(t, elapsed, 5*time.Second,
		"expiry must terminate the whole process tree, not wait it out")
}

func TestHostRejectsNonHelloFirstLine(t *testing.T) {
	runID := uuid.New()
	env := map[string]string{
		"EV": jsonLine(t, protocol.Event(runID.String(), contract.NewRunStarted("go"))),
	}
	script := `echo "$EV"; sleep 1`

	_, err := spawnScript(t, context.Background(), script, env, time.Second)
	require.Error(t, err)

	var handshake *HandshakeError
	require.True(t, errors.As(err, &handshake))
	assert.Contains(t, err.Error(), "expected hello")
}

func TestHostRejectsGarbageHandshake(t *testing.T) {
	_, err := spawnScript(t, context.Background(), `echo "garbage"; sleep 1`, nil, time.Second)
	require.Error(t, err)

	var handshake *HandshakeError
	require.True(t, errors.As(err, &handshake))
}

func TestHostRejectsExitBeforeHello(t *testing.T) {
	_, err := spawnScript(t, context.Background(), `exit 0`, nil, time.Second)
	require.Error(t, err)

	var handshake *HandshakeError
	require.True(t, errors.As(err, &handshake))
	assert.Contains(t, err.Error(), "exited before emitting hello")
}

func TestHostRejectsContractVersionMismatch(t *testing.T) {
	old := contract.BackendIdentity{ID: "ancient"}
	env := map[string]string{
		"HELLO": jsonLine(t, protocol.Envelope{
			T:               protocol.KindHello,
			ContractVersion: "abp/v0.0",
			Backend:         &old,
		}),
	}
	_, err := spawnScript(t, context.Background(), `echo "$HELLO"; sleep 1`, env, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contract version mismatch")
}

func TestHostEventsForOtherRunsIgnored(t *testing.T) {
	runID := uuid.New()
	wo := contract.NewWorkOrder("strict routing").Build()
	rec := contract.NewReceipt(contract.BackendIdentity{ID: "sh-agent"}).RunID(runID).Build()

	env := map[string]string{
		"HELLO":    helloLine(t),
		"EV_OTHER": jsonLine(t, protocol.Event(uuid.New().String(), contract.NewAssistantMessage("wrong run"))),
		"EV_MINE":  jsonLine(t, protocol.Event(runID.String(), contract.NewAssistantMessage("right run"))),
		"FINAL":    jsonLine(t, protocol.Final(runID.String(), rec)),
	}
	script := `echo "$HELLO"; read line; echo "$EV_OTHER"; echo "$EV_MINE"; echo "$FINAL"`

	h, err := spawnScript(t, context.Background(), script, env, 5*time.Second)
	require.NoError(t, err)
	defer h.Close()

	events := make(chan contract.AgentEvent, 16)
	_, err = h.Run(context.Background(), runID, wo, events)
	require.NoError(t, err)

	require.Len(t, events, 1)
	got := <-events
	assert.Equal(t, "right run", got.Text)
}
