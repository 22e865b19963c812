package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"backplane/internal/contract"
)

// mockVendorNS is the vendor namespace the mock backend reads its
// scripted behavior from.
const mockVendorNS = "mock"

// MockBackend is an in-process backend that emits a canned trace and a
// well-formed receipt without touching any external process or network.
// It exists for tests, demos, and policy experiments.
//
// Scripted tool calls may be supplied through the work order's vendor
// options under namespace "mock", key "tool_calls": a list of
// {"tool": name, "input": {...}} objects. Each one is emitted as a
// tool_call followed by a successful tool_result. Key "file_changes"
// works the same way for file_changed events: a list of
// {"path": p, "summary": s} objects.
type MockBackend struct {
	log *zap.Logger
}

// NewMockBackend returns a mock backend logging through log.
func NewMockBackend(log *zap.Logger) *MockBackend {
	if log == nil {
		log = zap.NewNop()
	}
	return &MockBackend{log: log.Named("mock")}
}

// Identity implements Backend.
func (m *MockBackend) Identity() contract.BackendIdentity {
	return contract.BackendIdentity{
		ID:             "mock",
		BackendVersion: "0.1.0",
		AdapterVersion: "0.1.0",
	}
}

// Capabilities implements Backend. Tool capabilities are emulated; the
// mock never actually reads or writes anything.
func (m *MockBackend) Capabilities() (contract.CapabilityManifest, bool) {
	return contract.CapabilityManifest{
		contract.CapStreaming:      contract.SupportNative,
		contract.CapToolRead:       contract.SupportEmulated,
		contract.CapToolWrite:      contract.SupportEmulated,
		contract.CapToolEdit:       contract.SupportEmulated,
		contract.CapToolBash:       contract.SupportEmulated,
		contract.CapStructuredJSON: contract.SupportEmulated,
	}, true
}

// scriptedCall is one entry parsed from vendor["mock"]["tool_calls"].
type scriptedCall struct {
	tool  string
	input map[string]any
}

func scriptedCalls(wo *contract.WorkOrder) []scriptedCall {
	ns := wo.VendorNamespace(mockVendorNS)
	if ns == nil {
		return nil
	}
	raw, ok := ns["tool_calls"].([]any)
	if !ok {
		return nil
	}
	var calls []scriptedCall
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		tool, _ := entry["tool"].(string)
		if tool == "" {
			continue
		}
		input, _ := entry["input"].(map[string]any)
		calls = append(calls, scriptedCall{tool: tool, input: input})
	}
	return calls
}

func scriptedFileChanges(wo *contract.WorkOrder) []contract.AgentEvent {
	ns := wo.VendorNamespace(mockVendorNS)
	if ns == nil {
		return nil
	}
	raw, ok := ns["file_changes"].([]any)
	if !ok {
		return nil
	}
	var evs []contract.AgentEvent
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		path, _ := entry["path"].(string)
		if path == "" {
			continue
		}
		summary, _ := entry["summary"].(string)
		evs = append(evs, contract.NewFileChanged(path, summary))
	}
	return evs
}

// Run implements Backend. The trace always opens with run_started and
// closes with run_completed.
func (m *MockBackend) Run(ctx context.Context, runID uuid.UUID, wo contract.WorkOrder, events chan<- contract.AgentEvent) (contract.Receipt, error) {
	started := time.Now().UTC()
	m.log.Debug("mock run starting",
		zap.String("run_id", runID.String()),
		zap.String("task", wo.Task))

	var trace []contract.AgentEvent
	emit := func(ev contract.AgentEvent) error {
		trace = append(trace, ev)
		if events == nil {
			return nil
		}
		select {
		case events <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	script := []contract.AgentEvent{
		contract.NewRunStarted("mock backend accepted work order"),
		contract.NewAssistantMessage(fmt.Sprintf("Mock run for task: %s", wo.Task)),
	}
	for _, call := range scriptedCalls(&wo) {
		id := uuid.New().String()
		script = append(script,
			contract.NewToolCall(call.tool, id, call.input),
			contract.NewToolResult(call.tool, id, map[string]any{"ok": true}, false),
		)
	}
	script = append(script, scriptedFileChanges(&wo)...)
	script = append(script, contract.NewRunCompleted("mock run finished"))

	for _, ev := range script {
		if err := emit(ev); err != nil {
			return contract.Receipt{}, err
		}
	}

	manifest, _ := m.Capabilities()
	rec := contract.NewReceipt(m.Identity()).
		RunID(runID).
		WorkOrderID(wo.ID).
		Window(started, time.Now().UTC()).
		Capabilities(manifest).
		Outcome(contract.OutcomeComplete).
		UsageRaw(map[string]any{"mock": true}).
		Usage(contract.UsageNormalized{
			InputTokens:  contract.Uint64(0),
			OutputTokens: contract.Uint64(0),
		}).
		Trace(trace).
		Verification(contract.VerificationReport{HarnessOK: true}).
		Build()
	return rec, nil
}
