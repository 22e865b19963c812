package contract

// Capability names a discrete feature a backend may support. Names are
// open strings rather than a closed enum: an older backend simply reports
// unsupported for names it has never heard of.
type Capability string

// Well-known capability names. Backends may advertise names beyond this
// list; absence from a manifest always means unsupported.
const (
	CapStreaming        Capability = "streaming"
	CapToolRead         Capability = "tool_read"
	CapToolWrite        Capability = "tool_write"
	CapToolEdit         Capability = "tool_edit"
	CapToolBash         Capability = "tool_bash"
	CapToolGlob         Capability = "tool_glob"
	CapToolGrep         Capability = "tool_grep"
	CapWebSearch        Capability = "tool_web_search"
	CapWebFetch         Capability = "tool_web_fetch"
	CapMCPClient        Capability = "mcp_client"
	CapMCPServer        Capability = "mcp_server"
	CapSessionResume    Capability = "session_resume"
	CapCheckpointing    Capability = "checkpointing"
	CapStructuredJSON   Capability = "structured_output_json_schema"
	CapExtendedThinking Capability = "extended_thinking"
)

// SupportLevel records how well a backend supports a capability. The
// ordering native > emulated > unsupported is a policy decision, made
// explicit through Ordinal rather than derived from declaration order.
type SupportLevel string

const (
	// SupportUnsupported means the capability is not available.
	SupportUnsupported SupportLevel = "unsupported"
	// SupportEmulated means the capability is provided via an adapter
	// or polyfill layer.
	SupportEmulated SupportLevel = "emulated"
	// SupportNative means first-class support built into the backend.
	SupportNative SupportLevel = "native"
)

// Ordinal maps the support level onto the total order
// unsupported=0 < emulated=1 < native=2. Unknown strings rank as
// unsupported.
func (s SupportLevel) Ordinal() int {
	switch s {
	case SupportNative:
		return 2
	case SupportEmulated:
		return 1
	default:
		return 0
	}
}

// Satisfies reports whether this level meets or exceeds min.
func (s SupportLevel) Satisfies(min SupportLevel) bool {
	return s.Ordinal() >= min.Ordinal()
}

// CapabilityManifest maps each capability a backend advertises to its
// support level. A name absent from the manifest is unsupported.
type CapabilityManifest map[Capability]SupportLevel

// Level returns the support level for cap, defaulting to unsupported for
// absent names.
func (m CapabilityManifest) Level(cap Capability) SupportLevel {
	if lvl, ok := m[cap]; ok {
		return lvl
	}
	return SupportUnsupported
}

// Clone returns a copy of the manifest so receipts can snapshot it
// without aliasing the backend's live map.
func (m CapabilityManifest) Clone() CapabilityManifest {
	if m == nil {
		return nil
	}
	out := make(CapabilityManifest, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// CapabilityRequirement pairs a capability with the minimum support level
// a backend must provide for it.
type CapabilityRequirement struct {
	Capability Capability   `json:"capability"`
	MinSupport SupportLevel `json:"min_support"`
}

// CapabilityRequirements is the set of capabilities a work order demands
// from its backend.
type CapabilityRequirements struct {
	Required []CapabilityRequirement `json:"required"`
}
