package policy

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"backplane/internal/contract"
)

// Decision is the outcome of a single policy check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Allow returns a permitting decision.
func Allow() Decision { return Decision{Allowed: true} }

// Deny returns a denying decision with an explanation.
func Deny(reason string) Decision { return Decision{Allowed: false, Reason: reason} }

// DeniedError surfaces a policy denial as an error. Denials are non-fatal
// to a run: the orchestrator converts them into a warning event plus an
// erroring tool result and the run proceeds.
type DeniedError struct {
	Tool   string
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("policy denied tool %q: %s", e.Tool, e.Reason)
}

// Engine is a compiled, immutable policy decision object built once per
// run from the work order's PolicyProfile. It is stateless after
// compilation and safe for concurrent use without locking.
type Engine struct {
	root            string
	allowedTools    []string
	disallowedTools []string
	denyRead        []string
	denyWrite       []string
	allowNetwork    []string
	denyNetwork     []string
	requireApproval []string
	log             *zap.Logger
}

// Compile builds an Engine from a profile. Path rules are evaluated
// relative to workspaceRoot; pass "" when paths are already
// workspace-relative. Invalid glob patterns are dropped silently.
func Compile(profile contract.PolicyProfile, workspaceRoot string, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		root:            workspaceRoot,
		allowedTools:    compilePatterns(profile.AllowedTools, "allowed_tools", log),
		disallowedTools: compilePatterns(profile.DisallowedTools, "disallowed_tools", log),
		denyRead:        compilePatterns(profile.DenyRead, "deny_read", log),
		denyWrite:       compilePatterns(profile.DenyWrite, "deny_write", log),
		allowNetwork:    compilePatterns(profile.AllowNetwork, "allow_network", log),
		denyNetwork:     compilePatterns(profile.DenyNetwork, "deny_network", log),
		requireApproval: compilePatterns(profile.RequireApprovalFor, "require_approval_for", log),
	}
}

// CanUseTool applies the deny-overrides-allow rule: a match in
// disallowed_tools denies; otherwise a non-empty allowed_tools list the
// name does not match denies; otherwise allow.
func (e *Engine) CanUseTool(name string) Decision {
	if matchAny(e.disallowedTools, name) {
		return Deny(fmt.Sprintf("tool %q is disallowed", name))
	}
	if len(e.allowedTools) > 0 && !matchAny(e.allowedTools, name) {
		return Deny(fmt.Sprintf("tool %q not in allowlist", name))
	}
	return Allow()
}

// RequiresApproval reports whether the tool name matches any
// require_approval_for pattern.
func (e *Engine) RequiresApproval(name string) bool {
	return matchAny(e.requireApproval, name)
}

// CanReadPath canonicalizes the path against the workspace root and
// evaluates deny_read. A path that resolves outside the root is denied
// as an escape attempt regardless of the glob lists.
func (e *Engine) CanReadPath(p string) Decision {
	rel, escaped := e.canonicalRel(p)
	if escaped {
		return Deny(fmt.Sprintf("path %q escapes the workspace root", p))
	}
	if matchAny(e.denyRead, rel) {
		return Deny(fmt.Sprintf("read denied for %q", rel))
	}
	return Allow()
}

// CanWritePath is CanReadPath's counterpart for deny_write.
func (e *Engine) CanWritePath(p string) Decision {
	rel, escaped := e.canonicalRel(p)
	if escaped {
		return Deny(fmt.Sprintf("path %q escapes the workspace root", p))
	}
	if matchAny(e.denyWrite, rel) {
		return Deny(fmt.Sprintf("write denied for %q", rel))
	}
	return Allow()
}

// CanAccessNetwork evaluates a host against the network lists:
// deny_network wins, then a non-empty allow_network gates, else allow.
func (e *Engine) CanAccessNetwork(host string) Decision {
	if matchAny(e.denyNetwork, host) {
		return Deny(fmt.Sprintf("network access to %q is denied", host))
	}
	if len(e.allowNetwork) > 0 && !matchAny(e.allowNetwork, host) {
		return Deny(fmt.Sprintf("host %q not in network allowlist", host))
	}
	return Allow()
}

// canonicalRel resolves p to a workspace-relative, slash-separated path.
// The second return is true when the path resolves outside the root,
// whether via ".." segments or a symlink pointing elsewhere.
func (e *Engine) canonicalRel(p string) (string, bool) {
	if e.root == "" {
		clean := filepath.ToSlash(filepath.Clean(p))
		if filepath.IsAbs(p) || clean == ".." || strings.HasPrefix(clean, "../") {
			return clean, true
		}
		return clean, false
	}

	root := filepath.Clean(e.root)
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	abs := p
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, abs)
	}
	abs = filepath.Clean(abs)
	// Resolve symlinks when the target exists; a dangling path is
	// judged on its lexical form.
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return filepath.ToSlash(abs), true
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return rel, true
	}
	return rel, false
}
