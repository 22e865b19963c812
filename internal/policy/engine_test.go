package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backplane/internal/contract"
)

func TestEmptyProfileAllowsEverything(t *testing.T) {
	eng := Compile(contract.PolicyProfile{}, "", nil)

	assert.True(t, eng.CanUseTool("Bash").Allowed)
	assert.True(t, eng.CanReadPath("src/main.go").Allowed)
	assert.True(t, eng.CanWritePath("src/main.go").Allowed)
	assert.True(t, eng.CanAccessNetwork("example.com").Allowed)
}

func TestDenyOverridesAllow(t *testing.T) {
	eng := Compile(contract.PolicyProfile{
		AllowedTools:    []string{"*"},
		DisallowedTools: []string{"Bash"},
	}, "", nil)

	d := eng.CanUseTool("Bash")
	assert.False(t, d.Allowed)
	assert.Equal(t, `tool "Bash" is disallowed`, d.Reason)

	assert.True(t, eng.CanUseTool("Read").Allowed)
}

func TestAllowlistGatesUnlistedTools(t *testing.T) {
	eng := Compile(contract.PolicyProfile{
		AllowedTools: []string{"Read", "Grep"},
	}, "", nil)

	assert.True(t, eng.CanUseTool("Read").Allowed)

	d := eng.CanUseTool("Write")
	assert.False(t, d.Allowed)
	assert.Equal(t, `tool "Write" not in allowlist`, d.Reason)
}

func TestToolGlobPatterns(t *testing.T) {
	eng := Compile(contract.PolicyProfile{
		DisallowedTools: []string{"mcp__*"},
	}, "", nil)

	assert.False(t, eng.CanUseTool("mcp__github").Allowed)
	assert.True(t, eng.CanUseTool("Bash").Allowed)
}

func TestPathDenyLists(t *testing.T) {
	eng := Compile(contract.PolicyProfile{
		DenyRead:  []string{"secrets/**", "**/*.pem"},
		DenyWrite: []string{"vendor/**"},
	}, "", nil)

	assert.False(t, eng.CanReadPath("secrets/api_key.txt").Allowed)
	assert.False(t, eng.CanReadPath("certs/server.pem").Allowed)
	assert.True(t, eng.CanReadPath("src/main.go").Allowed)

	assert.False(t, eng.CanWritePath("vendor/lib/code.go").Allowed)
	assert.True(t, eng.CanWritePath("src/main.go").Allowed)
}

func TestPathEscapeDeniedRegardlessOfGlobs(t *testing.T) {
	// No deny globs at all: the escape check alone must deny.
	eng := Compile(contract.PolicyProfile{}, "", nil)

	for _, p := range []string{
		"../outside.txt",
		"../../etc/passwd",
		"/etc/passwd",
		"a/../../outside.txt",
	} {
		d := eng.CanReadPath(p)
		assert.False(t, d.Allowed, "path %q should be denied", p)
		assert.Contains(t, d.Reason, "escapes the workspace root")
		assert.False(t, eng.CanWritePath(p).Allowed, "write to %q should be denied", p)
	}

	// Dot-dot segments that stay inside the root are fine.
	assert.True(t, eng.CanReadPath("a/../b.txt").Allowed)
}

func TestSymlinkEscapeDenied(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	target := filepath.Join(outside, "secret.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0644))
	link := filepath.Join(root, "innocent.txt")
	require.NoError(t, os.Symlink(target, link))

	eng := Compile(contract.PolicyProfile{}, root, nil)

	d := eng.CanReadPath("innocent.txt")
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "escapes the workspace root")

	inside := filepath.Join(root, "ok.txt")
	require.NoError(t, os.WriteFile(inside, []byte("y"), 0644))
	assert.True(t, eng.CanReadPath("ok.txt").Allowed)
}

func TestNetworkRules(t *testing.T) {
	eng := Compile(contract.PolicyProfile{
		AllowNetwork: []string{"*.github.com", "github.com"},
		DenyNetwork:  []string{"evil.github.com"},
	}, "", nil)

	assert.True(t, eng.CanAccessNetwork("api.github.com").Allowed)
	assert.True(t, eng.CanAccessNetwork("github.com").Allowed)

	// Deny wins even though the host matches the allowlist.
	assert.False(t, eng.CanAccessNetwork("evil.github.com").Allowed)
	assert.False(t, eng.CanAccessNetwork("example.com").Allowed)
}

func TestInvalidGlobPatternsDropped(t *testing.T) {
	eng := Compile(contract.PolicyProfile{
		DisallowedTools: []string{"[", "Bash"},
	}, "", nil)

	// The broken pattern is ignored; the valid one still applies.
	assert.False(t, eng.CanUseTool("Bash").Allowed)
	assert.True(t, eng.CanUseTool("[").Allowed)
}

func TestRequiresApproval(t *testing.T) {
	eng := Compile(contract.PolicyProfile{
		RequireApprovalFor: []string{"Bash", "Web*"},
	}, "", nil)

	assert.True(t, eng.RequiresApproval("Bash"))
	assert.True(t, eng.RequiresApproval("WebFetch"))
	assert.False(t, eng.RequiresApproval("Read"))
}
