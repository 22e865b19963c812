package policy

import (
	"fmt"
	"net/url"
	"strings"
)

// operation classifies what a tool does to the paths it is given.
type operation int

const (
	opNone operation = iota
	opRead
	opWrite
)

// classifyTool infers the path operation from the tool name. Names
// containing read/glob/grep are read operations; write/edit/delete are
// write operations. Unrecognized tools get no path checks.
func classifyTool(name string) operation {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "write"), strings.Contains(n, "edit"), strings.Contains(n, "delete"):
		return opWrite
	case strings.Contains(n, "read"), strings.Contains(n, "glob"), strings.Contains(n, "grep"):
		return opRead
	default:
		return opNone
	}
}

// isPathKey reports whether an input argument key names a path value.
func isPathKey(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "path") || strings.Contains(k, "file")
}

// urlHost extracts the host from a URL-shaped string, or "" when the
// value is not a URL.
func urlHost(s string) string {
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return ""
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// PreTool is the composite gate evaluated before a tool call executes:
// tool-name check, then approval, then path checks for path-shaped
// arguments, then network checks for URL-shaped arguments.
//
// With no interactive approval channel, a tool matching
// require_approval_for is denied rather than silently allowed: approval
// cannot be granted synchronously, so the gate fails closed.
func (e *Engine) PreTool(name string, input map[string]any) Decision {
	if d := e.CanUseTool(name); !d.Allowed {
		return d
	}
	if e.RequiresApproval(name) {
		return Deny(fmt.Sprintf("tool %q requires approval and no approval channel is available", name))
	}

	op := classifyTool(name)
	for key, value := range input {
		s, ok := value.(string)
		if !ok {
			continue
		}
		if isPathKey(key) {
			switch op {
			case opRead:
				if d := e.CanReadPath(s); !d.Allowed {
					return d
				}
			case opWrite:
				if d := e.CanWritePath(s); !d.Allowed {
					return d
				}
			}
			continue
		}
		if host := urlHost(s); host != "" {
			if d := e.CanAccessNetwork(host); !d.Allowed {
				return d
			}
		}
	}
	return Allow()
}
