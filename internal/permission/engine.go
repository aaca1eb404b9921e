// Package permission classifies proposed tool actions before they run.
// The engine is a pure function over an ordered rule chain: deny rules
// first, then ask rules, then the tier defaults. Identical input always
// produces an identical decision.
package permission

import (
	"encoding/json"
	"regexp"
)

// Verdict is the outcome of evaluating a tool invocation.
type Verdict string

const (
	VerdictAllow Verdict = "allow"
	VerdictDeny  Verdict = "deny"
	VerdictAsk   Verdict = "ask"
)

// ToolInvocation describes one proposed tool action.
type ToolInvocation struct {
	ToolName         string
	FilePath         string
	Command          string
	WorkingDirectory string
}

// Decision is the verdict plus the reason from the first matching rule.
type Decision struct {
	Verdict Verdict
	Reason  string
}

type ruleKind int

const (
	kindPath    ruleKind = iota // matches the target file path
	kindCommand                 // matches the shell command text
)

// rule is one declarative entry in the ordered chain. editsOnly
// restricts a path rule to tools that modify the file; deny rules never
// set it because reading a sensitive file is as bad as writing it.
type rule struct {
	kind      ruleKind
	pattern   *regexp.Regexp
	verdict   Verdict
	reason    string
	editsOnly bool
}

// rules is the full ordered chain, most dangerous first. Evaluation is
// strictly positional: the first match governs the result.
var rules = []rule{
	// Deny tier: sensitive files.
	{
		kind:    kindPath,
		pattern: regexp.MustCompile(`(^|/)\.env(\.[^/]+)?$`),
		verdict: VerdictDeny,
		reason:  "access to environment file with potential credentials",
	},
	{
		kind:    kindPath,
		pattern: regexp.MustCompile(`(^|/)(id_rsa|id_ed25519|id_ecdsa|id_dsa)(\.[^/]*)?$`),
		verdict: VerdictDeny,
		reason:  "access to SSH private key",
	},
	{
		kind:    kindPath,
		pattern: regexp.MustCompile(`\.(pem|key|p12|pfx)$`),
		verdict: VerdictDeny,
		reason:  "access to private key material",
	},
	{
		kind:    kindPath,
		pattern: regexp.MustCompile(`(^|/)(\.netrc|\.npmrc|\.pgpass)$|(^|/)\.aws/credentials$|(^|/)secrets?\.(json|ya?ml|toml|env)$`),
		verdict: VerdictDeny,
		reason:  "access to stored credentials",
	},
	// Deny tier: destructive commands.
	{
		kind:    kindCommand,
		pattern: regexp.MustCompile(`(^|[\s;&|])rm\s+(-[a-zA-Z]+\s+)*(/|/\*)(\s|$)`),
		verdict: VerdictDeny,
		reason:  "recursive deletion of the filesystem root",
	},
	{
		kind:    kindCommand,
		pattern: regexp.MustCompile(`(^|[\s;&|])rm\s+(-[a-zA-Z]+\s+)*(~/?|\$HOME/?)(\s|$)`),
		verdict: VerdictDeny,
		reason:  "recursive deletion of the home directory",
	},
	{
		kind:    kindCommand,
		pattern: regexp.MustCompile(`--no-preserve-root`),
		verdict: VerdictDeny,
		reason:  "rm with root protection disabled",
	},
	{
		kind:    kindCommand,
		pattern: regexp.MustCompile(`\bmkfs(\.[a-z0-9]+)?\b`),
		verdict: VerdictDeny,
		reason:  "filesystem format command",
	},
	{
		kind:    kindCommand,
		pattern: regexp.MustCompile(`\bdd\b.*\bof=/dev/(sd|hd|nvme|disk|mmcblk)`),
		verdict: VerdictDeny,
		reason:  "raw write to a block device",
	},
	{
		kind:    kindCommand,
		pattern: regexp.MustCompile(`\b(cat|less|more|head|tail|cp|scp|base64|strings)\s+(\S+/)?\.env\b`),
		verdict: VerdictDeny,
		reason:  "shell read of an environment file",
	},
	// Ask tier: privilege escalation.
	{
		kind:    kindCommand,
		pattern: regexp.MustCompile(`(^|[;&|]\s*)(sudo|doas)\b`),
		verdict: VerdictAsk,
		reason:  "command requests elevated privileges",
	},
	{
		kind:    kindCommand,
		pattern: regexp.MustCompile(`(^|[;&|]\s*)su\s+(-|root)\b`),
		verdict: VerdictAsk,
		reason:  "command switches to the root user",
	},
	// Ask tier: edits to high-impact files.
	{
		kind:      kindPath,
		pattern:   regexp.MustCompile(`(^|/)(package\.json|package-lock\.json|yarn\.lock|pnpm-lock\.yaml|go\.mod|go\.sum|Cargo\.toml|Cargo\.lock|Gemfile|Gemfile\.lock|requirements\.txt|pyproject\.toml|poetry\.lock|composer\.json|composer\.lock)$`),
		verdict:   VerdictAsk,
		reason:    "edit to a dependency manifest or lock file",
		editsOnly: true,
	},
}

// editingTools are the tools that modify files in place.
var editingTools = map[string]bool{
	"Write":        true,
	"Edit":         true,
	"MultiEdit":    true,
	"NotebookEdit": true,
}

// executingTools run arbitrary commands. Anything unrecognized that
// carries a command is treated the same way.
var executingTools = map[string]bool{
	"Bash": true,
}

func (r *rule) matches(inv *ToolInvocation) bool {
	switch r.kind {
	case kindPath:
		if inv.FilePath == "" {
			return false
		}
		if r.editsOnly && !editingTools[inv.ToolName] {
			return false
		}
		return r.pattern.MatchString(inv.FilePath)
	case kindCommand:
		return inv.Command != "" && r.pattern.MatchString(inv.Command)
	}
	return false
}

// Evaluate runs the ordered rule chain over one invocation. The chain
// is total: an executable action no rule recognizes falls back to ask,
// never to a silent allow; a non-executing action falls back to allow.
func Evaluate(inv ToolInvocation) Decision {
	for i := range rules {
		if rules[i].matches(&inv) {
			return Decision{Verdict: rules[i].verdict, Reason: rules[i].reason}
		}
	}

	if inv.Command != "" || executingTools[inv.ToolName] {
		return Decision{
			Verdict: VerdictAsk,
			Reason:  "unrecognized command execution requires confirmation",
		}
	}

	return Decision{Verdict: VerdictAllow, Reason: "read or inspection operation"}
}

// toolInputFields is the subset of tool_input the engine cares about.
// Different tools name the target path differently.
type toolInputFields struct {
	FilePath     string `json:"file_path"`
	Path         string `json:"path"`
	NotebookPath string `json:"notebook_path"`
	Command      string `json:"command"`
}

// FromToolInput builds a ToolInvocation from a PreToolUse payload.
// Unparseable tool_input yields an invocation with only the tool name
// set, which the defaults still classify safely.
func FromToolInput(toolName string, toolInput json.RawMessage, cwd string) ToolInvocation {
	inv := ToolInvocation{ToolName: toolName, WorkingDirectory: cwd}

	var fields toolInputFields
	if err := json.Unmarshal(toolInput, &fields); err != nil {
		return inv
	}

	inv.FilePath = fields.FilePath
	if inv.FilePath == "" {
		inv.FilePath = fields.Path
	}
	if inv.FilePath == "" {
		inv.FilePath = fields.NotebookPath
	}
	inv.Command = fields.Command

	return inv
}
