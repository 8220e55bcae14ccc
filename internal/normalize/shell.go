package normalize

import "strings"

// Pattern order matters: write is the most consequential category and must win
// ties, so write patterns are checked before search, and search before read.
// A command containing both "grep" and "rm" classifies as write.
var writePatterns = []string{
	"rm ", "rm\t", "rmdir", "mv ", "cp ", "dd ", "tee ",
	"mkdir", "touch ", "chmod", "chown", "truncate", "ln -",
	"sed -i", ">>", ">",
	"git add", "git commit", "git push", "git reset", "git checkout",
	"npm install", "npm i ", "pip install", "go install",
	"apt install", "apt-get install", "brew install",
	"kill ", "killall", "pkill",
}

var searchPatterns = []string{
	"grep", "rg ", "ag ", "fd ", "find ", "locate ",
	"which ", "whereis ", "git grep", "git log",
}

var readPatterns = []string{
	"cat ", "ls", "head ", "tail ", "less ", "more ",
	"pwd", "stat ", "file ", "wc ", "du ", "df ", "ps ",
	"env", "echo ", "git status", "git show", "git diff",
}

// ClassifyCommand maps a shell command onto the read/write/search/other set
// by ordered substring matching.
func ClassifyCommand(cmd string) Category {
	c := strings.TrimSpace(cmd)
	if c == "" {
		return CategoryOther
	}
	for _, p := range writePatterns {
		if strings.Contains(c, p) {
			return CategoryWrite
		}
	}
	for _, p := range searchPatterns {
		if strings.Contains(c, p) {
			return CategorySearch
		}
	}
	for _, p := range readPatterns {
		if strings.Contains(c, p) {
			return CategoryRead
		}
	}
	return CategoryOther
}

// shell metacharacters that argv-style token arrays cannot carry literally
var shellMetaMarkers = []string{"|", ";", "&", "<<", ">", "<"}

// normalizeCommand resolves the "command" argument into its canonical form and
// a joined string for classification. Providers that emit argv arrays with
// shell metacharacters need the tokens coalesced behind an explicit shell
// before they can be replayed; plain argv arrays stay untouched.
func normalizeCommand(args map[string]any) (canonical any, joined string) {
	raw, ok := args["command"]
	if !ok {
		return nil, ""
	}

	switch v := raw.(type) {
	case string:
		return v, v
	case []any:
		tokens := make([]string, 0, len(v))
		for _, t := range v {
			s, ok := t.(string)
			if !ok {
				return raw, ""
			}
			tokens = append(tokens, s)
		}
		return coalesceArgv(tokens)
	case []string:
		return coalesceArgv(v)
	default:
		return raw, ""
	}
}

func coalesceArgv(tokens []string) (any, string) {
	joined := strings.Join(tokens, " ")
	if !containsShellMeta(tokens) {
		return tokens, joined
	}
	// Already wrapped: ["bash", "-lc", script]
	if len(tokens) >= 3 && isShellInvoker(tokens[0]) && strings.HasPrefix(tokens[1], "-") {
		return tokens, tokens[len(tokens)-1]
	}
	return []string{"bash", "-lc", joined}, joined
}

func containsShellMeta(tokens []string) bool {
	for _, t := range tokens {
		for _, m := range shellMetaMarkers {
			if strings.Contains(t, m) {
				return true
			}
		}
	}
	return false
}

func isShellInvoker(token string) bool {
	base := token
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	switch base {
	case "bash", "sh", "zsh", "dash":
		return true
	}
	return false
}
