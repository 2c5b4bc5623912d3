// Package template implements the placeholder language used by provider
// request/response mappings. Templates contain [Name] and [Name:format]
// placeholders resolved against a value map, built-in pseudo-functions
// (Guid, Now, Unix, Rnd) and registry function calls of the form
// [@func:arg1|arg2|...]. Unresolved placeholders are left verbatim: templates
// are shared across providers with different available fields.
package template

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	mrand "math/rand"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Values is the flat value map a template is rendered against
type Values map[string]string

// Engine renders templates against value maps. It is safe for concurrent use;
// all state lives in the injected registry.
type Engine struct {
	registry *Registry
	now      func() time.Time
}

// NewEngine creates an engine over a function registry
func NewEngine(registry *Registry) *Engine {
	return &Engine{registry: registry, now: time.Now}
}

// Render substitutes placeholders without output encoding. Use for bodies.
func (e *Engine) Render(tmpl string, values Values) (string, error) {
	return e.render(tmpl, values, false)
}

// RenderURL substitutes placeholders URL-escaping each substituted value.
// Use for paths and query strings; literal template text is not escaped.
func (e *Engine) RenderURL(tmpl string, values Values) (string, error) {
	return e.render(tmpl, values, true)
}

func (e *Engine) render(tmpl string, values Values, escape bool) (string, error) {
	var b strings.Builder
	i := 0
	for i < len(tmpl) {
		if tmpl[i] != '[' {
			b.WriteByte(tmpl[i])
			i++
			continue
		}
		end, ok := matchBracket(tmpl, i)
		if !ok {
			// no closing bracket: emit the rest verbatim
			b.WriteString(tmpl[i:])
			break
		}
		token := tmpl[i+1 : end]
		out, resolved, raw, err := e.eval(token, values)
		if err != nil {
			return "", err
		}
		switch {
		case !resolved:
			b.WriteString(tmpl[i : end+1])
		case raw:
			b.WriteString(out)
		case escape:
			b.WriteString(url.QueryEscape(out))
		default:
			b.WriteString(out)
		}
		i = end + 1
	}
	return b.String(), nil
}

// matchBracket finds the closing bracket for the opening one at start,
// honoring nested brackets inside function arguments.
func matchBracket(s string, start int) (int, bool) {
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// eval resolves one bracketed token. resolved=false leaves the token
// verbatim; raw=true skips output encoding (used for the second-pass rewrite).
func (e *Engine) eval(token string, values Values) (out string, resolved bool, raw bool, err error) {
	if strings.HasPrefix(token, "@@") {
		// Second-pass form: demote to the single-@ form so a later Render
		// invocation evaluates it.
		return "[@" + token[2:] + "]", true, true, nil
	}
	if strings.HasPrefix(token, "@") {
		out, resolved, err = e.callFunc(token[1:], values)
		return out, resolved, false, err
	}

	name, format := token, ""
	if idx := strings.Index(token, ":"); idx >= 0 {
		name, format = token[:idx], token[idx+1:]
	}

	switch name {
	case "Guid":
		return formatGUID(uuid.New(), format), true, false, nil
	case "Now":
		layout := format
		if layout == "" {
			layout = time.RFC3339
		}
		return e.now().Format(layout), true, false, nil
	case "Unix":
		if format == "ms" {
			return strconv.FormatInt(e.now().UnixMilli(), 10), true, false, nil
		}
		return strconv.FormatInt(e.now().Unix(), 10), true, false, nil
	case "Rnd":
		out, err = randomValue(format)
		if err != nil {
			return "", false, false, err
		}
		return out, true, false, nil
	}

	// Plain value lookup. The format suffix is ignored for plain values:
	// everything in the map is already a string.
	if v, ok := values[name]; ok {
		return v, true, false, nil
	}
	return "", false, false, nil
}

// callFunc evaluates a registry function call "name:arg1|arg2|...".
// Arguments of the literal form [Key] are resolved against the value map
// before the call; a missing function leaves the token verbatim.
func (e *Engine) callFunc(call string, values Values) (string, bool, error) {
	name, argStr := call, ""
	if idx := strings.Index(call, ":"); idx >= 0 {
		name, argStr = call[:idx], call[idx+1:]
	}

	fn, ok := e.registry.Lookup(name)
	if !ok {
		return "", false, nil
	}

	var args []string
	if argStr != "" {
		args = strings.Split(argStr, "|")
		for i, arg := range args {
			if len(arg) >= 2 && arg[0] == '[' && arg[len(arg)-1] == ']' {
				if v, found := values[arg[1:len(arg)-1]]; found {
					args[i] = v
				}
			}
		}
	}

	out, err := fn(args)
	if err != nil {
		return "", false, fmt.Errorf("template function %s: %w", name, err)
	}
	return out, true, nil
}

func formatGUID(id uuid.UUID, format string) string {
	switch format {
	case "N", "n":
		return strings.ReplaceAll(id.String(), "-", "")
	case "U", "u":
		return strings.ToUpper(id.String())
	default:
		return id.String()
	}
}

// randomValue handles Rnd:min-max (inclusive, zero-padded to the width of the
// upper bound literal) and Rnd:hex:<n> (crypto-strong hex digits).
func randomValue(format string) (string, error) {
	if rest, ok := strings.CutPrefix(format, "hex:"); ok {
		n, err := strconv.Atoi(rest)
		if err != nil || n <= 0 {
			return "", fmt.Errorf("invalid hex length %q", rest)
		}
		buf := make([]byte, (n+1)/2)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		return hex.EncodeToString(buf)[:n], nil
	}

	lo, hi, ok := strings.Cut(format, "-")
	if !ok {
		return "", fmt.Errorf("invalid range %q", format)
	}
	min, err := strconv.ParseInt(lo, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid range %q", format)
	}
	max, err := strconv.ParseInt(hi, 10, 64)
	if err != nil || max < min {
		return "", fmt.Errorf("invalid range %q", format)
	}
	n := min + mrand.Int63n(max-min+1)
	return fmt.Sprintf("%0*d", len(hi), n), nil
}
