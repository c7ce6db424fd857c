// Package mailing renders per-recipient text messages: Liquid templates with
// strict-undefined checking, deterministic A/B variant selection, and the
// preview rows shown before a batch is sent.
package mailing

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/osteele/liquid"
)

// TemplateService handles Liquid template rendering with caching.
// Rendering is always strict: a template that references a variable absent
// from the context fails instead of rendering a blank.
type TemplateService struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template, keyed by rewritten source
}

// TemplateValidationError represents a validation issue in a template
type TemplateValidationError struct {
	Variable string `json:"variable"`
	Message  string `json:"message"`
}

// UndefinedError is returned when a template references missing variables.
type UndefinedError struct {
	Variables []string
}

func (e *UndefinedError) Error() string {
	parts := make([]string, len(e.Variables))
	for i, v := range e.Variables {
		parts[i] = fmt.Sprintf("'%s' is undefined", v)
	}
	return strings.Join(parts, "; ")
}

// NewTemplateService creates a new template service with custom filters
func NewTemplateService() *TemplateService {
	ts := &TemplateService{
		engine: liquid.NewEngine(),
	}
	// The pre-render scan names every missing root variable; the engine
	// still rejects lookups below a root, such as {{ name.first }} on a string.
	ts.engine.StrictVariables()
	ts.registerCustomFilters()
	return ts
}

// registerCustomFilters adds text-message filters on top of the Liquid
// built-ins.
func (ts *TemplateService) registerCustomFilters() {
	// Fallback value: {{ business | default: "your business" }}.
	// Also the target of the `a or b` rewrite.
	ts.engine.RegisterFilter("default", func(value interface{}, fallback interface{}) interface{} {
		if isBlank(value) {
			return fallback
		}
		return value
	})

	ts.engine.RegisterFilter("upper", strings.ToUpper)
	ts.engine.RegisterFilter("lower", strings.ToLower)
	ts.engine.RegisterFilter("trim", strings.TrimSpace)

	// Title case: {{ name | title }}
	ts.engine.RegisterFilter("title", func(s string) string {
		words := strings.Fields(strings.ToLower(s))
		for i, w := range words {
			r := []rune(w)
			words[i] = string(unicode.ToUpper(r[0])) + string(r[1:])
		}
		return strings.Join(words, " ")
	})

	// First word only: {{ name | first_name }}
	ts.engine.RegisterFilter("first_name", func(s string) string {
		if f := strings.Fields(s); len(f) > 0 {
			return f[0]
		}
		return ""
	})
}

func isBlank(value interface{}) bool {
	if value == nil {
		return true
	}
	switch v := value.(type) {
	case string:
		return v == ""
	case bool:
		return !v
	}
	s := fmt.Sprintf("%v", value)
	return s == "" || s == "<nil>"
}

// Parse compiles a template string and returns any syntax errors
func (ts *TemplateService) Parse(templateStr string) error {
	_, err := ts.compile(templateStr)
	return err
}

// Render validates and renders a template against ctx. Missing variables
// produce an *UndefinedError; nothing is partially rendered.
func (ts *TemplateService) Render(templateStr string, ctx map[string]interface{}) (string, error) {
	if missing := ts.missingVariables(templateStr, ctx); len(missing) > 0 {
		return "", &UndefinedError{Variables: missing}
	}

	tpl, err := ts.compile(templateStr)
	if err != nil {
		return "", err
	}

	out, rerr := tpl.RenderString(ctx)
	if rerr != nil {
		return "", rerr
	}
	return out, nil
}

func (ts *TemplateService) compile(templateStr string) (*liquid.Template, error) {
	src := RewriteOrFallbacks(templateStr)
	if cached, ok := ts.cache.Load(src); ok {
		return cached.(*liquid.Template), nil
	}
	tpl, err := ts.engine.ParseString(src)
	if err != nil {
		return nil, err
	}
	ts.cache.Store(src, tpl)
	return tpl, nil
}

// ValidateVariables reports every variable the template reads that ctx
// does not define.
func (ts *TemplateService) ValidateVariables(templateStr string, ctx map[string]interface{}) []TemplateValidationError {
	var errors []TemplateValidationError
	for _, name := range ts.missingVariables(templateStr, ctx) {
		errors = append(errors, TemplateValidationError{
			Variable: name,
			Message:  fmt.Sprintf("'%s' is undefined", name),
		})
	}
	return errors
}

// Variables returns the sorted set of context variables a template reads.
func (ts *TemplateService) Variables(templateStr string) []string {
	refs, _ := scanTemplate(templateStr)
	out := make([]string, 0, len(refs))
	for name := range refs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ClearCache removes all cached templates
func (ts *TemplateService) ClearCache() {
	ts.cache.Range(func(k, _ interface{}) bool {
		ts.cache.Delete(k)
		return true
	})
}

func (ts *TemplateService) missingVariables(templateStr string, ctx map[string]interface{}) []string {
	refs, _ := scanTemplate(templateStr)
	var missing []string
	for name := range refs {
		if _, ok := ctx[name]; !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

var (
	outputPattern  = regexp.MustCompile(`(?s)\{\{-?(.*?)-?\}\}`)
	tagPattern     = regexp.MustCompile(`(?s)\{%-?\s*([a-z]+)\s*(.*?)\s*-?%\}`)
	rawPattern     = regexp.MustCompile(`(?s)\{%-?\s*raw\s*-?%\}.*?\{%-?\s*endraw\s*-?%\}`)
	commentPattern = regexp.MustCompile(`(?s)\{%-?\s*comment\s*-?%\}.*?\{%-?\s*endcomment\s*-?%\}`)
)

// scanTemplate returns the root variables a template reads and the names it
// declares itself (assign, capture, for loop variables).
func scanTemplate(templateStr string) (refs map[string]bool, declared map[string]bool) {
	src := rawPattern.ReplaceAllString(templateStr, "")
	src = commentPattern.ReplaceAllString(src, "")

	refs = make(map[string]bool)
	declared = make(map[string]bool)
	var reads []string

	for _, m := range outputPattern.FindAllStringSubmatch(src, -1) {
		reads = append(reads, expressionRefs(m[1])...)
	}

	for _, m := range tagPattern.FindAllStringSubmatch(src, -1) {
		tag, args := m[1], m[2]
		switch tag {
		case "if", "elsif", "unless", "case", "when":
			reads = append(reads, expressionRefs(args)...)
		case "for", "tablerow":
			parts := strings.SplitN(args, " in ", 2)
			declared[strings.TrimSpace(parts[0])] = true
			if len(parts) == 2 {
				reads = append(reads, expressionRefs(parts[1])...)
			}
		case "assign":
			parts := strings.SplitN(args, "=", 2)
			declared[strings.TrimSpace(parts[0])] = true
			if len(parts) == 2 {
				reads = append(reads, expressionRefs(parts[1])...)
			}
		case "capture", "increment", "decrement":
			if f := strings.Fields(args); len(f) > 0 {
				declared[strings.Trim(f[0], `"'`)] = true
			}
		}
	}

	for _, name := range reads {
		if !declared[name] && !isLiquidKeyword(name) {
			refs[name] = true
		}
	}
	return refs, declared
}

// expressionRefs extracts root variable names from a Liquid expression,
// skipping string literals, numbers, filter names, named-argument keys and
// property accesses.
func expressionRefs(expr string) []string {
	var refs []string
	afterPipe := false
	for i := 0; i < len(expr); {
		c := expr[i]
		switch {
		case c == '"' || c == '\'':
			j := strings.IndexByte(expr[i+1:], c)
			if j < 0 {
				return refs
			}
			i += j + 2
		case c == '|':
			afterPipe = true
			i++
		case c >= '0' && c <= '9':
			for i < len(expr) && (expr[i] >= '0' && expr[i] <= '9') {
				i++
			}
		case isIdentStart(c):
			j := i + 1
			for j < len(expr) && isIdentChar(expr[j]) {
				j++
			}
			word := expr[i:j]
			property := i > 0 && expr[i-1] == '.' && !(i > 1 && expr[i-2] == '.')
			k := j
			for k < len(expr) && expr[k] == ' ' {
				k++
			}
			namedArg := k < len(expr) && expr[k] == ':'
			switch {
			case afterPipe:
				afterPipe = false
			case property, namedArg:
			default:
				refs = append(refs, word)
			}
			i = j
		default:
			i++
		}
	}
	return refs
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9') || c == '-' || c == '?'
}

// RewriteOrFallbacks turns `{{ a or b or "c" }}` into
// `{{ a | default: b | default: "c" }}`. Liquid's own `or` is boolean, so
// the rewrite is what gives output expressions their fallback meaning.
// Tags ({% if a or b %}) are left alone.
func RewriteOrFallbacks(templateStr string) string {
	return outputPattern.ReplaceAllStringFunc(templateStr, func(m string) string {
		openDelim, closeDelim := "{{", "}}"
		inner := m[2 : len(m)-2]
		if strings.HasPrefix(inner, "-") {
			openDelim, inner = "{{-", inner[1:]
		}
		if strings.HasSuffix(inner, "-") {
			closeDelim, inner = "-}}", inner[:len(inner)-1]
		}

		heads, filters := splitTopLevel(inner, "|", 2)
		alternatives, _ := splitTopLevel(heads[0], " or ", -1)
		if len(alternatives) < 2 {
			return m
		}

		var b strings.Builder
		b.WriteString(openDelim)
		b.WriteString(" ")
		b.WriteString(strings.TrimSpace(alternatives[0]))
		for _, alt := range alternatives[1:] {
			b.WriteString(" | default: ")
			b.WriteString(strings.TrimSpace(alt))
		}
		if filters != "" {
			b.WriteString(" | ")
			b.WriteString(strings.TrimSpace(filters))
		}
		b.WriteString(" ")
		b.WriteString(closeDelim)
		return b.String()
	})
}

// splitTopLevel splits s on sep outside of quoted strings. With n == 2 it
// returns the head and the unsplit remainder (without the separator).
func splitTopLevel(s, sep string, n int) ([]string, string) {
	var parts []string
	var quote byte
	last := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case strings.HasPrefix(s[i:], sep):
			parts = append(parts, s[last:i])
			last = i + len(sep)
			i += len(sep) - 1
			if n == 2 {
				return parts, s[last:]
			}
		}
	}
	return append(parts, s[last:]), ""
}

// isLiquidKeyword checks if a name is a Liquid keyword or literal
func isLiquidKeyword(name string) bool {
	switch strings.ToLower(name) {
	case "true", "false", "nil", "null", "empty", "blank",
		"and", "or", "not", "contains", "in",
		"forloop", "tablerowloop", "reversed", "limit", "offset", "cols":
		return true
	}
	return false
}
