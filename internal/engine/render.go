package engine

import (
	"errors"
	"fmt"
	"strings"

	"grimm.is/sieve/internal/policy"
)

// LinePolicy decides what happens to a line the renderer cannot expand.
type LinePolicy int

const (
	// PassThrough emits the original line unchanged.
	PassThrough LinePolicy = iota
	// SkipLine emits nothing for the line.
	SkipLine
)

const (
	// UnknownPlaceholderPolicy applies to lines naming a placeholder with
	// no registered handler.
	UnknownPlaceholderPolicy = PassThrough
	// MalformedLinePolicy applies to lines with an unclosed marker.
	MalformedLinePolicy = SkipLine
)

// maxDepth bounds fragment nesting.
const maxDepth = 8

var (
	ErrMissingFragment = errors.New("no such fragment")
	ErrNoValue         = errors.New("placeholder has no value in this scope")
	ErrTooDeep         = errors.New("fragment nesting too deep")
)

// CompositionError reports a placeholder that could not be expanded.
type CompositionError struct {
	Template    string
	Placeholder string
	Err         error
}

func (e *CompositionError) Error() string {
	if e.Placeholder == "" {
		return fmt.Sprintf("template %s: %v", e.Template, e.Err)
	}
	return fmt.Sprintf("template %s: {{%s}}: %v", e.Template, e.Placeholder, e.Err)
}

func (e *CompositionError) Unwrap() error { return e.Err }

// Scope is the data a template is rendered against. Fragment scopes add the
// list being rendered and its scalar values.
type Scope struct {
	Policy *policy.Policy
	List   policy.ListName

	vars  map[string]string
	depth int
}

// NewScope returns the top-level scope for p.
func NewScope(p *policy.Policy) *Scope {
	return &Scope{Policy: p}
}

// Var returns a fragment scalar.
func (s *Scope) Var(name string) (string, bool) {
	v, ok := s.vars[name]
	return v, ok
}

func (s *Scope) child(list policy.ListName, vars map[string]string) *Scope {
	return &Scope{Policy: s.Policy, List: list, vars: vars, depth: s.depth + 1}
}

func (s *Scope) nested() *Scope {
	next := *s
	next.depth++
	return &next
}

// Expansion is the result of a handler.
type Expansion struct {
	// Omit drops the whole line.
	Omit bool
	// Block replaces the placeholder with Lines, indented like the line.
	Block bool
	Lines []string
	// Inline replaces the placeholder in place.
	Inline string
}

// Handler expands one placeholder.
type Handler func(r *Renderer, s *Scope) (Expansion, error)

// Renderer renders parsed templates. It holds no per-render state.
type Renderer struct {
	handlers  map[string]Handler
	fragments map[string]*Template
}

// NewRenderer creates a renderer over the given fragments with the default
// handlers registered.
func NewRenderer(fragments map[string]*Template) *Renderer {
	r := &Renderer{
		handlers:  make(map[string]Handler),
		fragments: fragments,
	}
	registerDefaults(r)
	return r
}

// Handle registers h for placeholder name, replacing any existing handler.
func (r *Renderer) Handle(name string, h Handler) {
	r.handlers[name] = h
}

// Fragment returns a named template.
func (r *Renderer) Fragment(name string) (*Template, error) {
	t, ok := r.fragments[name]
	if !ok {
		return nil, &CompositionError{Template: name, Err: ErrMissingFragment}
	}
	return t, nil
}

// Render expands t against s and returns the output lines.
func (r *Renderer) Render(t *Template, s *Scope) ([]string, error) {
	if s.depth > maxDepth {
		return nil, &CompositionError{Template: t.Name, Err: ErrTooDeep}
	}

	var out []string
	for _, line := range t.Lines {
		if line.Malformed {
			out = applyPolicy(MalformedLinePolicy, line, out)
			continue
		}

		placeholders := line.Placeholders()
		if len(placeholders) == 0 {
			out = append(out, line.Raw)
			continue
		}
		if r.hasUnknown(placeholders) {
			out = applyPolicy(UnknownPlaceholderPolicy, line, out)
			continue
		}

		expanded, err := r.renderLine(t, line, s)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}

func applyPolicy(p LinePolicy, line Line, out []string) []string {
	if p == PassThrough {
		return append(out, line.Raw)
	}
	return out
}

func (r *Renderer) hasUnknown(placeholders []Placeholder) bool {
	for _, p := range placeholders {
		if _, ok := r.handlers[p.Name]; !ok {
			return true
		}
	}
	return false
}

func (r *Renderer) renderLine(t *Template, line Line, s *Scope) ([]string, error) {
	indent := line.Indent()

	var lines []string
	var cur strings.Builder
	for _, n := range line.Nodes {
		switch n := n.(type) {
		case Text:
			cur.WriteString(string(n))
		case Placeholder:
			exp, err := r.handlers[n.Name](r, s)
			if err != nil {
				var ce *CompositionError
				if errors.As(err, &ce) {
					return nil, err
				}
				return nil, &CompositionError{Template: t.Name, Placeholder: n.Name, Err: err}
			}
			if exp.Omit {
				return nil, nil
			}
			if !exp.Block {
				cur.WriteString(exp.Inline)
				continue
			}
			for i, fl := range exp.Lines {
				if i > 0 {
					lines = append(lines, cur.String())
					cur.Reset()
					if fl != "" {
						cur.WriteString(indent)
					}
				}
				cur.WriteString(fl)
			}
		}
	}
	return append(lines, cur.String()), nil
}

// expand renders the named fragments in order and returns them as one block.
func (r *Renderer) expand(s *Scope, names ...string) (Expansion, error) {
	var lines []string
	for _, name := range names {
		t, err := r.Fragment(name)
		if err != nil {
			return Expansion{}, err
		}
		rendered, err := r.Render(t, s)
		if err != nil {
			return Expansion{}, err
		}
		lines = append(lines, rendered...)
	}
	return Expansion{Block: true, Lines: lines}, nil
}
