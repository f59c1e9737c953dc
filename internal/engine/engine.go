// Package engine composes the XDP filter source from embedded C templates.
//
// Templates are parsed once into lines of text and {{placeholder}} nodes.
// Rendering is a pure function of the parsed template and a Scope; handlers
// either substitute a scalar in place or replace the whole line with a nested
// fragment, re-indented to match. A handler for a disabled list omits its line.
package engine

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"grimm.is/sieve/internal/logging"
	"grimm.is/sieve/internal/policy"
)

//go:embed templates/*.c.tmpl
var templateFS embed.FS

const templateExt = ".c.tmpl"

// LoadFragments parses every template in fsys matching *.c.tmpl, keyed by
// base name.
func LoadFragments(fsys fs.FS) (map[string]*Template, error) {
	paths, err := fs.Glob(fsys, "*"+templateExt)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*Template, len(paths))
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", p, err)
		}
		name := strings.TrimSuffix(p, templateExt)
		out[name] = Parse(name, string(data))
	}
	return out, nil
}

var defaultRenderer = sync.OnceValues(func() (*Renderer, error) {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, err
	}
	fragments, err := LoadFragments(sub)
	if err != nil {
		return nil, err
	}
	return NewRenderer(fragments), nil
})

// Default returns the renderer over the embedded templates.
func Default() (*Renderer, error) {
	return defaultRenderer()
}

// Generate renders the filter source for p with the embedded templates.
func Generate(p *policy.Policy) (string, error) {
	r, err := Default()
	if err != nil {
		return "", err
	}
	return r.Generate(p)
}

// Generate renders the filter source for p. The base template is chosen by
// program type.
func (r *Renderer) Generate(p *policy.Policy) (string, error) {
	base, err := r.Fragment("base_" + string(p.Kind()))
	if err != nil {
		return "", fmt.Errorf("unsupported program type %q: %w", p.Kind(), err)
	}
	lines, err := r.Render(base, NewScope(p))
	if err != nil {
		return "", err
	}
	return strings.Join(lines, "\n") + "\n", nil
}

// GenerateFile renders p and writes the source to path, replacing any
// previous file atomically.
func GenerateFile(p *policy.Policy, path string) (string, error) {
	log := logging.WithComponent("engine")

	if _, ok := p.DefaultToken(); !ok {
		log.Warn("unsupported default action, using fallback",
			"action", p.DefaultAction, "fallback", policy.UnrecognizedDefaultAction)
	}

	src, err := Generate(p)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(src), 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", err
	}

	log.Info("generated program source", "path", path, "program", p.ProgramName(),
		"type", p.Kind(), "lists", p.EnabledLists())
	return src, nil
}
