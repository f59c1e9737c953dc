package engine

import "strings"

const (
	openMarker  = "{{"
	closeMarker = "}}"
)

// Node is one element of a template line.
type Node interface {
	node()
}

// Text is literal source text.
type Text string

// Placeholder is a {{name}} marker.
type Placeholder struct {
	Name string
}

func (Text) node()        {}
func (Placeholder) node() {}

// Line is a parsed template line.
type Line struct {
	Nodes []Node
	// Malformed is set when the line opens a marker it never closes.
	Malformed bool
	// Raw is the original text, emitted as-is by the pass-through policy.
	Raw string
}

// Indent returns the leading whitespace of the line.
func (l Line) Indent() string {
	return l.Raw[:len(l.Raw)-len(strings.TrimLeft(l.Raw, " \t"))]
}

// Placeholders returns the placeholder nodes of the line in order.
func (l Line) Placeholders() []Placeholder {
	var out []Placeholder
	for _, n := range l.Nodes {
		if p, ok := n.(Placeholder); ok {
			out = append(out, p)
		}
	}
	return out
}

// Template is a parsed template: a sequence of lines.
type Template struct {
	Name  string
	Lines []Line
}

// Parse splits src into lines and each line into text and placeholder nodes.
// A trailing newline does not produce an empty final line.
func Parse(name, src string) *Template {
	src = strings.TrimSuffix(src, "\n")
	raw := strings.Split(src, "\n")

	t := &Template{Name: name, Lines: make([]Line, 0, len(raw))}
	for _, r := range raw {
		t.Lines = append(t.Lines, parseLine(r))
	}
	return t
}

func parseLine(raw string) Line {
	line := Line{Raw: raw}
	rest := raw
	for {
		start := strings.Index(rest, openMarker)
		if start < 0 {
			break
		}
		end := strings.Index(rest[start+len(openMarker):], closeMarker)
		if end < 0 {
			line.Malformed = true
			return line
		}
		end += start + len(openMarker)

		if start > 0 {
			line.Nodes = append(line.Nodes, Text(rest[:start]))
		}
		name := strings.TrimSpace(rest[start+len(openMarker) : end])
		line.Nodes = append(line.Nodes, Placeholder{Name: name})
		rest = rest[end+len(closeMarker):]
	}
	if rest != "" {
		line.Nodes = append(line.Nodes, Text(rest))
	}
	return line
}
