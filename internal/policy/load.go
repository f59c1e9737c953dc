package policy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v2"
)

// Format identifies a policy document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
	FormatHCL  Format = "hcl"
	FormatYAML Format = "yaml"
)

// ErrUnsupportedFormat is returned for file extensions no decoder handles.
var ErrUnsupportedFormat = errors.New("unsupported policy file type")

// LoadResult contains a loaded policy and metadata about the load.
type LoadResult struct {
	Policy   *Policy
	Path     string
	Format   Format
	Warnings ValidationErrors
}

// FormatFromPath picks the decoder from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	case ".hcl":
		return FormatHCL, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %q (supported: json, toml, hcl, yaml)", ErrUnsupportedFormat, filepath.Ext(path))
}

// LoadFile loads, defaults and validates a policy file. An empty path yields
// the default policy.
func LoadFile(path string) (*LoadResult, error) {
	if path == "" {
		p := Default()
		return &LoadResult{Policy: p, Format: FormatJSON, Warnings: p.Validate().Warnings()}, nil
	}

	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("policy file does not exist: %s", path)
		}
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	result, err := LoadBytes(data, path, format)
	if err != nil {
		return nil, err
	}
	result.Path = path
	return result, nil
}

// LoadBytes decodes data in the given format. filename is only used in HCL
// diagnostics.
func LoadBytes(data []byte, filename string, format Format) (*LoadResult, error) {
	p, err := Decode(data, filename, format)
	if err != nil {
		return nil, err
	}
	p.ApplyDefaults()

	findings := p.Validate()
	if findings.HasErrors() {
		return nil, fmt.Errorf("invalid policy: %w", findings.Errors())
	}

	return &LoadResult{
		Policy:   p,
		Format:   format,
		Warnings: findings.Warnings(),
	}, nil
}

// Decode parses data without applying defaults or validation. Unknown fields
// are ignored in every format.
func Decode(data []byte, filename string, format Format) (*Policy, error) {
	var p Policy
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("JSON parse error: %w", err)
		}
	case FormatTOML:
		if err := toml.NewDecoder(bytes.NewReader(data)).Decode(&p); err != nil {
			return nil, fmt.Errorf("TOML parse error: %w", err)
		}
	case FormatHCL:
		if filename == "" || !strings.HasSuffix(filename, ".hcl") {
			filename = "policy.hcl"
		}
		if err := hclsimple.Decode(filename, data, nil, &p); err != nil {
			return nil, fmt.Errorf("HCL parse error: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("YAML parse error: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return &p, nil
}
