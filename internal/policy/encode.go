package policy

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/pelletier/go-toml/v2"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v2"
)

// OutputFormat selects how Encode renders a policy.
type OutputFormat string

const (
	OutputJSON      OutputFormat = "json"
	OutputPretty    OutputFormat = "pretty"
	OutputTOML      OutputFormat = "toml"
	OutputYAML      OutputFormat = "yaml"
	OutputHCL       OutputFormat = "hcl"
	OutputFormatted OutputFormat = "formatted"
)

// Encode renders p in the requested format.
func Encode(p *Policy, format OutputFormat) ([]byte, error) {
	switch format {
	case OutputJSON:
		return json.Marshal(p)
	case OutputPretty, "":
		return json.MarshalIndent(p, "", "  ")
	case OutputTOML:
		return toml.Marshal(p)
	case OutputYAML:
		return yaml.Marshal(p)
	case OutputHCL:
		return encodeHCL(p), nil
	case OutputFormatted:
		return []byte(Render(p)), nil
	}
	return nil, fmt.Errorf("unsupported output format %q", format)
}

func encodeHCL(p *Policy) []byte {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	setString(body, "name", p.Name)
	setString(body, "network_interface", p.NetworkInterface)
	setString(body, "program_type", p.ProgramType)
	setString(body, "default_action", p.DefaultAction)

	if p.Target != nil {
		body.AppendNewline()
		tb := body.AppendNewBlock("target", nil).Body()
		setString(tb, "host", p.Target.Host)
		if p.Target.Port != 0 {
			tb.SetAttributeValue("port", cty.NumberIntVal(int64(p.Target.Port)))
		}
		setString(tb, "username", p.Target.Username)
	}

	if p.Lists != nil {
		body.AppendNewline()
		lb := body.AppendNewBlock("lists", nil).Body()
		for _, name := range AllLists {
			l := p.List(name)
			if l == nil {
				continue
			}
			b := lb.AppendNewBlock(string(name), nil).Body()
			b.SetAttributeValue("enabled", cty.BoolVal(l.Enabled))
			b.SetAttributeValue("max_entries", cty.NumberUIntVal(uint64(l.MaxEntries)))
			setString(b, "action", l.Action)
			if l.Frequency != 0 {
				b.SetAttributeValue("frequency", cty.NumberUIntVal(uint64(l.Frequency)))
			}
			if l.FastPacketThreshold != 0 {
				b.SetAttributeValue("fast_packet_threshold", cty.NumberUIntVal(uint64(l.FastPacketThreshold)))
			}
		}
	}

	if p.Preload != nil {
		body.AppendNewline()
		pb := body.AppendNewBlock("preload", nil).Body()
		for _, name := range AllLists {
			if p.List(name) == nil && len(p.PreloadFor(name)) == 0 {
				continue
			}
			pb.SetAttributeValue(string(name), stringList(p.PreloadFor(name)))
		}
		if p.Preload.ResolveHostnames {
			pb.SetAttributeValue("resolve_hostnames", cty.True)
		}
	}

	return f.Bytes()
}

func setString(body *hclwrite.Body, name, value string) {
	if value == "" {
		return
	}
	body.SetAttributeValue(name, cty.StringVal(value))
}

func stringList(values []string) cty.Value {
	if len(values) == 0 {
		return cty.ListValEmpty(cty.String)
	}
	vals := make([]cty.Value, len(values))
	for i, v := range values {
		vals[i] = cty.StringVal(v)
	}
	return cty.ListVal(vals)
}
