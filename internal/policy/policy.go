package policy

import (
	"net"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
)

// Token is the XDP verdict keyword emitted into generated source.
type Token string

const (
	TokenPass Token = "XDP_PASS"
	TokenDrop Token = "XDP_DROP"
)

// The two fallbacks are intentionally different: an unparseable program
// default lets traffic through, an unparseable list action blocks the listed
// addresses.
const (
	UnrecognizedDefaultAction = TokenPass
	UnrecognizedListAction    = TokenDrop
)

// List actions.
const (
	ActionAllow       = "allow"
	ActionDeny        = "deny"
	ActionInvestigate = "investigate"
)

// ProgramType selects the base template and key-extraction logic.
type ProgramType string

const (
	ProgramIP  ProgramType = "ip"
	ProgramDNS ProgramType = "dns"
)

// ListName names one of the three reputation lists. The name doubles as the
// BPF map name.
type ListName string

const (
	Whitelist ListName = "whitelist"
	Blacklist ListName = "blacklist"
	Graylist  ListName = "graylist"
)

// AllLists is the fixed evaluation order of the lists.
var AllLists = []ListName{Whitelist, Blacklist, Graylist}

// Policy is the top-level access-control document.
type Policy struct {
	Name             string   `hcl:"name,optional" json:"name,omitempty" toml:"name,omitempty" yaml:"name,omitempty"`
	Target           *Target  `hcl:"target,block" json:"target,omitempty" toml:"target,omitempty" yaml:"target,omitempty"`
	NetworkInterface string   `hcl:"network_interface,optional" json:"networkInterface,omitempty" toml:"networkInterface,omitempty" yaml:"networkInterface,omitempty"`
	ProgramType      string   `hcl:"program_type,optional" json:"programType,omitempty" toml:"programType,omitempty" yaml:"programType,omitempty"`
	DefaultAction    string   `hcl:"default_action,optional" json:"defaultAction,omitempty" toml:"defaultAction,omitempty" yaml:"defaultAction,omitempty"`
	Lists            *Lists   `hcl:"lists,block" json:"lists,omitempty" toml:"lists,omitempty" yaml:"lists,omitempty"`
	Preload          *Preload `hcl:"preload,block" json:"preload,omitempty" toml:"preload,omitempty" yaml:"preload,omitempty"`

	Remain hcl.Body `hcl:",remain" json:"-" toml:"-" yaml:"-"`
}

// Target is the host a program is deployed to.
type Target struct {
	Host     string `hcl:"host,optional" json:"host,omitempty" toml:"host,omitempty" yaml:"host,omitempty"`
	Port     int    `hcl:"port,optional" json:"port,omitempty" toml:"port,omitempty" yaml:"port,omitempty"`
	Username string `hcl:"username,optional" json:"username,omitempty" toml:"username,omitempty" yaml:"username,omitempty"`

	Remain hcl.Body `hcl:",remain" json:"-" toml:"-" yaml:"-"`
}

// Lists holds the three optional reputation lists.
type Lists struct {
	Whitelist *List `hcl:"whitelist,block" json:"whitelist,omitempty" toml:"whitelist,omitempty" yaml:"whitelist,omitempty"`
	Blacklist *List `hcl:"blacklist,block" json:"blacklist,omitempty" toml:"blacklist,omitempty" yaml:"blacklist,omitempty"`
	Graylist  *List `hcl:"graylist,block" json:"graylist,omitempty" toml:"graylist,omitempty" yaml:"graylist,omitempty"`

	Remain hcl.Body `hcl:",remain" json:"-" toml:"-" yaml:"-"`
}

// List configures one map. Frequency and FastPacketThreshold only apply to
// the graylist.
type List struct {
	Enabled             bool   `hcl:"enabled,optional" json:"enabled" toml:"enabled" yaml:"enabled"`
	MaxEntries          uint32 `hcl:"max_entries,optional" json:"maxEntries,omitempty" toml:"maxEntries,omitempty" yaml:"maxEntries,omitempty"`
	Action              string `hcl:"action,optional" json:"action,omitempty" toml:"action,omitempty" yaml:"action,omitempty"`
	Frequency           uint32 `hcl:"frequency,optional" json:"frequency,omitempty" toml:"frequency,omitempty" yaml:"frequency,omitempty"`
	FastPacketThreshold uint32 `hcl:"fast_packet_threshold,optional" json:"fastPacketThreshold,omitempty" toml:"fastPacketThreshold,omitempty" yaml:"fastPacketThreshold,omitempty"`

	Remain hcl.Body `hcl:",remain" json:"-" toml:"-" yaml:"-"`
}

// Preload holds the addresses seeded into each map at load time.
type Preload struct {
	Whitelist        []string `hcl:"whitelist,optional" json:"whitelist,omitempty" toml:"whitelist,omitempty" yaml:"whitelist,omitempty"`
	Blacklist        []string `hcl:"blacklist,optional" json:"blacklist,omitempty" toml:"blacklist,omitempty" yaml:"blacklist,omitempty"`
	Graylist         []string `hcl:"graylist,optional" json:"graylist,omitempty" toml:"graylist,omitempty" yaml:"graylist,omitempty"`
	ResolveHostnames bool     `hcl:"resolve_hostnames,optional" json:"resolveHostnames,omitempty" toml:"resolveHostnames,omitempty" yaml:"resolveHostnames,omitempty"`

	Remain hcl.Body `hcl:",remain" json:"-" toml:"-" yaml:"-"`
}

// ProgramName returns the name used for the C function, the pin path and the
// program lookup. Spaces are stripped.
func (p *Policy) ProgramName() string {
	name := p.Name
	if name == "" {
		name = DefaultName
	}
	return strings.ReplaceAll(name, " ", "")
}

// Kind returns the program type, defaulting to ip.
func (p *Policy) Kind() ProgramType {
	if p.ProgramType == "" {
		return ProgramIP
	}
	return ProgramType(strings.ToLower(p.ProgramType))
}

// Interface returns override when set, else the policy interface, else the
// default interface.
func (p *Policy) Interface(override string) string {
	if override != "" {
		return override
	}
	if p.NetworkInterface != "" {
		return p.NetworkInterface
	}
	return DefaultInterface
}

// IsLocal reports whether the policy targets the local host.
func (p *Policy) IsLocal() bool {
	return p.Target.IsLocal()
}

// IsLocal reports whether t names the local host. A nil target is local.
func (t *Target) IsLocal() bool {
	if t == nil {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(t.Host)) {
	case "", "localhost":
		return true
	}
	ip := net.ParseIP(t.Host)
	return ip != nil && ip.IsLoopback()
}

// Address returns host:port for the remote shell connection.
func (t *Target) Address() string {
	port := t.Port
	if port == 0 {
		port = DefaultSSHPort
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(port))
}

// List returns the configuration of the named list, or nil when absent.
func (p *Policy) List(name ListName) *List {
	if p.Lists == nil {
		return nil
	}
	switch name {
	case Whitelist:
		return p.Lists.Whitelist
	case Blacklist:
		return p.Lists.Blacklist
	case Graylist:
		return p.Lists.Graylist
	}
	return nil
}

// Enabled reports whether the named list is present and enabled.
func (p *Policy) Enabled(name ListName) bool {
	l := p.List(name)
	return l != nil && l.Enabled
}

// EnabledLists returns the enabled lists in evaluation order.
func (p *Policy) EnabledLists() []ListName {
	var out []ListName
	for _, name := range AllLists {
		if p.Enabled(name) {
			out = append(out, name)
		}
	}
	return out
}

// PreloadFor returns the preload entries for the named list.
func (p *Policy) PreloadFor(name ListName) []string {
	if p.Preload == nil {
		return nil
	}
	switch name {
	case Whitelist:
		return p.Preload.Whitelist
	case Blacklist:
		return p.Preload.Blacklist
	case Graylist:
		return p.Preload.Graylist
	}
	return nil
}

// DefaultToken resolves defaultAction. The second result is false when the
// configured value was not recognized and UnrecognizedDefaultAction was used.
func (p *Policy) DefaultToken() (Token, bool) {
	action := strings.ToUpper(strings.ReplaceAll(p.DefaultAction, " ", ""))
	switch action {
	case "", "PASS":
		return TokenPass, true
	case "DROP":
		return TokenDrop, true
	}
	return UnrecognizedDefaultAction, false
}

// Token resolves a list action to its verdict.
func (l *List) Token() Token {
	switch strings.ToLower(strings.TrimSpace(l.Action)) {
	case ActionAllow:
		return TokenPass
	case ActionDeny:
		return TokenDrop
	}
	return UnrecognizedListAction
}

// Binary reports whether the action is a plain allow or deny. Graylists with
// any other action run the rate-limiting state machine.
func (l *List) Binary() bool {
	switch strings.ToLower(strings.TrimSpace(l.Action)) {
	case ActionAllow, ActionDeny:
		return true
	}
	return false
}
