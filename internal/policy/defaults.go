package policy

// Defaults applied to fields a policy document leaves out.
const (
	DefaultName          = "Example Program"
	DefaultInterface     = "eth0"
	DefaultSSHPort       = 22
	DefaultMaxEntries    = 32
	DefaultFrequency     = 1000 // milliseconds
	DefaultFastPackets   = 10
	DefaultProgramType   = ProgramIP
	DefaultDefaultAction = "PASS"
)

var defaultListActions = map[ListName]string{
	Whitelist: ActionAllow,
	Blacklist: ActionDeny,
	Graylist:  ActionInvestigate,
}

// DefaultListAction returns the action a list gets when none is configured.
func DefaultListAction(name ListName) string {
	return defaultListActions[name]
}

// ApplyDefaults fills every unset field. Zero numeric values count as unset.
func (p *Policy) ApplyDefaults() {
	if p.Name == "" {
		p.Name = DefaultName
	}
	if p.ProgramType == "" {
		p.ProgramType = string(DefaultProgramType)
	}
	if p.DefaultAction == "" {
		p.DefaultAction = DefaultDefaultAction
	}
	if p.Target != nil && p.Target.Port == 0 {
		p.Target.Port = DefaultSSHPort
	}
	for _, name := range AllLists {
		l := p.List(name)
		if l == nil {
			continue
		}
		if l.MaxEntries == 0 {
			l.MaxEntries = DefaultMaxEntries
		}
		if l.Action == "" {
			l.Action = DefaultListAction(name)
		}
		if name == Graylist {
			if l.Frequency == 0 {
				l.Frequency = DefaultFrequency
			}
			if l.FastPacketThreshold == 0 {
				l.FastPacketThreshold = DefaultFastPackets
			}
		}
	}
}

func defaultList(name ListName, enabled bool) *List {
	l := &List{
		Enabled:    enabled,
		MaxEntries: DefaultMaxEntries,
		Action:     DefaultListAction(name),
	}
	if name == Graylist {
		l.Frequency = DefaultFrequency
		l.FastPacketThreshold = DefaultFastPackets
	}
	return l
}

// Default returns the policy used when no document is given: every list
// present but disabled.
func Default() *Policy {
	return &Policy{
		Name:             DefaultName,
		NetworkInterface: DefaultInterface,
		ProgramType:      string(ProgramIP),
		DefaultAction:    DefaultDefaultAction,
		Lists: &Lists{
			Whitelist: defaultList(Whitelist, false),
			Blacklist: defaultList(Blacklist, false),
			Graylist:  defaultList(Graylist, false),
		},
		Preload: &Preload{},
	}
}

// Example returns a fully populated policy targeting a remote host.
func Example() *Policy {
	p := &Policy{
		Name: "Example",
		Target: &Target{
			Host:     "100.0.0.10",
			Port:     22,
			Username: "bobthebuilder",
		},
		NetworkInterface: "eth0",
		ProgramType:      string(ProgramIP),
		DefaultAction:    "PASS",
		Lists: &Lists{
			Whitelist: defaultList(Whitelist, true),
			Blacklist: defaultList(Blacklist, true),
			Graylist:  defaultList(Graylist, true),
		},
		Preload: &Preload{
			Whitelist: []string{"192.168.1.103"},
			Blacklist: []string{"192.168.1.203"},
			Graylist:  []string{},
		},
	}
	return p
}

// Base returns a starter policy: local, loopback, white- and blacklist only.
func Base() *Policy {
	return &Policy{
		Name:             "MyFirstProgram",
		NetworkInterface: "lo",
		ProgramType:      string(ProgramIP),
		DefaultAction:    "PASS",
		Lists: &Lists{
			Whitelist: defaultList(Whitelist, true),
			Blacklist: defaultList(Blacklist, true),
		},
		Preload: &Preload{
			Whitelist: []string{},
			Blacklist: []string{},
		},
	}
}

// Preset returns a named preset policy.
func Preset(name string) (*Policy, bool) {
	switch name {
	case "default":
		return Default(), true
	case "example":
		return Example(), true
	case "base":
		return Base(), true
	}
	return nil, false
}
