package engine

import (
	"strconv"

	"grimm.is/sieve/internal/policy"
	"grimm.is/sieve/internal/reputation"
)

// Fragment scalar names.
const (
	varList      = "list"
	varAction    = "action"
	varMax       = "max"
	varFrequency = "frequency"
	varFastCount = "fast_packet_count"
	varKey       = "key"
)

// keyVariables names the C variable holding the lookup key for each program
// type. The base templates declare them.
var keyVariables = map[policy.ProgramType]string{
	policy.ProgramIP:  "src_ip",
	policy.ProgramDNS: "query_dst",
}

func registerDefaults(r *Renderer) {
	r.Handle("name", func(_ *Renderer, s *Scope) (Expansion, error) {
		return Expansion{Inline: s.Policy.ProgramName()}, nil
	})
	r.Handle("default_action", func(_ *Renderer, s *Scope) (Expansion, error) {
		token, _ := s.Policy.DefaultToken()
		return Expansion{Inline: string(token)}, nil
	})
	r.Handle("ns_per_ms", constant(reputation.NsPerMs))
	r.Handle("decay_factor", constant(reputation.DecayFactor))

	for _, name := range []string{varList, varAction, varMax, varFrequency, varFastCount, varKey} {
		r.Handle(name, scopeVar(name))
	}

	for _, list := range policy.AllLists {
		r.Handle(string(list)+"_map", mapHandler(list))
		r.Handle(string(list)+"_action", actionHandler(list))
	}
	r.Handle("promote", promoteHandler)
}

func constant(v uint64) Handler {
	s := strconv.FormatUint(v, 10)
	return func(*Renderer, *Scope) (Expansion, error) {
		return Expansion{Inline: s}, nil
	}
}

func scopeVar(name string) Handler {
	return func(_ *Renderer, s *Scope) (Expansion, error) {
		v, ok := s.Var(name)
		if !ok {
			return Expansion{}, ErrNoValue
		}
		return Expansion{Inline: v}, nil
	}
}

// listVars returns the fragment scalars for one list.
func listVars(p *policy.Policy, name policy.ListName) map[string]string {
	l := p.List(name)
	vars := map[string]string{
		varList:   string(name),
		varAction: string(l.Token()),
		varMax:    strconv.FormatUint(uint64(l.MaxEntries), 10),
	}
	if name == policy.Graylist {
		vars[varFrequency] = strconv.FormatUint(uint64(l.Frequency), 10)
		vars[varFastCount] = strconv.FormatUint(uint64(l.FastPacketThreshold), 10)
	}
	if key, ok := keyVariables[p.Kind()]; ok {
		vars[varKey] = key
	}
	return vars
}

// mapHandler emits the map declaration of an enabled list.
func mapHandler(name policy.ListName) Handler {
	return func(r *Renderer, s *Scope) (Expansion, error) {
		if !s.Policy.Enabled(name) {
			return Expansion{Omit: true}, nil
		}
		return r.expand(s.child(name, listVars(s.Policy, name)), "map")
	}
}

// actionHandler emits the key lookup of an enabled list followed by either
// the plain verdict or, for a non-binary graylist, the tracking state
// machine.
func actionHandler(name policy.ListName) Handler {
	return func(r *Renderer, s *Scope) (Expansion, error) {
		if !s.Policy.Enabled(name) {
			return Expansion{Omit: true}, nil
		}
		fragments := []string{"get_data_" + string(s.Policy.Kind())}
		if name == policy.Graylist && !s.Policy.List(name).Binary() {
			fragments = append(fragments, "graylist")
		} else {
			fragments = append(fragments, "action")
		}
		return r.expand(s.child(name, listVars(s.Policy, name)), fragments...)
	}
}

// promoteHandler emits the copy into the blacklist when one exists.
func promoteHandler(r *Renderer, s *Scope) (Expansion, error) {
	if !s.Policy.Enabled(policy.Blacklist) {
		return Expansion{Omit: true}, nil
	}
	return r.expand(s.nested(), "promote")
}
