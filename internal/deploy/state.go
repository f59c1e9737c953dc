package deploy

// State is where a program is in its lifecycle.
type State int

const (
	StateNew State = iota
	StateGenerated
	StateCompiled
	StateLocalTemporary
	StateLocalPersistent
	StateRemotePersistent
	StateUnloaded
)

var stateNames = map[State]string{
	StateNew:              "NEW",
	StateGenerated:        "GENERATED",
	StateCompiled:         "COMPILED",
	StateLocalTemporary:   "LOCAL_TEMPORARY",
	StateLocalPersistent:  "LOCAL_PERSISTENT",
	StateRemotePersistent: "REMOTE_PERSISTENT",
	StateUnloaded:         "UNLOADED",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// Unload starts from NEW because a persistent program outlives the process
// that loaded it; the registry, not this state, says what is attached. For
// the same reason a persistent load may be followed by another build.
var transitions = map[State][]State{
	StateNew:              {StateGenerated, StateCompiled, StateUnloaded},
	StateGenerated:        {StateGenerated, StateCompiled},
	StateCompiled:         {StateGenerated, StateCompiled, StateLocalTemporary, StateLocalPersistent, StateRemotePersistent},
	StateLocalTemporary:   {StateUnloaded},
	StateLocalPersistent:  {StateUnloaded, StateGenerated, StateCompiled},
	StateRemotePersistent: {StateUnloaded, StateGenerated, StateCompiled},
	StateUnloaded:         {StateGenerated, StateCompiled},
}

// CanTransition reports whether to may follow s.
func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Loaded reports whether s has a program attached.
func (s State) Loaded() bool {
	switch s {
	case StateLocalTemporary, StateLocalPersistent, StateRemotePersistent:
		return true
	}
	return false
}

// Persistent reports whether s is a loaded state that outlives the process.
func (s State) Persistent() bool {
	return s.Loaded() && s != StateLocalTemporary
}
