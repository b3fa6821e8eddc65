package runner

// State is a phase of a run
type State int32

const (
	Idle State = iota
	BootstrappingSession
	NavigatingPrimaryPage
	DiscoveringAndDownloading
	Draining
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case BootstrappingSession:
		return "bootstrapping_session"
	case NavigatingPrimaryPage:
		return "navigating_primary_page"
	case DiscoveringAndDownloading:
		return "discovering_and_downloading"
	case Draining:
		return "draining"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen
func (s State) Terminal() bool {
	return s == Done || s == Failed
}

// next lists the legal transitions. Any live state may fail.
var next = map[State][]State{
	Idle:                      {BootstrappingSession},
	BootstrappingSession:      {NavigatingPrimaryPage},
	NavigatingPrimaryPage:     {DiscoveringAndDownloading},
	DiscoveringAndDownloading: {Draining},
	Draining:                  {Done},
}

func canTransition(from, to State) bool {
	if to == Failed {
		return !from.Terminal()
	}
	for _, s := range next[from] {
		if s == to {
			return true
		}
	}
	return false
}
