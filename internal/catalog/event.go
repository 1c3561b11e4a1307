package catalog

// EventKind is the type of catalog change.
type EventKind int

const (
	Added EventKind = iota
	Removed
	Modified
)

func (k EventKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Modified:
		return "modified"
	default:
		return "unknown"
	}
}

// Event describes a change to one entry.
type Event struct {
	Kind  EventKind
	Entry *Entry
}

// Listener receives notifications for one capability. Nil callbacks are
// skipped.
type Listener struct {
	OnAdd    func(*Entry)
	OnRemove func(*Entry)
	OnModify func(*Entry)
}

func (l Listener) dispatch(ev Event) {
	switch ev.Kind {
	case Added:
		if l.OnAdd != nil {
			l.OnAdd(ev.Entry)
		}
	case Removed:
		if l.OnRemove != nil {
			l.OnRemove(ev.Entry)
		}
	case Modified:
		if l.OnModify != nil {
			l.OnModify(ev.Entry)
		}
	}
}
