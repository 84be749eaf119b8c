package nexus

// Entry is one line of an aggregated result. Failure entries are synthetic
// lines standing in for a node that could not deliver, or a structured
// error reported by the backend.
type Entry struct {
	Node    string
	Text    string
	Failure bool
}

// ResultSet is the merged output of one fan-out, in node declaration order.
type ResultSet struct {
	Entries []Entry
}

func (r ResultSet) Len() int { return len(r.Entries) }

func (r ResultSet) Empty() bool { return len(r.Entries) == 0 }

// AllFailed reports whether a non-empty set holds only failure entries.
func (r ResultSet) AllFailed() bool {
	if len(r.Entries) == 0 {
		return false
	}
	for _, e := range r.Entries {
		if !e.Failure {
			return false
		}
	}
	return true
}

func (r ResultSet) Lines() []string {
	lines := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		lines[i] = e.Text
	}
	return lines
}

// Failures counts the failure entries.
func (r ResultSet) Failures() int {
	n := 0
	for _, e := range r.Entries {
		if e.Failure {
			n++
		}
	}
	return n
}
