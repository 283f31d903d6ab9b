package core

// Filter selects the subset of events a subscriber cares about.
// The zero value matches every event.
type Filter struct {
	// MinSeverity drops events less urgent than this level when set
	MinSeverity Severity
	// Categories restricts matching to the listed categories when non-empty
	Categories []Category
	// Sources restricts matching to the listed producer identifiers when non-empty
	Sources []string
	// Custom is an optional extra predicate applied after the field checks
	Custom func(*Event) bool
}

// Matches reports whether the event passes the filter
func (f *Filter) Matches(event *Event) bool {
	if event == nil {
		return false
	}
	if f == nil {
		return true
	}

	if f.MinSeverity != "" && !event.Severity.AtLeast(f.MinSeverity) {
		return false
	}

	if len(f.Categories) > 0 {
		matched := false
		for _, c := range f.Categories {
			if event.Category == c {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if len(f.Sources) > 0 {
		matched := false
		for _, s := range f.Sources {
			if event.Source == s {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if f.Custom != nil && !f.Custom(event) {
		return false
	}

	return true
}
