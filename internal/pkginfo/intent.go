package pkginfo

import "strings"

// Intent is a query pattern from a package's <queries> declaration.
type Intent struct {
	Action     string   `json:"action"`
	Type       string   `json:"type"`
	Scheme     string   `json:"scheme"`
	Data       string   `json:"data"`
	Categories []string `json:"categories"`
}

// EffectiveScheme returns the explicit scheme, or the scheme parsed from the
// data URI when none was set.
func (in Intent) EffectiveScheme() string {
	if in.Scheme != "" {
		return in.Scheme
	}
	if idx := strings.Index(in.Data, ":"); idx > 0 {
		return in.Data[:idx]
	}
	return ""
}

// IntentFilter is a component's declared filter.
type IntentFilter struct {
	Actions    []string `json:"actions"`
	Categories []string `json:"categories"`
	Schemes    []string `json:"schemes"`
	Types      []string `json:"types"`
}

// Match reports whether the intent resolves against this filter. The match
// covers action, MIME type, scheme, and categories. When protected is
// non-nil (receiver filters), an intent whose action is a protected
// broadcast never matches.
func (f IntentFilter) Match(in Intent, protected func(string) bool) bool {
	if !f.matchAction(in.Action) {
		return false
	}
	if protected != nil && in.Action != "" && protected(in.Action) {
		return false
	}
	if !f.matchCategories(in.Categories) {
		return false
	}
	return f.matchData(in)
}

func (f IntentFilter) matchAction(action string) bool {
	if len(f.Actions) == 0 {
		return action == ""
	}
	for _, a := range f.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// matchCategories requires every category of the intent to be declared by
// the filter. An intent without categories always passes.
func (f IntentFilter) matchCategories(categories []string) bool {
	for _, want := range categories {
		found := false
		for _, have := range f.Categories {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (f IntentFilter) matchData(in Intent) bool {
	scheme := in.EffectiveScheme()

	if len(f.Types) == 0 && len(f.Schemes) == 0 {
		// A filter declaring no data constraints only matches an intent
		// carrying none.
		return in.Type == "" && scheme == ""
	}

	if len(f.Schemes) > 0 {
		found := false
		for _, s := range f.Schemes {
			if s == scheme {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	} else if scheme != "" && scheme != "content" && scheme != "file" {
		// Filters that declare only types implicitly accept content/file data.
		return false
	}

	if len(f.Types) > 0 {
		if in.Type == "" {
			return false
		}
		matched := false
		for _, t := range f.Types {
			if mimeTypeMatches(t, in.Type) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	} else if in.Type != "" {
		return false
	}

	return true
}

// mimeTypeMatches compares a declared filter type against an intent type,
// honoring "*/*" and "base/*" wildcards on the filter side.
func mimeTypeMatches(filterType, intentType string) bool {
	if filterType == intentType || filterType == "*/*" {
		return true
	}
	if base, ok := strings.CutSuffix(filterType, "/*"); ok {
		return strings.HasPrefix(intentType, base+"/")
	}
	return false
}
