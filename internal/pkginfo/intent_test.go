package pkginfo

import "testing"

func TestMatch_ActionOnly(t *testing.T) {
	filter := IntentFilter{Actions: []string{"foo.ACTION"}}

	if !filter.Match(Intent{Action: "foo.ACTION"}, nil) {
		t.Error("expected action match")
	}
	if filter.Match(Intent{Action: "bar.ACTION"}, nil) {
		t.Error("unexpected match for undeclared action")
	}
	if filter.Match(Intent{}, nil) {
		t.Error("empty intent should not match a filter that declares actions")
	}
}

func TestMatch_ProtectedActionSuppressed(t *testing.T) {
	filter := IntentFilter{Actions: []string{"foo.ACTION"}}
	protected := func(action string) bool { return action == "foo.ACTION" }

	if filter.Match(Intent{Action: "foo.ACTION"}, protected) {
		t.Error("protected action should not match")
	}
	// The same intent matches when the protected set is not consulted
	// (activity, service, and provider filters).
	if !filter.Match(Intent{Action: "foo.ACTION"}, nil) {
		t.Error("expected match when protected set is not consulted")
	}
}

func TestMatch_Categories(t *testing.T) {
	filter := IntentFilter{
		Actions:    []string{"foo.ACTION"},
		Categories: []string{"cat.DEFAULT", "cat.BROWSABLE"},
	}

	if !filter.Match(Intent{Action: "foo.ACTION", Categories: []string{"cat.DEFAULT"}}, nil) {
		t.Error("declared category should match")
	}
	if filter.Match(Intent{Action: "foo.ACTION", Categories: []string{"cat.HOME"}}, nil) {
		t.Error("undeclared category should not match")
	}
}

func TestMatch_Data(t *testing.T) {
	tests := []struct {
		name   string
		filter IntentFilter
		intent Intent
		want   bool
	}{
		{
			name:   "scheme match",
			filter: IntentFilter{Actions: []string{"a"}, Schemes: []string{"https"}},
			intent: Intent{Action: "a", Scheme: "https"},
			want:   true,
		},
		{
			name:   "scheme from data uri",
			filter: IntentFilter{Actions: []string{"a"}, Schemes: []string{"https"}},
			intent: Intent{Action: "a", Data: "https://example.com/x"},
			want:   true,
		},
		{
			name:   "scheme mismatch",
			filter: IntentFilter{Actions: []string{"a"}, Schemes: []string{"https"}},
			intent: Intent{Action: "a", Scheme: "ftp"},
			want:   false,
		},
		{
			name:   "type exact",
			filter: IntentFilter{Actions: []string{"a"}, Types: []string{"image/png"}},
			intent: Intent{Action: "a", Type: "image/png"},
			want:   true,
		},
		{
			name:   "type subtype wildcard",
			filter: IntentFilter{Actions: []string{"a"}, Types: []string{"image/*"}},
			intent: Intent{Action: "a", Type: "image/jpeg"},
			want:   true,
		},
		{
			name:   "type full wildcard",
			filter: IntentFilter{Actions: []string{"a"}, Types: []string{"*/*"}},
			intent: Intent{Action: "a", Type: "application/pdf"},
			want:   true,
		},
		{
			name:   "intent type against typeless filter",
			filter: IntentFilter{Actions: []string{"a"}, Schemes: []string{"https"}},
			intent: Intent{Action: "a", Scheme: "https", Type: "image/png"},
			want:   false,
		},
		{
			name:   "data on data-less filter",
			filter: IntentFilter{Actions: []string{"a"}},
			intent: Intent{Action: "a", Scheme: "https"},
			want:   false,
		},
		{
			name:   "type-only filter accepts content scheme",
			filter: IntentFilter{Actions: []string{"a"}, Types: []string{"image/*"}},
			intent: Intent{Action: "a", Type: "image/png", Scheme: "content"},
			want:   true,
		},
		{
			name:   "type-only filter rejects network scheme",
			filter: IntentFilter{Actions: []string{"a"}, Types: []string{"image/*"}},
			intent: Intent{Action: "a", Type: "image/png", Scheme: "https"},
			want:   false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.Match(tc.intent, nil); got != tc.want {
				t.Errorf("Match() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestUIDEncoding(t *testing.T) {
	uid := UIDOf(10, 10123)
	if uid != 1010123 {
		t.Fatalf("UIDOf(10, 10123) = %d, want 1010123", uid)
	}
	if uid.User() != 10 {
		t.Errorf("User() = %d, want 10", uid.User())
	}
	if uid.App() != 10123 {
		t.Errorf("App() = %d, want 10123", uid.App())
	}
}

func TestSigningDetails_MatchesExactly(t *testing.T) {
	a := SigningDetails{Fingerprints: []string{"aa", "bb"}}
	b := SigningDetails{Fingerprints: []string{"bb", "aa"}}
	c := SigningDetails{Fingerprints: []string{"aa"}}
	var empty SigningDetails

	if !a.MatchesExactly(b) {
		t.Error("order-insensitive equality expected")
	}
	if a.MatchesExactly(c) {
		t.Error("subset should not match exactly")
	}
	if empty.MatchesExactly(empty) {
		t.Error("empty identities never match")
	}
}
