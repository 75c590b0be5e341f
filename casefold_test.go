package pylink

import "testing"

func TestCanonicalizeNick(t *testing.T) {
	tests := []struct {
		input  string
		output string
	}{
		{"Alice", "alice"},
		{"BOB[away]", "bob{away}"},
		{"already-lower", "already-lower"},
		{`A^B\C`, "a~b|c"},
	}

	for _, test := range tests {
		got := canonicalizeNick(test.input)
		if got != test.output {
			t.Errorf("canonicalizeNick(%q) = %q, wanted %q", test.input, got, test.output)
		}
	}
}

func TestCanonicalizeChannelEquivalence(t *testing.T) {
	if canonicalizeChannel("#Chat") != canonicalizeChannel("#CHAT") {
		t.Errorf("expected #Chat and #CHAT to canonicalize the same")
	}
}

func TestIsValidNick(t *testing.T) {
	tests := []struct {
		nick string
		ok   bool
	}{
		{"PyLink", true},
		{"", false},
		{"9nick", false},
		{"nick with space", false},
		{"nick,comma", false},
	}

	for _, test := range tests {
		if got := isValidNick(32, test.nick); got != test.ok {
			t.Errorf("isValidNick(32, %q) = %v, wanted %v", test.nick, got, test.ok)
		}
	}
}

func TestIsValidChannel(t *testing.T) {
	tests := []struct {
		channel string
		ok      bool
	}{
		{"#chat", true},
		{"chat", false},
		{"", false},
		{"#chat with space", false},
	}

	for _, test := range tests {
		if got := isValidChannel(test.channel); got != test.ok {
			t.Errorf("isValidChannel(%q) = %v, wanted %v", test.channel, got, test.ok)
		}
	}
}

func TestIsValidServerName(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"services.example.net", true},
		{"no-dot", false},
		{"has space.example.net", false},
		{"", false},
	}

	for _, test := range tests {
		if got := isValidServerName(test.name); got != test.ok {
			t.Errorf("isValidServerName(%q) = %v, wanted %v", test.name, got, test.ok)
		}
	}
}
