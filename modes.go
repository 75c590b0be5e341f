package pylink

import "regexp"

// modeClass is one of the four RFC-005 classes, plus a fifth pseudo-class
// for prefix (membership) modes.
type modeClass int

const (
	classNone modeClass = iota
	classA              // list modes: argument on both set and unset
	classB              // argument on set and unset
	classC              // argument on set only
	classD              // no argument
	classPrefix         // argument is always a UID
)

// ModeClassTable is the mode vocabulary learned from a peer's CAPAB
// negotiation: which letter belongs to which class, separately for user
// modes and channel modes, plus the prefix-mode letters and their display
// symbols.
//
// It starts out empty and is populated by IngestCapabilities /
// IngestChanmodes / IngestUsermodes as those CAPAB lines arrive — the
// engine runs without any hard-coded letters so it can follow dialect
// drift across peer implementations.
type ModeClassTable struct {
	Chan map[byte]modeClass
	User map[byte]modeClass

	// Prefix maps a mode letter (o, v, ...) to its display symbol (@, +,
	// ...), in descending rank order as announced.
	Prefix       map[byte]byte
	PrefixOrder  []byte
	NickMax      int
	ChanMax      int
}

// NewModeClassTable returns an empty table.
func NewModeClassTable() *ModeClassTable {
	return &ModeClassTable{
		Chan:   make(map[byte]modeClass),
		User:   make(map[byte]modeClass),
		Prefix: make(map[byte]byte),
	}
}

// IngestChanmodes records the name=char pairs from a `CAPAB CHANMODES`
// line. Named modes are not load-bearing on their own (we key everything
// off the letter); what matters is that every letter the peer will ever
// send us later has an entry once IngestCapabilities has filled in the
// A/B/C/D split.
func (t *ModeClassTable) IngestChanmodes(pairs map[string]byte) {
	for _, ch := range pairs {
		if _, ok := t.Chan[ch]; !ok {
			t.Chan[ch] = classNone
		}
	}
}

// IngestUsermodes is IngestChanmodes's user-mode counterpart.
func (t *ModeClassTable) IngestUsermodes(pairs map[string]byte) {
	for _, ch := range pairs {
		if _, ok := t.User[ch]; !ok {
			t.User[ch] = classNone
		}
	}
}

var prefixRE = regexp.MustCompile(`\((.*?)\)(.*)`)

// IngestCapabilities records the 4-way CHANMODES=A,B,C,D and
// USERMODES=A,B,C,D splits and the PREFIX=(modes)symbols mapping from a
// `CAPAB CAPABILITIES` line's key=value pairs.
func (t *ModeClassTable) IngestCapabilities(caps map[string]string) {
	if v, ok := caps["CHANMODES"]; ok {
		assignClasses(t.Chan, v)
	}
	if v, ok := caps["USERMODES"]; ok {
		assignClasses(t.User, v)
	}
	if v, ok := caps["PREFIX"]; ok {
		m := prefixRE.FindStringSubmatch(v)
		if len(m) == 3 && len(m[1]) == len(m[2]) {
			t.PrefixOrder = nil
			for i := 0; i < len(m[1]); i++ {
				letter := m[1][i]
				symbol := m[2][i]
				t.Prefix[letter] = symbol
				t.PrefixOrder = append(t.PrefixOrder, letter)
				// Prefix letters are also valid channel mode letters, of their
				// own pseudo-class.
				t.Chan[letter] = classPrefix
			}
		}
	}
	if v, ok := caps["NICKMAX"]; ok {
		t.NickMax = atoiSafe(v)
	}
	if v, ok := caps["CHANMAX"]; ok {
		t.ChanMax = atoiSafe(v)
	}
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// assignClasses splits "Ibe,k,l,mnt" into four letter groups and assigns
// classA..classD to each letter in m, matching the original's
// `irc.cmodes['*A'], ... = caps['CHANMODES'].split(',')` shape.
func assignClasses(m map[byte]modeClass, spec string) {
	groups := splitComma(spec)
	classes := [4]modeClass{classA, classB, classC, classD}
	for i, letters := range groups {
		if i >= 4 {
			break
		}
		for j := 0; j < len(letters); j++ {
			// Prefix-class letters, if already assigned (PREFIX is usually
			// ingested alongside CHANMODES in the same CAPABILITIES line, order
			// is not guaranteed), are never downgraded by CHANMODES.
			if existing, ok := m[letters[j]]; ok && existing == classPrefix {
				continue
			}
			m[letters[j]] = classes[i]
		}
	}
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

// ModeChange is one parsed mode-letter entry: its sign, letter, and
// argument (empty if the letter takes none).
type ModeChange struct {
	Set     bool
	Letter  byte
	Arg     string
	HasArg  bool
	IsClass modeClass
}

// targetKind distinguishes which half of the table to consult.
type targetKind int

const (
	targetUser targetKind = iota
	targetChannel
)

// ParseModes walks a mode-letter token (e.g. "+ovb-k") together with its
// argument tokens and returns the changes in input order. A letter whose
// required argument is missing is discarded, not fatal.
func (t *ModeClassTable) ParseModes(kind targetKind, tokens []string) []ModeChange {
	if len(tokens) == 0 {
		return nil
	}

	classes := t.User
	if kind == targetChannel {
		classes = t.Chan
	}

	letters := tokens[0]
	args := tokens[1:]
	argIdx := 0

	var out []ModeChange
	set := true
	for i := 0; i < len(letters); i++ {
		c := letters[i]
		if c == '+' {
			set = true
			continue
		}
		if c == '-' {
			set = false
			continue
		}

		class, known := classes[c]
		if !known {
			class = classD
		}

		switch class {
		case classA, classB, classPrefix:
			if argIdx >= len(args) {
				continue
			}
			out = append(out, ModeChange{Set: set, Letter: c, Arg: args[argIdx], HasArg: true, IsClass: class})
			argIdx++
		case classC:
			if set {
				if argIdx >= len(args) {
					continue
				}
				out = append(out, ModeChange{Set: set, Letter: c, Arg: args[argIdx], HasArg: true, IsClass: class})
				argIdx++
			} else {
				out = append(out, ModeChange{Set: set, Letter: c, IsClass: class})
			}
		default: // classD, classNone
			out = append(out, ModeChange{Set: set, Letter: c, IsClass: class})
		}
	}

	return out
}

// ApplyUserModes applies parsed user-mode changes to u's mode set.
func ApplyUserModes(u *User, changes []ModeChange) {
	for _, c := range changes {
		if c.Set {
			u.Modes[c.Letter] = struct{}{}
		} else {
			delete(u.Modes, c.Letter)
		}
	}
}

// ApplyChannelModes applies parsed channel-mode changes to ch. Prefix
// modes update per-member prefix sets (the argument must resolve to a
// member UID — callers are expected to have already validated membership;
// ApplyChannelModes itself does not reject unknown UIDs, it simply records
// the prefix, matching the tolerant "discard nothing already parsed"
// posture of the rest of this engine). List modes (class A) maintain a set
// of arguments; duplicate adds are no-ops; '-' removes.
func ApplyChannelModes(ch *Channel, changes []ModeChange) {
	for _, c := range changes {
		switch c.IsClass {
		case classPrefix:
			uid := UID(c.Arg)
			if c.Set {
				set, ok := ch.Prefixes[uid]
				if !ok {
					set = make(map[byte]struct{})
					ch.Prefixes[uid] = set
				}
				set[c.Letter] = struct{}{}
			} else if set, ok := ch.Prefixes[uid]; ok {
				delete(set, c.Letter)
			}
		case classA:
			list, ok := ch.ListModes[c.Letter]
			if !ok {
				list = make(map[string]struct{})
				ch.ListModes[c.Letter] = list
			}
			if c.Set {
				list[c.Arg] = struct{}{}
			} else {
				delete(list, c.Arg)
			}
		case classB:
			if c.Set {
				ch.ValueModes[c.Letter] = modeValue{set: true, arg: c.Arg}
			} else {
				delete(ch.ValueModes, c.Letter)
			}
		case classC:
			if c.Set {
				ch.ValueModes[c.Letter] = modeValue{set: true, arg: c.Arg}
			} else {
				delete(ch.ValueModes, c.Letter)
			}
		default: // classD, classNone
			if c.Set {
				ch.BoolModes[c.Letter] = struct{}{}
			} else {
				delete(ch.BoolModes, c.Letter)
			}
		}
	}
}
