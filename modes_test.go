package pylink

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func tableWithChatCapabilities() *ModeClassTable {
	t := NewModeClassTable()
	t.IngestCapabilities(map[string]string{
		"CHANMODES": "Ibe,k,l,mnt",
		"PREFIX":    "(ov)@+",
	})
	return t
}

func TestIngestCapabilitiesAssignsClasses(t *testing.T) {
	tbl := tableWithChatCapabilities()

	require.Equal(t, classA, tbl.Chan['I'])
	require.Equal(t, classA, tbl.Chan['b'])
	require.Equal(t, classA, tbl.Chan['e'])
	require.Equal(t, classB, tbl.Chan['k'])
	require.Equal(t, classC, tbl.Chan['l'])
	require.Equal(t, classD, tbl.Chan['m'])
	require.Equal(t, classD, tbl.Chan['n'])
	require.Equal(t, classD, tbl.Chan['t'])
	require.Equal(t, classPrefix, tbl.Chan['o'])
	require.Equal(t, classPrefix, tbl.Chan['v'])

	require.Equal(t, byte('@'), tbl.Prefix['o'])
	require.Equal(t, byte('+'), tbl.Prefix['v'])
}

// TestParseModesSeedScenario exercises a mixed add/remove mode line with
// prefix, class B and class C letters together.
func TestParseModesSeedScenario(t *testing.T) {
	tbl := tableWithChatCapabilities()

	changes := tbl.ParseModes(targetChannel, []string{"+ovk-l", "alice", "bob", "secret"})

	require.Equal(t, []ModeChange{
		{Set: true, Letter: 'o', Arg: "alice", HasArg: true, IsClass: classPrefix},
		{Set: true, Letter: 'v', Arg: "bob", HasArg: true, IsClass: classPrefix},
		{Set: true, Letter: 'k', Arg: "secret", HasArg: true, IsClass: classB},
		{Set: false, Letter: 'l', IsClass: classC},
	}, changes)

	ch := newChannel("#chat", 1)
	ch.BoolModes['n'] = struct{}{}
	ch.BoolModes['t'] = struct{}{}
	ApplyChannelModes(ch, changes)

	_, hasN := ch.BoolModes['n']
	_, hasT := ch.BoolModes['t']
	require.True(t, hasN)
	require.True(t, hasT)
	require.Equal(t, modeValue{set: true, arg: "secret"}, ch.ValueModes['k'])
	_, hasL := ch.ValueModes['l']
	require.False(t, hasL)

	_, aliceOp := ch.Prefixes["alice"]["o"[0]]
	require.True(t, aliceOp)
	_, bobVoice := ch.Prefixes["bob"]["v"[0]]
	require.True(t, bobVoice)
}

func TestParseModesDiscardsMissingArgument(t *testing.T) {
	tbl := tableWithChatCapabilities()
	// "+k" with no argument token: the letter is dropped entirely.
	changes := tbl.ParseModes(targetChannel, []string{"+k"})
	require.Empty(t, changes)
}

func TestParseModesClassCOnlyConsumesArgOnSet(t *testing.T) {
	tbl := tableWithChatCapabilities()
	changes := tbl.ParseModes(targetChannel, []string{"-l"})
	require.Equal(t, []ModeChange{{Set: false, Letter: 'l', IsClass: classC}}, changes)
}

func TestApplyUserModesRoundTrip(t *testing.T) {
	tbl := NewModeClassTable()
	tbl.IngestCapabilities(map[string]string{"USERMODES": ",,,iosw"})

	u := &User{Modes: make(map[byte]struct{})}
	changes := tbl.ParseModes(targetUser, []string{"+iosw"})
	ApplyUserModes(u, changes)

	for _, l := range []byte{'i', 'o', 's', 'w'} {
		_, ok := u.Modes[l]
		require.True(t, ok, "expected mode %c set", l)
	}

	undo := tbl.ParseModes(targetUser, []string{"-o"})
	ApplyUserModes(u, undo)
	_, hasO := u.Modes['o']
	require.False(t, hasO)
}

func TestListModeIsASet(t *testing.T) {
	tbl := tableWithChatCapabilities()
	ch := newChannel("#chat", 1)

	add := tbl.ParseModes(targetChannel, []string{"+bb", "*!*@evil1.example", "*!*@evil2.example"})
	ApplyChannelModes(ch, add)
	require.Len(t, ch.ListModes['b'], 2)

	remove := tbl.ParseModes(targetChannel, []string{"-b", "*!*@evil1.example"})
	ApplyChannelModes(ch, remove)
	require.Len(t, ch.ListModes['b'], 1)
	_, stillThere := ch.ListModes['b']["*!*@evil2.example"]
	require.True(t, stillThere)
}
