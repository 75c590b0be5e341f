package pylink

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStoreWithServer(t *testing.T, sid SID, internal bool) *Store {
	t.Helper()
	s := NewStore()
	s.AddServer(sid, "test.example.net", "", internal)
	return s
}

func TestAddUserUnknownServer(t *testing.T) {
	s := NewStore()
	err := s.AddUser(&User{UID: "70MAAAAAA", Nick: "gl"})
	require.Error(t, err)
	require.True(t, IsUsageError(err))
}

func TestAddUserAndLookup(t *testing.T) {
	s := newTestStoreWithServer(t, "70M", false)
	u := &User{UID: "70MAAAAAA", Nick: "GL", Server: "70M"}
	require.NoError(t, s.AddUser(u))

	got := s.GetUser("70MAAAAAA")
	require.Equal(t, u, got)

	uid, ok := s.NickToUID("gl")
	require.True(t, ok)
	require.Equal(t, UID("70MAAAAAA"), uid)

	srv := s.Servers["70M"]
	_, onServer := srv.Users["70MAAAAAA"]
	require.True(t, onServer)
}

// TestRemoveUserCascades checks that after RemoveUser(u), u appears in no
// channel's member set and in no server's user set.
func TestRemoveUserCascades(t *testing.T) {
	s := newTestStoreWithServer(t, "70M", false)
	u := &User{UID: "70MAAAAAA", Nick: "GL", Server: "70M"}
	require.NoError(t, s.AddUser(u))

	ch := s.EnsureChannel("#chat", 1000)
	ch.Members[u.UID] = struct{}{}

	s.RemoveUser(u.UID)

	require.Nil(t, s.GetUser(u.UID))
	_, onServer := s.Servers["70M"].Users[u.UID]
	require.False(t, onServer)
	_, onChannel := s.Channels["#chat"]
	require.False(t, onChannel, "channel should have been dropped once empty")

	_, ok := s.NickToUID("gl")
	require.False(t, ok)
}

func TestChannelRemoveUserKeepsNonEmptyChannel(t *testing.T) {
	s := newTestStoreWithServer(t, "70M", false)
	ch := s.EnsureChannel("#chat", 1000)
	ch.Members["70MAAAAAA"] = struct{}{}
	ch.Members["70MAAAAAB"] = struct{}{}

	s.ChannelRemoveUser("#chat", "70MAAAAAA")

	_, stillExists := s.Channels["#chat"]
	require.True(t, stillExists)
	_, stillMember := ch.Members["70MAAAAAA"]
	require.False(t, stillMember)
}

func TestEnsureChannelPreservesExistingTS(t *testing.T) {
	s := NewStore()
	ch := s.EnsureChannel("#chat", 1000)
	again := s.EnsureChannel("#chat", 2000)
	require.Same(t, ch, again)
	require.EqualValues(t, 1000, ch.TS)
}

func TestIsInternalClient(t *testing.T) {
	s := newTestStoreWithServer(t, "0AL", true)
	s.AddServer("70M", "uplink.example", "", false)

	sid, ok := s.IsInternalClient("0ALAAAAAA")
	require.True(t, ok)
	require.Equal(t, SID("0AL"), sid)

	_, ok = s.IsInternalClient("70MAAAAAA")
	require.False(t, ok)
}

func TestNextUIDAllocatesSequentially(t *testing.T) {
	s := newTestStoreWithServer(t, "0AL", true)

	first, err := s.NextUID("0AL")
	require.NoError(t, err)
	second, err := s.NextUID("0AL")
	require.NoError(t, err)

	require.NotEqual(t, first, second)
	require.Equal(t, SID("0AL"), first.OwningSID())
	require.Len(t, string(first), 9)
}

func TestNextUIDRejectsNonInternal(t *testing.T) {
	s := newTestStoreWithServer(t, "70M", false)
	_, err := s.NextUID("70M")
	require.Error(t, err)
}

// TestRemoveServerDoesNotCascadeItself checks that removing a server only
// removes that server's own record, leaving children in place — cascade
// removal of children is the caller's responsibility (see session.go's
// squitCascade, and session_test.go for the full wire scenario).
func TestRemoveServerDoesNotCascadeItself(t *testing.T) {
	s := newTestStoreWithServer(t, "70M", false)
	s.AddServer("1ML", "leaf.example.net", "70M", false)

	// RemoveServer alone does not remove children — that's the cascade's job
	// (session.go), not the store's.
	s.RemoveServer("70M")
	_, exists := s.Servers["70M"]
	require.False(t, exists)
	_, stillThere := s.Servers["1ML"]
	require.True(t, stillThere)
}

func TestServerByNameIsCaseInsensitive(t *testing.T) {
	s := newTestStoreWithServer(t, "70M", false)
	srv, ok := s.ServerByName("TEST.example.net")
	require.True(t, ok)
	require.Equal(t, SID("70M"), srv.SID)
}
