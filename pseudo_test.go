package pylink

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpawnDefaultUsesFixedIdentity(t *testing.T) {
	cfg := &Config{Hostname: "h", SendPass: "s", RecvPass: "r", SID: "0AL"}
	var buf bytes.Buffer
	sess := NewSession(cfg, NewHookBus(), &buf)
	sess.Clock = func() int64 { return 42 }
	sess.Store.AddServer(cfg.SID, cfg.Hostname, "", true)

	require.NoError(t, sess.Pseudo.spawnDefault())
	u := sess.Store.GetUser(sess.Pseudo.DefaultUID())
	require.NotNil(t, u)
	require.Equal(t, defaultNick, u.Nick)
	require.Equal(t, defaultIdent, u.Ident)
	require.Equal(t, defaultHost, u.Host)
	_, isOper := u.Modes['o']
	require.True(t, isOper)
}

func TestRespawnDefaultRejoinsConfiguredChannels(t *testing.T) {
	cfg := &Config{
		Hostname: "h", SendPass: "s", RecvPass: "r", SID: "0AL",
		Channels: []string{"#a", "#b"},
	}
	var buf bytes.Buffer
	sess := NewSession(cfg, NewHookBus(), &buf)
	sess.Clock = func() int64 { return 42 }
	sess.Store.AddServer(cfg.SID, cfg.Hostname, "", true)

	require.NoError(t, sess.Pseudo.spawnDefault())
	oldUID := sess.Pseudo.DefaultUID()

	require.NoError(t, sess.Pseudo.respawnDefault())
	newUID := sess.Pseudo.DefaultUID()
	require.NotEqual(t, oldUID, newUID)

	for _, ch := range cfg.Channels {
		c := sess.Store.Channels[ch]
		require.NotNil(t, c)
		_, member := c.Members[newUID]
		require.True(t, member)
	}
}
