package pylink

// PseudoManager owns the lifecycle of the default pseudoclient this
// engine introduces on every link: it spawns it on startup, respawns it
// under the same identity whenever it is destroyed (KILL, or its owning
// server falling out of a SQUIT cascade), and rejoins it to every channel
// named in configuration.
//
// Plugins may spawn further pseudoclients/pseudo-servers directly through
// Session's SpawnClient/SpawnServer — PseudoManager only tracks the one
// default identity the core itself depends on.
type PseudoManager struct {
	sess *Session
	uid  UID
}

// NewPseudoManager returns a manager bound to sess. It does not spawn
// anything itself; call spawnDefault once the session's SERVER/BURST
// lines have been sent.
func NewPseudoManager(sess *Session) *PseudoManager {
	return &PseudoManager{sess: sess}
}

// DefaultUID is the UID of the managed pseudoclient. Empty until
// spawnDefault has run once.
func (p *PseudoManager) DefaultUID() UID {
	return p.uid
}

// defaultNick/defaultIdent/defaultHost are the fixed identity every
// incarnation of the default pseudoclient uses, so a KILL followed by a
// respawn is invisible to anyone watching the nick.
const (
	defaultNick  = "PyLink"
	defaultIdent = "pylink"
	defaultHost  = "services.pylink"
)

// spawnDefault introduces the default pseudoclient with operator ("o")
// user mode set.
func (p *PseudoManager) spawnDefault() error {
	u, err := p.sess.SpawnClient(defaultNick, defaultIdent, defaultHost, []string{"o"}, p.sess.Config.SID)
	if err != nil {
		return err
	}
	p.uid = u.UID
	return nil
}

// respawnDefault re-introduces the default pseudoclient under the same
// identity and rejoins it to every configured channel. Called whenever a
// KILL or a SQUIT cascade removes it.
func (p *PseudoManager) respawnDefault() error {
	if err := p.spawnDefault(); err != nil {
		return err
	}
	for _, ch := range p.sess.Config.Channels {
		if err := p.sess.JoinClient(p.uid, ch); err != nil {
			return err
		}
	}
	return nil
}
