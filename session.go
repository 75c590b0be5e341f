package pylink

import (
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// HandshakeState is one state in the link bring-up state machine.
type HandshakeState int

const (
	StateDisconnected HandshakeState = iota
	StateCapabNegotiation
	StateAuthPending
	StateBursting
	StateLinked
	StateClosed
)

// Session drives one remote link: the handshake, the command handlers,
// outbound emission, and the SQUIT cascade, against its own Store and
// ModeClassTable. It is single-threaded cooperative — every method here
// is meant to be called from the one reader task that owns this session;
// there is no internal locking.
type Session struct {
	Config *Config
	Store  *Store
	Modes  *ModeClassTable
	Hooks  *HookBus
	Pseudo *PseudoManager

	State HandshakeState

	w io.Writer

	// upstreamBursting is true between the uplink's BURST and ENDBURST.
	upstreamBursting bool

	// Clock returns the current time as seconds since epoch. Defaults to
	// time.Now().Unix(); overridable so tests can pin timestamps.
	Clock func() int64

	connected bool
}

// NewSession creates a session bound to w for outbound writes. cfg and
// hooks must be supplied by the caller: configuration loading and
// subscriber registration are both the caller's responsibility.
func NewSession(cfg *Config, hooks *HookBus, w io.Writer) *Session {
	s := &Session{
		Config: cfg,
		Store:  NewStore(),
		Modes:  NewModeClassTable(),
		Hooks:  hooks,
		w:      w,
		Clock:  func() int64 { return time.Now().Unix() },
	}
	s.Pseudo = NewPseudoManager(s)
	return s
}

func (s *Session) now() int64 { return s.Clock() }

// send writes one wire line, source-prefixed, CRLF-terminated.
func (s *Session) send(source, command string, args ...string) {
	line, err := EncodeLine(source, command, args)
	if err != nil {
		log.Printf("session: encode error: %s", err)
		return
	}
	if _, err := io.WriteString(s.w, line); err != nil {
		log.Printf("session: write error: %s", err)
	}
}

func (s *Session) sendFromServer(sid SID, command string, args ...string) {
	s.send(string(sid), command, args...)
}

func (s *Session) sendFromUser(uid UID, command string, args ...string) {
	s.send(string(uid), command, args...)
}

// Start performs the outbound half of the handshake: CAPAB negotiation,
// SERVER introduction, BURST, the default pseudoclient, ENDBURST, and
// joining the pseudoclient to every configured channel. All of this
// happens unconditionally on connect.
func (s *Session) Start() error {
	s.State = StateCapabNegotiation

	s.send("", "CAPAB", "START", "1202")
	s.send("", "CAPAB", "CAPABILITIES", "PROTOCOL=1202")
	s.send("", "CAPAB", "END")

	s.send("", "SERVER", s.Config.Hostname, s.Config.SendPass, "0", string(s.Config.SID),
		"PyLink Service")

	// We are our own root until an uplink SERVER line tells us otherwise.
	s.Store.AddServer(s.Config.SID, s.Config.Hostname, "", true)

	ts := s.now()
	s.sendFromServer(s.Config.SID, "BURST", fmt.Sprintf("%d", ts))

	if err := s.Pseudo.spawnDefault(); err != nil {
		return err
	}

	s.sendFromServer(s.Config.SID, "ENDBURST")

	for _, ch := range s.Config.Channels {
		if err := s.JoinClient(s.Pseudo.DefaultUID(), ch); err != nil {
			log.Printf("session: failed to join configured channel %s: %s", ch, err)
		}
	}

	s.State = StateBursting
	s.connected = true
	return nil
}

// HandleFrame is the single dispatch entry point: it mutates state as
// needed for f, then — if the handler produced fields — publishes a
// normalized Event to the hook bus under the canonical (hookMap-rewritten)
// event name. Unknown commands are silently ignored.
//
// A *ProtocolError return means the caller must close the session: no
// further frame may be processed or event published afterward.
func (s *Session) HandleFrame(f *Frame) error {
	var fields map[string]interface{}
	var err error

	switch f.Command {
	case "PING":
		s.handlePing(f)
	case "SERVER":
		if f.Source == "" {
			err = s.handleTopLevelServer(f)
		} else {
			s.handleNestedServer(f)
		}
	case "CAPAB":
		s.handleCapab(f)
	case "BURST":
		s.upstreamBursting = true
	case "ENDBURST":
		// Treated as a no-op that advances the handshake to LINKED.
		s.upstreamBursting = false
		s.State = StateLinked
	case "UID":
		fields = s.handleUID(f)
	case "FJOIN":
		fields = s.handleFJoin(f)
	case "PART":
		fields = s.handlePart(f)
	case "KICK":
		fields = s.handleKick(f)
	case "QUIT":
		fields = s.handleQuit(f)
	case "KILL":
		fields = s.handleKill(f)
	case "NICK":
		fields = s.handleNick(f)
	case "SAVE":
		fields = s.handleSave(f)
	case "FMODE":
		fields = s.handleFMode(f)
	case "MODE":
		fields = s.handleMode(f)
	case "SQUIT":
		fields = s.handleSquit(f)
	case "RSQUIT":
		fields = s.handleRSquit(f)
	case "IDLE":
		s.handleIdle(f)
	case "ERROR":
		err = s.handleError(f)
	case "PRIVMSG":
		fields = s.handlePrivmsg(f)
	default:
		return nil
	}

	if err != nil {
		return err
	}

	if fields != nil {
		s.Hooks.dispatch(s, Event{
			Source:  f.Source,
			Command: canonicalEventName(f.Command),
			Fields:  fields,
		})
	}

	return nil
}

func (s *Session) handlePing(f *Frame) {
	if len(f.Args) < 2 {
		return
	}
	a, b := f.Args[0], f.Args[1]
	if s.Store.IsInternalServer(SID(b)) {
		s.sendFromServer(SID(b), "PONG", b, a)
	}
}

// handleTopLevelServer processes the uplink's handshake SERVER line:
// "SERVER name recvpass 0 sid :desc".
func (s *Session) handleTopLevelServer(f *Frame) error {
	if len(f.Args) < 4 {
		return nil
	}
	name, recvpass, sid := f.Args[0], f.Args[1], f.Args[3]

	if recvpass != s.Config.RecvPass {
		s.State = StateClosed
		s.connected = false
		return wrapProtocolError(errors.New(recvpass), "bad recvpass from uplink")
	}

	s.Store.AddServer(SID(sid), name, "", false)
	// The uplink is now the true root; we become its child.
	if us, ok := s.Store.Servers[s.Config.SID]; ok {
		us.Parent = SID(sid)
	}
	s.State = StateAuthPending
	return nil
}

// handleNestedServer processes a SERVER introduced by an already-known
// server: "name * hopcount sid :desc".
func (s *Session) handleNestedServer(f *Frame) {
	if len(f.Args) < 4 {
		return
	}
	name, sid := f.Args[0], f.Args[3]
	s.Store.AddServer(SID(sid), name, SID(f.Source), false)
}

func (s *Session) handleCapab(f *Frame) {
	if len(f.Args) == 0 {
		return
	}
	switch strings.ToUpper(f.Args[0]) {
	case "CHANMODES":
		s.Modes.IngestChanmodes(parseNamedPairs(f.Args[1:]))
	case "USERMODES":
		s.Modes.IngestUsermodes(parseNamedPairs(f.Args[1:]))
	case "CAPABILITIES":
		s.Modes.IngestCapabilities(parseKeyValuePairs(f.Args[1:]))
	}
}

// parseNamedPairs turns ["admin=&a", "ban=b", ...] into {"admin": '&a'[last
// byte], ...} — we only care about the final character of each value,
// which is the actual mode letter (some dialects prefix it with a display
// symbol, e.g. "admin=&a").
func parseNamedPairs(tokens []string) map[string]byte {
	out := make(map[string]byte)
	for _, tok := range tokens {
		idx := strings.IndexByte(tok, '=')
		if idx < 0 || idx == len(tok)-1 {
			continue
		}
		name := tok[:idx]
		val := tok[idx+1:]
		out[name] = val[len(val)-1]
	}
	return out
}

// parseKeyValuePairs turns ["NICKMAX=30", "CHANMODES=Ibe,k,l,mnt", ...]
// into a plain string map.
func parseKeyValuePairs(tokens []string) map[string]string {
	out := make(map[string]string)
	for _, tok := range tokens {
		idx := strings.IndexByte(tok, '=')
		if idx < 0 {
			continue
		}
		out[tok[:idx]] = tok[idx+1:]
	}
	return out
}

func (s *Session) handleUID(f *Frame) map[string]interface{} {
	if len(f.Args) < 8 {
		return nil
	}

	uid := UID(f.Args[0])
	ts, _ := strconv.ParseInt(f.Args[1], 10, 64)
	nick := f.Args[2]
	realhost := f.Args[3]
	host := f.Args[4]
	ident := f.Args[5]
	ip := f.Args[6]
	realname := f.Args[len(f.Args)-1]

	u := &User{
		UID:      uid,
		Nick:     nick,
		Ident:    ident,
		Host:     host,
		RealHost: realhost,
		IP:       ip,
		RealName: realname,
		TS:       ts,
		Modes:    make(map[byte]struct{}),
		Server:   uid.OwningSID(),
	}

	if err := s.Store.AddUser(u); err != nil {
		log.Printf("session: UID: %s", err)
		return nil
	}

	if len(f.Args) > 9 {
		modeTokens := f.Args[8 : len(f.Args)-1]
		changes := s.Modes.ParseModes(targetUser, modeTokens)
		ApplyUserModes(u, changes)
	}

	return map[string]interface{}{
		"uid": string(uid), "ts": ts, "nick": nick, "realhost": realhost,
		"host": host, "ident": ident, "ip": ip,
	}
}

func (s *Session) handleFJoin(f *Frame) map[string]interface{} {
	if len(f.Args) < 4 {
		return nil
	}

	channel := f.Args[0]
	ts, _ := strconv.ParseInt(f.Args[1], 10, 64)
	userlist := strings.Fields(f.Args[len(f.Args)-1])
	modeTokens := f.Args[2 : len(f.Args)-1]

	ch := s.Store.EnsureChannel(channel, ts)
	if ts < ch.TS {
		ch.TS = ts
	}

	changes := s.Modes.ParseModes(targetChannel, modeTokens)
	ApplyChannelModes(ch, changes)

	var users []string
	for _, entry := range userlist {
		prefix, uid := splitPrefixUID(entry)
		users = append(users, uid)
		ch.Members[UID(uid)] = struct{}{}
		if prefix != "" {
			var pchanges []ModeChange
			for i := 0; i < len(prefix); i++ {
				pchanges = append(pchanges, ModeChange{
					Set: true, Letter: prefix[i], Arg: uid, IsClass: classPrefix,
				})
			}
			ApplyChannelModes(ch, pchanges)
		}
	}

	return map[string]interface{}{"channel": ch.Name, "users": users}
}

// splitPrefixUID splits InspIRCd's "prefix,uid" member entry, e.g.
// "ov,70MAAAAAA" or the prefix-less ",70MAAAAAA".
func splitPrefixUID(entry string) (prefix, uid string) {
	idx := strings.IndexByte(entry, ',')
	if idx < 0 {
		return "", entry
	}
	return entry[:idx], entry[idx+1:]
}

func (s *Session) handlePart(f *Frame) map[string]interface{} {
	if len(f.Args) < 1 {
		return nil
	}
	channel := f.Args[0]
	reason := ""
	if len(f.Args) > 1 {
		reason = f.Args[1]
	}
	s.Store.ChannelRemoveUser(channel, UID(f.Source))
	return map[string]interface{}{"channel": canonicalizeChannel(channel), "reason": reason}
}

func (s *Session) handleKick(f *Frame) map[string]interface{} {
	if len(f.Args) < 2 {
		return nil
	}
	channel := f.Args[0]
	target := f.Args[1]
	reason := ""
	if len(f.Args) > 2 {
		reason = f.Args[2]
	}

	s.Store.ChannelRemoveUser(channel, UID(target))

	if UID(target) == s.Pseudo.DefaultUID() {
		if err := s.JoinClient(s.Pseudo.DefaultUID(), channel); err != nil {
			log.Printf("session: failed to rejoin after kick: %s", err)
		}
	}

	return map[string]interface{}{
		"channel": canonicalizeChannel(channel), "target": target, "reason": reason,
	}
}

func (s *Session) handleQuit(f *Frame) map[string]interface{} {
	reason := ""
	if len(f.Args) > 0 {
		reason = f.Args[0]
	}
	s.Store.RemoveUser(UID(f.Source))
	return map[string]interface{}{"reason": reason}
}

func (s *Session) handleKill(f *Frame) map[string]interface{} {
	if len(f.Args) < 1 {
		return nil
	}
	target := UID(f.Args[0])
	reason := ""
	if len(f.Args) > 1 {
		reason = f.Args[1]
	}

	s.Store.RemoveUser(target)

	if target == s.Pseudo.DefaultUID() {
		if err := s.Pseudo.respawnDefault(); err != nil {
			log.Printf("session: failed to respawn pseudoclient: %s", err)
		}
	}

	return map[string]interface{}{"target": string(target), "reason": reason}
}

func (s *Session) handleNick(f *Frame) map[string]interface{} {
	if len(f.Args) < 1 {
		return nil
	}
	newNick := f.Args[0]
	ts := ""
	if len(f.Args) > 1 {
		ts = f.Args[1]
	}

	u := s.Store.GetUser(UID(f.Source))
	if u != nil {
		delete(s.Store.Nicks, canonicalizeNick(u.Nick))
		u.Nick = newNick
		s.Store.Nicks[canonicalizeNick(newNick)] = u.UID
	}

	return map[string]interface{}{"target": newNick, "ts": ts}
}

// handleSave forces a colliding user's nick to equal its own UID,
// unconditionally — no TS comparison, no re-check.
func (s *Session) handleSave(f *Frame) map[string]interface{} {
	if len(f.Args) < 1 {
		return nil
	}
	target := UID(f.Args[0])
	ts := ""
	if len(f.Args) > 1 {
		ts = f.Args[1]
	}

	u := s.Store.GetUser(target)
	if u != nil {
		delete(s.Store.Nicks, canonicalizeNick(u.Nick))
		u.Nick = string(target)
		s.Store.Nicks[canonicalizeNick(u.Nick)] = target
	}

	return map[string]interface{}{"target": string(target), "ts": ts}
}

func (s *Session) handleFMode(f *Frame) map[string]interface{} {
	if len(f.Args) < 3 {
		return nil
	}
	channel := f.Args[0]
	ch := s.Store.EnsureChannel(channel, 0)
	changes := s.Modes.ParseModes(targetChannel, f.Args[2:])
	ApplyChannelModes(ch, changes)
	return map[string]interface{}{"target": ch.Name, "modes": changes}
}

func (s *Session) handleMode(f *Frame) map[string]interface{} {
	if len(f.Args) < 2 {
		return nil
	}
	target := f.Args[0]
	u := s.Store.GetUser(UID(target))
	if u == nil {
		return nil
	}
	changes := s.Modes.ParseModes(targetUser, f.Args[1:])
	ApplyUserModes(u, changes)
	return map[string]interface{}{"target": target, "modes": changes}
}

// handleSquit runs the SQUIT cascade for f.Args[0]: every server
// transitively parented by the splitting server is removed, depth-first,
// along with all of their users, before the splitting server itself is
// removed.
func (s *Session) handleSquit(f *Frame) map[string]interface{} {
	if len(f.Args) < 1 {
		return nil
	}
	target := SID(f.Args[0])
	s.squitCascade(target)
	return map[string]interface{}{"target": string(target)}
}

// squitCascade walks a *snapshot* of the server table — the live table
// mutates as we recurse — recursing into every child before removing the
// current server's users and the server itself. This guarantees
// depth-first deletion with no dangling parent pointers.
func (s *Session) squitCascade(sid SID) {
	children := s.Store.LinkedServers(sid)
	for _, child := range children {
		s.squitCascade(child.SID)
	}

	srv, ok := s.Store.Servers[sid]
	if !ok {
		return
	}

	for uid := range srv.Users {
		s.Store.RemoveUser(uid)
		if uid == s.Pseudo.DefaultUID() {
			if err := s.Pseudo.respawnDefault(); err != nil {
				log.Printf("session: failed to respawn pseudoclient after SQUIT: %s", err)
			}
		}
	}

	s.Store.RemoveServer(sid)
}

// handleRSquit resolves an operator-initiated remote split, identified by
// server *name* rather than SID. Authorization is gated on the sender
// being `identified`.
func (s *Session) handleRSquit(f *Frame) map[string]interface{} {
	if len(f.Args) < 1 {
		return nil
	}
	targetName := f.Args[0]
	reason := "Requested"
	if len(f.Args) > 1 {
		reason = f.Args[1]
	}

	srv, ok := s.Store.Servers[SID(targetName)]
	if !ok {
		srv, ok = s.Store.ServerByName(targetName)
	}
	if !ok || !srv.Internal {
		s.replyUnauthorizedRSquit(f.Source)
		return nil
	}

	sender := s.Store.GetUser(UID(f.Source))
	if sender == nil || !sender.Identified {
		s.replyUnauthorizedRSquit(f.Source)
		return nil
	}

	s.sendFromServer(srv.Parent, "SQUIT", string(srv.SID), reason)
	s.squitCascade(srv.SID)

	return map[string]interface{}{"target": string(srv.SID)}
}

func (s *Session) replyUnauthorizedRSquit(source string) {
	s.sendFromUser(s.Pseudo.DefaultUID(), "NOTICE", source,
		"Error: you are not authorized to split servers!")
}

func (s *Session) handleIdle(f *Frame) {
	if len(f.Args) < 1 {
		return
	}
	target := UID(f.Args[0])
	u := s.Store.GetUser(target)
	if u == nil {
		return
	}
	s.sendFromUser(target, "IDLE", f.Source, fmt.Sprintf("%d", u.TS), "0")
}

func (s *Session) handleError(f *Frame) error {
	s.connected = false
	s.State = StateClosed
	msg := ""
	if len(f.Args) > 0 {
		msg = f.Args[0]
	}
	return wrapProtocolError(errors.New(msg), "received ERROR from peer")
}

// handlePrivmsg dispatches PRIVMSG addressed to our pseudoclient to the bot
// command registry, and always returns the raw target/text fields so
// plugins not using the bot-command path can still subscribe to PRIVMSG.
func (s *Session) handlePrivmsg(f *Frame) map[string]interface{} {
	if len(f.Args) < 2 {
		return nil
	}
	target := f.Args[0]
	text := f.Args[1]

	if UID(target) == s.Pseudo.DefaultUID() {
		s.dispatchBotCommand(f.Source, text)
	}

	return map[string]interface{}{"target": target, "text": text}
}

func (s *Session) dispatchBotCommand(source, text string) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return
	}
	verb := lowerASCII(words[0])
	args := words[1:]

	fn, ok := s.Hooks.commands[verb]
	if !ok {
		s.Notice(source, fmt.Sprintf("Unknown command %q.", verb))
		return
	}

	if err := s.runBotCommand(fn, source, args); err != nil {
		log.Printf("session: bot command %q from %s failed: %s", verb, source, err)
		s.Notice(source, fmt.Sprintf("Uncaught exception in command %q: %s", verb, err))
	}
}

func (s *Session) runBotCommand(fn BotCommandFunc, source string, args []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()
	return fn(s, source, args)
}

// Notice sends a NOTICE from the default pseudoclient to target.
func (s *Session) Notice(target, text string) {
	s.sendFromUser(s.Pseudo.DefaultUID(), "NOTICE", target, text)
}

// Error is the reply primitive a bot command uses to report a usage
// problem back to its caller.
func (s *Session) Error(source, text string) {
	s.Notice(source, "Error: "+text)
}

// Reply sends text back to source, either as a NOTICE (private=false path
// still uses NOTICE per this dialect's convention of never voicing PRIVMSG
// back at services users) — private only affects whether it is sent
// directly to the user rather than to a channel context; since this
// engine never tracks a "current channel" for a command invocation, both
// paths resolve to a direct NOTICE to source.
func (s *Session) Reply(source, text string, private bool) {
	s.Notice(source, text)
}

// ---- Outbound emitters ----

// SpawnClient introduces a new pseudoclient under server (or our own SID
// if server is empty), validating the nick and that server is internal.
func (s *Session) SpawnClient(nick, ident, host string, modes []string, server SID) (*User, error) {
	if server == "" {
		server = s.Config.SID
	}
	if !s.Store.IsInternalServer(server) {
		return nil, newUsageError("server %q is not an internal PseudoServer", server)
	}
	if !isValidNick(32, nick) {
		return nil, newUsageError("invalid nickname %q", nick)
	}

	uid, err := s.Store.NextUID(server)
	if err != nil {
		return nil, err
	}

	ts := s.now()
	modeStr := "+"
	if len(modes) > 0 {
		modeStr = "+" + strings.Join(modes, "")
	}

	s.sendFromServer(server, "UID", string(uid), fmt.Sprintf("%d", ts), nick, host, host,
		ident, "0.0.0.0", fmt.Sprintf("%d", ts), modeStr, "+", "PyLink Client")

	u := &User{
		UID:      uid,
		Nick:     nick,
		Ident:    ident,
		Host:     host,
		RealHost: host,
		IP:       "0.0.0.0",
		RealName: "PyLink Client",
		TS:       ts,
		Modes:    make(map[byte]struct{}),
		Server:   server,
	}
	for _, m := range modes {
		for i := 0; i < len(m); i++ {
			u.Modes[m[i]] = struct{}{}
		}
	}

	if err := s.Store.AddUser(u); err != nil {
		return nil, err
	}

	return u, nil
}

// SpawnServer introduces a new internal pseudo-server under parent (or our
// own SID if parent is empty), validating SID/name uniqueness and format.
func (s *Session) SpawnServer(name string, sid SID, parent SID, desc string) (SID, error) {
	if parent == "" {
		parent = s.Config.SID
	}
	if len(sid) != 3 {
		return "", newUsageError("incorrect SID length: %q", sid)
	}
	if _, exists := s.Store.Servers[sid]; exists {
		return "", newUsageError("a server with SID %q already exists", sid)
	}
	canonName := canonicalizeChannel(name)
	for _, srv := range s.Store.Servers {
		if srv.Name == canonName {
			return "", newUsageError("a server named %q already exists", name)
		}
	}
	if !s.Store.IsInternalServer(parent) {
		return "", newUsageError("server %q is not an internal PseudoServer", parent)
	}
	if !isValidServerName(name) {
		return "", newUsageError("invalid server name %q", name)
	}

	s.sendFromServer(parent, "SERVER", name, "*", "1", string(sid), desc)
	s.sendFromServer(sid, "ENDBURST")

	srv := s.Store.AddServer(sid, name, parent, true)
	srv.Description = desc
	return sid, nil
}

// JoinClient joins an internal pseudoclient to a channel, one FJOIN line
// per channel, matching the original's "one channel per line" constraint.
func (s *Session) JoinClient(client UID, channel string) error {
	owner, ok := s.Store.IsInternalClient(client)
	if !ok {
		return newUsageError("no such PyLink PseudoClient: %q", client)
	}
	canon := canonicalizeChannel(channel)
	if !isValidChannel(canon) {
		return newUsageError("invalid channel name %q", channel)
	}

	ts := s.now()
	s.sendFromServer(owner, "FJOIN", canon, fmt.Sprintf("%d", ts), "+", ","+string(client))

	ch := s.Store.EnsureChannel(canon, ts)
	ch.Members[client] = struct{}{}
	return nil
}

// PartClient parts an internal pseudoclient from a channel.
func (s *Session) PartClient(client UID, channel string, reason string) error {
	if !s.Store.isInternalClientOK(client) {
		return newUsageError("no such PyLink PseudoClient: %q", client)
	}
	canon := canonicalizeChannel(channel)
	if !isValidChannel(canon) {
		return newUsageError("invalid channel name %q", channel)
	}

	if reason != "" {
		s.sendFromUser(client, "PART", canon, reason)
	} else {
		s.sendFromUser(client, "PART", canon)
	}
	s.Store.ChannelRemoveUser(canon, client)
	return nil
}

// KickClient sends a KICK from an internal pseudoclient.
func (s *Session) KickClient(kicker UID, channel, target, reason string) error {
	if !s.Store.isInternalClientOK(kicker) {
		return newUsageError("no such PyLink PseudoClient: %q", kicker)
	}
	if reason == "" {
		reason = "No reason given"
	}
	canon := canonicalizeChannel(channel)
	s.sendFromUser(kicker, "KICK", canon, target, reason)
	s.Store.ChannelRemoveUser(canon, UID(target))
	return nil
}

// QuitClient quits an internal pseudoclient.
func (s *Session) QuitClient(uid UID, reason string) error {
	if !s.Store.isInternalClientOK(uid) {
		return newUsageError("no such PyLink PseudoClient: %q", uid)
	}
	s.sendFromUser(uid, "QUIT", reason)
	s.Store.RemoveUser(uid)
	return nil
}

// NickClient changes an internal pseudoclient's nick.
func (s *Session) NickClient(uid UID, newNick string) error {
	if !s.Store.isInternalClientOK(uid) {
		return newUsageError("no such PyLink PseudoClient: %q", uid)
	}
	if !isValidNick(32, newNick) {
		return newUsageError("invalid nickname %q", newNick)
	}
	ts := s.now()
	s.sendFromUser(uid, "NICK", newNick, fmt.Sprintf("%d", ts))
	if u := s.Store.GetUser(uid); u != nil {
		delete(s.Store.Nicks, canonicalizeNick(u.Nick))
		u.Nick = newNick
		u.TS = ts
		s.Store.Nicks[canonicalizeNick(newNick)] = uid
	}
	return nil
}

// Kill sends a KILL from source, targeting target.
func (s *Session) Kill(source UID, target UID, reason string) error {
	s.sendFromUser(source, "KILL", string(target), reason)
	s.Store.RemoveUser(target)
	if target == s.Pseudo.DefaultUID() {
		return s.Pseudo.respawnDefault()
	}
	return nil
}

// Topic sets a channel's topic from source, updating local state eagerly.
func (s *Session) Topic(source UID, channel, text string) error {
	canon := canonicalizeChannel(channel)
	s.sendFromUser(source, "TOPIC", canon, text)
	ch := s.Store.EnsureChannel(canon, s.now())
	ch.Topic = text
	return nil
}

// Mode applies and sends a mode change from source against target (a UID
// or a channel name), eagerly updating local state.
func (s *Session) Mode(source UID, target string, changes []ModeChange) error {
	tokens := encodeModeTokens(changes)
	if ch, ok := s.Store.Channels[canonicalizeChannel(target)]; ok {
		args := append([]string{ch.Name, fmt.Sprintf("%d", s.now())}, tokens...)
		s.sendFromUser(source, "FMODE", args...)
		ApplyChannelModes(ch, changes)
		return nil
	}
	if u := s.Store.GetUser(UID(target)); u != nil {
		args := append([]string{string(u.UID)}, tokens...)
		s.sendFromUser(source, "MODE", args...)
		ApplyUserModes(u, changes)
		return nil
	}
	return newUsageError("unknown mode target %q", target)
}

// encodeModeTokens renders parsed ModeChanges back into wire tokens
// (letters string plus trailing args), the inverse of ParseModes.
func encodeModeTokens(changes []ModeChange) []string {
	var letters strings.Builder
	var args []string
	sign := true
	first := true
	for _, c := range changes {
		if first || c.Set != sign {
			if c.Set {
				letters.WriteByte('+')
			} else {
				letters.WriteByte('-')
			}
			sign = c.Set
			first = false
		}
		letters.WriteByte(c.Letter)
		if c.HasArg {
			args = append(args, c.Arg)
		}
	}
	return append([]string{letters.String()}, args...)
}

// UpdateClient changes a CHGHOST/CHGIDENT/CHGNAME-style field on an
// existing user, eagerly, so subsequent queries see the new value before
// any echo arrives.
func (s *Session) UpdateClient(uid UID, field, value string) error {
	u := s.Store.GetUser(uid)
	if u == nil {
		return newUsageError("no such UID %q", uid)
	}
	switch field {
	case "HOST":
		s.sendFromUser(uid, "FHOST", value)
		u.Host = value
	case "IDENT":
		s.sendFromUser(uid, "FIDENT", value)
		u.Ident = value
	case "GECOS":
		s.sendFromUser(uid, "FNAME", value)
		u.RealName = value
	default:
		return newUsageError("unsupported update_client field %q", field)
	}
	return nil
}

// isInternalClientOK is a small convenience wrapper around
// Store.IsInternalClient that drops the SID, since emitters only care
// whether the check passed.
func (s *Store) isInternalClientOK(uid UID) bool {
	_, ok := s.IsInternalClient(uid)
	return ok
}
