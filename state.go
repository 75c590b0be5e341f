package pylink

// Server is a node on the network, identified by a 3-character SID.
//
// Invariants: SIDs are unique; names are unique; exactly one server has
// Parent == "" (the root — either our uplink, or ourselves before we've
// linked); deleting a server cascades to its users and to any server whose
// Parent is it (the SQUIT cascade in session.go does this; Store.RemoveServer
// alone removes only the one record).
type Server struct {
	SID SID

	// Name is case-folded lowercase.
	Name string

	// Parent is the SID of the server we learned this one from. Empty for
	// the root of the tree.
	Parent SID

	// Internal is true iff we spawned this server ourselves (spawn_server).
	Internal bool

	Description string
	HopCount    int

	// Users owned by this server.
	Users map[UID]struct{}
}

// User is a network participant, identified by a UID whose first 3
// characters equal its owning server's SID.
type User struct {
	UID UID

	// Nick is the display nick, not case-folded.
	Nick string

	Ident    string
	Host     string
	RealHost string
	IP       string
	RealName string

	// TS is the seconds-since-epoch the user was introduced. NickClient
	// moves it to the time of a pseudoclient's nick change; an inbound NICK
	// leaves it unchanged.
	TS int64

	// Modes holds single-character user modes present on this user.
	Modes map[byte]struct{}

	// Identified is an out-of-band account tag: true if the network
	// considers this user logged in to services. Consulted by RSQUIT
	// authorization.
	Identified bool

	Server SID
}

// modeValue is stored for class B/C channel modes that carry an argument
// while set (key, limit).
type modeValue struct {
	set bool
	arg string
}

// Channel is identified by a case-folded name starting with '#'.
//
// Invariant: every member UID exists in the user store.
type Channel struct {
	// Name is case-folded.
	Name string

	TS int64

	// Members is the set of UIDs on the channel.
	Members map[UID]struct{}

	// Prefixes holds each member's prefix-mode letters (op/halfop/voice/...).
	Prefixes map[UID]map[byte]struct{}

	// BoolModes holds class D modes currently set (no argument).
	BoolModes map[byte]struct{}

	// ValueModes holds class B/C modes currently set, with their argument.
	ValueModes map[byte]modeValue

	// ListModes holds class A modes (bans, excepts, invex): letter to set
	// of mask arguments.
	ListModes map[byte]map[string]struct{}

	Topic string
}

func newChannel(name string, ts int64) *Channel {
	return &Channel{
		Name:       name,
		TS:         ts,
		Members:    make(map[UID]struct{}),
		Prefixes:   make(map[UID]map[byte]struct{}),
		BoolModes:  make(map[byte]struct{}),
		ValueModes: make(map[byte]modeValue),
		ListModes:  make(map[byte]map[string]struct{}),
	}
}

// Store is the authoritative in-memory representation of one remote
// network's servers, users and channels, as seen through a single link. It
// exclusively owns all entities; holders outside the store use an
// identifier (SID/UID/name), never a direct reference, so cascading
// deletes cannot dangle.
//
// Store is not safe for concurrent use: it is only ever touched from the
// single reader task driving the link it belongs to.
type Store struct {
	Servers  map[SID]*Server
	Users    map[UID]*User
	Nicks    map[string]UID
	Channels map[string]*Channel

	generators map[SID]*uidGenerator
}

// NewStore returns an empty state store.
func NewStore() *Store {
	return &Store{
		Servers:    make(map[SID]*Server),
		Users:      make(map[UID]*User),
		Nicks:      make(map[string]UID),
		Channels:   make(map[string]*Channel),
		generators: make(map[SID]*uidGenerator),
	}
}

// AddServer registers a new server. name is case-folded before storage.
func (s *Store) AddServer(sid SID, name string, parent SID, internal bool) *Server {
	srv := &Server{
		SID:      sid,
		Name:     canonicalizeChannel(name), // lowercase fold, no '#' requirement
		Parent:   parent,
		Internal: internal,
		Users:    make(map[UID]struct{}),
	}
	s.Servers[sid] = srv
	return srv
}

// RemoveServer removes a server record. Idempotent at the leaf level: it
// does not recurse into children or owned users — that cascade is the SQUIT
// algorithm's job (session.go), which calls this once per server in its
// depth-first snapshot.
func (s *Store) RemoveServer(sid SID) {
	delete(s.Servers, sid)
}

// LinkedServers returns every server whose Parent is sid, direct children
// only (the SQUIT cascade walks this recursively itself).
func (s *Store) LinkedServers(sid SID) []*Server {
	var out []*Server
	for _, srv := range s.Servers {
		if srv.Parent == sid {
			out = append(out, srv)
		}
	}
	return out
}

// AddUser registers a new user under its owning server.
func (s *Store) AddUser(u *User) error {
	srv, ok := s.Servers[u.UID.OwningSID()]
	if !ok {
		return newUsageError("add_user: unknown owning server for uid %q", u.UID)
	}
	s.Users[u.UID] = u
	s.Nicks[canonicalizeNick(u.Nick)] = u.UID
	srv.Users[u.UID] = struct{}{}
	return nil
}

// RemoveUser removes a user from every channel's member set, from its
// server's user set, and from the store.
func (s *Store) RemoveUser(uid UID) {
	u, ok := s.Users[uid]
	if !ok {
		return
	}

	for _, ch := range s.Channels {
		s.channelRemoveUserLocked(ch, uid)
	}

	if srv, ok := s.Servers[u.Server]; ok {
		delete(srv.Users, uid)
	}

	delete(s.Nicks, canonicalizeNick(u.Nick))
	delete(s.Users, uid)
}

// GetUser returns the user with the given UID, or nil.
func (s *Store) GetUser(uid UID) *User {
	return s.Users[uid]
}

// NickToUID resolves a nick to its owning UID. Lookup is case-insensitive
// per RFC1459 folding.
func (s *Store) NickToUID(nick string) (UID, bool) {
	uid, ok := s.Nicks[canonicalizeNick(nick)]
	return uid, ok
}

// EnsureChannel returns the channel by name, creating it (with the given
// TS) if it did not already exist. If it already existed, its TS is left
// untouched — callers that need "oldest TS wins" semantics (FJOIN/SJOIN)
// must compare and lower the TS themselves.
func (s *Store) EnsureChannel(name string, ts int64) *Channel {
	canon := canonicalizeChannel(name)
	ch, ok := s.Channels[canon]
	if !ok {
		ch = newChannel(canon, ts)
		s.Channels[canon] = ch
	}
	return ch
}

// ChannelRemoveUser removes uid from the named channel, deleting the
// channel entirely once it has no members left.
func (s *Store) ChannelRemoveUser(name string, uid UID) {
	ch, ok := s.Channels[canonicalizeChannel(name)]
	if !ok {
		return
	}
	s.channelRemoveUserLocked(ch, uid)
}

func (s *Store) channelRemoveUserLocked(ch *Channel, uid UID) {
	if _, ok := ch.Members[uid]; !ok {
		return
	}
	delete(ch.Members, uid)
	delete(ch.Prefixes, uid)
	if len(ch.Members) == 0 {
		delete(s.Channels, ch.Name)
	}
}

// IsInternalServer reports whether sid names a server we spawned
// ourselves.
func (s *Store) IsInternalServer(sid SID) bool {
	srv, ok := s.Servers[sid]
	return ok && srv.Internal
}

// IsInternalClient returns the owning SID and true if uid belongs to a
// server we spawned ourselves.
func (s *Store) IsInternalClient(uid UID) (SID, bool) {
	sid := uid.OwningSID()
	if !s.IsInternalServer(sid) {
		return "", false
	}
	return sid, true
}

// NextUID allocates the next UID from sid's generator, creating a fresh
// generator on first use (every internal SID gets its own counter, so they
// don't wrap in lockstep).
func (s *Store) NextUID(sid SID) (UID, error) {
	if !s.IsInternalServer(sid) {
		return "", newUsageError("next_uid: %q is not an internal PseudoServer", sid)
	}
	g, ok := s.generators[sid]
	if !ok {
		g = newUIDGenerator(sid)
		s.generators[sid] = g
	}
	return g.next(), nil
}

// ServerByName looks up a server by its (case-folded) name. Used by RSQUIT,
// which identifies its target by name rather than SID.
func (s *Store) ServerByName(name string) (*Server, bool) {
	canon := canonicalizeChannel(name)
	for _, srv := range s.Servers {
		if srv.Name == canon {
			return srv, true
		}
	}
	return nil, false
}

// Root returns the server with no parent (the uplink, or ourselves before
// any link exists), if one is registered.
func (s *Store) Root() (*Server, bool) {
	for _, srv := range s.Servers {
		if srv.Parent == "" {
			return srv, true
		}
	}
	return nil, false
}
