package core

import (
	"github.com/openrts/masterserver/internal/proto"
)

// Registry is the shared, in-memory map of logged-in clients and active
// games. It is implemented as a single-goroutine actor: every operation is
// a closure run serially inside that goroutine, which gives every
// multi-map mutation (e.g. "add client, displace incumbent" or "remove
// client, cascade game leaves") the atomicity spec.md requires without a
// separate lock. Snapshot reads go through the same actor rather than a
// read lock — simpler to reason about, and contention here is never the
// bottleneck (socket I/O dominates).
type Registry struct {
	requests chan func(*registryState)
	done     chan struct{}
}

type registryState struct {
	clients map[string]*Client
	games   map[string]*Game
}

// NewRegistry starts the registry actor, which runs until Stop is called;
// callers normally keep a Registry for the whole process.
func NewRegistry() *Registry {
	r := &Registry{
		requests: make(chan func(*registryState)),
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Registry) run() {
	st := &registryState{
		clients: make(map[string]*Client),
		games:   make(map[string]*Game),
	}
	for {
		select {
		case fn := <-r.requests:
			fn(st)
		case <-r.done:
			return
		}
	}
}

// Stop shuts down the registry actor. The app calls it during shutdown
// cleanup, and tests call it when they finish.
func (r *Registry) Stop() {
	close(r.done)
}

// do runs fn inside the actor goroutine and waits for it to finish.
func (r *Registry) do(fn func(*registryState)) {
	done := make(chan struct{})
	wrapped := func(st *registryState) {
		fn(st)
		close(done)
	}
	select {
	case r.requests <- wrapped:
	case <-r.done:
		return
	}
	select {
	case <-done:
	case <-r.done:
	}
}

// AddClient registers c. If a Client with the same name already exists,
// the incumbent receives a Logout on its inbox in the same transaction
// before being overwritten (invariant 4, spec.md S3).
func (r *Registry) AddClient(c *Client) {
	r.do(func(st *registryState) {
		if old, exists := st.clients[c.Name]; exists {
			old.Push(&proto.Logout{Tag: proto.TagLogout})
		}
		st.clients[c.Name] = c
	})
}

// RemoveClient deletes c from clients and cascades leaveGame for every
// game the player was a member of, but only if c is still the client
// currently registered under that name. A session that lost a race to a
// displacing login (addClient already overwrote the entry and pushed
// Logout to c) must not delete the new client's entry during its own
// cleanup — that is exactly invariant 4.
func (r *Registry) RemoveClient(c *Client) {
	r.do(func(st *registryState) {
		if st.clients[c.Name] != c {
			return
		}
		delete(st.clients, c.Name)
		for gameName, g := range st.games {
			if _, inGame := g.Players[c.Name]; inGame {
				leaveGameLocked(st, c.Name, gameName)
			}
		}
	})
}

// ClientHost returns the peer address of the client currently registered
// under name, or ok=false if none is. Exposed for the operational HTTP
// surface and for tests asserting invariant 4 (clients[name] == the
// client that won a displacement race).
func (r *Registry) ClientHost(name string) (host string, ok bool) {
	r.do(func(st *registryState) {
		c, found := st.clients[name]
		if !found {
			return
		}
		ok = true
		host = c.Host
	})
	return
}

// GameList returns a snapshot of every open lobby's summary.
func (r *Registry) GameList() []proto.GameSummary {
	var out []proto.GameSummary
	r.do(func(st *registryState) {
		out = make([]proto.GameSummary, 0, len(st.games))
		for name, g := range st.games {
			out = append(out, proto.GameSummary{
				Name:           name,
				Host:           g.Host,
				Map:            g.Map,
				Mode:           g.Mode,
				CurrentPlayers: len(g.Players),
				MaxPlayers:     g.MaxPlayers,
			})
		}
	})
	return out
}

// CheckAddGame creates a new Game called name owned by host, seeded
// with the host's own default slot, unless the name is already taken.
func (r *Registry) CheckAddGame(host, name, mapName, mode string, maxPlayers int) error {
	var err error
	r.do(func(st *registryState) {
		if _, exists := st.games[name]; exists {
			err = ErrNameTaken
			return
		}
		st.games[name] = &Game{
			Name:       name,
			Host:       host,
			Map:        mapName,
			Mode:       mode,
			MaxPlayers: maxPlayers,
			Players:    map[string]PlayerSlot{host: {}},
		}
	})
	return err
}

// JoinGame inserts a default PlayerSlot for name into gameName, unless the
// game is full, doesn't exist, or name is already a member.
func (r *Registry) JoinGame(name, gameName string) error {
	var err error
	r.do(func(st *registryState) {
		g, ok := st.games[gameName]
		if !ok {
			err = ErrGameNotFound
			return
		}
		if _, already := g.Players[name]; already {
			err = ErrAlreadyInGame
			return
		}
		if len(g.Players) >= g.MaxPlayers {
			err = ErrGameFull
			return
		}
		g.Players[name] = PlayerSlot{}
	})
	return err
}

// LeaveGame removes name from gameName's players. If name is the host,
// the lobby is closed: every remaining member receives GameClosedByHost
// and the Game is deleted.
func (r *Registry) LeaveGame(name, gameName string) {
	r.do(func(st *registryState) {
		leaveGameLocked(st, name, gameName)
	})
}

func leaveGameLocked(st *registryState, name, gameName string) {
	g, ok := st.games[gameName]
	if !ok {
		return
	}
	if g.Host == name {
		closeGameLocked(st, gameName)
		return
	}
	delete(g.Players, name)
}

func closeGameLocked(st *registryState, gameName string) {
	g, ok := st.games[gameName]
	if !ok {
		return
	}
	for member := range g.Players {
		if c, ok := st.clients[member]; ok {
			c.Push(&proto.GameClosedByHost{Tag: proto.TagGameClosedByHost})
		}
	}
	delete(st.games, gameName)
}

// UpdateGame changes gameName's map, mode and capacity. Capacity may only
// be lowered to a value at or above the current player count (invariant 6).
func (r *Registry) UpdateGame(gameName, mapName, mode string, maxPlayers int) error {
	var err error
	r.do(func(st *registryState) {
		g, ok := st.games[gameName]
		if !ok {
			err = ErrGameNotFound
			return
		}
		if maxPlayers < len(g.Players) {
			err = ErrCannotLowerCap
			return
		}
		g.Map = mapName
		g.Mode = mode
		g.MaxPlayers = maxPlayers
	})
	return err
}

// UpdatePlayer changes name's slot inside gameName.
func (r *Registry) UpdatePlayer(gameName, name string, civ string, team int, ready bool) error {
	var err error
	r.do(func(st *registryState) {
		g, ok := st.games[gameName]
		if !ok {
			err = ErrGameNotFound
			return
		}
		if _, member := g.Players[name]; !member {
			err = ErrNotInGame
			return
		}
		g.Players[name] = PlayerSlot{Civ: civ, Team: team, Ready: ready}
	})
	return err
}

// Snapshot returns a deep copy of gameName, or ok=false if it does not
// exist. Safe to read from concurrently with further mutation.
func (r *Registry) Snapshot(gameName string) (Game, bool) {
	var g Game
	var ok bool
	r.do(func(st *registryState) {
		src, found := st.games[gameName]
		if !found {
			return
		}
		ok = true
		g = src.clone()
	})
	return g, ok
}

// AllReady reports whether every slot in gameName is ready. ok is false
// if the game does not exist.
func (r *Registry) AllReady(gameName string) (ready bool, ok bool) {
	r.do(func(st *registryState) {
		g, found := st.games[gameName]
		if !found {
			return
		}
		ok = true
		ready = g.allReady()
	})
	return ready, ok
}

// HostAddresses maps every member of gameName to their Client.Host, for
// GameStartAnswer.
func (r *Registry) HostAddresses(gameName string) (map[string]string, bool) {
	var out map[string]string
	var ok bool
	r.do(func(st *registryState) {
		g, found := st.games[gameName]
		if !found {
			return
		}
		ok = true
		out = make(map[string]string, len(g.Players))
		for member := range g.Players {
			if c, has := st.clients[member]; has {
				out[member] = c.Host
			}
		}
	})
	return out, ok
}

// Broadcast pushes m onto the inbox of every current member of gameName.
// All pushes from one Broadcast call happen inside a single transaction,
// so they are never interleaved with another Broadcast or registry
// mutation (spec.md §4.G ordering guarantee).
func (r *Registry) Broadcast(gameName string, m proto.Message) {
	r.do(func(st *registryState) {
		g, ok := st.games[gameName]
		if !ok {
			return
		}
		for member := range g.Players {
			if c, ok := st.clients[member]; ok {
				c.Push(m)
			}
		}
	})
}
