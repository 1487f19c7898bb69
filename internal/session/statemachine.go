package session

import (
	"bufio"
	"net"

	"github.com/rs/zerolog"

	"github.com/openrts/masterserver/internal/core"
	"github.com/openrts/masterserver/internal/proto"
)

// state is the per-connection lobby state (spec.md §4.F).
type state int

const (
	stateLobby state = iota
	stateInLobbyGame
	stateInRunningGame
	stateDone
)

const (
	msgUnknownMessage        = "Unknown Message."
	msgGameClosedByHost      = "Game was closed by Host."
	msgLoggedOut             = "You have been logged out."
	msgAddedGame             = "Added game."
	msgFailedAddingGame      = "Failed adding game."
	msgJoinedGame            = "Joined Game."
	msgGameIsFull            = "Game is full."
	msgGameDoesNotExist      = "Game does not exist."
	msgPlayersNotReady       = "Players not ready."
	msgOnlyHostCanStart      = "Only the host can start the game."
	msgCantChooseLessPlayers = "Can't choose less Players."
	msgGameStarted           = "Game started..."
	msgGameOver              = "Game Over."
)

// runStateMachine races the socket reader against the state-machine
// processor (spec.md §4.E phase 3): whichever exits first ends the
// session, and cleanup (registry removal, inbox close, socket close) runs
// exactly once regardless of which side triggered it.
func runStateMachine(conn net.Conn, scanner *bufio.Scanner, client *core.Client, deps Deps, log *zerolog.Logger) {
	readerDone := make(chan struct{})
	procDone := make(chan struct{})

	go func() {
		defer close(readerDone)
		for scanner.Scan() {
			msg, err := proto.Decode(scanner.Bytes())
			if err != nil {
				writeLine(conn, proto.NewError("Could not read message."), log)
				continue
			}
			client.Push(msg)
		}
	}()

	go func() {
		defer close(procDone)
		processLoop(client, deps, log)
	}()

	select {
	case <-readerDone:
	case <-procDone:
	}

	deps.Registry.RemoveClient(client)
	client.CloseInbox()
	conn.Close()
	log.Info().Str("client", client.Name).Msg("session ended")
}

// processLoop consumes the client's inbox and dispatches by (state,
// variant) until a handler returns stateDone.
func processLoop(client *core.Client, deps Deps, log *zerolog.Logger) {
	st := stateLobby
	var gameName string

	for msg := range client.Inbox() {
		switch st {
		case stateLobby:
			st, gameName = handleLobby(client, deps, msg)
		case stateInLobbyGame:
			st, gameName = handleInLobbyGame(client, deps, msg, gameName)
		case stateInRunningGame:
			st, gameName = handleInRunningGame(client, deps, msg, gameName)
		}
		if st == stateDone {
			return
		}
	}
}

func handleLobby(client *core.Client, deps Deps, msg proto.Message) (state, string) {
	switch m := msg.(type) {
	case *proto.GameQuery:
		client.Send(&proto.GameQueryAnswer{Tag: proto.TagGameQueryAnswer, Games: deps.Registry.GameList()})
		return stateLobby, ""

	case *proto.GameInit:
		err := deps.Registry.CheckAddGame(client.Name, m.GameInitName, m.GameMap, m.GameMode, m.NumPlayers)
		if err != nil {
			client.Send(proto.NewError(msgFailedAddingGame))
			return stateLobby, ""
		}
		client.Send(proto.NewAck(msgAddedGame))
		return stateInLobbyGame, m.GameInitName

	case *proto.GameJoin:
		err := deps.Registry.JoinGame(client.Name, m.GameID)
		switch err {
		case nil:
			client.Send(proto.NewAck(msgJoinedGame))
			return stateInLobbyGame, m.GameID
		case core.ErrGameFull:
			client.Send(proto.NewError(msgGameIsFull))
		default:
			client.Send(proto.NewError(msgGameDoesNotExist))
		}
		return stateLobby, ""

	case *proto.Logout:
		client.Send(proto.NewAck(msgLoggedOut))
		return stateDone, ""

	default:
		client.Send(proto.NewError(msgUnknownMessage))
		return stateLobby, ""
	}
}

func handleInLobbyGame(client *core.Client, deps Deps, msg proto.Message, g string) (state, string) {
	switch m := msg.(type) {
	case *proto.ChatFromClient:
		deps.Registry.Broadcast(g, &proto.ChatFromThread{
			Tag:              proto.TagChatFromThread,
			ChatFromTOrign:   client.Name,
			ChatFromTContent: m.ChatFromCContent,
		})
		return stateInLobbyGame, g

	case *proto.ChatFromThread:
		client.Send(&proto.ChatOut{Tag: proto.TagChatOut, Origin: m.ChatFromTOrign, Content: m.ChatFromTContent})
		return stateInLobbyGame, g

	case *proto.GameStart:
		return handleGameStart(client, deps, g)

	case *proto.GameInfo:
		sendGameInfo(client, deps, g)
		return stateInLobbyGame, g

	case *proto.GameConfig:
		return handleGameConfig(client, deps, m, g)

	case *proto.PlayerConfig:
		_ = deps.Registry.UpdatePlayer(g, client.Name, m.PlayerCiv, m.PlayerTeam, m.PlayerReady)
		return stateInLobbyGame, g

	case *proto.GameClosedByHost:
		deps.Registry.LeaveGame(client.Name, g)
		client.Send(proto.NewAck(msgGameClosedByHost))
		return stateLobby, ""

	case *proto.GameLeave:
		deps.Registry.LeaveGame(client.Name, g)
		return stateLobby, ""

	case *proto.GameStartedByHost:
		client.Send(proto.NewAck(msgGameStarted))
		return stateInRunningGame, g

	case *proto.Logout:
		client.Send(proto.NewAck(msgLoggedOut))
		return stateDone, ""

	default:
		client.Send(proto.NewError(msgUnknownMessage))
		return stateInLobbyGame, g
	}
}

func handleInRunningGame(client *core.Client, deps Deps, msg proto.Message, g string) (state, string) {
	switch m := msg.(type) {
	case *proto.Broadcast:
		client.Send(proto.NewAck(m.Content))
		return stateInRunningGame, g

	case *proto.ChatFromClient:
		deps.Registry.Broadcast(g, &proto.ChatFromThread{
			Tag:              proto.TagChatFromThread,
			ChatFromTOrign:   client.Name,
			ChatFromTContent: m.ChatFromCContent,
		})
		return stateInRunningGame, g

	case *proto.ChatFromThread:
		client.Send(&proto.ChatOut{Tag: proto.TagChatOut, Origin: m.ChatFromTOrign, Content: m.ChatFromTContent})
		return stateInRunningGame, g

	case *proto.GameClosedByHost:
		deps.Registry.LeaveGame(client.Name, g)
		client.Send(proto.NewAck(msgGameClosedByHost))
		return stateLobby, ""

	case *proto.GameLeave:
		// matches source: leaving a running game drops back to the
		// pre-match lobby for the same game name, not to LOBBY.
		deps.Registry.LeaveGame(client.Name, g)
		return stateInLobbyGame, g

	case *proto.GameOver:
		snap, ok := deps.Registry.Snapshot(g)
		if !ok || snap.Host != client.Name {
			client.Send(proto.NewError(msgUnknownMessage))
			return stateInRunningGame, g
		}
		deps.Registry.Broadcast(g, &proto.Broadcast{Tag: proto.TagBroadcast, Content: msgGameOver})
		deps.Registry.LeaveGame(client.Name, g)
		return stateLobby, ""

	case *proto.Logout:
		client.Send(proto.NewAck(msgLoggedOut))
		return stateDone, ""

	default:
		client.Send(proto.NewError(msgUnknownMessage))
		return stateInRunningGame, g
	}
}

func handleGameStart(client *core.Client, deps Deps, g string) (state, string) {
	snap, ok := deps.Registry.Snapshot(g)
	if !ok {
		client.Send(proto.NewError(msgUnknownMessage))
		return stateInLobbyGame, g
	}
	if snap.Host != client.Name {
		client.Send(proto.NewError(msgOnlyHostCanStart))
		return stateInLobbyGame, g
	}
	ready, _ := deps.Registry.AllReady(g)
	if !ready {
		client.Send(proto.NewError(msgPlayersNotReady))
		return stateInLobbyGame, g
	}

	deps.Registry.Broadcast(g, &proto.GameStartedByHost{Tag: proto.TagGameStartedByHost})
	hostMap, _ := deps.Registry.HostAddresses(g)
	client.Send(&proto.GameStartAnswer{Tag: proto.TagGameStartAnswer, HostMap: hostMap})
	return stateInLobbyGame, g
}

func handleGameConfig(client *core.Client, deps Deps, m *proto.GameConfig, g string) (state, string) {
	snap, ok := deps.Registry.Snapshot(g)
	if !ok {
		client.Send(proto.NewError(msgUnknownMessage))
		return stateInLobbyGame, g
	}
	if snap.Host != client.Name {
		// Preserves a documented quirk of the original implementation:
		// a non-host GameConfig errors but also falls through into
		// IN_RUNNING_GAME rather than staying put.
		client.Send(proto.NewError(msgUnknownMessage))
		return stateInRunningGame, g
	}
	if m.GameConfPlayerNum < len(snap.Players) {
		client.Send(proto.NewError(msgCantChooseLessPlayers))
		return stateInLobbyGame, g
	}
	_ = deps.Registry.UpdateGame(g, m.GameConfMap, m.GameConfMode, m.GameConfPlayerNum)
	return stateInLobbyGame, g
}

func sendGameInfo(client *core.Client, deps Deps, g string) {
	snap, ok := deps.Registry.Snapshot(g)
	if !ok {
		client.Send(proto.NewError(msgGameDoesNotExist))
		return
	}
	players := make(map[string]proto.PlayerSlotView, len(snap.Players))
	for name, slot := range snap.Players {
		players[name] = proto.PlayerSlotView{Civ: slot.Civ, Team: slot.Team, Ready: slot.Ready}
	}
	client.Send(&proto.GameInfoAnswer{
		Tag: proto.TagGameInfoAnswer,
		Game: proto.GameSnapshot{
			Name:       snap.Name,
			Host:       snap.Host,
			Map:        snap.Map,
			Mode:       snap.Mode,
			MaxPlayers: snap.MaxPlayers,
			Players:    players,
		},
	})
}
