// Package session runs one accepted connection end to end: the version
// handshake, the authenticate/register loop, and then the lobby state
// machine, until the connection or the processor ends it.
package session

import (
	"bufio"
	"context"
	"errors"
	"net"

	"github.com/rs/zerolog"

	"github.com/openrts/masterserver/internal/auth"
	"github.com/openrts/masterserver/internal/core"
	"github.com/openrts/masterserver/internal/proto"
)

// Deps collects a session's collaborators. AcceptedVersion is a function
// rather than a fixed slice so a config hot-reload is picked up by every
// new connection without restarting the listener.
type Deps struct {
	Registry        *core.Registry
	Auth            *auth.Service
	AcceptedVersion func() []int
	Logger          *zerolog.Logger
}

const maxLineSize = 1 << 20

// Handle runs the full per-connection protocol. It returns once the
// session has ended and conn has been closed; callers run it in its own
// goroutine per accepted connection.
func Handle(ctx context.Context, conn net.Conn, deps Deps) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	log := deps.Logger.With().Str("remote_addr", remote).Logger()

	scanner := bufio.NewScanner(conn)
	scanner.Split(proto.ScanLines)
	scanner.Buffer(make([]byte, 4096), maxLineSize)

	if !handshake(conn, scanner, deps, &log) {
		return
	}

	client, ok := authenticate(ctx, conn, scanner, deps, &log)
	if !ok {
		return
	}

	runStateMachine(conn, scanner, client, deps, &log)
}

// handshake runs phase 1 (spec.md §4.E): the first line must be a
// VersionMessage whose peerProtocolVersion matches the configured
// accepted version element-wise. Any mismatch or decode failure
// terminates the connection.
func handshake(conn net.Conn, scanner *bufio.Scanner, deps Deps, log *zerolog.Logger) bool {
	if !scanner.Scan() {
		return false
	}

	msg, err := proto.Decode(scanner.Bytes())
	if err != nil {
		writeLine(conn, proto.NewError("Incompatible Version."), log)
		return false
	}

	vm, ok := msg.(*proto.VersionMessage)
	if !ok || !versionsEqual(vm.PeerProtocolVersion, deps.AcceptedVersion()) {
		writeLine(conn, proto.NewError("Incompatible Version."), log)
		return false
	}

	writeLine(conn, proto.NewAck("Version accepted."), log)
	return true
}

// authenticate runs phase 2: a loop over Login/AddPlayer/anything-else
// until a Client is created and registered, or the connection is
// terminated.
func authenticate(ctx context.Context, conn net.Conn, scanner *bufio.Scanner, deps Deps, log *zerolog.Logger) (*core.Client, bool) {
	remote := conn.RemoteAddr().String()

	for {
		if !scanner.Scan() {
			return nil, false
		}

		msg, err := proto.Decode(scanner.Bytes())
		if err != nil {
			writeLine(conn, proto.NewError("Unknown Format."), log)
			return nil, false
		}

		switch m := msg.(type) {
		case *proto.Login:
			switch err := deps.Auth.Authenticate(ctx, m.LoginName, m.LoginPassword); {
			case err == nil:
				client := core.NewClient(m.LoginName, remote, conn)
				deps.Registry.AddClient(client)
				writeLine(conn, proto.NewAck("Login success."), log)
				log.Info().Str("client", m.LoginName).Msg("login success")
				return client, true
			case errors.Is(err, auth.ErrPlayerNotFound):
				// spec.md: "if absent, return nothing" — no response,
				// the loop simply waits for the next line.
				continue
			default:
				writeLine(conn, proto.NewError("Login failed."), log)
				return nil, false
			}

		case *proto.AddPlayer:
			switch err := deps.Auth.Register(ctx, m.Name, m.Pw); {
			case err == nil:
				writeLine(conn, proto.NewAck("Player successfully added."), log)
			case errors.Is(err, auth.ErrUserExists):
				writeLine(conn, proto.NewError("Name taken."), log)
			default:
				log.Error().Err(err).Msg("add player failed")
				return nil, false
			}
			continue

		default:
			writeLine(conn, proto.NewError("Unknown Format."), log)
			return nil, false
		}
	}
}

func versionsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func writeLine(conn net.Conn, m proto.Message, log *zerolog.Logger) {
	data, err := proto.Encode(m)
	if err != nil {
		log.Error().Err(err).Msg("encode message")
		return
	}
	if _, err := conn.Write(data); err != nil {
		log.Debug().Err(err).Msg("write failed")
	}
}
