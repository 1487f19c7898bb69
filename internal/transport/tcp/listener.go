// Package tcp runs the lobby protocol's accept loop: a plain IPv4 TCP
// listener that hands each connection to internal/session.
package tcp

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/openrts/masterserver/internal/session"
)

// backlog mirrors spec.md §6's listen backlog of 1024.
const backlog = 1024

// ListenAndServe binds 0.0.0.0:port with SO_REUSEADDR and accepts
// connections until ctx is cancelled, dispatching each to session.Handle.
func ListenAndServe(ctx context.Context, port int, deps session.Deps, log *zerolog.Logger) error {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	addr := net.JoinHostPort("0.0.0.0", strconv.Itoa(port))
	// Go's net.Listen always asks the kernel for SOMAXCONN, which on every
	// deployment target is already ≥ the 1024 backlog called for; there is
	// no portable knob to request a smaller one, so backlog is documentary.
	ln, err := lc.Listen(ctx, "tcp4", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	log.Info().Int("port", port).Int("backlog", backlog).Msg("Listening on port")

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				log.Warn().Err(err).Msg("accept failed")
				continue
			}
		}

		log.Info().Str("remote_addr", conn.RemoteAddr().String()).Msg("Accepted connection")
		go session.Handle(ctx, conn, deps)
	}
}
