// Package transport implements the data channel's accept loop: a
// connection-oriented TCP stream framed with the strong envelope.
// Application-level payload handling is a pluggable callback; this package
// only owns framing and the listen/accept lifecycle.
package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strconv"

	"go.uber.org/zap"

	"github.com/CamiloWG/adhocfabric/internal/logging"
	"github.com/CamiloWG/adhocfabric/internal/wire"
)

// Handler processes one decoded strong envelope arriving on the data
// channel. Returning an error only logs; it never tears down the
// connection.
type Handler func(conn net.Conn, env *wire.StrongEnvelope) error

// Server owns the data-channel TCP listener.
type Server struct {
	listener   net.Listener
	handler    Handler
	maxPayload uint32
	log        *zap.SugaredLogger
}

// NewServer binds dataPort and returns a Server ready to Serve.
func NewServer(dataPort int, maxPayload uint32, handler Handler) (*Server, error) {
	ln, err := net.Listen("tcp4", net.JoinHostPort("", strconv.Itoa(dataPort)))
	if err != nil {
		return nil, err
	}
	return &Server{listener: ln, handler: handler, maxPayload: maxPayload, log: logging.Named("transport")}, nil
}

// Addr reports the listener's bound address, useful when the server was
// constructed with port 0.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Close releases the data-channel listener.
func (s *Server) Close() error {
	return s.listener.Close()
}

// Serve accepts inbound connections until ctx is cancelled, handling each
// on its own goroutine.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.Warnw("accept failed", "error", err)
				return err
			}
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	r := bufio.NewReaderSize(conn, 4096)
	header := make([]byte, wire.StrongHeaderLen)

	for {
		if _, err := io.ReadFull(r, header); err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debugw("data channel read error", "error", err)
			}
			return
		}

		env, err := wire.DecodeStrongHeader(header, s.maxPayload)
		if err != nil {
			// Non-matching magic or oversized frame: drop the connection,
			// since framing can't be recovered mid-stream.
			s.log.Debugw("strong envelope header rejected", "error", err)
			return
		}

		env.Payload = make([]byte, env.PayloadSize)
		if _, err := io.ReadFull(r, env.Payload); err != nil {
			s.log.Debugw("data channel payload read error", "error", err)
			return
		}

		if s.handler != nil {
			if err := s.handler(conn, env); err != nil {
				s.log.Debugw("data channel handler error", "error", err)
			}
		}
	}
}
