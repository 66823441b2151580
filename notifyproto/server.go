package notifyproto

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/talfig/libcallsandbox/emit"
)

// Observer is the subset of engine.Registry that Server depends on,
// satisfied directly by (*engine.Registry).Observe.
type Observer interface {
	Observe(ctx context.Context, pid uint32, id int32)
}

// Server accepts notify connections on a Unix domain socket and
// forwards each decoded message to an Observer. It maps spec.md §5's
// "invoked from arbitrary execution contexts... any thread of any
// supervised process may issue a notification concurrently" onto one
// goroutine per accepted connection, mirroring the teacher's
// per-node-execution goroutine dispatch in graph.Engine.Run.
type Server struct {
	path     string
	observer Observer
	emitter  emit.Emitter

	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer builds a Server that will listen on path and forward
// decoded messages to observer. A nil emitter defaults to a no-op.
func NewServer(path string, observer Observer, emitter emit.Emitter) *Server {
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}
	return &Server{path: path, observer: observer, emitter: emitter}
}

// ListenAndServe binds path (removing any stale socket file left by a
// prior crashed instance) and accepts connections until ctx is
// canceled or Close is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("notifyproto: removing stale socket %s: %w", s.path, err)
	}
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("notifyproto: listen on %s: %w", s.path, err)
	}
	s.listener = ln

	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("notifyproto: accept: %w", err)
		}
		sessionID := uuid.New().String()
		s.wg.Add(1)
		go s.handleConn(ctx, conn, sessionID)
	}
}

// handleConn reads exactly one message per spec.md §7's wire
// description ("reading one message per connection-write"), forwards
// it to the observer, and closes the connection.
func (s *Server) handleConn(ctx context.Context, conn net.Conn, sessionID string) {
	defer s.wg.Done()
	defer func() { _ = conn.Close() }()

	buf := make([]byte, messageSize)
	if _, err := readFull(conn, buf); err != nil {
		s.emitter.Emit(emit.Event{Msg: "notifyproto_read_failed", Meta: map[string]any{"session": sessionID, "error": err.Error()}})
		return
	}
	msg, err := decodeMessage(buf)
	if err != nil {
		s.emitter.Emit(emit.Event{Msg: "notifyproto_decode_failed", Meta: map[string]any{"session": sessionID, "error": err.Error()}})
		return
	}
	s.observer.Observe(ctx, msg.PID, msg.ID)
}

// readFull reads exactly len(buf) bytes or returns an error, since
// net.Conn.Read may return short reads for a stream-oriented Unix
// socket.
func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Close stops accepting new connections and waits for in-flight ones
// to finish.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	s.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		// ListenAndServe already closed the listener on ctx cancellation.
		err = nil
	}
	return err
}
