package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	logs "github.com/danmuck/smplog"
	"github.com/rs/zerolog"

	"github.com/danmuck/cictl/internal/logging"
	"github.com/danmuck/cictl/internal/protocol/frame"
	"github.com/danmuck/cictl/internal/protocol/wire"
	"github.com/danmuck/cictl/internal/transport"
)

// Server exposes one Transport over the link. Connections may overlap but
// bus calls from all of them are serialized.
type Server struct {
	tr        transport.Transport
	topo      transport.Topology
	limits    frame.Limits
	idleAfter time.Duration

	mu  sync.Mutex
	log zerolog.Logger
}

func NewServer(tr transport.Transport, topo transport.Topology) *Server {
	return &Server{
		tr:     tr,
		topo:   topo,
		limits: frame.DefaultLimits(),
		log:    logging.Component("lanesim"),
	}
}

// WithIdleTimeout drops connections that stay silent for d.
func (s *Server) WithIdleTimeout(d time.Duration) *Server {
	s.idleAfter = d
	return s
}

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-stop:
		}
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	s.log.Info().Str("addr", ln.Addr().String()).Int("lanes", s.topo.Lanes).Int("units_per_lane", s.topo.UnitsPerLane).Msg("serving")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	log := s.log.With().Str("peer", conn.RemoteAddr().String()).Logger()
	session, err := s.greet(conn)
	if err != nil {
		log.Warn().Err(err).Msg("hello_failed")
		return
	}
	log = log.With().Str("session", session).Logger()
	log.Info().Msg("session_open")

	for {
		if s.idleAfter > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.idleAfter))
		}
		req, err := frame.Read(conn, s.limits)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				log.Info().Msg("session_closed")
			} else {
				log.Warn().Err(err).Msg("read_failed")
			}
			return
		}
		if req.Header.Type == frame.TypeBye {
			log.Info().Msg("session_bye")
			return
		}
		resp := s.serve(req)
		if err := frame.Write(conn, resp, s.limits); err != nil {
			log.Warn().Err(err).Msg("write_failed")
			return
		}
	}
}

func (s *Server) greet(conn net.Conn) (string, error) {
	req, err := frame.Read(conn, s.limits)
	if err != nil {
		return "", err
	}
	if req.Header.Type != frame.TypeHello {
		err := fmt.Errorf("%w: first frame is %s", ErrProtocol, req.Header.Type)
		_ = frame.Write(conn, errorFrame(req.Header.Seq, err), s.limits)
		return "", err
	}
	session, want, err := parseHello(req.Payload)
	if err != nil {
		_ = frame.Write(conn, errorFrame(req.Header.Seq, err), s.limits)
		return "", err
	}
	if (want.Lanes != 0 && want.Lanes != s.topo.Lanes) || (want.UnitsPerLane != 0 && want.UnitsPerLane != s.topo.UnitsPerLane) {
		logs.Warnf("remote.Server.greet topology mismatch session=%s want=%dx%d have=%dx%d",
			session, want.Lanes, want.UnitsPerLane, s.topo.Lanes, s.topo.UnitsPerLane)
	}
	resp := frame.New(frame.TypeHello, req.Header.Seq, helloPayload(session, s.topo))
	resp.Header.Flags = frame.FlagResponse
	return session, frame.Write(conn, resp, s.limits)
}

func (s *Server) serve(req frame.Frame) frame.Frame {
	seq := req.Header.Seq
	switch req.Header.Type {
	case frame.TypeCommit:
		words, err := parseWords(req.Payload)
		if err != nil {
			return errorFrame(seq, err)
		}
		s.mu.Lock()
		err = s.tr.Commit(words)
		s.mu.Unlock()
		if err != nil {
			return errorFrame(seq, err)
		}
		return response(frame.TypeAck, seq, nil)
	case frame.TypeUpdate:
		var words wire.Vector
		s.mu.Lock()
		err := s.tr.Update(&words)
		s.mu.Unlock()
		if err != nil {
			return errorFrame(seq, err)
		}
		return response(frame.TypeWords, seq, wordsPayload(words))
	default:
		return errorFrame(seq, fmt.Errorf("%w: unexpected %s", ErrProtocol, req.Header.Type))
	}
}

func response(t frame.Type, seq uint64, payload []byte) frame.Frame {
	f := frame.New(t, seq, payload)
	f.Header.Flags = frame.FlagResponse
	return f
}

func errorFrame(seq uint64, err error) frame.Frame {
	f := frame.New(frame.TypeError, seq, errorPayload(err))
	f.Header.Flags = frame.FlagResponse | frame.FlagError
	return f
}
