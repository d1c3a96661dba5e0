package network

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-msgpack/v2/codec"
	"github.com/rs/zerolog"
)

// Handler is implemented by pkg/node to service the five control-plane
// RPCs this package carries.
type Handler interface {
	HandleClientForward(ctx context.Context, body ClientForwardBody) (ClientForwardResponse, error)
	HandleQuery(ctx context.Context, body QueryBody) (QueryResponse, error)
	HandleAddLearner(ctx context.Context, body AddLearnerBody) error
	HandleChangeMembership(ctx context.Context, body ChangeMembershipBody) error
	HandleGetMetrics(ctx context.Context) (GetMetricsResponse, error)
}

// Server accepts control-plane connections and dispatches each envelope
// it decodes to Handler.
type Server struct {
	listener net.Listener
	handler  Handler
	logger   zerolog.Logger
	wg       sync.WaitGroup
	quit     chan struct{}
	once     sync.Once
}

// NewServer binds addr and returns a Server ready for Serve.
func NewServer(addr string, handler Handler, logger zerolog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{listener: ln, handler: handler, logger: logger, quit: make(chan struct{})}, nil
}

// Addr returns the server's bound address, useful when addr was ":0".
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until Close is called. It returns nil on a
// clean shutdown.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
				return err
			}
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Close stops accepting new connections and waits for in-flight ones to
// finish.
func (s *Server) Close() error {
	var err error
	s.once.Do(func() {
		close(s.quit)
		err = s.listener.Close()
	})
	s.wg.Wait()
	return err
}

// handleConn owns one accepted connection for its lifetime. Requests are
// dispatched concurrently as they are decoded — a slow RPC never blocks
// the others sharing the connection — and responses are written back in
// whatever order they finish, correlated by the client via
// Envelope.RequestID; writeMu only serializes the encoder itself, since
// a single codec.Encoder is not safe for concurrent use.
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	connLog := s.logger.With().Str("conn_id", uuid.NewString()).Str("remote_addr", conn.RemoteAddr().String()).Logger()
	enc := codec.NewEncoder(conn, msgpackHandle)
	dec := codec.NewDecoder(conn, msgpackHandle)

	var writeMu sync.Mutex
	var inFlight sync.WaitGroup
	defer inFlight.Wait()

	for {
		var env Envelope
		if err := dec.Decode(&env); err != nil {
			if !errors.Is(err, io.EOF) {
				connLog.Debug().Err(err).Msg("control connection decode failed")
			}
			return
		}
		inFlight.Add(1)
		go func(req Envelope) {
			defer inFlight.Done()
			resp := s.dispatch(&req)
			writeMu.Lock()
			err := enc.Encode(resp)
			writeMu.Unlock()
			if err != nil {
				connLog.Warn().Err(err).Msg("control connection encode failed")
			}
		}(env)
	}
}

func (s *Server) dispatch(req *Envelope) *Envelope {
	ctx := context.Background()

	switch req.Kind {
	case RPCClientForward:
		var body ClientForwardBody
		if err := decodeBody(req.Body, &body); err != nil {
			return errorResponse(req, err)
		}
		if !body.Deadline.IsZero() {
			var cancel context.CancelFunc
			ctx, cancel = context.WithDeadline(ctx, body.Deadline)
			defer cancel()
		}
		resp, err := s.handler.HandleClientForward(ctx, body)
		if err != nil {
			return errorResponse(req, err)
		}
		return okResponse(req, resp)

	case RPCQuery:
		var body QueryBody
		if err := decodeBody(req.Body, &body); err != nil {
			return errorResponse(req, err)
		}
		if !body.Deadline.IsZero() {
			var cancel context.CancelFunc
			ctx, cancel = context.WithDeadline(ctx, body.Deadline)
			defer cancel()
		}
		resp, err := s.handler.HandleQuery(ctx, body)
		if err != nil {
			return errorResponse(req, err)
		}
		return okResponse(req, resp)

	case RPCAddLearner:
		var body AddLearnerBody
		if err := decodeBody(req.Body, &body); err != nil {
			return errorResponse(req, err)
		}
		if err := s.handler.HandleAddLearner(ctx, body); err != nil {
			return errorResponse(req, err)
		}
		return okResponse(req, struct{}{})

	case RPCChangeMembership:
		var body ChangeMembershipBody
		if err := decodeBody(req.Body, &body); err != nil {
			return errorResponse(req, err)
		}
		if err := s.handler.HandleChangeMembership(ctx, body); err != nil {
			return errorResponse(req, err)
		}
		return okResponse(req, struct{}{})

	case RPCGetMetrics:
		resp, err := s.handler.HandleGetMetrics(ctx)
		if err != nil {
			return errorResponse(req, err)
		}
		return okResponse(req, resp)

	default:
		return errorResponse(req, errors.New("network: unknown rpc kind"))
	}
}

func okResponse(req *Envelope, body interface{}) *Envelope {
	encoded, err := encodeBody(body)
	if err != nil {
		return errorResponse(req, err)
	}
	return &Envelope{RequestID: req.RequestID, Kind: req.Kind, Body: encoded}
}

func errorResponse(req *Envelope, err error) *Envelope {
	return &Envelope{RequestID: req.RequestID, Kind: req.Kind, Error: err.Error()}
}
