// Package proto serves the line-delimited JSON-RPC control plane. Each
// request is one JSON object per line; responses and notifications go back
// the same way. The method surface and status shapes follow the Snapcast
// server control protocol, reporting sinks as groups and sources as
// streams.
//
// All control-plane mutation is serialized through one process-wide state
// lock. That lock is never held across an audio-path operation other than
// the switcher's own brief hand-off, and the audio path never takes it.
package proto

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// SinkState is the control-plane view of one sink.
type SinkState interface {
	Kind() string
	Muted() bool
	SetMuted(muted bool)
	Volume() uint8
	SetVolume(volume uint8)
	ActiveSource() (string, bool)
	SwitchSource(name string) bool
}

// SourceState is the control-plane view of one source.
type SourceState interface {
	IsActive() bool
	URI() string
}

// State is the combined sink/source registry. Populated once at startup;
// the mutex serializes all control-plane access afterwards.
type State struct {
	mu      sync.Mutex
	sinks   map[string]SinkState
	sources map[string]SourceState
}

// NewState builds the registry served by the control plane.
func NewState(sinks map[string]SinkState, sources map[string]SourceState) *State {
	return &State{sinks: sinks, sources: sources}
}

// Server accepts control connections and dispatches their requests.
type Server struct {
	logger *slog.Logger
	state  *State

	mu      sync.Mutex
	clients map[uuid.UUID]chan<- any
}

// NewServer creates a Server over state.
func NewServer(state *State) *Server {
	return &Server{
		logger:  slog.Default(),
		state:   state,
		clients: make(map[uuid.UUID]chan<- any),
	}
}

// Serve accepts connections on lis until the listener is closed, handling
// each connection on its own goroutine.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("control plane listening", "addr", lis.Addr())

	for {
		conn, err := lis.Accept()
		if err != nil {
			return fmt.Errorf("control listener closed: %w", err)
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	id := uuid.New()
	logger := s.logger.With(
		"conn", id,
		"remote", conn.RemoteAddr(),
	)
	logger.Debug("accepted control connection")

	// Outgoing messages are funneled through one writer goroutine so
	// responses and notifications from other connections cannot interleave
	// mid-line.
	out := make(chan any, 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		// Closing the connection here kicks the reader out of Scan if the
		// writer dies first.
		defer conn.Close()
		for msg := range out {
			line, err := json.Marshal(msg)
			if err != nil {
				logger.Error("protocol error", "err", err)
				return
			}
			if _, err := conn.Write(append(line, '\n')); err != nil {
				logger.Error("tcp write error", "err", err)
				return
			}
		}
	}()

	s.mu.Lock()
	s.clients[id] = out
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, id)
		s.mu.Unlock()
		close(out)
		<-writerDone
		logger.Debug("control connection closed")
	}()

	// send queues one outgoing message. When the writer goroutine has
	// already died (the client went away without reading), it gives up
	// instead of blocking forever on a full channel, so the read loop can
	// unwind and unregister the client.
	send := func(msg any) bool {
		select {
		case out <- msg:
			return true
		case <-writerDone:
			return false
		}
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		logger.Debug("request received", "line", line)

		var req request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			// The id is unknowable here; the protocol wants an explicit null.
			if !send(response{Tag: jsonrpcTag, ID: json.RawMessage("null"), Error: errParse(err)}) {
				return
			}
			continue
		}
		if req.Tag != jsonrpcTag || req.Method == "" {
			if !send(response{Tag: jsonrpcTag, ID: req.ID, Error: errInvalidRequest()}) {
				return
			}
			continue
		}

		result, notifications, rpcErr := s.dispatch(&req)

		switch {
		case rpcErr != nil:
			if !send(response{Tag: jsonrpcTag, ID: req.ID, Error: rpcErr}) {
				return
			}
		case req.ID != nil:
			if !send(response{Tag: jsonrpcTag, ID: req.ID, Result: result}) {
				return
			}
		}

		// Successful mutations are announced to every other client.
		if rpcErr == nil && len(notifications) > 0 {
			s.broadcast(id, notifications)
		}
	}

	if err := scanner.Err(); err != nil {
		logger.Debug("tcp read error", "err", err)
	}
}

// broadcast queues notifications to every connected client except origin.
// Clients that cannot accept immediately are skipped rather than blocking
// the dispatching connection.
func (s *Server) broadcast(origin uuid.UUID, notifications []notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, out := range s.clients {
		if id == origin {
			continue
		}
		for _, n := range notifications {
			select {
			case out <- n:
			default:
			}
		}
	}
}

func unmarshalParams[P any](req *request) (P, *rpcError) {
	var params P
	if len(req.Params) == 0 {
		return params, nil
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return params, &rpcError{Code: -32602, Message: err.Error()}
	}
	return params, nil
}

func dispatch[P any](s *Server, req *request, f func(P) (any, []notification, *rpcError)) (any, []notification, *rpcError) {
	params, rpcErr := unmarshalParams[P](req)
	if rpcErr != nil {
		return nil, nil, rpcErr
	}
	return f(params)
}

func (s *Server) dispatch(req *request) (any, []notification, *rpcError) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	switch req.Method {
	case "Client.GetStatus":
		return dispatch(s, req, s.clientGetStatus)
	case "Client.SetVolume":
		return dispatch(s, req, s.clientSetVolume)
	case "Group.GetStatus":
		return dispatch(s, req, s.groupGetStatus)
	case "Group.SetMute":
		return dispatch(s, req, s.groupSetMute)
	case "Group.SetStream":
		return dispatch(s, req, s.groupSetStream)
	case "Server.GetRPCVersion":
		return dispatch(s, req, s.serverGetRPCVersion)
	case "Server.GetStatus":
		return dispatch(s, req, s.serverGetStatus)
	default:
		return nil, nil, errMethodNotFound(req.Method)
	}
}

func (s *Server) clientGetStatus(params idParams) (any, []notification, *rpcError) {
	sink, ok := s.state.sinks[params.ID]
	if !ok {
		return nil, nil, errInvalidParams("Unknown client: " + params.ID)
	}
	return clientFromSink(params.ID, sink), nil, nil
}

func (s *Server) clientSetVolume(params volumeParams) (any, []notification, *rpcError) {
	sink, ok := s.state.sinks[params.ID]
	if !ok {
		return nil, nil, errInvalidParams("Unknown client: " + params.ID)
	}

	sink.SetMuted(params.Muted)
	sink.SetVolume(percentToVolume(params.Percent))

	result := volumeStatus{Muted: params.Muted, Percent: params.Percent}
	return result, []notification{
		notify("Client.OnVolumeChanged", volumeParams{
			ID:      params.ID,
			Muted:   params.Muted,
			Percent: params.Percent,
		}),
	}, nil
}

func (s *Server) groupGetStatus(params idParams) (any, []notification, *rpcError) {
	// One group per sink; group id equals sink id.
	sink, ok := s.state.sinks[params.ID]
	if !ok {
		return nil, nil, errInvalidParams("Unknown group: " + params.ID)
	}
	return groupFromSink(params.ID, sink), nil, nil
}

func (s *Server) groupSetMute(params muteParams) (any, []notification, *rpcError) {
	sink, ok := s.state.sinks[params.ID]
	if !ok {
		return nil, nil, errInvalidParams("Unknown group: " + params.ID)
	}

	sink.SetMuted(params.Mute)

	return muteStatus{Mute: params.Mute}, []notification{
		notify("Group.OnMute", muteParams{ID: params.ID, Mute: params.Mute}),
	}, nil
}

func (s *Server) groupSetStream(params streamParams) (any, []notification, *rpcError) {
	sink, ok := s.state.sinks[params.ID]
	if !ok {
		return nil, nil, errInvalidParams("Unknown group: " + params.ID)
	}
	source, ok := s.state.sources[params.StreamID]
	if !ok {
		return nil, nil, errInvalidParams("Unknown stream: " + params.StreamID)
	}
	if !sink.SwitchSource(params.StreamID) {
		return nil, nil, errInvalidParams("Unknown stream: " + params.StreamID)
	}

	return streamFromSource(params.StreamID, source), []notification{
		notify("Group.OnStreamChanged", streamParams{ID: params.ID, StreamID: params.StreamID}),
	}, nil
}

func (s *Server) serverGetRPCVersion(struct{}) (any, []notification, *rpcError) {
	return rpcVersion{Major: 2, Minor: 0, Patch: 0}, nil, nil
}

func (s *Server) serverGetStatus(struct{}) (any, []notification, *rpcError) {
	groups := make([]groupStatus, 0, len(s.state.sinks))
	for name, sink := range s.state.sinks {
		groups = append(groups, groupFromSink(name, sink))
	}

	streams := make([]streamStatus, 0, len(s.state.sources))
	for name, source := range s.state.sources {
		streams = append(streams, streamFromSource(name, source))
	}

	return serverStatus{
		Server:  serverInner{Meta: defaultMeta()},
		Groups:  groups,
		Streams: streams,
	}, nil, nil
}

// percentToVolume maps the protocol's 0-100 volume to the internal 0-255
// scale.
func percentToVolume(percent float32) uint8 {
	if percent <= 0 {
		return 0
	}
	if percent >= 100 {
		return 255
	}
	return uint8(percent / 100 * 255)
}
