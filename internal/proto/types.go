package proto

import (
	"encoding/json"
	"time"
)

const jsonrpcTag = "2.0"

// Meta identity reported for the server and for every synthetic client.
const (
	serverName      = "soundpatch"
	serverVersion   = "0.1.0"
	protocolVersion = 2
)

// request is one line received from a client. The id is kept opaque and
// echoed back verbatim; requests without an id get no success response.
type request struct {
	Tag    string          `json:"jsonrpc"`
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type response struct {
	Tag    string          `json:"jsonrpc"`
	ID     json.RawMessage `json:"id,omitempty"`
	Result any             `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

// notification is a server-initiated message; it carries no id.
type notification struct {
	Tag    string `json:"jsonrpc"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

func notify(method string, params any) notification {
	return notification{Tag: jsonrpcTag, Method: method, Params: params}
}

// rpcError is the typed per-request failure carried in a response.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *rpcError) Error() string { return e.Message }

func errParse(err error) *rpcError {
	return &rpcError{Code: -32700, Message: "Parse error: " + err.Error()}
}

func errMethodNotFound(method string) *rpcError {
	return &rpcError{Code: -32601, Message: "Method not found: " + method}
}

func errInvalidRequest() *rpcError {
	return &rpcError{Code: -32600, Message: "Invalid request"}
}

func errInvalidParams(message string) *rpcError {
	return &rpcError{Code: -32602, Message: "Invalid parameter: " + message}
}

// ----------------------------------------------------------------------
// Parameter shapes. The id selects the entity; remaining fields sit
// alongside it on the same object.

type idParams struct {
	ID string `json:"id"`
}

type volumeParams struct {
	ID      string  `json:"id"`
	Muted   bool    `json:"muted"`
	Percent float32 `json:"percent"`
}

type muteParams struct {
	ID   string `json:"id"`
	Mute bool   `json:"mute"`
}

type muteStatus struct {
	Mute bool `json:"mute"`
}

type streamParams struct {
	ID       string `json:"id"`
	StreamID string `json:"stream_id"`
}

// ----------------------------------------------------------------------
// Status shapes, compatible with the Snapcast control protocol. Every sink
// is reported as a group holding exactly one client (both with the sink's
// id); every source is reported as a stream.

type volumeStatus struct {
	Muted   bool    `json:"muted"`
	Percent float32 `json:"percent"`
}

type host struct{}

type timestamp struct {
	Sec  int64 `json:"sec"`
	Usec int32 `json:"usec"`
}

func timestampNow() timestamp {
	now := time.Now()
	return timestamp{
		Sec:  now.Unix(),
		Usec: int32(now.Nanosecond() / 1000),
	}
}

type clientConfig struct {
	Name     string       `json:"name"`
	Instance int          `json:"instance"`
	Latency  int          `json:"latency"`
	Volume   volumeStatus `json:"volume"`
}

type meta struct {
	Name     string `json:"name"`
	Protocol int    `json:"protocolVersion"`
	Version  string `json:"version"`
}

func defaultMeta() meta {
	return meta{Name: serverName, Protocol: protocolVersion, Version: serverVersion}
}

type clientStatus struct {
	ID        string       `json:"id"`
	Connected bool         `json:"connected"`
	Host      host         `json:"host"`
	LastSeen  timestamp    `json:"lastSeen"`
	Config    clientConfig `json:"config"`
	Meta      meta         `json:"snapclient"`
}

func clientFromSink(name string, sink SinkState) clientStatus {
	return clientStatus{
		ID:        name,
		Connected: true,
		LastSeen:  timestampNow(),
		Config: clientConfig{
			Name: name,
			Volume: volumeStatus{
				Muted:   sink.Muted(),
				Percent: float32(sink.Volume()) / 255 * 100,
			},
		},
		Meta: defaultMeta(),
	}
}

type groupStatus struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Muted    bool           `json:"muted"`
	Clients  []clientStatus `json:"clients"`
	StreamID string         `json:"stream_id"`
}

func groupFromSink(name string, sink SinkState) groupStatus {
	streamID, _ := sink.ActiveSource()
	return groupStatus{
		ID:       name,
		Name:     name,
		Muted:    sink.Muted(),
		Clients:  []clientStatus{clientFromSink(name, sink)},
		StreamID: streamID,
	}
}

type streamStatus struct {
	ID     string `json:"stream_id"`
	Status string `json:"status"`
	URI    string `json:"uri"`
}

func streamFromSource(name string, source SourceState) streamStatus {
	status := "idle"
	if source.IsActive() {
		status = "active"
	}
	return streamStatus{
		ID:     name,
		Status: status,
		URI:    source.URI(),
	}
}

type rpcVersion struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

type serverInner struct {
	Host host `json:"host"`
	Meta meta `json:"snapserver"`
}

type serverStatus struct {
	Server  serverInner    `json:"server"`
	Groups  []groupStatus  `json:"groups"`
	Streams []streamStatus `json:"streams"`
}
