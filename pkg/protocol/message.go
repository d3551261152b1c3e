// Package protocol decodes the messages the stream server pushes over a
// WebSocket connection. Every inbound frame is decoded exactly once, at the
// boundary, into a tagged Message so the rest of the client can switch on
// Message.Kind exhaustively.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Application close codes used as an out-of-band signal channel. 1000
// (normal closure) suppresses reconnection; the 4xxx codes mark
// client-initiated closures the reconnection policy treats specially.
const (
	CloseStale           = 4000 // liveness monitor closed a silent connection
	CloseRefreshRequired = 4001 // local state was discarded, reconnect fresh
)

// Kind discriminates the server message union.
type Kind int

const (
	KindPatch Kind = iota
	KindFinished
	KindRefreshRequired
)

func (k Kind) String() string {
	switch k {
	case KindPatch:
		return "patch"
	case KindFinished:
		return "finished"
	case KindRefreshRequired:
		return "refresh_required"
	default:
		return "unknown"
	}
}

// Refresh carries the server's reason for a refresh_required signal.
type Refresh struct {
	Reason string `json:"reason"`
}

// Message is one decoded server message.
type Message struct {
	Kind    Kind
	Patch   []json.RawMessage // ordered RFC6902 operations, KindPatch only
	Refresh Refresh           // KindRefreshRequired only
}

type envelope struct {
	JSONPatch       []json.RawMessage `json:"JsonPatch"`
	Finished        *bool             `json:"finished"`
	RefreshRequired *Refresh          `json:"refresh_required"`
}

// Decode parses a raw frame into a Message. Exactly one of the known tags
// must be present; anything else is a protocol error.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("decode stream message: %w", err)
	}

	switch {
	case env.Finished != nil:
		if !*env.Finished {
			return Message{}, fmt.Errorf("decode stream message: finished=false is not a valid signal")
		}
		return Message{Kind: KindFinished}, nil
	case env.RefreshRequired != nil:
		return Message{Kind: KindRefreshRequired, Refresh: *env.RefreshRequired}, nil
	case env.JSONPatch != nil:
		return Message{Kind: KindPatch, Patch: env.JSONPatch}, nil
	default:
		return Message{}, fmt.Errorf("decode stream message: no recognized tag in %.64s", data)
	}
}
