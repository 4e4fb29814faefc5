// Package wire defines the messages exchanged between peers and their
// newline-delimited JSON encoding. The message set is closed: unknown
// types and unexpected or missing fields are decode errors, never
// silently ignored.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/gridline/gridline/internal/game"
)

// Delimiter terminates every encoded frame. JSON string escaping
// guarantees the byte never occurs inside a payload.
const Delimiter = '\n'

// Frame type discriminators. TypeClose is reserved for the transport
// itself and is never delivered to message handlers.
const (
	TypeAssignRole    = "assign_role"
	TypeAssignRoleAck = "assign_role_ack"
	TypeMoveRequest   = "move_request"
	TypeStateUpdate   = "state_update"
	TypeStartTurn     = "start_turn"
	TypeInvalidMove   = "invalid_move"
	TypeClose         = "_close"
)

// Message is one protocol frame payload.
type Message interface {
	Type() string
}

// AssignRole is sent by the authoritative peer to hand the relay peer
// its symbol. SessionID ties both peers' logs to one game.
type AssignRole struct {
	Role      game.Symbol `json:"role"`
	SessionID string      `json:"session_id"`
}

func (AssignRole) Type() string { return TypeAssignRole }

// AssignRoleAck confirms the relay peer adopted the assigned symbol.
type AssignRoleAck struct {
	SessionID string `json:"session_id"`
}

func (AssignRoleAck) Type() string { return TypeAssignRoleAck }

// MoveRequest carries a relay-side move to the authoritative engine.
type MoveRequest struct {
	Player game.Symbol `json:"player"`
	Row    int         `json:"row"`
	Col    int         `json:"col"`
}

func (MoveRequest) Type() string { return TypeMoveRequest }

// StateUpdate mirrors an authoritative board mutation.
type StateUpdate struct {
	Board         game.Board  `json:"board"`
	CurrentPlayer game.Symbol `json:"current_player"`
	Winner        game.Symbol `json:"winner"`
	Over          bool        `json:"over"`
}

func (StateUpdate) Type() string { return TypeStateUpdate }

// StartTurn tells the relay peer whose turn begins.
type StartTurn struct {
	Board         game.Board  `json:"board"`
	CurrentPlayer game.Symbol `json:"current_player"`
}

func (StartTurn) Type() string { return TypeStartTurn }

// InvalidMove reports a rejected relay-side move back to its origin.
type InvalidMove struct {
	Player game.Symbol `json:"player"`
	Row    int         `json:"row"`
	Col    int         `json:"col"`
	Reason string      `json:"reason"`
}

func (InvalidMove) Type() string { return TypeInvalidMove }

// Close is the reserved control frame requesting an orderly shutdown.
type Close struct{}

func (Close) Type() string { return TypeClose }

// Marshal encodes msg as a delimited JSON object with its type
// discriminator injected.
func Marshal(msg Message) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Type(), err)
	}
	var fields map[string]any
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Type(), err)
	}
	if fields == nil {
		fields = map[string]any{}
	}
	fields["type"] = msg.Type()
	out, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Type(), err)
	}
	return append(out, Delimiter), nil
}

// Unmarshal decodes one frame (without its delimiter) into its typed
// message. Any deviation from the closed message set is an error:
// non-object payloads, a missing or non-string type, an unknown type,
// unknown fields, or absent required fields.
func Unmarshal(line []byte) (Message, error) {
	var fields map[string]any
	if err := json.Unmarshal(line, &fields); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	t, ok := fields["type"].(string)
	if !ok {
		return nil, fmt.Errorf("malformed frame: missing type discriminator")
	}
	delete(fields, "type")
	msg, err := newMessage(t)
	if err != nil {
		return nil, err
	}
	if err := decodeStrict(fields, msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", t, err)
	}
	return deref(msg), nil
}

func newMessage(t string) (Message, error) {
	switch t {
	case TypeAssignRole:
		return &AssignRole{}, nil
	case TypeAssignRoleAck:
		return &AssignRoleAck{}, nil
	case TypeMoveRequest:
		return &MoveRequest{}, nil
	case TypeStateUpdate:
		return &StateUpdate{}, nil
	case TypeStartTurn:
		return &StartTurn{}, nil
	case TypeInvalidMove:
		return &InvalidMove{}, nil
	case TypeClose:
		return &Close{}, nil
	default:
		return nil, fmt.Errorf("unknown frame type %q", t)
	}
}

// decodeStrict maps loose JSON fields onto the typed message, rejecting
// unused and unset fields so protocol drift surfaces as an error.
func decodeStrict(fields map[string]any, out Message) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		TagName:     "json",
		ErrorUnused: true,
		ErrorUnset:  true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(fields)
}

func deref(msg Message) Message {
	switch m := msg.(type) {
	case *AssignRole:
		return *m
	case *AssignRoleAck:
		return *m
	case *MoveRequest:
		return *m
	case *StateUpdate:
		return *m
	case *StartTurn:
		return *m
	case *InvalidMove:
		return *m
	case *Close:
		return *m
	default:
		return msg
	}
}
