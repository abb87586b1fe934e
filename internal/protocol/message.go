// Package protocol defines the JSON envelope exchanged over the websocket.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/irvifa/collaborative-editor/internal/document"
)

// Message types. TypeSync is sent by a client to ask for a fresh initial
// snapshot.
const (
	TypeInitial = "initial"
	TypeEdit    = "edit"
	TypeReject  = "reject"
	TypeSync    = "sync"
)

var (
	// ErrDecode indicates a frame that is not a well-formed envelope.
	ErrDecode = errors.New("malformed message")

	// ErrUnknownType indicates a well-formed envelope with an unrecognized type.
	ErrUnknownType = errors.New("unknown message type")
)

// DecodeError wraps a failure to decode an inbound frame.
type DecodeError struct {
	Type string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("decode: %v", e.Err)
	}
	return fmt.Sprintf("decode %q: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() []error { return []error{ErrDecode, e.Err} }

// Envelope is the union of every message shape. Only the fields relevant to
// Type are populated.
type Envelope struct {
	Type    string         `json:"type"`
	Content *string        `json:"content,omitempty"`
	Version *uint64        `json:"version,omitempty"`
	Edit    *document.Edit `json:"edit,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	Message string         `json:"message,omitempty"`
}

// Initial carries the full document to a newly connected client.
type Initial struct {
	Content string
	Version uint64
}

// Reject tells the sender its edit was dropped and carries a fresh snapshot
// to resync from. Edit is the rejected edit as the client sent it.
type Reject struct {
	Reason  string
	Message string
	Edit    *document.Edit
	Content string
	Version uint64
}

// EncodeInitial encodes an initial sync message.
func EncodeInitial(snap document.Snapshot) ([]byte, error) {
	return json.Marshal(Envelope{
		Type:    TypeInitial,
		Content: &snap.Content,
		Version: &snap.Version,
	})
}

// EncodeEdit encodes an edit notification.
func EncodeEdit(e document.Edit) ([]byte, error) {
	return json.Marshal(Envelope{Type: TypeEdit, Edit: &e})
}

// EncodeReject encodes the rejection of e for err together with the snapshot
// the client should resync to.
func EncodeReject(err error, e document.Edit, snap document.Snapshot) ([]byte, error) {
	return json.Marshal(Envelope{
		Type:    TypeReject,
		Reason:  document.Reason(err),
		Message: err.Error(),
		Edit:    &e,
		Content: &snap.Content,
		Version: &snap.Version,
	})
}

// EncodeSync encodes a request for a fresh initial snapshot.
func EncodeSync() ([]byte, error) {
	return json.Marshal(Envelope{Type: TypeSync})
}

// Decode parses a frame into an envelope and validates the fields its type
// requires. Unknown types return ErrUnknownType together with the envelope.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &DecodeError{Err: err}
	}

	switch env.Type {
	case TypeEdit:
		if env.Edit == nil {
			return nil, &DecodeError{Type: env.Type, Err: errors.New("missing edit")}
		}
		if env.Edit.IsEmpty() {
			return nil, &DecodeError{Type: env.Type, Err: document.ErrEmptyEdit}
		}
	case TypeInitial:
		if env.Content == nil || env.Version == nil {
			return nil, &DecodeError{Type: env.Type, Err: errors.New("missing content or version")}
		}
	case TypeReject:
		if env.Version == nil {
			return nil, &DecodeError{Type: env.Type, Err: errors.New("missing version")}
		}
	case TypeSync:
	default:
		return &env, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	return &env, nil
}

// Initial returns the initial payload of an envelope of TypeInitial.
func (e *Envelope) Initial() Initial {
	var out Initial
	if e.Content != nil {
		out.Content = *e.Content
	}
	if e.Version != nil {
		out.Version = *e.Version
	}
	return out
}

// Reject returns the reject payload of an envelope of TypeReject.
func (e *Envelope) Reject() Reject {
	out := Reject{Reason: e.Reason, Message: e.Message, Edit: e.Edit}
	if e.Content != nil {
		out.Content = *e.Content
	}
	if e.Version != nil {
		out.Version = *e.Version
	}
	return out
}
