package ir

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedEnvelope is returned when an envelope cannot be decoded into a message.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope is the JSON shape used on the wire in both directions.
//
// ID is absent on PERSIST. Binary snapshots are carried as base64 strings.
type Envelope struct {
	ID      *int64          `json:"id,omitempty"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
	Kind    ErrorKind       `json:"kind,omitempty"`
}

type logPayload struct {
	Module string `json:"module"`
	Query  string `json:"query"`
	Result string `json:"result"`
}

type getPayload struct {
	Module string `json:"module,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// EncodeMessage converts a message into its wire envelope.
func EncodeMessage(m Message) (Envelope, error) {
	switch msg := m.(type) {
	case InitRequest:
		return withPayload(idPtr(msg.ID), TypeInit, snapshotPayload(msg.Snapshot))
	case LogRequest:
		return withPayload(idPtr(msg.ID), TypeLog, logPayload{
			Module: msg.Module,
			Query:  msg.Query,
			Result: msg.Result,
		})
	case GetRequest:
		return withPayload(idPtr(msg.ID), TypeGet, getPayload{Module: msg.Module, Limit: msg.Limit})
	case UnknownRequest:
		return Envelope{ID: idPtr(msg.ID), Type: MessageType(msg.RawType)}, nil
	case MalformedRequest:
		return Envelope{}, fmt.Errorf("%w: %s", ErrMalformedEnvelope, msg.Reason)
	case Success:
		if msg.Entries == nil {
			return Envelope{ID: idPtr(msg.ID), Type: TypeSuccess}, nil
		}
		return withPayload(idPtr(msg.ID), TypeSuccess, msg.Entries)
	case Failure:
		return Envelope{ID: idPtr(msg.ID), Type: TypeError, Error: msg.Message, Kind: msg.Kind}, nil
	case Persist:
		return withPayload(nil, TypePersist, msg.Snapshot)
	case nil:
		return Envelope{}, fmt.Errorf("%w: nil message", ErrMalformedEnvelope)
	default:
		return Envelope{}, fmt.Errorf("%w: unsupported message %T", ErrMalformedEnvelope, m)
	}
}

// DecodeMessage converts a wire envelope into a typed message.
//
// Unrecognized types decode to UnknownRequest so that the worker can reject
// them explicitly. Correlated types without an id are rejected.
func DecodeMessage(env Envelope) (Message, error) {
	if env.Type == TypePersist {
		var snapshot []byte
		if err := decodePayload(env, &snapshot); err != nil {
			return nil, err
		}
		return Persist{Snapshot: snapshot}, nil
	}

	if env.ID == nil {
		return nil, fmt.Errorf("%w: %s message without id", ErrMalformedEnvelope, env.Type)
	}
	id := *env.ID

	switch env.Type {
	case TypeInit:
		var snapshot []byte
		if err := decodePayload(env, &snapshot); err != nil {
			return nil, err
		}
		return InitRequest{ID: id, Snapshot: snapshot}, nil

	case TypeLog:
		var p logPayload
		if len(env.Payload) == 0 {
			return nil, fmt.Errorf("%w: LOG without payload", ErrMalformedEnvelope)
		}
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return LogRequest{ID: id, Module: p.Module, Query: p.Query, Result: p.Result}, nil

	case TypeGet:
		var p getPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return GetRequest{ID: id, Module: p.Module, Limit: p.Limit}, nil

	case TypeSuccess:
		if len(env.Payload) == 0 {
			return Success{ID: id}, nil
		}
		entries := []LogEntry{}
		if err := decodePayload(env, &entries); err != nil {
			return nil, err
		}
		return Success{ID: id, Entries: entries}, nil

	case TypeError:
		kind := env.Kind
		if kind == "" {
			kind = KindEngine
		}
		return Failure{ID: id, Kind: kind, Message: env.Error}, nil

	default:
		return UnknownRequest{ID: id, RawType: string(env.Type)}, nil
	}
}

// DecodeRequest decodes an envelope that must hold a host→worker request.
func DecodeRequest(env Envelope) (Request, error) {
	msg, err := DecodeMessage(env)
	if err != nil {
		return nil, err
	}
	req, ok := msg.(Request)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a request", ErrMalformedEnvelope, env.Type)
	}
	return req, nil
}

func withPayload(id *int64, t MessageType, payload any) (Envelope, error) {
	env := Envelope{ID: id, Type: t}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	env.Payload = raw
	return env, nil
}

// snapshotPayload keeps an absent snapshot absent on the wire
// instead of encoding it as null.
func snapshotPayload(snapshot []byte) any {
	if len(snapshot) == 0 {
		return nil
	}
	return snapshot
}

func decodePayload(env Envelope, dst any) error {
	if len(env.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformedEnvelope, env.Type, err)
	}
	return nil
}

func idPtr(id int64) *int64 {
	return &id
}
