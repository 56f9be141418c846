package ir

// MessageType is the envelope "type" discriminator.
type MessageType string

const (
	// TypeInit asks the worker to create or restore its engine.
	TypeInit MessageType = "INIT"
	// TypeLog appends one entry.
	TypeLog MessageType = "LOG"
	// TypeGet reads entries, newest first.
	TypeGet MessageType = "GET"
	// TypeSuccess acknowledges a request.
	TypeSuccess MessageType = "SUCCESS"
	// TypeError reports a failed request.
	TypeError MessageType = "ERROR"
	// TypePersist carries a snapshot after a write. It is never correlated.
	TypePersist MessageType = "PERSIST"
)

// ErrorKind classifies an ERROR response.
type ErrorKind string

const (
	// KindNotInitialized means the request arrived before INIT completed.
	KindNotInitialized ErrorKind = "NotInitializedError"
	// KindInitialization means the snapshot could not be restored.
	KindInitialization ErrorKind = "InitializationError"
	// KindEngine covers every other failure.
	KindEngine ErrorKind = "EngineError"
)

// Message is implemented by every request, response and notification.
// The set is closed: only types in this package implement it.
type Message interface {
	Type() MessageType
	messageMarker()
}

// Request is a host→worker message. Every request carries a caller-assigned id.
type Request interface {
	Message
	RequestID() int64
}

// Response is a worker→host message correlated to a request by id.
type Response interface {
	Message
	ResponseID() int64
}

// InitRequest creates the engine, fresh when Snapshot is empty,
// otherwise restored from Snapshot.
type InitRequest struct {
	ID       int64
	Snapshot []byte
}

// LogRequest appends one entry.
type LogRequest struct {
	ID     int64
	Module string
	Query  string
	Result string
}

// GetRequest reads entries. An empty Module matches every row;
// Limit <= 0 means no limit.
type GetRequest struct {
	ID     int64
	Module string
	Limit  int
}

// UnknownRequest is a request whose type the worker does not recognize.
// The worker answers it with an EngineError instead of dropping it.
type UnknownRequest struct {
	ID      int64
	RawType string
}

// MalformedRequest stands in for a request the host could not decode.
// Queuing it keeps the ERROR in order with earlier responses; the worker
// answers it with an EngineError carrying Reason.
type MalformedRequest struct {
	ID      int64
	RawType string
	Reason  string
}

// Success acknowledges a request. Entries is non-nil only for GET.
type Success struct {
	ID      int64
	Entries []LogEntry
}

// Failure reports a failed request as a kind plus a human-readable message.
type Failure struct {
	ID      int64
	Kind    ErrorKind
	Message string
}

// Persist carries a full database snapshot emitted after a write.
type Persist struct {
	Snapshot []byte
}

func (InitRequest) Type() MessageType { return TypeInit }
func (LogRequest) Type() MessageType  { return TypeLog }
func (GetRequest) Type() MessageType  { return TypeGet }
func (r UnknownRequest) Type() MessageType {
	return MessageType(r.RawType)
}
func (r MalformedRequest) Type() MessageType {
	return MessageType(r.RawType)
}
func (Success) Type() MessageType { return TypeSuccess }
func (Failure) Type() MessageType { return TypeError }
func (Persist) Type() MessageType { return TypePersist }

func (r InitRequest) RequestID() int64      { return r.ID }
func (r LogRequest) RequestID() int64       { return r.ID }
func (r GetRequest) RequestID() int64       { return r.ID }
func (r UnknownRequest) RequestID() int64   { return r.ID }
func (r MalformedRequest) RequestID() int64 { return r.ID }

func (s Success) ResponseID() int64 { return s.ID }
func (f Failure) ResponseID() int64 { return f.ID }

func (InitRequest) messageMarker()      {}
func (LogRequest) messageMarker()       {}
func (GetRequest) messageMarker()       {}
func (UnknownRequest) messageMarker()   {}
func (MalformedRequest) messageMarker() {}
func (Success) messageMarker()          {}
func (Failure) messageMarker()          {}
func (Persist) messageMarker()          {}
