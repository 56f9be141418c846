package harness

import "github.com/roach88/almanac/internal/ir"

// Trace directions.
const (
	DirSend = "send"
	DirRecv = "recv"
	DirHost = "host"
)

// TraceRestart marks a worker restart in the trace.
const TraceRestart = "RESTART"

// TraceEvent is one message crossing the worker boundary, or a host action.
type TraceEvent struct {
	Seq     int64         `json:"seq"`
	Dir     string        `json:"dir"`
	Type    string        `json:"type"`
	ID      *int64        `json:"id,omitempty"`
	Module  string        `json:"module,omitempty"`
	Query   string        `json:"query,omitempty"`
	Result  string        `json:"result,omitempty"`
	Limit   int           `json:"limit,omitempty"`
	Source  string        `json:"source,omitempty"`
	Kind    string        `json:"kind,omitempty"`
	Error   string        `json:"error,omitempty"`
	Count   *int          `json:"count,omitempty"`
	Entries []ir.LogEntry `json:"entries,omitempty"`
	Persist bool          `json:"snapshot,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every request, response and notification in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Final holds the entries of the final worker, newest first.
	// Nil if the final worker was never initialized.
	Final []ir.LogEntry `json:"final,omitempty"`

	seq int64
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) add(ev TraceEvent) {
	r.seq++
	ev.Seq = r.seq
	r.Trace = append(r.Trace, ev)
}

// AddSendTrace records a request sent to the worker.
func (r *Result) AddSendTrace(req ir.Request, source string) {
	id := req.RequestID()
	ev := TraceEvent{Dir: DirSend, Type: string(req.Type()), ID: &id, Source: source}
	switch q := req.(type) {
	case ir.LogRequest:
		ev.Module, ev.Query, ev.Result = q.Module, q.Query, q.Result
	case ir.GetRequest:
		ev.Module, ev.Limit = q.Module, q.Limit
	}
	r.add(ev)
}

// AddResponseTrace records a correlated response.
func (r *Result) AddResponseTrace(resp ir.Response) {
	id := resp.ResponseID()
	ev := TraceEvent{Dir: DirRecv, Type: string(resp.Type()), ID: &id}
	switch s := resp.(type) {
	case ir.Success:
		if s.Entries != nil {
			n := len(s.Entries)
			ev.Count = &n
			ev.Entries = s.Entries
		}
	case ir.Failure:
		ev.Kind, ev.Error = string(s.Kind), s.Message
	}
	r.add(ev)
}

// AddPersistTrace records a PERSIST notification.
func (r *Result) AddPersistTrace() {
	r.add(TraceEvent{Dir: DirRecv, Type: string(ir.TypePersist), Persist: true})
}

// AddHostTrace records a host-side action such as a restart.
func (r *Result) AddHostTrace(action string) {
	r.add(TraceEvent{Dir: DirHost, Type: action})
}
