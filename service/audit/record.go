package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/viant/warden/model/request"
)

// Event is an audit record event type.
type Event string

const (
	EventCreated          Event = "created"
	EventAwaitingDecision Event = "awaiting_decision"
	EventAutoApproved     Event = "auto_approved"
	EventApproved         Event = "approved"
	EventDenied           Event = "denied"
	EventExpired          Event = "expired"
	EventExecutionStarted Event = "execution_started"
	EventExecuted         Event = "executed"
	EventFailed           Event = "failed"
)

var eventStatus = map[Event]request.Status{
	EventCreated:          request.StatusPending,
	EventAwaitingDecision: request.StatusPending,
	EventAutoApproved:     request.StatusAutoApproved,
	EventApproved:         request.StatusApproved,
	EventDenied:           request.StatusDenied,
	EventExpired:          request.StatusExpired,
	EventExecutionStarted: request.StatusExecuting,
	EventExecuted:         request.StatusExecuted,
	EventFailed:           request.StatusFailed,
}

// Status returns the status an event moves a request to.
func (e Event) Status() (request.Status, bool) {
	ret, ok := eventStatus[e]
	return ret, ok
}

// EventFor returns the event recording a transition into status.
func EventFor(status request.Status) Event {
	switch status {
	case request.StatusPending:
		return EventCreated
	case request.StatusExecuting:
		return EventExecutionStarted
	}
	return Event(status)
}

// Detail carries structured record data.
type Detail struct {
	Kind       string   `json:"kind,omitempty"`
	Risk       string   `json:"risk,omitempty"`
	Permission string   `json:"permission,omitempty"`
	RuleID     string   `json:"ruleId,omitempty"`
	Verdict    string   `json:"verdict,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Conditions []string `json:"conditions,omitempty"`
	Result     string   `json:"result,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Record is an append-only audit entry keyed by (RequestID, Seq).
type Record struct {
	RequestID string         `json:"requestId"`
	Seq       int            `json:"seq"`
	Event     Event          `json:"event"`
	From      request.Status `json:"from,omitempty"`
	To        request.Status `json:"to"`
	Actor     string         `json:"actor"`
	Message   string         `json:"message"`
	Detail    *Detail        `json:"detail,omitempty"`
	Time      time.Time      `json:"time"`
	PrevHash  string         `json:"prevHash,omitempty"`
	Hash      string         `json:"hash"`
}

// Digest returns the SHA-256 of the record content, excluding Hash.
func (r *Record) Digest() string {
	content := *r
	content.Hash = ""
	content.Time = r.Time.UTC()
	data, _ := json.Marshal(&content)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Link assigns Seq, PrevHash and Hash so that r follows last (nil for the first record).
func Link(r *Record, last *Record) {
	r.Time = r.Time.UTC()
	r.Seq = 1
	r.PrevHash = ""
	if last != nil {
		r.Seq = last.Seq + 1
		r.PrevHash = last.Hash
	}
	r.Hash = r.Digest()
}

// Clone returns a copy of the record.
func (r *Record) Clone() *Record {
	ret := *r
	if r.Detail != nil {
		detail := *r.Detail
		detail.Conditions = append([]string(nil), r.Detail.Conditions...)
		ret.Detail = &detail
	}
	return &ret
}
