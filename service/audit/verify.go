package audit

import (
	"fmt"

	"github.com/viant/warden/model/request"
)

// Verify checks that records form one gap-free, untampered chain.
func Verify(records []*Record) error {
	var last *Record
	for i, record := range records {
		if record == nil {
			return fmt.Errorf("record %d was nil", i)
		}
		if last != nil && record.RequestID != last.RequestID {
			return fmt.Errorf("record %d: request id %v differs from %v", i, record.RequestID, last.RequestID)
		}
		if record.Seq != i+1 {
			return fmt.Errorf("record %d: expected seq %d, but had %d", i, i+1, record.Seq)
		}
		expectPrev := ""
		if last != nil {
			expectPrev = last.Hash
		}
		if record.PrevHash != expectPrev {
			return fmt.Errorf("record %v/%d: broken chain", record.RequestID, record.Seq)
		}
		if digest := record.Digest(); record.Hash != digest {
			return fmt.Errorf("record %v/%d: hash mismatch", record.RequestID, record.Seq)
		}
		last = record
	}
	return nil
}

// Replay reconstructs the request status from its records, validating every edge.
func Replay(records []*Record) (request.Status, error) {
	var status request.Status
	for _, record := range records {
		to, ok := record.Event.Status()
		if !ok {
			return status, fmt.Errorf("record %v/%d: unknown event %q", record.RequestID, record.Seq, record.Event)
		}
		if record.To != to {
			return status, fmt.Errorf("record %v/%d: event %v cannot move to %v", record.RequestID, record.Seq, record.Event, record.To)
		}
		if record.From != status {
			return status, fmt.Errorf("record %v/%d: expected from %q, but had %q", record.RequestID, record.Seq, status, record.From)
		}
		if record.Event == EventAwaitingDecision {
			if status != request.StatusPending {
				return status, fmt.Errorf("record %v/%d: awaiting decision outside pending", record.RequestID, record.Seq)
			}
			continue
		}
		if !request.CanTransition(status, to) {
			return status, fmt.Errorf("record %v/%d: illegal transition %q -> %q", record.RequestID, record.Seq, status, to)
		}
		status = to
	}
	return status, nil
}
