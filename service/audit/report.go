package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

var csvHeader = []string{"request_id", "seq", "time", "event", "from", "to", "actor", "message", "hash"}

// Export writes records as a JSON array or CSV table.
func Export(w io.Writer, records []*Record, format string) error {
	switch strings.ToLower(format) {
	case "", FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if records == nil {
			records = []*Record{}
		}
		return encoder.Encode(records)
	case FormatCSV:
		writer := csv.NewWriter(w)
		if err := writer.Write(csvHeader); err != nil {
			return err
		}
		for _, record := range records {
			row := []string{
				record.RequestID, strconv.Itoa(record.Seq), record.Time.UTC().Format(time.RFC3339Nano),
				string(record.Event), string(record.From), string(record.To), record.Actor, record.Message, record.Hash,
			}
			if err := writer.Write(row); err != nil {
				return err
			}
		}
		writer.Flush()
		return writer.Error()
	}
	return fmt.Errorf("unsupported export format: %v", format)
}

// Summary aggregates records.
type Summary struct {
	Total    int            `json:"total"`
	Requests int            `json:"requests"`
	ByEvent  map[Event]int  `json:"byEvent"`
	Actors   map[string]int `json:"actors"`
	First    time.Time      `json:"first,omitempty"`
	Last     time.Time      `json:"last,omitempty"`
}

// Count returns the number of records of event.
func (s *Summary) Count(event Event) int {
	return s.ByEvent[event]
}

// Summarize counts records per event and actor.
func Summarize(records []*Record) *Summary {
	ret := &Summary{ByEvent: map[Event]int{}, Actors: map[string]int{}}
	requests := map[string]bool{}
	for _, record := range records {
		ret.Total++
		ret.ByEvent[record.Event]++
		if record.Actor != "" {
			ret.Actors[record.Actor]++
		}
		requests[record.RequestID] = true
		if ret.First.IsZero() || record.Time.Before(ret.First) {
			ret.First = record.Time
		}
		if record.Time.After(ret.Last) {
			ret.Last = record.Time
		}
	}
	ret.Requests = len(requests)
	return ret
}
