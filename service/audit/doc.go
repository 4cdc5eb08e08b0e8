// Package audit defines the append-only, hash-chained audit trail of operation
// requests. Records are keyed by request id and a gap-free sequence; each
// record hashes its content together with the previous record hash.
package audit
