package confirm

import (
	"encoding/json"
	"time"
)

// OutcomeKind names a terminal transition.
type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	OutcomeTimeout OutcomeKind = "timeout"
	OutcomeClosed  OutcomeKind = "closed"
)

// Outcome is the history record written for every terminal transition.
type Outcome struct {
	Seq          int64           `json:"seq"`
	Identifier   string          `json:"identifier"`
	Cycle        string          `json:"cycle"`
	Kind         OutcomeKind     `json:"kind"`
	Attempt      int             `json:"attempt"`
	Target       string          `json:"target,omitempty"`
	ForObjectRef json.RawMessage `json:"for_object_ref,omitempty"`
	ElapsedMs    int64           `json:"elapsed_ms"`
	RecordedAt   time.Time       `json:"recorded_at"`
}
