package phototag

import "encoding/json"

// Record is a sealed interface for the records recognized in an upload
// response stream. Lines that match neither shape produce no Record.
type Record interface {
	record()
}

// ProgressRecord reports intermediate batch progress.
type ProgressRecord struct {
	Progress ProgressEvent
}

func (ProgressRecord) record() {}

// ResultRecord is the terminal record carrying the per-image results.
// Result is the raw JSON of the record's "result" field.
type ResultRecord struct {
	Result json.RawMessage
}

func (ResultRecord) record() {}

// Interface compliance checks.
var (
	_ Record = ProgressRecord{}
	_ Record = ResultRecord{}
)
