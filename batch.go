package phototag

import "time"

// Batch is a completed upload as persisted on disk.
type Batch struct {
	ID        string
	CreatedAt time.Time
	Files     []string // local paths, in upload order
	Result    BatchResult
}
