package ports

import "context"

// ScanJob asks a worker to run the pipeline for one scan.
type ScanJob struct {
	ScanID string
}

// JobQueue accepts scan jobs for background execution. Submit must not block
// on the job itself.
type JobQueue interface {
	Submit(job ScanJob) error
}

// ScanProcessor runs the pipeline for a scan id.
type ScanProcessor interface {
	Process(ctx context.Context, scanID string) error
}
