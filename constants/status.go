package constants

// JobStatus is the canonical status for rows in extract_job.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusQueued    JobStatus = "QUEUED"    // accepted by ingestion
	JobStatusRunning   JobStatus = "RUNNING"   // in progress
	JobStatusOCROK     JobStatus = "OCR_OK"    // text extracted
	JobStatusExtracted JobStatus = "EXTRACTED" // record persisted
	JobStatusFailed    JobStatus = "FAILED"    // terminal failure
)
