package constants

// JobStatus is the canonical status for rows in extraction_jobs.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusQueued     JobStatus = "QUEUED"     // waiting for a worker slot
	JobStatusProcessing JobStatus = "PROCESSING" // claimed by exactly one worker
	JobStatusDone       JobStatus = "DONE"       // terminal success
	JobStatusFailed     JobStatus = "FAILED"     // terminal failure
)

// IsTerminal reports whether the status can no longer change.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// FileStatus is the lifecycle of an uploaded artifact.
type FileStatus string

const (
	FileStatusPending    FileStatus = "PENDING"
	FileStatusProcessing FileStatus = "PROCESSING"
	FileStatusReady      FileStatus = "READY"
	FileStatusFailed     FileStatus = "FAILED"
)

// PartStatus tracks one sheet chunk (and the per-sheet aggregate).
type PartStatus string

const (
	PartStatusPending PartStatus = "PENDING"
	PartStatusReady   PartStatus = "READY"
	PartStatusFailed  PartStatus = "FAILED"
)

// ProjectStatus is derived from the project's jobs, never stored as
// independent truth.
type ProjectStatus string

const (
	ProjectStatusAnalyzing ProjectStatus = "ANALYZING"
	ProjectStatusFinalized ProjectStatus = "FINALIZED"
)
