package pipeline

import "time"

// Job is one unit of transcoding work: a path the watcher saw appear.
//
// Jobs exist only in memory. A job that fails is final; nothing records
// it beyond its log lines.
type Job struct {
	// ID correlates the job's log lines from enqueue to completion.
	ID string

	// SourcePath is the created path exactly as the watcher reported it.
	// It may point at a directory or at something that no longer exists;
	// the transcode step finds that out.
	SourcePath string

	// EnqueuedAt is when the queue accepted the job.
	EnqueuedAt time.Time
}
