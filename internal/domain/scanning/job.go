package scanning

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/scanguard/pkg/common/timeutil"
)

// Job is one directory-scan run. It is mutated only by the run that owns it.
type Job struct {
	jobID         uuid.UUID
	directory     string
	mode          ScanMode
	status        JobStatus
	filesScanned  int
	filesInfected int
	timeline      *Timeline
}

// NewJob creates an in-progress Job for directory.
func NewJob(directory string, mode ScanMode, tp timeutil.Provider) *Job {
	return &Job{
		jobID:     uuid.New(),
		directory: directory,
		mode:      mode,
		status:    JobStatusInProgress,
		timeline:  NewTimeline(tp),
	}
}

// ReconstructJob creates a Job instance from stored fields, bypassing creation invariants.
// This should only be used by repositories when loading from the DB.
func ReconstructJob(
	jobID uuid.UUID,
	directory string,
	mode ScanMode,
	status JobStatus,
	filesScanned, filesInfected int,
	timeline *Timeline,
) *Job {
	return &Job{
		jobID:         jobID,
		directory:     directory,
		mode:          mode,
		status:        status,
		filesScanned:  filesScanned,
		filesInfected: filesInfected,
		timeline:      timeline,
	}
}

// JobID returns the unique identifier for this scan job.
func (j *Job) JobID() uuid.UUID { return j.jobID }

// Directory returns the root of the walk.
func (j *Job) Directory() string { return j.directory }

// Mode returns the requested scan mode.
func (j *Job) Mode() ScanMode { return j.mode }

// Status returns the current execution status of the scan job.
func (j *Job) Status() JobStatus { return j.status }

// FilesScanned returns the number of files that produced a record.
func (j *Job) FilesScanned() int { return j.filesScanned }

// FilesInfected returns the number of files successfully quarantined.
func (j *Job) FilesInfected() int { return j.filesInfected }

// StartTime returns when this scan job was created.
func (j *Job) StartTime() time.Time { return j.timeline.StartedAt() }

// EndTime returns when this scan job was completed.
// A job only has an end time once it is completed.
func (j *Job) EndTime() (time.Time, bool) {
	if j.status == JobStatusCompleted {
		return j.timeline.CompletedAt(), true
	}
	return time.Time{}, false
}

// LastUpdateTime returns when this job's state was last modified.
func (j *Job) LastUpdateTime() time.Time { return j.timeline.LastUpdate() }

// GetTimeline provides access to the job's timeline information.
func (j *Job) GetTimeline() *Timeline { return j.timeline }

// RecordFileScanned increments the scanned counter.
func (j *Job) RecordFileScanned() error {
	if j.status != JobStatusInProgress {
		return fmt.Errorf("cannot record file: job %s is %s", j.jobID, j.status)
	}
	j.filesScanned++
	j.timeline.UpdateLastUpdate()
	return nil
}

// RecordFileInfected increments the infected counter.
func (j *Job) RecordFileInfected() error {
	if j.status != JobStatusInProgress {
		return fmt.Errorf("cannot record infection: job %s is %s", j.jobID, j.status)
	}
	j.filesInfected++
	j.timeline.UpdateLastUpdate()
	return nil
}

// Complete freezes the counters and stamps the completion time.
func (j *Job) Complete() error { return j.UpdateStatus(JobStatusCompleted) }

// UpdateStatus changes the job's status after validating the transition.
func (j *Job) UpdateStatus(newStatus JobStatus) error {
	if err := j.status.ValidateTransition(newStatus); err != nil {
		return err
	}

	if newStatus == JobStatusCompleted {
		j.timeline.MarkCompleted()
	}

	j.status = newStatus
	return nil
}
