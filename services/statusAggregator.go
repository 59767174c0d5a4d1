package services

import (
	"time"

	"tracker/models/tracking"
)

// Status is the replayed state of a tracking record.
type Status string

const (
	StatusNotStarted Status = "Not_Started"
	StatusInProgress Status = "In_Progress"
	StatusCompleted  Status = "Completed"
)

// Verdict is the outcome of replaying one record's events.
type Verdict struct {
	Status     Status  `json:"status"`
	Percentage float64 `json:"percentage"`
}

// ComputeStatus replays events, which must already be in creation order.
// START moves the record to In_Progress; END completes it and ends the replay,
// so a START stored after an END never reopens the record. A null progress
// counts as 0.
//
// TODO: confirm with product whether a START logged after END should reopen
// the record; the replay keeps "completed wins" until then.
func ComputeStatus(events []tracking.ContentTrackingDetail) Verdict {
	v := Verdict{Status: StatusNotStarted}
	for _, ev := range events {
		switch ev.Eid {
		case tracking.EidStart:
			v.Status = StatusInProgress
			v.Percentage = progressOf(ev)
		case tracking.EidEnd:
			v.Status = StatusCompleted
			v.Percentage = progressOf(ev)
			return v
		}
	}
	return v
}

func progressOf(ev tracking.ContentTrackingDetail) float64 {
	if ev.Progress == nil {
		return 0
	}
	return *ev.Progress
}

// ProgressRollup aggregates the verdicts of every record in a course or unit.
type ProgressRollup struct {
	CourseID       string     `json:"courseId"`
	UnitID         string     `json:"unitId,omitempty"`
	InProgress     int        `json:"in_progress"`
	Completed      int        `json:"completed"`
	InProgressList []string   `json:"in_progress_list"`
	CompletedList  []string   `json:"completed_list"`
	StartedOn      *time.Time `json:"started_on"`
}

// Rollup folds records, ordered by creation ascending, into counts and
// content id buckets. Records that were never started land in neither bucket.
func Rollup(records []tracking.ContentTracking, events map[string][]tracking.ContentTrackingDetail) ProgressRollup {
	r := ProgressRollup{
		InProgressList: []string{},
		CompletedList:  []string{},
	}
	for i, rec := range records {
		if i == 0 {
			started := rec.CreatedOn
			r.StartedOn = &started
		}
		switch ComputeStatus(events[rec.ContentTrackingID]).Status {
		case StatusInProgress:
			r.InProgress++
			r.InProgressList = append(r.InProgressList, rec.ContentID)
		case StatusCompleted:
			r.Completed++
			r.CompletedList = append(r.CompletedList, rec.ContentID)
		}
	}
	return r
}
