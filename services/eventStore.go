package services

import (
	"context"
	"log"
	"strings"
	"time"

	"tracker/apperrors"
	"tracker/models/tracking"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventInput is one raw interaction event as received from a caller.
type EventInput struct {
	Eid   string              `json:"eid"`
	Edata *tracking.EventData `json:"edata"`
}

// BatchFailure records an element of AppendBatch that was not stored.
type BatchFailure struct {
	Index int    `json:"index"`
	Eid   string `json:"eid"`
	Error string `json:"error"`
}

// EventStore is the append-only log of content interaction events.
type EventStore struct {
	DB *gorm.DB
}

func NewEventStore(db *gorm.DB) *EventStore {
	return &EventStore{DB: db}
}

// Append stores one event against trackingID.
func (s *EventStore) Append(ctx context.Context, trackingID, userID string, in EventInput) (*tracking.ContentTrackingDetail, error) {
	detail, err := BuildDetail(trackingID, userID, in)
	if err != nil {
		return nil, err
	}
	if err := s.DB.WithContext(ctx).Create(detail).Error; err != nil {
		return nil, apperrors.NewDatabaseError("failed to append tracking detail", err)
	}
	return detail, nil
}

// AppendBatch stores each event independently. A failing element is logged
// and reported back; it never undoes the siblings that were stored.
func (s *EventStore) AppendBatch(ctx context.Context, trackingID, userID string, events []EventInput) ([]tracking.ContentTrackingDetail, []BatchFailure) {
	appended := make([]tracking.ContentTrackingDetail, 0, len(events))
	var failures []BatchFailure
	for i, in := range events {
		detail, err := s.Append(ctx, trackingID, userID, in)
		if err != nil {
			log.Printf("[event-store] tracking %s: event %d (%s) not stored: %v", trackingID, i, in.Eid, err)
			failures = append(failures, BatchFailure{Index: i, Eid: in.Eid, Error: err.Error()})
			continue
		}
		appended = append(appended, *detail)
	}
	return appended, failures
}

// ListDetails returns the events of every given record, keyed by tracking id
// and ordered for replay.
func (s *EventStore) ListDetails(ctx context.Context, trackingIDs []string) (map[string][]tracking.ContentTrackingDetail, error) {
	out := make(map[string][]tracking.ContentTrackingDetail, len(trackingIDs))
	if len(trackingIDs) == 0 {
		return out, nil
	}

	var details []tracking.ContentTrackingDetail
	if err := s.DB.WithContext(ctx).
		Where("content_tracking_id IN ?", trackingIDs).
		Order("created_on asc").
		Order("id asc").
		Find(&details).Error; err != nil {
		return nil, apperrors.NewDatabaseError("failed to load tracking details", err)
	}
	for _, d := range details {
		out[d.ContentTrackingID] = append(out[d.ContentTrackingID], d)
	}
	return out, nil
}

// DetailsSince returns the events of one record created at or after since.
func (s *EventStore) DetailsSince(ctx context.Context, trackingID string, since time.Time) ([]tracking.ContentTrackingDetail, error) {
	var details []tracking.ContentTrackingDetail
	if err := s.DB.WithContext(ctx).
		Where("content_tracking_id = ? AND created_on >= ?", trackingID, since).
		Order("created_on asc").
		Order("id asc").
		Find(&details).Error; err != nil {
		return nil, apperrors.NewDatabaseError("failed to load recent tracking details", err)
	}
	return details, nil
}

// BuildDetail extracts the stored columns from an event. Missing edata fields
// default to empty strings or null; progress is summary[0].progress.
func BuildDetail(trackingID, userID string, in EventInput) (*tracking.ContentTrackingDetail, error) {
	eid := strings.TrimSpace(in.Eid)
	if eid == "" {
		return nil, apperrors.NewValidationError(apperrors.CodeInvalidEventData, "eid is required")
	}
	if in.Edata == nil {
		return nil, apperrors.NewValidationError(apperrors.CodeInvalidEventData, "edata is required")
	}

	edata := *in.Edata
	detail := &tracking.ContentTrackingDetail{
		ContentTrackingID: trackingID,
		UserID:            userID,
		Eid:               eid,
		Edata:             datatypes.NewJSONType(edata),
		Duration:          edata.Duration,
		Mode:              edata.Mode,
		PageID:            edata.PageID,
		Type:              edata.Type,
		Subtype:           edata.Subtype,
	}
	if len(edata.Summary) > 0 {
		detail.Summary = datatypes.JSONSlice[tracking.SummaryItem](edata.Summary)
		detail.Progress = edata.Summary[0].Progress
	}
	return detail, nil
}
