package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"tracker/apperrors"
	"tracker/cache"
	"tracker/external"
	"tracker/models/tracking"
	"tracker/publisher"

	"gorm.io/gorm"
)

// RecentDetailWindow is how far back an update without an explicit delta
// looks for details to publish.
const RecentDetailWindow = 5 * time.Minute

// InProgressLimit caps the in-progress discovery list.
const InProgressLimit = 10

// EventPublisher is the fire-and-forget side of publisher.Publisher.
type EventPublisher interface {
	PublishAsync(ev publisher.Event)
}

// ContentMetadataSource resolves classification fields the caller left out.
type ContentMetadataSource interface {
	ContentMetadata(ctx context.Context, contentID string) (*external.ContentMetadata, error)
}

// CreateContentRequest is the body of a content tracking submission.
type CreateContentRequest struct {
	UserID      string       `json:"userId" validate:"required,uuid"`
	CourseID    string       `json:"courseId" validate:"required"`
	UnitID      string       `json:"unitId"`
	ContentID   string       `json:"contentId" validate:"required"`
	ContentType string       `json:"contentType"`
	ContentMime string       `json:"contentMime"`
	Events      []EventInput `json:"detailsObject"`
}

// CreateContentResult reports what a submission stored.
type CreateContentResult struct {
	ContentTrackingID string         `json:"contentTrackingId"`
	Created           bool           `json:"created"`
	Appended          int            `json:"appended"`
	Failed            []BatchFailure `json:"failed,omitempty"`
}

// UpdateContentRequest patches the classification fields of a record.
type UpdateContentRequest struct {
	ContentType *string `json:"contentType"`
	ContentMime *string `json:"contentMime"`
}

// ContentStatusRequest selects the records whose verdicts are returned.
type ContentStatusRequest struct {
	UserIDs    []string `json:"userId" validate:"required,min=1,dive,uuid"`
	CourseIDs  []string `json:"courseId" validate:"required,min=1,dive,required"`
	UnitIDs    []string `json:"unitId" validate:"omitempty,dive,required"`
	ContentIDs []string `json:"contentId" validate:"omitempty,dive,required"`
}

// CourseStatusRequest selects the (user, course) pairs to roll up.
type CourseStatusRequest struct {
	UserIDs   []string `json:"userId" validate:"required,min=1,dive,uuid"`
	CourseIDs []string `json:"courseId" validate:"required,min=1,dive,required"`
}

// UnitStatusRequest selects the (user, unit) pairs of one course to roll up.
type UnitStatusRequest struct {
	UserIDs  []string `json:"userId" validate:"required,min=1,dive,uuid"`
	CourseID string   `json:"courseId" validate:"required"`
	UnitIDs  []string `json:"unitId" validate:"required,min=1,dive,required"`
}

// ContentStatus is the verdict of one record.
type ContentStatus struct {
	ContentTrackingID string  `json:"contentTrackingId"`
	CourseID          string  `json:"courseId"`
	UnitID            string  `json:"unitId"`
	ContentID         string  `json:"contentId"`
	Status            Status  `json:"status"`
	Percentage        float64 `json:"percentage"`
}

type UserContentStatus struct {
	UserID  string          `json:"userId"`
	Content []ContentStatus `json:"content"`
}

type UserCourseStatus struct {
	UserID string           `json:"userId"`
	Course []ProgressRollup `json:"course"`
}

type UserUnitStatus struct {
	UserID string           `json:"userId"`
	Unit   []ProgressRollup `json:"unit"`
}

// ContentTrackingService implements the content tracking operations.
type ContentTrackingService struct {
	DB        *gorm.DB
	Resolver  *ContentResolver
	Events    *EventStore
	Query     *QueryEngine
	Cache     *cache.Cache
	Publisher EventPublisher
	Metadata  ContentMetadataSource

	now func() time.Time
}

// NewContentTrackingService wires the service. cache, pub and metadata may
// be nil.
func NewContentTrackingService(db *gorm.DB, c *cache.Cache, pub EventPublisher, metadata ContentMetadataSource) *ContentTrackingService {
	return &ContentTrackingService{
		DB:        db,
		Resolver:  NewContentResolver(db),
		Events:    NewEventStore(db),
		Query:     NewQueryEngine(ContentQuerySchema),
		Cache:     c,
		Publisher: pub,
		Metadata:  metadata,
		now:       time.Now,
	}
}

// Create resolves the record for the natural key and appends the submitted
// events to it. Events are stored best effort; the ones that failed are
// reported in the result.
func (s *ContentTrackingService) Create(ctx context.Context, req CreateContentRequest, tenantID string) (*CreateContentResult, error) {
	key := tracking.ContentNaturalKey{
		TenantID:  tenantID,
		UserID:    req.UserID,
		CourseID:  req.CourseID,
		UnitID:    req.UnitID,
		ContentID: req.ContentID,
	}
	if err := validateContentKey(key); err != nil {
		return nil, err
	}

	attrs := ContentAttributes{ContentType: req.ContentType, ContentMime: req.ContentMime}
	if attrs.ContentMime == "" && s.Metadata != nil {
		meta, err := s.Metadata.ContentMetadata(ctx, req.ContentID)
		if err != nil {
			return nil, err
		}
		attrs.ContentMime = meta.MimeType
		if attrs.ContentType == "" {
			attrs.ContentType = meta.ContentType
		}
	}

	id, created, err := s.Resolver.Resolve(ctx, key, attrs)
	if err != nil {
		return nil, err
	}

	appended, failed := s.Events.AppendBatch(ctx, id, req.UserID, req.Events)

	if !created {
		if err := s.DB.WithContext(ctx).Model(&tracking.ContentTracking{}).
			Where("content_tracking_id = ?", id).
			Update("last_access_on", s.now()).Error; err != nil {
			log.Printf("[content-tracking] failed to bump last access of %s: %v", id, err)
		}
	}

	eventType := publisher.ContentTrackingUpdated
	if created {
		eventType = publisher.ContentTrackingCreated
	}
	s.publishWithDetails(ctx, eventType, id, tenantID, appended)

	return &CreateContentResult{
		ContentTrackingID: id,
		Created:           created,
		Appended:          len(appended),
		Failed:            failed,
	}, nil
}

// Get returns the record and its ordered details. Reads go through the
// cache and may be stale for up to its TTL.
func (s *ContentTrackingService) Get(ctx context.Context, id, tenantID string) (*tracking.ContentTracking, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if err := requireUUID("contentTrackingId", id); err != nil {
		return nil, err
	}
	key := cache.Key{RecordID: id, TenantID: tenantID}
	return cache.GetOrLoad(ctx, s.Cache, key, s.Cache.TTL(), func(ctx context.Context) (*tracking.ContentTracking, error) {
		return s.load(ctx, s.DB, id, tenantID, true)
	})
}

// Update patches classification fields and the last access time. The
// published payload carries the details of the trailing window since the
// caller supplies no delta.
func (s *ContentTrackingService) Update(ctx context.Context, id string, patch UpdateContentRequest, tenantID string) (*tracking.ContentTracking, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if err := requireUUID("contentTrackingId", id); err != nil {
		return nil, err
	}

	rec, err := s.load(ctx, s.DB, id, tenantID, false)
	if err != nil {
		return nil, err
	}

	now := s.now()
	updates := map[string]interface{}{"last_access_on": now}
	if patch.ContentType != nil {
		updates["content_type"] = *patch.ContentType
	}
	if patch.ContentMime != nil {
		updates["content_mime"] = *patch.ContentMime
	}
	if err := s.DB.WithContext(ctx).Model(rec).Updates(updates).Error; err != nil {
		return nil, apperrors.NewDatabaseError("failed to update content tracking", err)
	}

	recent, err := s.Events.DetailsSince(ctx, id, now.Add(-RecentDetailWindow))
	if err != nil {
		log.Printf("[content-tracking] failed to read recent details of %s: %v", id, err)
		recent = nil
	}
	s.publishWithDetails(ctx, publisher.ContentTrackingUpdated, id, tenantID, recent)

	return s.load(ctx, s.DB, id, tenantID, true)
}

// Delete removes the record and its details in one transaction.
func (s *ContentTrackingService) Delete(ctx context.Context, id, tenantID string) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if err := requireUUID("contentTrackingId", id); err != nil {
		return err
	}

	var deleted *tracking.ContentTracking
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := s.load(ctx, tx, id, tenantID, false)
		if err != nil {
			return err
		}
		if err := tx.Where("content_tracking_id = ?", id).Delete(&tracking.ContentTrackingDetail{}).Error; err != nil {
			return apperrors.NewDatabaseError("failed to delete tracking details", err)
		}
		if err := tx.Delete(rec).Error; err != nil {
			return apperrors.NewDatabaseError("failed to delete content tracking", err)
		}
		deleted = rec
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(publisher.Event{
		Type:        publisher.ContentTrackingDeleted,
		EntityField: "contentTrackingId",
		EntityID:    id,
		TenantID:    tenantID,
		Data:        deleted,
	})
	return nil
}

// Search runs a validated query over the tenant's records.
func (s *ContentTrackingService) Search(ctx context.Context, req SearchRequest, tenantID string) ([]tracking.ContentTracking, error) {
	q, err := s.Query.Compile(req, tenantID)
	if err != nil {
		return nil, err
	}

	var recs []tracking.ContentTracking
	if err := q.Apply(s.DB.WithContext(ctx).Model(&tracking.ContentTracking{})).
		Preload("Details", orderedDetails).
		Find(&recs).Error; err != nil {
		return nil, apperrors.NewDatabaseError("failed to search content tracking", err)
	}
	if len(recs) == 0 {
		return nil, apperrors.NewNotFoundError(apperrors.CodeNoData, "no content tracking matches the search")
	}
	return recs, nil
}

// SearchContentStatus returns the verdict of every matching record, grouped
// by user in request order.
func (s *ContentTrackingService) SearchContentStatus(ctx context.Context, req ContentStatusRequest, tenantID string) ([]UserContentStatus, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if err := requireUUIDList("userId", req.UserIDs); err != nil {
		return nil, err
	}
	if err := requireList("courseId", req.CourseIDs); err != nil {
		return nil, err
	}

	db := s.DB.WithContext(ctx).
		Where("tenant_id = ? AND user_id IN ? AND course_id IN ?", tenantID, req.UserIDs, req.CourseIDs)
	if len(req.UnitIDs) > 0 {
		db = db.Where("unit_id IN ?", req.UnitIDs)
	}
	if len(req.ContentIDs) > 0 {
		db = db.Where("content_id IN ?", req.ContentIDs)
	}

	var recs []tracking.ContentTracking
	if err := db.Order("created_on asc").Order("content_tracking_id asc").Find(&recs).Error; err != nil {
		return nil, apperrors.NewDatabaseError("failed to load content tracking", err)
	}
	if len(recs) == 0 {
		return nil, apperrors.NewNotFoundError(apperrors.CodeNoData, "no content tracking found")
	}

	events, err := s.Events.ListDetails(ctx, trackingIDs(recs))
	if err != nil {
		return nil, err
	}

	byUser := make(map[string][]ContentStatus, len(req.UserIDs))
	for _, rec := range recs {
		v := ComputeStatus(events[rec.ContentTrackingID])
		byUser[rec.UserID] = append(byUser[rec.UserID], ContentStatus{
			ContentTrackingID: rec.ContentTrackingID,
			CourseID:          rec.CourseID,
			UnitID:            rec.UnitID,
			ContentID:         rec.ContentID,
			Status:            v.Status,
			Percentage:        v.Percentage,
		})
	}

	out := make([]UserContentStatus, 0, len(req.UserIDs))
	for _, userID := range dedupe(req.UserIDs) {
		statuses := byUser[userID]
		if statuses == nil {
			statuses = []ContentStatus{}
		}
		out = append(out, UserContentStatus{UserID: userID, Content: statuses})
	}
	return out, nil
}

// CourseStatus rolls up every (user, course) pair, one query per pair.
func (s *ContentTrackingService) CourseStatus(ctx context.Context, userIDs, courseIDs []string, tenantID string) ([]UserCourseStatus, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if err := requireUUIDList("userId", userIDs); err != nil {
		return nil, err
	}
	if err := requireList("courseId", courseIDs); err != nil {
		return nil, err
	}

	out := make([]UserCourseStatus, 0, len(userIDs))
	for _, userID := range dedupe(userIDs) {
		entry := UserCourseStatus{UserID: userID, Course: make([]ProgressRollup, 0, len(courseIDs))}
		for _, courseID := range dedupe(courseIDs) {
			rollup, err := s.rollup(ctx, tenantID, userID, courseID, nil)
			if err != nil {
				return nil, err
			}
			rollup.CourseID = courseID
			entry.Course = append(entry.Course, rollup)
		}
		out = append(out, entry)
	}
	return out, nil
}

// UnitStatus rolls up every (user, unit) pair of one course.
func (s *ContentTrackingService) UnitStatus(ctx context.Context, userIDs []string, courseID string, unitIDs []string, tenantID string) ([]UserUnitStatus, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if err := requireUUIDList("userId", userIDs); err != nil {
		return nil, err
	}
	if strings.TrimSpace(courseID) == "" {
		return nil, apperrors.NewValidationError(apperrors.CodeBlankValue, "courseId is required")
	}
	if err := requireList("unitId", unitIDs); err != nil {
		return nil, err
	}

	out := make([]UserUnitStatus, 0, len(userIDs))
	for _, userID := range dedupe(userIDs) {
		entry := UserUnitStatus{UserID: userID, Unit: make([]ProgressRollup, 0, len(unitIDs))}
		for _, unitID := range dedupe(unitIDs) {
			unit := unitID
			rollup, err := s.rollup(ctx, tenantID, userID, courseID, &unit)
			if err != nil {
				return nil, err
			}
			rollup.CourseID = courseID
			rollup.UnitID = unitID
			entry.Unit = append(entry.Unit, rollup)
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *ContentTrackingService) rollup(ctx context.Context, tenantID, userID, courseID string, unitID *string) (ProgressRollup, error) {
	db := s.DB.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ? AND course_id = ?", tenantID, userID, courseID)
	if unitID != nil {
		db = db.Where("unit_id = ?", *unitID)
	}

	var recs []tracking.ContentTracking
	if err := db.Order("created_on asc").Order("content_tracking_id asc").Find(&recs).Error; err != nil {
		return ProgressRollup{}, apperrors.NewDatabaseError("failed to load content tracking", err)
	}
	events, err := s.Events.ListDetails(ctx, trackingIDs(recs))
	if err != nil {
		return ProgressRollup{}, err
	}
	return Rollup(recs, events), nil
}

type inProgressRow struct {
	ContentTrackingID string
	CourseID          string
}

// CourseInProgress returns what the user is currently mid-way through: the
// records with events but no END, most recent activity first, one per
// course, at most InProgressLimit.
func (s *ContentTrackingService) CourseInProgress(ctx context.Context, userID, tenantID string) ([]tracking.ContentTracking, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if err := requireUUID("userId", userID); err != nil {
		return nil, err
	}

	var rows []inProgressRow
	err := s.DB.WithContext(ctx).
		Table("user_content_tracking AS t").
		Select("t.content_tracking_id, t.course_id").
		Joins("JOIN user_content_tracking_details AS d ON d.content_tracking_id = t.content_tracking_id").
		Where("t.tenant_id = ? AND t.user_id = ?", tenantID, userID).
		Where("NOT EXISTS (SELECT 1 FROM user_content_tracking_details AS e WHERE e.content_tracking_id = t.content_tracking_id AND e.eid = ?)", tracking.EidEnd).
		Group("t.content_tracking_id, t.course_id").
		Order("MAX(d.created_on) DESC").
		Order("MAX(d.id) DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, apperrors.NewDatabaseError("failed to find in-progress content", err)
	}

	seen := make(map[string]bool)
	ids := make([]string, 0, InProgressLimit)
	for _, row := range rows {
		if seen[row.CourseID] {
			continue
		}
		seen[row.CourseID] = true
		ids = append(ids, row.ContentTrackingID)
		if len(ids) == InProgressLimit {
			break
		}
	}
	if len(ids) == 0 {
		return []tracking.ContentTracking{}, nil
	}

	var recs []tracking.ContentTracking
	if err := s.DB.WithContext(ctx).Where("content_tracking_id IN ?", ids).Find(&recs).Error; err != nil {
		return nil, apperrors.NewDatabaseError("failed to load in-progress content", err)
	}
	byID := make(map[string]tracking.ContentTracking, len(recs))
	for _, rec := range recs {
		byID[rec.ContentTrackingID] = rec
	}
	out := make([]tracking.ContentTracking, 0, len(ids))
	for _, id := range ids {
		if rec, ok := byID[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// load reads one tenant scoped record through db, which may be a transaction.
func (s *ContentTrackingService) load(ctx context.Context, db *gorm.DB, id, tenantID string, withDetails bool) (*tracking.ContentTracking, error) {
	q := db.WithContext(ctx).Where("content_tracking_id = ? AND tenant_id = ?", id, tenantID)
	if withDetails {
		q = q.Preload("Details", orderedDetails)
	}
	var rec tracking.ContentTracking
	err := q.First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFoundError(apperrors.CodeRecordNotFound, "content tracking not found").
			WithDetails(map[string]interface{}{"contentTrackingId": id})
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("failed to read content tracking", err)
	}
	return &rec, nil
}

// publishWithDetails publishes the record carrying only the given details.
func (s *ContentTrackingService) publishWithDetails(ctx context.Context, eventType, id, tenantID string, details []tracking.ContentTrackingDetail) {
	if s.Publisher == nil {
		return
	}
	rec, err := s.load(ctx, s.DB, id, tenantID, false)
	if err != nil {
		log.Printf("[content-tracking] not publishing %s for %s: %v", eventType, id, err)
		return
	}
	if details == nil {
		details = []tracking.ContentTrackingDetail{}
	}
	rec.Details = details
	s.publish(publisher.Event{
		Type:        eventType,
		EntityField: "contentTrackingId",
		EntityID:    id,
		TenantID:    tenantID,
		Data:        rec,
	})
}

func (s *ContentTrackingService) publish(ev publisher.Event) {
	if s.Publisher == nil {
		return
	}
	s.Publisher.PublishAsync(ev)
}

func orderedDetails(db *gorm.DB) *gorm.DB {
	return db.Order("created_on asc").Order("id asc")
}

func trackingIDs(recs []tracking.ContentTracking) []string {
	ids := make([]string, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ContentTrackingID
	}
	return ids
}
