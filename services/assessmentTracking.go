package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"tracker/apperrors"
	"tracker/cache"
	"tracker/models/tracking"
	"tracker/publisher"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ScoreDetailInput is one question result of a submitted attempt.
type ScoreDetailInput struct {
	QuestionID string          `json:"questionId" validate:"required"`
	SectionID  string          `json:"sectionId"`
	Pass       string          `json:"pass"`
	ResValue   json.RawMessage `json:"resValue"`
	Duration   float64         `json:"duration"`
	Score      float64         `json:"score"`
	MaxScore   float64         `json:"maxScore"`
	QueTitle   string          `json:"queTitle"`
}

// CreateAssessmentRequest is the body of an assessment submission.
type CreateAssessmentRequest struct {
	UserID            string             `json:"userId" validate:"required,uuid"`
	CourseID          string             `json:"courseId" validate:"required"`
	BatchID           string             `json:"batchId"`
	UnitID            string             `json:"unitId"`
	ContentID         string             `json:"contentId" validate:"required"`
	AttemptID         string             `json:"attemptId" validate:"required"`
	TotalMaxScore     float64            `json:"totalMaxScore" validate:"gte=0"`
	TotalScore        float64            `json:"totalScore" validate:"gte=0"`
	TimeSpent         float64            `json:"timeSpent" validate:"gte=0"`
	LastAttemptedOn   *time.Time         `json:"lastAttemptedOn"`
	AssessmentSummary json.RawMessage    `json:"assessmentSummary"`
	ScoreDetails      []ScoreDetailInput `json:"scoreDetails" validate:"omitempty,dive"`
}

// AssessmentStatusRequest selects the attempts summarized per content.
type AssessmentStatusRequest struct {
	UserID     string   `json:"userId" validate:"required,uuid"`
	CourseID   string   `json:"courseId" validate:"required"`
	ContentIDs []string `json:"contentId" validate:"omitempty,dive,required"`
}

// AssessmentStatus summarizes every attempt of one assessment content.
type AssessmentStatus struct {
	ContentID                string    `json:"contentId"`
	Attempts                 int       `json:"attempts"`
	LastAttemptID            string    `json:"lastAttemptId"`
	LastAssessmentTrackingID string    `json:"lastAssessmentTrackingId"`
	Score                    float64   `json:"score"`
	MaxScore                 float64   `json:"maxScore"`
	Percentage               float64   `json:"percentage"`
	BestPercentage           float64   `json:"bestPercentage"`
	LastAttemptedOn          time.Time `json:"lastAttemptedOn"`
}

// AssessmentTrackingService implements the assessment tracking operations.
type AssessmentTrackingService struct {
	DB        *gorm.DB
	Query     *QueryEngine
	Cache     *cache.Cache
	Publisher EventPublisher

	now func() time.Time
}

func NewAssessmentTrackingService(db *gorm.DB, c *cache.Cache, pub EventPublisher) *AssessmentTrackingService {
	return &AssessmentTrackingService{
		DB:        db,
		Query:     NewQueryEngine(AssessmentQuerySchema),
		Cache:     c,
		Publisher: pub,
		now:       time.Now,
	}
}

// Create stores one attempt with its score details. A second submission of
// the same attempt is a conflict.
func (s *AssessmentTrackingService) Create(ctx context.Context, req CreateAssessmentRequest, tenantID string) (*tracking.AssessmentTracking, error) {
	key := tracking.AssessmentNaturalKey{
		TenantID:  tenantID,
		UserID:    req.UserID,
		CourseID:  req.CourseID,
		ContentID: req.ContentID,
		AttemptID: req.AttemptID,
	}
	if err := validateAssessmentKey(key); err != nil {
		return nil, err
	}
	for i, d := range req.ScoreDetails {
		if strings.TrimSpace(d.QuestionID) == "" {
			return nil, apperrors.NewValidationError(apperrors.CodeBlankValue,
				fmt.Sprintf("scoreDetails[%d].questionId is required", i))
		}
	}

	attemptedOn := s.now()
	if req.LastAttemptedOn != nil {
		attemptedOn = *req.LastAttemptedOn
	}
	rec := &tracking.AssessmentTracking{
		BatchID:           req.BatchID,
		UnitID:            req.UnitID,
		TotalMaxScore:     req.TotalMaxScore,
		TotalScore:        req.TotalScore,
		TimeSpent:         req.TimeSpent,
		AssessmentSummary: datatypes.JSON(req.AssessmentSummary),
		LastAttemptedOn:   attemptedOn,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := NewAssessmentResolver(tx).Create(ctx, key, rec); err != nil {
			return err
		}
		if len(req.ScoreDetails) == 0 {
			return nil
		}
		details := make([]tracking.AssessmentScoreDetail, len(req.ScoreDetails))
		for i, d := range req.ScoreDetails {
			details[i] = tracking.AssessmentScoreDetail{
				AssessmentTrackingID: rec.AssessmentTrackingID,
				UserID:               req.UserID,
				QuestionID:           d.QuestionID,
				SectionID:            d.SectionID,
				Pass:                 d.Pass,
				ResValue:             datatypes.JSON(d.ResValue),
				Duration:             d.Duration,
				Score:                d.Score,
				MaxScore:             d.MaxScore,
				QueTitle:             d.QueTitle,
			}
		}
		if err := tx.Create(&details).Error; err != nil {
			return apperrors.NewDatabaseError("failed to store score details", err)
		}
		rec.ScoreDetails = details
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(publisher.Event{
		Type:        publisher.AssessmentTrackingCreated,
		EntityField: "assessmentTrackingId",
		EntityID:    rec.AssessmentTrackingID,
		TenantID:    tenantID,
		Data:        rec,
	})
	return rec, nil
}

// Get returns one attempt with its score details through the cache.
func (s *AssessmentTrackingService) Get(ctx context.Context, id, tenantID string) (*tracking.AssessmentTracking, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if err := requireUUID("assessmentTrackingId", id); err != nil {
		return nil, err
	}
	key := cache.Key{RecordID: id, TenantID: tenantID}
	return cache.GetOrLoad(ctx, s.Cache, key, s.Cache.TTL(), func(ctx context.Context) (*tracking.AssessmentTracking, error) {
		return s.load(ctx, s.DB, id, tenantID, true)
	})
}

// Search runs a validated query over the tenant's attempts.
func (s *AssessmentTrackingService) Search(ctx context.Context, req SearchRequest, tenantID string) ([]tracking.AssessmentTracking, error) {
	q, err := s.Query.Compile(req, tenantID)
	if err != nil {
		return nil, err
	}

	var recs []tracking.AssessmentTracking
	if err := q.Apply(s.DB.WithContext(ctx).Model(&tracking.AssessmentTracking{})).
		Preload("ScoreDetails", orderedScoreDetails).
		Find(&recs).Error; err != nil {
		return nil, apperrors.NewDatabaseError("failed to search assessment tracking", err)
	}
	if len(recs) == 0 {
		return nil, apperrors.NewNotFoundError(apperrors.CodeNoData, "no assessment tracking matches the search")
	}
	return recs, nil
}

// Delete removes one attempt and its score details.
func (s *AssessmentTrackingService) Delete(ctx context.Context, id, tenantID string) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if err := requireUUID("assessmentTrackingId", id); err != nil {
		return err
	}

	var deleted *tracking.AssessmentTracking
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := s.load(ctx, tx, id, tenantID, false)
		if err != nil {
			return err
		}
		if err := tx.Where("assessment_tracking_id = ?", id).Delete(&tracking.AssessmentScoreDetail{}).Error; err != nil {
			return apperrors.NewDatabaseError("failed to delete score details", err)
		}
		if err := tx.Delete(rec).Error; err != nil {
			return apperrors.NewDatabaseError("failed to delete assessment tracking", err)
		}
		deleted = rec
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(publisher.Event{
		Type:        publisher.AssessmentTrackingDeleted,
		EntityField: "assessmentTrackingId",
		EntityID:    id,
		TenantID:    tenantID,
		Data:        deleted,
	})
	return nil
}

// SearchAssessmentStatus summarizes the user's attempts per content: how
// many, the latest one's score and the best percentage reached.
func (s *AssessmentTrackingService) SearchAssessmentStatus(ctx context.Context, req AssessmentStatusRequest, tenantID string) ([]AssessmentStatus, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if err := requireUUID("userId", req.UserID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.CourseID) == "" {
		return nil, apperrors.NewValidationError(apperrors.CodeBlankValue, "courseId is required")
	}

	db := s.DB.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ? AND course_id = ?", tenantID, req.UserID, req.CourseID)
	if len(req.ContentIDs) > 0 {
		if err := requireList("contentId", req.ContentIDs); err != nil {
			return nil, err
		}
		db = db.Where("content_id IN ?", req.ContentIDs)
	}

	var recs []tracking.AssessmentTracking
	if err := db.Order("last_attempted_on asc").Order("created_on asc").Find(&recs).Error; err != nil {
		return nil, apperrors.NewDatabaseError("failed to load assessment tracking", err)
	}
	if len(recs) == 0 {
		return nil, apperrors.NewNotFoundError(apperrors.CodeNoData, "no assessment attempts found")
	}

	var order []string
	byContent := make(map[string]*AssessmentStatus)
	for _, rec := range recs {
		st, ok := byContent[rec.ContentID]
		if !ok {
			st = &AssessmentStatus{ContentID: rec.ContentID}
			byContent[rec.ContentID] = st
			order = append(order, rec.ContentID)
		}
		pct := percentage(rec.TotalScore, rec.TotalMaxScore)
		st.Attempts++
		st.LastAttemptID = rec.AttemptID
		st.LastAssessmentTrackingID = rec.AssessmentTrackingID
		st.Score = rec.TotalScore
		st.MaxScore = rec.TotalMaxScore
		st.Percentage = pct
		st.LastAttemptedOn = rec.LastAttemptedOn
		if pct > st.BestPercentage {
			st.BestPercentage = pct
		}
	}

	if len(req.ContentIDs) > 0 {
		order = order[:0]
		for _, id := range dedupe(req.ContentIDs) {
			if _, ok := byContent[id]; ok {
				order = append(order, id)
			}
		}
	}
	out := make([]AssessmentStatus, 0, len(order))
	for _, id := range order {
		out = append(out, *byContent[id])
	}
	return out, nil
}

func (s *AssessmentTrackingService) load(ctx context.Context, db *gorm.DB, id, tenantID string, withDetails bool) (*tracking.AssessmentTracking, error) {
	q := db.WithContext(ctx).Where("assessment_tracking_id = ? AND tenant_id = ?", id, tenantID)
	if withDetails {
		q = q.Preload("ScoreDetails", orderedScoreDetails)
	}
	var rec tracking.AssessmentTracking
	err := q.First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFoundError(apperrors.CodeRecordNotFound, "assessment tracking not found").
			WithDetails(map[string]interface{}{"assessmentTrackingId": id})
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("failed to read assessment tracking", err)
	}
	return &rec, nil
}

func (s *AssessmentTrackingService) publish(ev publisher.Event) {
	if s.Publisher == nil {
		return
	}
	s.Publisher.PublishAsync(ev)
}

func orderedScoreDetails(db *gorm.DB) *gorm.DB {
	return db.Order("id asc")
}

// percentage rounds score/maxScore to two decimals, 0 when maxScore is not
// positive.
func percentage(score, maxScore float64) float64 {
	if maxScore <= 0 {
		return 0
	}
	return math.Round(score/maxScore*10000) / 100
}
