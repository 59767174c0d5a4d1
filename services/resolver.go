package services

import (
	"context"
	"errors"
	"strings"

	"tracker/apperrors"
	"tracker/models/tracking"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ContentAttributes are the classification fields stamped on a record when
// the resolver creates it.
type ContentAttributes struct {
	ContentType string
	ContentMime string
}

// ContentResolver maps a content natural key to a single tracking identity.
//
// Resolve is find-or-create across two round trips, not an atomic upsert.
// Two first writers for the same key can both miss the lookup and both insert;
// the duplicate is tolerated and later lookups return the oldest row.
type ContentResolver struct {
	DB *gorm.DB
}

func NewContentResolver(db *gorm.DB) *ContentResolver {
	return &ContentResolver{DB: db}
}

// Resolve returns the tracking id for key, creating the record when none
// exists. created reports whether this call inserted it.
func (r *ContentResolver) Resolve(ctx context.Context, key tracking.ContentNaturalKey, attrs ContentAttributes) (string, bool, error) {
	if err := validateContentKey(key); err != nil {
		return "", false, err
	}

	existing, err := r.lookup(ctx, key)
	if err != nil {
		return "", false, err
	}
	if existing != nil {
		return existing.ContentTrackingID, false, nil
	}

	rec, err := r.create(ctx, key, attrs)
	if err != nil {
		return "", false, err
	}
	return rec.ContentTrackingID, true, nil
}

// Find returns the record for key or nil when there is none.
func (r *ContentResolver) Find(ctx context.Context, key tracking.ContentNaturalKey) (*tracking.ContentTracking, error) {
	if err := validateContentKey(key); err != nil {
		return nil, err
	}
	return r.lookup(ctx, key)
}

func (r *ContentResolver) lookup(ctx context.Context, key tracking.ContentNaturalKey) (*tracking.ContentTracking, error) {
	var rec tracking.ContentTracking
	err := r.DB.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ? AND course_id = ? AND unit_id = ? AND content_id = ?",
			key.TenantID, key.UserID, key.CourseID, key.UnitID, key.ContentID).
		Order("created_on asc").
		Order("content_tracking_id asc").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("failed to look up content tracking", err)
	}
	return &rec, nil
}

func (r *ContentResolver) create(ctx context.Context, key tracking.ContentNaturalKey, attrs ContentAttributes) (*tracking.ContentTracking, error) {
	rec := tracking.ContentTracking{
		ContentTrackingID: uuid.NewString(),
		TenantID:          key.TenantID,
		UserID:            key.UserID,
		CourseID:          key.CourseID,
		UnitID:            key.UnitID,
		ContentID:         key.ContentID,
		ContentType:       attrs.ContentType,
		ContentMime:       attrs.ContentMime,
	}
	if err := r.DB.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, apperrors.NewDatabaseError("failed to create content tracking", err)
	}
	return &rec, nil
}

func validateContentKey(key tracking.ContentNaturalKey) error {
	if strings.TrimSpace(key.TenantID) == "" {
		return apperrors.NewValidationError(apperrors.CodeMissingTenant, "tenantId is required")
	}
	if err := requireUUID("userId", key.UserID); err != nil {
		return err
	}
	if strings.TrimSpace(key.CourseID) == "" {
		return apperrors.NewValidationError(apperrors.CodeBlankValue, "courseId is required")
	}
	if strings.TrimSpace(key.ContentID) == "" {
		return apperrors.NewValidationError(apperrors.CodeBlankValue, "contentId is required")
	}
	return nil
}

// AssessmentResolver guards the assessment natural key. Unlike content, a
// second submission for the same attempt is a conflict rather than a reuse.
type AssessmentResolver struct {
	DB *gorm.DB
}

func NewAssessmentResolver(db *gorm.DB) *AssessmentResolver {
	return &AssessmentResolver{DB: db}
}

// Find returns the attempt for key or nil when there is none.
func (r *AssessmentResolver) Find(ctx context.Context, key tracking.AssessmentNaturalKey) (*tracking.AssessmentTracking, error) {
	if err := validateAssessmentKey(key); err != nil {
		return nil, err
	}
	var rec tracking.AssessmentTracking
	err := r.DB.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ? AND course_id = ? AND content_id = ? AND attempt_id = ?",
			key.TenantID, key.UserID, key.CourseID, key.ContentID, key.AttemptID).
		Order("created_on asc").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("failed to look up assessment tracking", err)
	}
	return &rec, nil
}

// Create stamps a fresh identity and the key fields on rec and inserts it,
// failing with a conflict when the attempt was already submitted.
func (r *AssessmentResolver) Create(ctx context.Context, key tracking.AssessmentNaturalKey, rec *tracking.AssessmentTracking) error {
	existing, err := r.Find(ctx, key)
	if err != nil {
		return err
	}
	if existing != nil {
		return apperrors.NewConflictError(apperrors.CodeDuplicateSubmission, "assessment attempt already submitted").
			WithDetails(map[string]interface{}{"assessmentTrackingId": existing.AssessmentTrackingID})
	}

	rec.AssessmentTrackingID = uuid.NewString()
	rec.TenantID = key.TenantID
	rec.UserID = key.UserID
	rec.CourseID = key.CourseID
	rec.ContentID = key.ContentID
	rec.AttemptID = key.AttemptID
	if err := r.DB.WithContext(ctx).Omit("ScoreDetails").Create(rec).Error; err != nil {
		return apperrors.NewDatabaseError("failed to create assessment tracking", err)
	}
	return nil
}

func validateAssessmentKey(key tracking.AssessmentNaturalKey) error {
	if strings.TrimSpace(key.TenantID) == "" {
		return apperrors.NewValidationError(apperrors.CodeMissingTenant, "tenantId is required")
	}
	if err := requireUUID("userId", key.UserID); err != nil {
		return err
	}
	required := []struct{ name, value string }{
		{"courseId", key.CourseID},
		{"contentId", key.ContentID},
		{"attemptId", key.AttemptID},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return apperrors.NewValidationError(apperrors.CodeBlankValue, f.name+" is required")
		}
	}
	return nil
}

// requireUUID rejects values that are not syntactically valid UUIDs.
func requireUUID(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return apperrors.NewValidationError(apperrors.CodeBlankValue, field+" is required")
	}
	if _, err := uuid.Parse(value); err != nil {
		return apperrors.NewValidationError(apperrors.CodeInvalidUUID, field+" must be a valid UUID")
	}
	return nil
}
