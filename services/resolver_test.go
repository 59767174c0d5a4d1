package services

import (
	"context"
	"testing"
	"time"

	"tracker/apperrors"
	"tracker/internal/testdb"
	"tracker/models/tracking"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleContentKey(tenantID string) tracking.ContentNaturalKey {
	return tracking.ContentNaturalKey{
		TenantID:  tenantID,
		UserID:    "5a1c2e4f-8b3d-4c6a-9e7f-1a2b3c4d5e6f",
		CourseID:  "course-1",
		UnitID:    "unit-1",
		ContentID: "content-1",
	}
}

func TestResolve_Idempotent(t *testing.T) {
	db := testdb.New(t)
	r := NewContentResolver(db)
	ctx := context.Background()
	key := sampleContentKey(uuid.NewString())

	id1, created1, err := r.Resolve(ctx, key, ContentAttributes{ContentType: "Resource", ContentMime: "video/mp4"})
	require.NoError(t, err)
	assert.True(t, created1)

	id2, created2, err := r.Resolve(ctx, key, ContentAttributes{ContentType: "Other", ContentMime: "text/html"})
	require.NoError(t, err)
	assert.False(t, created2)
	assert.Equal(t, id1, id2)

	var rec tracking.ContentTracking
	require.NoError(t, db.First(&rec, "content_tracking_id = ?", id1).Error)
	assert.Equal(t, "video/mp4", rec.ContentMime, "resolve never rewrites an existing record")
}

func TestResolve_BlankUnitIsPartOfKey(t *testing.T) {
	db := testdb.New(t)
	r := NewContentResolver(db)
	ctx := context.Background()
	key := sampleContentKey(uuid.NewString())

	withUnit, _, err := r.Resolve(ctx, key, ContentAttributes{})
	require.NoError(t, err)

	key.UnitID = ""
	withoutUnit, created, err := r.Resolve(ctx, key, ContentAttributes{})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, withUnit, withoutUnit)
}

func TestResolve_TenantIsolation(t *testing.T) {
	db := testdb.New(t)
	r := NewContentResolver(db)
	ctx := context.Background()

	idA, createdA, err := r.Resolve(ctx, sampleContentKey(uuid.NewString()), ContentAttributes{})
	require.NoError(t, err)
	idB, createdB, err := r.Resolve(ctx, sampleContentKey(uuid.NewString()), ContentAttributes{})
	require.NoError(t, err)

	assert.True(t, createdA)
	assert.True(t, createdB)
	assert.NotEqual(t, idA, idB)
}

func TestResolve_Validation(t *testing.T) {
	r := NewContentResolver(testdb.New(t))
	ctx := context.Background()

	cases := map[string]struct {
		mutate func(*tracking.ContentNaturalKey)
		code   string
	}{
		"missing tenant":  {func(k *tracking.ContentNaturalKey) { k.TenantID = "" }, apperrors.CodeMissingTenant},
		"user not uuid":   {func(k *tracking.ContentNaturalKey) { k.UserID = "user-1" }, apperrors.CodeInvalidUUID},
		"blank course":    {func(k *tracking.ContentNaturalKey) { k.CourseID = "  " }, apperrors.CodeBlankValue},
		"blank content":   {func(k *tracking.ContentNaturalKey) { k.ContentID = "" }, apperrors.CodeBlankValue},
		"missing user id": {func(k *tracking.ContentNaturalKey) { k.UserID = "" }, apperrors.CodeBlankValue},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			key := sampleContentKey(uuid.NewString())
			tc.mutate(&key)
			_, _, err := r.Resolve(ctx, key, ContentAttributes{})
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
			assert.Equal(t, tc.code, apperrors.GetCode(err))
		})
	}
}

// Two first writers that both miss the lookup both insert. The duplicate is
// kept and every later resolve returns the oldest row.
func TestResolve_ConcurrentFirstWritersMayDuplicate(t *testing.T) {
	db := testdb.New(t)
	r := NewContentResolver(db)
	ctx := context.Background()
	key := sampleContentKey(uuid.NewString())

	// both writers run their lookup before either has inserted
	seenA, err := r.lookup(ctx, key)
	require.NoError(t, err)
	seenB, err := r.lookup(ctx, key)
	require.NoError(t, err)
	require.Nil(t, seenA)
	require.Nil(t, seenB)

	first, err := r.create(ctx, key, ContentAttributes{})
	require.NoError(t, err)
	second, err := r.create(ctx, key, ContentAttributes{})
	require.NoError(t, err)
	require.NotEqual(t, first.ContentTrackingID, second.ContentTrackingID)

	// pin the creation order so the oldest is unambiguous
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Model(first).Update("created_on", base).Error)
	require.NoError(t, db.Model(second).Update("created_on", base.Add(time.Second)).Error)

	var count int64
	require.NoError(t, db.Model(&tracking.ContentTracking{}).Where("tenant_id = ?", key.TenantID).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	for i := 0; i < 3; i++ {
		id, created, err := r.Resolve(ctx, key, ContentAttributes{})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ContentTrackingID, id)
	}
}

func sampleAssessmentKey(tenantID string) tracking.AssessmentNaturalKey {
	return tracking.AssessmentNaturalKey{
		TenantID:  tenantID,
		UserID:    "5a1c2e4f-8b3d-4c6a-9e7f-1a2b3c4d5e6f",
		CourseID:  "course-1",
		ContentID: "quiz-1",
		AttemptID: "attempt-1",
	}
}

func TestAssessmentResolver_DuplicateIsConflict(t *testing.T) {
	db := testdb.New(t)
	r := NewAssessmentResolver(db)
	ctx := context.Background()
	key := sampleAssessmentKey(uuid.NewString())

	first := &tracking.AssessmentTracking{TotalScore: 4, TotalMaxScore: 5, LastAttemptedOn: time.Now()}
	require.NoError(t, r.Create(ctx, key, first))
	require.NotEmpty(t, first.AssessmentTrackingID)

	err := r.Create(ctx, key, &tracking.AssessmentTracking{LastAttemptedOn: time.Now()})
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.Equal(t, apperrors.CodeDuplicateSubmission, apperrors.GetCode(err))

	key.AttemptID = "attempt-2"
	require.NoError(t, r.Create(ctx, key, &tracking.AssessmentTracking{LastAttemptedOn: time.Now()}))
}

func TestAssessmentResolver_RequiresAttempt(t *testing.T) {
	r := NewAssessmentResolver(testdb.New(t))
	key := sampleAssessmentKey(uuid.NewString())
	key.AttemptID = ""

	_, err := r.Find(context.Background(), key)
	require.Error(t, err)
	assert.EqualError(t, err, "[VALIDATION:BLANK_VALUE] attemptId is required")
}
