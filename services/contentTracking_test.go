package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tracker/apperrors"
	"tracker/cache"
	"tracker/external"
	"tracker/internal/testdb"
	"tracker/models/tracking"
	"tracker/publisher"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []publisher.Event
}

func (p *recordingPublisher) PublishAsync(ev publisher.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) last() publisher.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type stubMetadata struct {
	meta  *external.ContentMetadata
	err   error
	calls int
}

func (m *stubMetadata) ContentMetadata(context.Context, string) (*external.ContentMetadata, error) {
	m.calls++
	return m.meta, m.err
}

const testUser = "5a1c2e4f-8b3d-4c6a-9e7f-1a2b3c4d5e6f"

func newContentService(t *testing.T) (*ContentTrackingService, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	return NewContentTrackingService(testdb.New(t), nil, pub, nil), pub
}

func createRequest(contentID string, events ...EventInput) CreateContentRequest {
	return CreateContentRequest{
		UserID:      testUser,
		CourseID:    "course-1",
		UnitID:      "unit-1",
		ContentID:   contentID,
		ContentType: "Resource",
		ContentMime: "video/mp4",
		Events:      events,
	}
}

func TestCreate_NewThenExisting(t *testing.T) {
	svc, pub := newContentService(t)
	ctx := context.Background()
	tenant := uuid.NewString()

	first, err := svc.Create(ctx, createRequest("c1", startEvent(10)), tenant)
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, 1, first.Appended)
	assert.Equal(t, publisher.ContentTrackingCreated, pub.last().Type)

	second, err := svc.Create(ctx, createRequest("c1", endEvent(100)), tenant)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.ContentTrackingID, second.ContentTrackingID)

	ev := pub.last()
	assert.Equal(t, publisher.ContentTrackingUpdated, ev.Type)
	assert.Equal(t, "contentTrackingId", ev.EntityField)
	assert.Equal(t, tenant, ev.TenantID)
	rec, ok := ev.Data.(*tracking.ContentTracking)
	require.True(t, ok)
	require.Len(t, rec.Details, 1, "only the details appended by this call are published")
	assert.Equal(t, tracking.EidEnd, rec.Details[0].Eid)

	got, err := svc.Get(ctx, first.ContentTrackingID, tenant)
	require.NoError(t, err)
	require.Len(t, got.Details, 2)
	assert.Equal(t, tracking.EidStart, got.Details[0].Eid)
	assert.Equal(t, tracking.EidEnd, got.Details[1].Eid)
}

func TestCreate_PartialBatch(t *testing.T) {
	svc, _ := newContentService(t)
	res, err := svc.Create(context.Background(), createRequest("c1",
		startEvent(10),
		EventInput{Eid: "START"},
	), uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Appended)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, 1, res.Failed[0].Index)
}

func TestCreate_MetadataLookup(t *testing.T) {
	svc, _ := newContentService(t)
	meta := &stubMetadata{meta: &external.ContentMetadata{ContentType: "Resource", MimeType: "application/pdf"}}
	svc.Metadata = meta
	ctx := context.Background()
	tenant := uuid.NewString()

	req := createRequest("c1", startEvent(0))
	req.ContentMime = ""
	req.ContentType = ""
	res, err := svc.Create(ctx, req, tenant)
	require.NoError(t, err)
	assert.Equal(t, 1, meta.calls)

	got, err := svc.Get(ctx, res.ContentTrackingID, tenant)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", got.ContentMime)
	assert.Equal(t, "Resource", got.ContentType)

	_, err = svc.Create(ctx, createRequest("c2"), tenant)
	require.NoError(t, err)
	assert.Equal(t, 1, meta.calls, "no lookup when the caller sends a mime type")
}

func TestCreate_MetadataFailureWritesNothing(t *testing.T) {
	svc, pub := newContentService(t)
	svc.Metadata = &stubMetadata{err: apperrors.NewExternalError(apperrors.CodeUpstreamUnavailable, "content service down", errors.New("dial tcp"))}
	tenant := uuid.NewString()

	req := createRequest("c1", startEvent(0))
	req.ContentMime = ""
	_, err := svc.Create(context.Background(), req, tenant)
	require.Error(t, err)
	assert.True(t, apperrors.IsExternal(err))

	var count int64
	require.NoError(t, svc.DB.Model(&tracking.ContentTracking{}).Where("tenant_id = ?", tenant).Count(&count).Error)
	assert.Zero(t, count)
	assert.Zero(t, pub.count())
}

func TestGet_NotFoundAndValidation(t *testing.T) {
	svc, _ := newContentService(t)
	ctx := context.Background()

	_, err := svc.Get(ctx, uuid.NewString(), uuid.NewString())
	assert.True(t, apperrors.IsNotFound(err))

	_, err = svc.Get(ctx, "nope", uuid.NewString())
	assert.Equal(t, apperrors.CodeInvalidUUID, apperrors.GetCode(err))
}

func TestGet_OtherTenantCannotRead(t *testing.T) {
	svc, _ := newContentService(t)
	ctx := context.Background()
	res, err := svc.Create(ctx, createRequest("c1"), uuid.NewString())
	require.NoError(t, err)

	_, err = svc.Get(ctx, res.ContentTrackingID, uuid.NewString())
	assert.True(t, apperrors.IsNotFound(err))
}

func TestGet_ServedFromCache(t *testing.T) {
	svc, _ := newContentService(t)
	svc.Cache = cache.New(cache.NewMemoryBackend(), "content", time.Minute)
	ctx := context.Background()
	tenant := uuid.NewString()

	res, err := svc.Create(ctx, createRequest("c1", startEvent(10)), tenant)
	require.NoError(t, err)
	_, err = svc.Get(ctx, res.ContentTrackingID, tenant)
	require.NoError(t, err)

	mime := "text/html"
	_, err = svc.Update(ctx, res.ContentTrackingID, UpdateContentRequest{ContentMime: &mime}, tenant)
	require.NoError(t, err)

	cached, err := svc.Get(ctx, res.ContentTrackingID, tenant)
	require.NoError(t, err)
	assert.Equal(t, "video/mp4", cached.ContentMime, "writes do not invalidate the cache")
	require.Len(t, cached.Details, 1)
	require.NotNil(t, cached.Details[0].Progress)
	assert.Equal(t, 10.0, *cached.Details[0].Progress)
}

func TestUpdate_PublishesRecentWindow(t *testing.T) {
	svc, pub := newContentService(t)
	ctx := context.Background()
	tenant := uuid.NewString()

	res, err := svc.Create(ctx, createRequest("c1", startEvent(10), endEvent(100)), tenant)
	require.NoError(t, err)

	// age the START out of the window
	require.NoError(t, svc.DB.Model(&tracking.ContentTrackingDetail{}).
		Where("content_tracking_id = ? AND eid = ?", res.ContentTrackingID, tracking.EidStart).
		Update("created_on", time.Now().Add(-time.Hour)).Error)

	contentType := "Video"
	updated, err := svc.Update(ctx, res.ContentTrackingID, UpdateContentRequest{ContentType: &contentType}, tenant)
	require.NoError(t, err)
	assert.Equal(t, "Video", updated.ContentType)
	assert.Equal(t, "video/mp4", updated.ContentMime)

	ev := pub.last()
	assert.Equal(t, publisher.ContentTrackingUpdated, ev.Type)
	rec := ev.Data.(*tracking.ContentTracking)
	require.Len(t, rec.Details, 1)
	assert.Equal(t, tracking.EidEnd, rec.Details[0].Eid)

	_, err = svc.Update(ctx, uuid.NewString(), UpdateContentRequest{}, tenant)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDelete_CascadesDetails(t *testing.T) {
	svc, pub := newContentService(t)
	ctx := context.Background()
	tenant := uuid.NewString()

	res, err := svc.Create(ctx, createRequest("c1", startEvent(10), endEvent(100)), tenant)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, res.ContentTrackingID, tenant))
	assert.Equal(t, publisher.ContentTrackingDeleted, pub.last().Type)

	var details int64
	require.NoError(t, svc.DB.Model(&tracking.ContentTrackingDetail{}).
		Where("content_tracking_id = ?", res.ContentTrackingID).Count(&details).Error)
	assert.Zero(t, details)

	err = svc.Delete(ctx, res.ContentTrackingID, tenant)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDelete_OtherTenantIsNotFound(t *testing.T) {
	svc, _ := newContentService(t)
	ctx := context.Background()
	res, err := svc.Create(ctx, createRequest("c1"), uuid.NewString())
	require.NoError(t, err)

	err = svc.Delete(ctx, res.ContentTrackingID, uuid.NewString())
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCourseStatus_Rollup(t *testing.T) {
	svc, _ := newContentService(t)
	ctx := context.Background()
	tenant := uuid.NewString()

	_, err := svc.Create(ctx, createRequest("c1", startEvent(0), endEvent(100)), tenant)
	require.NoError(t, err)
	_, err = svc.Create(ctx, createRequest("c2", startEvent(40)), tenant)
	require.NoError(t, err)
	_, err = svc.Create(ctx, createRequest("c3", startEvent(0), endEvent(100)), tenant)
	require.NoError(t, err)

	out, err := svc.CourseStatus(ctx, []string{testUser}, []string{"course-1", "course-2"}, tenant)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, out[0].Course, 2)

	course := out[0].Course[0]
	assert.Equal(t, "course-1", course.CourseID)
	assert.Equal(t, 2, course.Completed)
	assert.Equal(t, 1, course.InProgress)
	assert.ElementsMatch(t, []string{"c1", "c3"}, course.CompletedList)
	assert.Equal(t, []string{"c2"}, course.InProgressList)
	assert.NotNil(t, course.StartedOn)

	empty := out[0].Course[1]
	assert.Equal(t, "course-2", empty.CourseID)
	assert.Zero(t, empty.Completed)
	assert.Nil(t, empty.StartedOn)
}

func TestUnitStatus(t *testing.T) {
	svc, _ := newContentService(t)
	ctx := context.Background()
	tenant := uuid.NewString()

	_, err := svc.Create(ctx, createRequest("c1", startEvent(0), endEvent(100)), tenant)
	require.NoError(t, err)
	other := createRequest("c2", startEvent(20))
	other.UnitID = "unit-2"
	_, err = svc.Create(ctx, other, tenant)
	require.NoError(t, err)

	out, err := svc.UnitStatus(ctx, []string{testUser}, "course-1", []string{"unit-1", "unit-2"}, tenant)
	require.NoError(t, err)
	require.Len(t, out[0].Unit, 2)
	assert.Equal(t, "unit-1", out[0].Unit[0].UnitID)
	assert.Equal(t, []string{"c1"}, out[0].Unit[0].CompletedList)
	assert.Equal(t, "unit-2", out[0].Unit[1].UnitID)
	assert.Equal(t, []string{"c2"}, out[0].Unit[1].InProgressList)

	_, err = svc.UnitStatus(ctx, []string{testUser}, "", []string{"unit-1"}, tenant)
	assert.True(t, apperrors.IsValidation(err))
}

func TestSearchContentStatus(t *testing.T) {
	svc, _ := newContentService(t)
	ctx := context.Background()
	tenant := uuid.NewString()

	_, err := svc.Create(ctx, createRequest("c1", startEvent(30)), tenant)
	require.NoError(t, err)
	_, err = svc.Create(ctx, createRequest("c2"), tenant)
	require.NoError(t, err)

	out, err := svc.SearchContentStatus(ctx, ContentStatusRequest{
		UserIDs:   []string{testUser},
		CourseIDs: []string{"course-1"},
	}, tenant)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, out[0].Content, 2)
	assert.Equal(t, StatusInProgress, out[0].Content[0].Status)
	assert.Equal(t, 30.0, out[0].Content[0].Percentage)
	assert.Equal(t, StatusNotStarted, out[0].Content[1].Status)

	_, err = svc.SearchContentStatus(ctx, ContentStatusRequest{
		UserIDs:   []string{testUser},
		CourseIDs: []string{"course-9"},
	}, tenant)
	assert.True(t, apperrors.IsNotFound(err))

	_, err = svc.SearchContentStatus(ctx, ContentStatusRequest{UserIDs: []string{"x"}, CourseIDs: []string{"c"}}, tenant)
	assert.Equal(t, apperrors.CodeInvalidUUID, apperrors.GetCode(err))
}

func TestCourseInProgress(t *testing.T) {
	svc, _ := newContentService(t)
	ctx := context.Background()
	tenant := uuid.NewString()
	base := time.Now().Add(-time.Hour)

	// course-1 has two unfinished records, course-2 one, course-3 is done
	add := func(courseID, contentID string, at time.Time, events ...EventInput) string {
		req := createRequest(contentID, events...)
		req.CourseID = courseID
		res, err := svc.Create(ctx, req, tenant)
		require.NoError(t, err)
		require.NoError(t, svc.DB.Model(&tracking.ContentTrackingDetail{}).
			Where("content_tracking_id = ?", res.ContentTrackingID).
			Update("created_on", at).Error)
		return res.ContentTrackingID
	}
	add("course-1", "c1", base, startEvent(10))
	newest := add("course-1", "c2", base.Add(3*time.Minute), startEvent(20))
	course2 := add("course-2", "c3", base.Add(2*time.Minute), startEvent(5))
	add("course-3", "c4", base.Add(4*time.Minute), startEvent(0), endEvent(100))
	_, err := svc.Create(ctx, createRequest("c5"), tenant)
	require.NoError(t, err)

	out, err := svc.CourseInProgress(ctx, testUser, tenant)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, newest, out[0].ContentTrackingID)
	assert.Equal(t, course2, out[1].ContentTrackingID)

	none, err := svc.CourseInProgress(ctx, uuid.NewString(), tenant)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCourseInProgress_CapsAtLimit(t *testing.T) {
	svc, _ := newContentService(t)
	ctx := context.Background()
	tenant := uuid.NewString()

	for i := 0; i < InProgressLimit+3; i++ {
		req := createRequest("c1", startEvent(10))
		req.CourseID = uuid.NewString()
		_, err := svc.Create(ctx, req, tenant)
		require.NoError(t, err)
	}

	out, err := svc.CourseInProgress(ctx, testUser, tenant)
	require.NoError(t, err)
	assert.Len(t, out, InProgressLimit)
}
