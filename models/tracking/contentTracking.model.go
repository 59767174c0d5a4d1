package tracking

import (
	"time"

	"gorm.io/datatypes"
)

// Event identifiers understood by status replay. Other values are stored but
// do not move the status.
const (
	EidStart = "START"
	EidEnd   = "END"
)

// ContentTracking is one tracking record per (tenant, user, course, unit, content)
type ContentTracking struct {
	ContentTrackingID string    `gorm:"primaryKey;type:varchar(36);column:content_tracking_id" json:"contentTrackingId"`
	TenantID          string    `gorm:"type:varchar(36);not null;index:idx_content_natural_key,priority:1" json:"tenantId"`
	UserID            string    `gorm:"type:varchar(36);not null;index:idx_content_natural_key,priority:2" json:"userId"`
	CourseID          string    `gorm:"type:varchar(255);not null;index:idx_content_natural_key,priority:3" json:"courseId"`
	UnitID            string    `gorm:"type:varchar(255);not null;default:'';index:idx_content_natural_key,priority:4" json:"unitId"`
	ContentID         string    `gorm:"type:varchar(255);not null;index:idx_content_natural_key,priority:5" json:"contentId"`
	ContentType       string    `gorm:"type:varchar(100);default:''" json:"contentType"`
	ContentMime       string    `gorm:"type:varchar(100);default:''" json:"contentMime"`
	CreatedOn         time.Time `gorm:"autoCreateTime;index" json:"createdOn"`
	LastAccessOn      time.Time `gorm:"autoCreateTime" json:"lastAccessOn"`
	UpdatedOn         time.Time `gorm:"autoUpdateTime" json:"updatedOn"`

	// Relations
	Details []ContentTrackingDetail `gorm:"foreignKey:ContentTrackingID;references:ContentTrackingID;constraint:OnDelete:CASCADE" json:"detailsObject,omitempty"`
}

func (ContentTracking) TableName() string {
	return "user_content_tracking"
}

// ContentTrackingDetail is one immutable interaction event. Rows are replayed
// in (created_on, id) order.
type ContentTrackingDetail struct {
	ID                uint                             `gorm:"primaryKey;autoIncrement" json:"id"`
	ContentTrackingID string                           `gorm:"type:varchar(36);not null;index" json:"contentTrackingId"`
	UserID            string                           `gorm:"type:varchar(36);not null;index" json:"userId"`
	Eid               string                           `gorm:"type:varchar(50);not null;index" json:"eid"`
	Edata             datatypes.JSONType[EventData]    `json:"edata"`
	Duration          *float64                         `json:"duration"`
	Mode              string                           `gorm:"type:varchar(100);default:''" json:"mode"`
	PageID            string                           `gorm:"column:pageid;type:varchar(255);default:''" json:"pageid"`
	Type              string                           `gorm:"type:varchar(100);default:''" json:"type"`
	Subtype           string                           `gorm:"type:varchar(100);default:''" json:"subtype"`
	Summary           datatypes.JSONSlice[SummaryItem] `json:"summary"`
	Progress          *float64                         `json:"progress"`
	CreatedOn         time.Time                        `gorm:"autoCreateTime;index" json:"createdOn"`
}

func (ContentTrackingDetail) TableName() string {
	return "user_content_tracking_details"
}

// EventData is the structured edata payload of an interaction event. Every
// field is optional.
type EventData struct {
	Duration *float64      `json:"duration,omitempty"`
	Mode     string        `json:"mode,omitempty"`
	PageID   string        `json:"pageid,omitempty"`
	Type     string        `json:"type,omitempty"`
	Subtype  string        `json:"subtype,omitempty"`
	Summary  []SummaryItem `json:"summary,omitempty"`
}

// SummaryItem is one element of the edata summary list. Players send one
// metric per element, so at most one field is usually set.
type SummaryItem struct {
	Progress          *float64 `json:"progress,omitempty"`
	TotalLength       *float64 `json:"totallength,omitempty"`
	VisitedLength     *float64 `json:"visitedlength,omitempty"`
	VisitedContentEnd *bool    `json:"visitedcontentend,omitempty"`
	TotalSeekedLength *float64 `json:"totalseekedlength,omitempty"`
	EndPageSeen       *bool    `json:"endpageseen,omitempty"`
}

// ContentNaturalKey is the caller-meaningful identity of a ContentTracking.
type ContentNaturalKey struct {
	TenantID  string
	UserID    string
	CourseID  string
	UnitID    string
	ContentID string
}
