package tracking

import (
	"time"

	"gorm.io/datatypes"
)

// AssessmentTracking is one submitted attempt of an assessment. The natural
// key is (tenant, user, course, content, attempt).
type AssessmentTracking struct {
	AssessmentTrackingID string         `gorm:"primaryKey;type:varchar(36);column:assessment_tracking_id" json:"assessmentTrackingId"`
	TenantID             string         `gorm:"type:varchar(36);not null;index:idx_assessment_natural_key,priority:1" json:"tenantId"`
	UserID               string         `gorm:"type:varchar(36);not null;index:idx_assessment_natural_key,priority:2" json:"userId"`
	CourseID             string         `gorm:"type:varchar(255);not null;index:idx_assessment_natural_key,priority:3" json:"courseId"`
	ContentID            string         `gorm:"type:varchar(255);not null;index:idx_assessment_natural_key,priority:4" json:"contentId"`
	AttemptID            string         `gorm:"type:varchar(255);not null;index:idx_assessment_natural_key,priority:5" json:"attemptId"`
	BatchID              string         `gorm:"type:varchar(255);default:''" json:"batchId"`
	UnitID               string         `gorm:"type:varchar(255);default:''" json:"unitId"`
	TotalMaxScore        float64        `gorm:"default:0" json:"totalMaxScore"`
	TotalScore           float64        `gorm:"default:0" json:"totalScore"`
	TimeSpent            float64        `gorm:"default:0" json:"timeSpent"`
	AssessmentSummary    datatypes.JSON `json:"assessmentSummary"`
	LastAttemptedOn      time.Time      `gorm:"index" json:"lastAttemptedOn"`
	CreatedOn            time.Time      `gorm:"autoCreateTime;index" json:"createdOn"`
	UpdatedOn            time.Time      `gorm:"autoUpdateTime" json:"updatedOn"`

	// Relations
	ScoreDetails []AssessmentScoreDetail `gorm:"foreignKey:AssessmentTrackingID;references:AssessmentTrackingID;constraint:OnDelete:CASCADE" json:"scoreDetails,omitempty"`
}

func (AssessmentTracking) TableName() string {
	return "assessment_tracking"
}

// AssessmentScoreDetail is the per-question result of an attempt. Rows are
// written once with their owning attempt.
type AssessmentScoreDetail struct {
	ID                   uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	AssessmentTrackingID string         `gorm:"type:varchar(36);not null;index" json:"assessmentTrackingId"`
	UserID               string         `gorm:"type:varchar(36);not null;index" json:"userId"`
	QuestionID           string         `gorm:"type:varchar(255);not null" json:"questionId"`
	SectionID            string         `gorm:"type:varchar(255);default:''" json:"sectionId"`
	Pass                 string         `gorm:"type:varchar(10);default:''" json:"pass"` // Yes, No
	ResValue             datatypes.JSON `json:"resValue"`
	Duration             float64        `gorm:"default:0" json:"duration"`
	Score                float64        `gorm:"default:0" json:"score"`
	MaxScore             float64        `gorm:"default:0" json:"maxScore"`
	QueTitle             string         `gorm:"type:text" json:"queTitle"`
	CreatedOn            time.Time      `gorm:"autoCreateTime" json:"createdOn"`
}

func (AssessmentScoreDetail) TableName() string {
	return "assessment_tracking_score_detail"
}

// AssessmentNaturalKey is the caller-meaningful identity of an AssessmentTracking.
type AssessmentNaturalKey struct {
	TenantID  string
	UserID    string
	CourseID  string
	ContentID string
	AttemptID string
}
