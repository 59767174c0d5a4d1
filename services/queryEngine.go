package services

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"tracker/apperrors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultPageSize caps searches that carry no complete pagination.
const DefaultPageSize = 200

// Upper bounds of explicit pagination. Their product fits the offset.
const (
	MaxPageSize = 1000
	MaxPage     = 1000000
)

// FieldKind decides how a filter value is validated.
type FieldKind int

const (
	FieldText FieldKind = iota
	FieldUUID
)

// FilterField maps an allowed filter key to its column.
type FilterField struct {
	Column string
	Kind   FieldKind
}

// QuerySchema holds the allow-lists of one record type.
type QuerySchema struct {
	Filters     map[string]FilterField
	Sortable    map[string]string // sort field -> column
	DefaultSort string
}

var ContentQuerySchema = QuerySchema{
	Filters: map[string]FilterField{
		"contentTrackingId": {Column: "content_tracking_id", Kind: FieldUUID},
		"userId":            {Column: "user_id", Kind: FieldUUID},
		"courseId":          {Column: "course_id"},
		"unitId":            {Column: "unit_id"},
		"contentId":         {Column: "content_id"},
		"contentType":       {Column: "content_type"},
		"contentMime":       {Column: "content_mime"},
	},
	Sortable: map[string]string{
		"createdOn":    "created_on",
		"updatedOn":    "updated_on",
		"lastAccessOn": "last_access_on",
		"courseId":     "course_id",
		"contentId":    "content_id",
	},
	DefaultSort: "created_on",
}

var AssessmentQuerySchema = QuerySchema{
	Filters: map[string]FilterField{
		"assessmentTrackingId": {Column: "assessment_tracking_id", Kind: FieldUUID},
		"userId":               {Column: "user_id", Kind: FieldUUID},
		"courseId":             {Column: "course_id"},
		"batchId":              {Column: "batch_id"},
		"contentId":            {Column: "content_id"},
		"attemptId":            {Column: "attempt_id"},
		"unitId":               {Column: "unit_id"},
	},
	Sortable: map[string]string{
		"createdOn":       "created_on",
		"updatedOn":       "updated_on",
		"lastAttemptedOn": "last_attempted_on",
		"totalScore":      "total_score",
		"timeSpent":       "time_spent",
	},
	DefaultSort: "created_on",
}

// SearchRequest is the raw search body. Keys are checked against the schema
// before anything is compiled.
type SearchRequest struct {
	Filters    map[string]interface{} `json:"filters"`
	Pagination map[string]interface{} `json:"pagination"`
	Sort       map[string]interface{} `json:"sort"`
}

// Condition is one compiled equality or membership predicate.
type Condition struct {
	Column string
	Values []string
}

// CompiledQuery is a validated, tenant scoped search ready to run.
type CompiledQuery struct {
	TenantID   string
	Conditions []Condition
	Limit      int
	Offset     int
	OrderBy    string
	Direction  string // ASC or DESC
}

// QueryEngine validates search requests against one schema.
type QueryEngine struct {
	schema QuerySchema
}

func NewQueryEngine(schema QuerySchema) *QueryEngine {
	return &QueryEngine{schema: schema}
}

// Compile validates req and returns the query it describes, always scoped to
// tenantID. Any error is a validation error.
func (e *QueryEngine) Compile(req SearchRequest, tenantID string) (*CompiledQuery, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, apperrors.NewValidationError(apperrors.CodeMissingTenant, "tenantId is required")
	}

	q := &CompiledQuery{TenantID: tenantID, OrderBy: e.schema.DefaultSort, Direction: "ASC"}

	conds, err := e.compileFilters(req.Filters)
	if err != nil {
		return nil, err
	}
	q.Conditions = conds

	if q.Limit, q.Offset, err = compilePagination(req.Pagination); err != nil {
		return nil, err
	}

	if err := e.compileSort(req.Sort, q); err != nil {
		return nil, err
	}
	return q, nil
}

func (e *QueryEngine) compileFilters(filters map[string]interface{}) ([]Condition, error) {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]Condition, 0, len(keys))
	for _, key := range keys {
		field, ok := e.schema.Filters[key]
		if !ok {
			return nil, apperrors.NewValidationError(apperrors.CodeInvalidFilter,
				fmt.Sprintf("invalid filter key: %s", key))
		}
		values, err := filterValues(key, filters[key])
		if err != nil {
			return nil, err
		}
		if field.Kind == FieldUUID {
			for _, v := range values {
				if _, err := uuid.Parse(v); err != nil {
					return nil, apperrors.NewValidationError(apperrors.CodeInvalidUUID,
						fmt.Sprintf("%s must be a valid UUID", key))
				}
			}
		}
		conds = append(conds, Condition{Column: field.Column, Values: values})
	}
	return conds, nil
}

// filterValues accepts a non-blank string or a non-empty list of them.
func filterValues(key string, raw interface{}) ([]string, error) {
	blank := apperrors.NewValidationError(apperrors.CodeBlankValue,
		fmt.Sprintf("filter %s must not be blank", key))

	switch v := raw.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, blank
		}
		return []string{v}, nil
	case []string:
		if len(v) == 0 {
			return nil, blank
		}
		for _, s := range v {
			if strings.TrimSpace(s) == "" {
				return nil, blank
			}
		}
		return v, nil
	case []interface{}:
		if len(v) == 0 {
			return nil, blank
		}
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, apperrors.NewValidationError(apperrors.CodeInvalidFilter,
					fmt.Sprintf("filter %s must contain only strings", key))
			}
			if strings.TrimSpace(s) == "" {
				return nil, blank
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, apperrors.NewValidationError(apperrors.CodeInvalidFilter,
			fmt.Sprintf("filter %s must be a string or a list of strings", key))
	}
}

// compilePagination returns the default cap with no offset unless both
// pageSize and page are positive.
func compilePagination(p map[string]interface{}) (limit, offset int, err error) {
	var pageSize, page int
	for key, raw := range p {
		n, ok := asInt(raw)
		if !ok {
			return 0, 0, apperrors.NewValidationError(apperrors.CodeInvalidPaging,
				fmt.Sprintf("pagination %s must be an integer", key))
		}
		switch key {
		case "pageSize":
			pageSize = n
		case "page":
			page = n
		default:
			return 0, 0, apperrors.NewValidationError(apperrors.CodeInvalidPaging,
				fmt.Sprintf("invalid pagination key: %s", key))
		}
	}
	if pageSize > MaxPageSize {
		return 0, 0, apperrors.NewValidationError(apperrors.CodeInvalidPaging,
			fmt.Sprintf("pagination pageSize must not exceed %d", MaxPageSize))
	}
	if page > MaxPage {
		return 0, 0, apperrors.NewValidationError(apperrors.CodeInvalidPaging,
			fmt.Sprintf("pagination page must not exceed %d", MaxPage))
	}
	if pageSize > 0 && page > 0 {
		return pageSize, pageSize * (page - 1), nil
	}
	return DefaultPageSize, 0, nil
}

func asInt(raw interface{}) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		if v < math.MinInt32 || v > math.MaxInt32 {
			return 0, false
		}
		return int(v), true
	case float64:
		if v != math.Trunc(v) || v < math.MinInt32 || v > math.MaxInt32 {
			return 0, false
		}
		return int(v), true
	default:
		return 0, false
	}
}

func (e *QueryEngine) compileSort(s map[string]interface{}, q *CompiledQuery) error {
	if len(s) == 0 {
		return nil
	}

	var field, order string
	for key, raw := range s {
		value, ok := raw.(string)
		if !ok || strings.TrimSpace(value) == "" {
			return apperrors.NewValidationError(apperrors.CodeBlankValue,
				fmt.Sprintf("sort %s must not be blank", key))
		}
		switch key {
		case "field":
			field = value
		case "order":
			order = value
		default:
			return apperrors.NewValidationError(apperrors.CodeInvalidSort,
				fmt.Sprintf("invalid sort key: %s", key))
		}
	}
	if field == "" || order == "" {
		return apperrors.NewValidationError(apperrors.CodeInvalidSort, "sort requires both field and order")
	}

	column, ok := e.schema.Sortable[field]
	if !ok {
		return apperrors.NewValidationError(apperrors.CodeInvalidSort,
			fmt.Sprintf("invalid sort field: %s", field))
	}
	if order != "asc" && order != "desc" {
		return apperrors.NewValidationError(apperrors.CodeInvalidSort, "sort order must be asc or desc")
	}

	q.OrderBy = column
	q.Direction = strings.ToUpper(order)
	return nil
}

// Apply adds the compiled predicates to db. Columns only ever come from the
// schema; caller values are bound as parameters.
func (q *CompiledQuery) Apply(db *gorm.DB) *gorm.DB {
	db = db.Where("tenant_id = ?", q.TenantID)
	for _, c := range q.Conditions {
		if len(c.Values) == 1 {
			db = db.Where(c.Column+" = ?", c.Values[0])
		} else {
			db = db.Where(c.Column+" IN ?", c.Values)
		}
	}
	if q.OrderBy != "" {
		db = db.Order(q.OrderBy + " " + q.Direction)
	}
	return db.Limit(q.Limit).Offset(q.Offset)
}
