package services

import (
	"strings"

	"tracker/apperrors"
)

func requireTenant(tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return apperrors.NewValidationError(apperrors.CodeMissingTenant, "tenantId is required")
	}
	return nil
}

// requireList rejects an empty list or any blank element.
func requireList(field string, values []string) error {
	if len(values) == 0 {
		return apperrors.NewValidationError(apperrors.CodeBlankValue, field+" is required")
	}
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return apperrors.NewValidationError(apperrors.CodeBlankValue, field+" must not contain blank values")
		}
	}
	return nil
}

func requireUUIDList(field string, values []string) error {
	if len(values) == 0 {
		return apperrors.NewValidationError(apperrors.CodeBlankValue, field+" is required")
	}
	for _, v := range values {
		if err := requireUUID(field, v); err != nil {
			return err
		}
	}
	return nil
}

// dedupe drops repeated values, keeping first occurrences in order.
func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
