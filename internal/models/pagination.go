package models

// SortByCreatedTime orders newest first; any other sort key orders oldest first.
const SortByCreatedTime = "ctime"

// Page is a validated pagination request.
type Page struct {
	Page   int    `json:"page"`
	Limit  int    `json:"limit"`
	SortBy string `json:"sort_by"`
}

// Offset is the number of rows skipped before this page.
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Descending reports whether rows are ordered newest first.
func (p Page) Descending() bool {
	return p.SortBy == SortByCreatedTime
}

// Validate rejects pages that cannot be served.
func (p Page) Validate(maxLimit int) error {
	if p.Page < 1 {
		return NewValidationError("page must be at least 1")
	}
	if p.Limit <= 0 {
		return NewValidationError("limit must be greater than 0")
	}
	if maxLimit > 0 && p.Limit > maxLimit {
		return NewValidationError("limit is too large")
	}
	return nil
}
