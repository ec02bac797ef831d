package audit

import (
	"context"
	"fmt"
	"time"
)

// Result wraps timeline rows with paging information.
type Result struct {
	Rows   []Entry
	Paging PagingInfo
}

// PagingInfo describes the timeline window returned.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	HasNext  bool `json:"hasNext"`
	PrevPage int  `json:"prevPage,omitempty"`
	NextPage int  `json:"nextPage,omitempty"`
}

// Service coordinates audit timeline reads and retention.
type Service struct {
	repo Repository
}

// NewService constructs an audit service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline fetches audit entries with paging. It asks for one extra row
// to learn whether a next page exists.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.repo.Timeline(ctx, filters, offset, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Sweep removes entries older than the retention window.
func (s *Service) Sweep(ctx context.Context, now time.Time) (int64, error) {
	if s.repo == nil {
		return 0, fmt.Errorf("audit: repository not configured")
	}
	return s.repo.DeleteOlderThan(ctx, now.Add(-RetentionWindow))
}
