package api

import (
	"time"

	"github.com/starford/catcoverage/internal/aggregate"
	"github.com/starford/catcoverage/internal/annotation"
	"github.com/starford/catcoverage/internal/archive"
)

// CoverageResponse is the full report with the annotation file it came from.
type CoverageResponse struct {
	Checksum string            `json:"checksum" example:"9f86d08..." validate:"required"`
	LoadedAt time.Time         `json:"loaded_at" validate:"required"`
	Report   *aggregate.Report `json:"report" validate:"required"`
}

// AnnotationsResponse lists per-annotation totals and the ok / not-ok split.
type AnnotationsResponse struct {
	Annotations []aggregate.Row `json:"annotations" validate:"required"`
	Split       aggregate.Split `json:"split" validate:"required"`
}

// CollectionsResponse lists (annotation, collection) totals.
type CollectionsResponse struct {
	Collections []aggregate.Row `json:"collections" validate:"required"`
	Total       archive.Size    `json:"total" validate:"required"`
}

// PathsResponse lists the directories carrying one annotation.
type PathsResponse struct {
	Annotation annotation.Annotation `json:"annotation" example:"missing" validate:"required"`
	Paths      []string              `json:"paths" validate:"required"`
	Total      int                   `json:"total" example:"42" validate:"required"`
}
