package domain

import (
	"time"

	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/suggest"
)

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
}

// ContentRecord is a travel content item as owned by the content service.
// The search service never mutates it.
type ContentRecord struct {
	ID          string    `json:"id" validate:"notblank"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Rating      float64   `json:"rating" validate:"gte=0"`
	LikeCount   int64     `json:"likeCount" validate:"gte=0"`
	Budget      float64   `json:"budget"`
	Published   bool      `json:"published"`
	Type        string    `json:"type"`
	UserID      string    `json:"userId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Location    *GeoPoint `json:"location,omitempty" validate:"omitempty"`
}

// IndexDocument is the search projection of a ContentRecord. Every field is
// either copied from the record or derived from it, so the index can always
// be rebuilt from the content service alone.
type IndexDocument struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Rating      float64   `json:"rating"`
	LikeCount   int64     `json:"likeCount"`
	Budget      float64   `json:"budget"`
	Published   bool      `json:"published"`
	Type        string    `json:"type"`
	UserID      string    `json:"userId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Location    *GeoPoint `json:"location,omitempty"`
	Suggestions []string  `json:"suggestions"`
}

// NewIndexDocument projects rec into its index form.
func NewIndexDocument(rec ContentRecord) IndexDocument {
	doc := IndexDocument{
		ID:          rec.ID,
		Title:       rec.Title,
		Description: rec.Description,
		Rating:      rec.Rating,
		LikeCount:   rec.LikeCount,
		Budget:      rec.Budget,
		Published:   rec.Published,
		Type:        rec.Type,
		UserID:      rec.UserID,
		CreatedAt:   rec.CreatedAt.UTC(),
		UpdatedAt:   rec.UpdatedAt.UTC(),
		Suggestions: suggest.Build(rec.Title),
	}
	if rec.Location != nil {
		loc := *rec.Location
		doc.Location = &loc
	}
	return doc
}

// Caller is the authenticated user a query runs on behalf of.
type Caller struct {
	UserID string
	Role   string
}

// BulkFailure describes one document a bulk write rejected.
type BulkFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// BulkResult is the per-document outcome of a bulk upsert.
type BulkResult struct {
	Succeeded int           `json:"succeeded"`
	Failures  []BulkFailure `json:"failures,omitempty"`
}

// RebuildReport summarises a full index rebuild.
type RebuildReport struct {
	Total      int           `json:"total"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	FailedIDs  []string      `json:"failedIds"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"-"`
	DurationMs int64         `json:"durationMs"`
}

// MaxReportedFailures caps RebuildReport.FailedIDs.
const MaxReportedFailures = 100

// RecordFailure counts a failed record, keeping its id while under the cap.
func (r *RebuildReport) RecordFailure(id string) {
	r.Failed++
	if len(r.FailedIDs) < MaxReportedFailures {
		r.FailedIDs = append(r.FailedIDs, id)
	}
}

// Finish stamps the run duration.
func (r *RebuildReport) Finish(now time.Time) {
	r.Duration = now.Sub(r.StartedAt)
	r.DurationMs = r.Duration.Milliseconds()
}
