package entity

import (
	"time"

	"github.com/google/uuid"
)

// MaxSourceURLs caps the number of URLs a single job may carry.
const MaxSourceURLs = 5

type SourceType string

const (
	SourceVideo SourceType = "video"
	SourcePhoto SourceType = "photo"
	SourceVoice SourceType = "voice"
	SourcePaste SourceType = "paste"
	SourceLink  SourceType = "link"
)

func (s SourceType) Valid() bool {
	switch s {
	case SourceVideo, SourcePhoto, SourceVoice, SourcePaste, SourceLink:
		return true
	}
	return false
}

// IsURLBased reports whether the source arrives as URLs rather than
// pasted text or an uploaded media reference.
func (s SourceType) IsURLBased() bool {
	return s == SourceVideo || s == SourceLink
}

type ContentType string

const (
	ContentVideo     ContentType = "video"
	ContentSlideshow ContentType = "slideshow"
	ContentImagePost ContentType = "image_post"
	ContentWebpage   ContentType = "webpage"
	ContentUnknown   ContentType = "unknown"
)

type ExtractionMethod string

const (
	MethodVideoExtractor     ExtractionMethod = "video_extractor"
	MethodSlideshowExtractor ExtractionMethod = "slideshow_extractor"
	MethodVisionAPI          ExtractionMethod = "vision_api"
	MethodOCR                ExtractionMethod = "ocr"
	MethodWebpageScrape      ExtractionMethod = "webpage_scrape"
)

type JobStatus string

const (
	StatusPending        JobStatus = "pending"
	StatusProcessing     JobStatus = "processing"
	StatusCompleted      JobStatus = "completed"
	StatusFailed         JobStatus = "failed"
	StatusCancelled      JobStatus = "cancelled"
	StatusNotARecipe     JobStatus = "not_a_recipe"
	StatusWebsiteBlocked JobStatus = "website_blocked"
)

// Terminal reports whether no further transition is permitted out of s.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusNotARecipe, StatusWebsiteBlocked:
		return true
	}
	return false
}

// transitions lists the statuses a job may move to from each pre-terminal
// status. Terminal statuses have no outgoing edges.
// pending -> completed exists only for the duplicate short-circuit.
var transitions = map[JobStatus][]JobStatus{
	StatusPending: {StatusProcessing, StatusCancelled, StatusCompleted},
	StatusProcessing: {
		StatusCompleted, StatusFailed, StatusCancelled,
		StatusNotARecipe, StatusWebsiteBlocked,
	},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to JobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionSources returns every status from which a job may legally move
// to the given status. Used to build guarded conditional updates.
func TransitionSources(to JobStatus) []JobStatus {
	var from []JobStatus
	for src, nexts := range transitions {
		for _, next := range nexts {
			if next == to {
				from = append(from, src)
				break
			}
		}
	}
	return from
}

type ExtractionJob struct {
	ID               uuid.UUID         `json:"id"`
	SourceType       SourceType        `json:"source_type"`
	SourceURLs       []string          `json:"source_urls,omitempty"`
	PasteText        *string           `json:"paste_text,omitempty"`
	MediaRef         *string           `json:"media_ref,omitempty"`
	ContentType      *ContentType      `json:"content_type,omitempty"`
	ExtractionMethod *ExtractionMethod `json:"extraction_method,omitempty"`
	Status           JobStatus         `json:"status"`
	FailureReason    *FailureReason    `json:"failure_reason,omitempty"`
	ExistingRecipeID *uuid.UUID        `json:"existing_recipe_id,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// PrimarySourceURL returns the first source URL, or "" for non-URL sources.
func (j *ExtractionJob) PrimarySourceURL() string {
	if len(j.SourceURLs) == 0 {
		return ""
	}
	return j.SourceURLs[0]
}
