// Package ncpms is a client for the NCPMS crop pest and disease reference
// service of the Rural Development Administration.
package ncpms

import "time"

const (
	serviceSearch     = "SVC01"
	serviceDetail     = "SVC05"
	searchServiceType = "AA003"
)

// Config holds configuration for the NCPMS client
type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration // per attempt
	RateLimit  float64       // requests per second, 0 disables limiting
	Burst      int
	MaxRetries int
	RetryDelay time.Duration // multiplied by the attempt number
}

// DefaultConfig returns the production endpoint settings.
func DefaultConfig() Config {
	return Config{
		BaseURL:    "http://ncpms.rda.go.kr/npmsAPI/service",
		Timeout:    10 * time.Second,
		RateLimit:  5,
		Burst:      5,
		MaxRetries: 3,
		RetryDelay: 500 * time.Millisecond,
	}
}

// SearchResult is the first hit of a disease search.
type SearchResult struct {
	ReferenceCode string // opaque sickKey
	ThumbnailURL  string
}

// Detail is the plain-text disease description returned by the detail
// service.
type Detail struct {
	ReferenceCode string
	Name          string
	Crop          string
	Condition     string
	Symptoms      string
	Prevention    string
	ImageURL      string // first image of the detail, may be empty
}
