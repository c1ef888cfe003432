package domain

import (
	"fmt"
	"time"
)

// Source identifies one of the positioning subsystems a sample can come from.
type Source string

const (
	SourceNetwork Source = "network"
	SourceGPS     Source = "gps"
	SourceFused   Source = "fused"
)

// AllSources returns every source in subscription order.
func AllSources() []Source {
	return []Source{SourceNetwork, SourceGPS, SourceFused}
}

// IsValid reports whether s is a known source.
func (s Source) IsValid() bool {
	switch s {
	case SourceNetwork, SourceGPS, SourceFused:
		return true
	}
	return false
}

// Sample is a single location fix reported by the platform.
type Sample struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"` // meters, 0 when unknown
	Source    Source    `json:"source"`
	Time      time.Time `json:"time"`
}

// Validate checks that the coordinates are within WGS84 bounds.
func (s Sample) Validate() error {
	if s.Latitude < -90 || s.Latitude > 90 {
		return fmt.Errorf("%w: latitude %f out of range", ErrInvalidSample, s.Latitude)
	}
	if s.Longitude < -180 || s.Longitude > 180 {
		return fmt.Errorf("%w: longitude %f out of range", ErrInvalidSample, s.Longitude)
	}
	return nil
}

// Coordinates returns the latitude/longitude pair of the sample.
func (s Sample) Coordinates() Coordinates {
	return Coordinates{Latitude: s.Latitude, Longitude: s.Longitude}
}

// Result is a batch of samples delivered together by the fused provider.
// The platform may hold samples for up to Request.MaxWait before delivering.
type Result struct {
	Samples []Sample
}

// Last returns the most recent sample of the batch, or nil when it is empty.
func (r *Result) Last() *Sample {
	if r == nil || len(r.Samples) == 0 {
		return nil
	}
	last := r.Samples[len(r.Samples)-1]
	return &last
}

// Coordinates is a latitude/longitude pair.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
