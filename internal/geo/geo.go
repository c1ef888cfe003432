package geo

import (
	"math"
	"sync"
	"time"
)

// EarthRadiusMeters is the mean earth radius used for distance math.
const EarthRadiusMeters = 6371008.8

// Location represents a geographic coordinate.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Provider defines the interface for obtaining the current location.
type Provider interface {
	GetLocation() Location
}

// StaticProvider implements Provider with a fixed location.
type StaticProvider struct {
	Lat float64
	Lng float64
}

// NewStaticProvider creates a provider that always returns the same location.
func NewStaticProvider(lat, lng float64) *StaticProvider {
	return &StaticProvider{
		Lat: lat,
		Lng: lng,
	}
}

// GetLocation returns the fixed location.
func (s *StaticProvider) GetLocation() Location {
	return Location{
		Latitude:  s.Lat,
		Longitude: s.Lng,
	}
}

// WalkProvider moves away from a start point along a constant bearing.
type WalkProvider struct {
	start   Location
	bearing float64 // degrees clockwise from north
	speed   float64 // meters per second

	mu    sync.Mutex
	begun time.Time
	now   func() time.Time
}

// NewWalkProvider creates a provider travelling at speed m/s on bearing.
func NewWalkProvider(start Location, bearing, speed float64) *WalkProvider {
	return &WalkProvider{
		start:   start,
		bearing: bearing,
		speed:   speed,
		now:     time.Now,
	}
}

// GetLocation returns the position reached since the first call.
func (w *WalkProvider) GetLocation() Location {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if w.begun.IsZero() {
		w.begun = now
	}
	return Offset(w.start, w.bearing, w.speed*now.Sub(w.begun).Seconds())
}

// Distance returns the great-circle distance in meters between a and b.
func Distance(a, b Location) float64 {
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := lat2 - lat1
	dLng := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Offset returns the point reached from origin after meters on bearing.
func Offset(origin Location, bearing, meters float64) Location {
	if meters == 0 {
		return origin
	}
	delta := meters / EarthRadiusMeters
	theta := radians(bearing)
	lat1 := radians(origin.Latitude)
	lng1 := radians(origin.Longitude)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(delta) + math.Cos(lat1)*math.Sin(delta)*math.Cos(theta))
	lng2 := lng1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(lat1),
		math.Cos(delta)-math.Sin(lat1)*math.Sin(lat2),
	)

	// normalise to [-180, 180)
	lng := math.Mod(degrees(lng2)+540, 360) - 180
	return Location{Latitude: degrees(lat2), Longitude: lng}
}

func radians(d float64) float64 { return d * math.Pi / 180 }
func degrees(r float64) float64 { return r * 180 / math.Pi }
