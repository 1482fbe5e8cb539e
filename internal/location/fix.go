package location

import (
	"math"
	"time"
)

const (
	ProviderGPS     = "gps"
	ProviderNetwork = "network"

	earthRadiusMeters = 6371008.8
)

// Fix is a single location estimate. A Fix is never mutated once produced; a
// better estimate supersedes it.
type Fix struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"` // radius in meters, <= 0 when unknown
	Time      time.Time `json:"time"`
	Provider  string    `json:"provider"`
}

// HasAccuracy reports whether the fix carries a usable accuracy radius.
func (f Fix) HasAccuracy() bool {
	return f.Accuracy > 0 && !math.IsNaN(f.Accuracy) && !math.IsInf(f.Accuracy, 0)
}

// Supersedes reports whether f should replace current as the retained fix.
// Smaller known radius wins, fixes without a radius rank below every fix with
// one, and ties go to the newer timestamp.
func (f Fix) Supersedes(current *Fix) bool {
	if current == nil {
		return true
	}

	switch known, currentKnown := f.HasAccuracy(), current.HasAccuracy(); {
	case known && !currentKnown:
		return true
	case !known && currentKnown:
		return false
	case known && f.Accuracy != current.Accuracy:
		return f.Accuracy < current.Accuracy
	}

	return f.Time.After(current.Time)
}

// DistanceTo returns the great-circle distance in meters.
func (f Fix) DistanceTo(other Fix) float64 {
	lat1 := f.Latitude * math.Pi / 180
	lat2 := other.Latitude * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (other.Longitude - f.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(a)))
}
