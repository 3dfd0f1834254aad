package geo

import (
	"fmt"
	"time"
)

// Source identifies which platform mechanism produced a position fix.
type Source string

const (
	SourceSatellite Source = "satellite"
	SourceNetwork   Source = "network"
	SourcePassive   Source = "passive"
)

func (s Source) IsValid() bool {
	switch s {
	case SourceSatellite, SourceNetwork, SourcePassive:
		return true
	}
	return false
}

// Point is a bare coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (p Point) Validate() error {
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("invalid latitude: %f", p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("invalid longitude: %f", p.Lon)
	}
	return nil
}

// PositionFix is a single reported device position.
type PositionFix struct {
	Point     Point     `json:"point"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
	Source    Source    `json:"source"`
}

func (f PositionFix) Validate() error {
	if err := f.Point.Validate(); err != nil {
		return err
	}
	if f.Accuracy < 0 {
		return fmt.Errorf("invalid accuracy: %f", f.Accuracy)
	}
	return nil
}

// Better reports whether f should replace old as the best known fix.
// A more recent fix wins; between fixes of the same age the more
// accurate one wins.
func (f PositionFix) Better(old *PositionFix) bool {
	if old == nil {
		return true
	}
	if !f.Timestamp.Equal(old.Timestamp) {
		return f.Timestamp.After(old.Timestamp)
	}
	return f.Accuracy < old.Accuracy
}

// Address is a resolved human-readable address together with the
// coordinate it belongs to, if known.
type Address struct {
	Lines []string `json:"lines"`
	Point *Point   `json:"point,omitempty"`
}
