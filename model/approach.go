package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

var (
	// ErrInvalidTime is returned when an approach time cannot be parsed.
	ErrInvalidTime = errors.New("invalid approach time")
	// ErrInvalidMeasurement is returned when a distance or velocity is present but not numeric.
	ErrInvalidMeasurement = errors.New("invalid measurement")
)

// CloseApproach is a single recorded pass of an NEO near Earth.
//
// Until the catalog links it, an approach knows its object only by the
// designation key and NEO is nil. After linking NEO is a non-owning back
// reference whose Designation equals that key.
type CloseApproach struct {
	designation string

	Time     time.Time // UTC, minute precision
	Distance float64   // au
	Velocity float64   // km/s

	NEO *NearEarthObject
}

// NewCloseApproach builds an unlinked approach from raw text fields. time uses
// the "2006-Jan-02 15:04" calendar form of the JPL close-approach API. Empty
// distance or velocity becomes NaN.
func NewCloseApproach(designation, when, distance, velocity string) (*CloseApproach, error) {
	t, err := ParseTime(when)
	if err != nil {
		return nil, err
	}
	return NewCloseApproachAt(designation, t, distance, velocity)
}

// NewCloseApproachAt is NewCloseApproach for a time that is already parsed,
// such as one derived from a Julian date. t is truncated to the minute.
func NewCloseApproachAt(designation string, t time.Time, distance, velocity string) (*CloseApproach, error) {
	dist, err := parseMeasurement("distance", distance)
	if err != nil {
		return nil, err
	}
	vel, err := parseMeasurement("velocity", velocity)
	if err != nil {
		return nil, err
	}
	return &CloseApproach{
		designation: strings.TrimSpace(designation),
		Time:        t.UTC().Truncate(time.Minute),
		Distance:    dist,
		Velocity:    vel,
	}, nil
}

// NewUnlinkedApproach builds an approach from already-typed values.
func NewUnlinkedApproach(designation string, t time.Time, distance, velocity float64) *CloseApproach {
	return &CloseApproach{
		designation: designation,
		Time:        t.UTC().Truncate(time.Minute),
		Distance:    distance,
		Velocity:    velocity,
	}
}

func parseMeasurement(name, raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrInvalidMeasurement, name, raw)
	}
	return v, nil
}

// Designation is the primary designation of the approaching object.
func (a *CloseApproach) Designation() string {
	return a.designation
}

// Linked reports whether the approach has been resolved to its NEO.
func (a *CloseApproach) Linked() bool {
	return a.NEO != nil
}

// TimeString formats the approach time without the meaningless seconds.
func (a *CloseApproach) TimeString() string {
	return FormatTime(a.Time)
}

// JulianDate returns the approach time as a Julian date.
func (a *CloseApproach) JulianDate() float64 {
	year, month, day := a.Time.Date()
	hour, minute, sec := a.Time.Clock()
	return satellite.JDay(year, int(month), day, hour, minute, sec)
}

func (a *CloseApproach) String() string {
	who := a.designation
	if a.NEO != nil {
		who = a.NEO.FullName()
	}
	return fmt.Sprintf("On %s, '%s' approaches Earth at a distance of %.2f au and a velocity of %.2f km/s.",
		a.TimeString(), who, a.Distance, a.Velocity)
}

// Serialize returns the flat form used for CSV rows. The approach must be linked.
func (a *CloseApproach) Serialize() Record {
	rec := Record{
		{Key: FieldDatetimeUTC, Value: a.TimeString()},
		{Key: FieldDistanceAU, Value: a.Distance},
		{Key: FieldVelocityKmS, Value: a.Velocity},
	}
	return append(rec, a.NEO.Serialize()...)
}

// SerializeNested returns the JSON form, with the NEO fields under "neo".
// The approach must be linked.
func (a *CloseApproach) SerializeNested() Record {
	return Record{
		{Key: FieldDatetimeUTC, Value: a.TimeString()},
		{Key: FieldDistanceAU, Value: a.Distance},
		{Key: FieldVelocityKmS, Value: a.Velocity},
		{Key: FieldNEO, Value: a.NEO.Serialize()},
	}
}
