// Package filter builds predicates over close approaches for catalog queries.
package filter

import (
	"cmp"
	"iter"
	"math"
	"time"

	"github.com/signalsfoundry/neo-explorer/model"
)

// Predicate reports whether a close approach matches a criterion. Predicates
// must be pure: the catalog may evaluate them in any order and stops at the
// first false.
type Predicate func(*model.CloseApproach) bool

// Op is a comparison operator.
type Op int

const (
	OpEq Op = iota
	OpGE
	OpLE
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "=="
	case OpGE:
		return ">="
	case OpLE:
		return "<="
	default:
		return "?"
	}
}

// Attribute compares one attribute of an approach against a reference value.
type Attribute[T cmp.Ordered] struct {
	Op    Op
	Value T
	Get   func(*model.CloseApproach) T
}

// Match applies the comparison to ca.
func (f Attribute[T]) Match(ca *model.CloseApproach) bool {
	v := f.Get(ca)
	switch f.Op {
	case OpEq:
		return cmp.Compare(v, f.Value) == 0
	case OpGE:
		return cmp.Compare(v, f.Value) >= 0
	case OpLE:
		return cmp.Compare(v, f.Value) <= 0
	default:
		return false
	}
}

// Predicate adapts the filter to a Predicate.
func (f Attribute[T]) Predicate() Predicate {
	return f.Match
}

// floatAttribute never matches NaN values; cmp.Compare orders NaN below
// every number, which would let unknown values through an upper bound.
func floatAttribute(op Op, value float64, get func(*model.CloseApproach) float64) Predicate {
	attr := Attribute[float64]{Op: op, Value: value, Get: get}
	return func(ca *model.CloseApproach) bool {
		if math.IsNaN(get(ca)) {
			return false
		}
		return attr.Match(ca)
	}
}

// Date compares the calendar day (UTC) of the approach with day.
func Date(op Op, day time.Time) Predicate {
	y, m, d := day.UTC().Date()
	ref := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return Attribute[int64]{Op: op, Value: ref.Unix(), Get: func(ca *model.CloseApproach) int64 {
		y, m, d := ca.Time.UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
	}}.Predicate()
}

// Distance compares the nominal approach distance in au.
func Distance(op Op, au float64) Predicate {
	return floatAttribute(op, au, func(ca *model.CloseApproach) float64 { return ca.Distance })
}

// Velocity compares the relative approach velocity in km/s.
func Velocity(op Op, kms float64) Predicate {
	return floatAttribute(op, kms, func(ca *model.CloseApproach) float64 { return ca.Velocity })
}

// Diameter compares the diameter of the approaching NEO in km. Approaches must
// be linked; unknown diameters never match.
func Diameter(op Op, km float64) Predicate {
	return floatAttribute(op, km, func(ca *model.CloseApproach) float64 { return ca.NEO.Diameter })
}

// Hazardous matches approaches whose NEO hazard flag equals want.
func Hazardous(want bool) Predicate {
	return func(ca *model.CloseApproach) bool {
		return ca.NEO.Hazardous == want
	}
}

// Criteria holds the user-selectable query options. Nil fields are unset.
type Criteria struct {
	Date      *time.Time
	StartDate *time.Time
	EndDate   *time.Time

	DistanceMin *float64
	DistanceMax *float64
	VelocityMin *float64
	VelocityMax *float64
	DiameterMin *float64
	DiameterMax *float64

	Hazardous *bool
}

// Create turns criteria into predicates, one per set field.
func Create(c Criteria) []Predicate {
	var out []Predicate
	if c.Date != nil {
		out = append(out, Date(OpEq, *c.Date))
	}
	if c.StartDate != nil {
		out = append(out, Date(OpGE, *c.StartDate))
	}
	if c.EndDate != nil {
		out = append(out, Date(OpLE, *c.EndDate))
	}
	if c.DistanceMin != nil {
		out = append(out, Distance(OpGE, *c.DistanceMin))
	}
	if c.DistanceMax != nil {
		out = append(out, Distance(OpLE, *c.DistanceMax))
	}
	if c.VelocityMin != nil {
		out = append(out, Velocity(OpGE, *c.VelocityMin))
	}
	if c.VelocityMax != nil {
		out = append(out, Velocity(OpLE, *c.VelocityMax))
	}
	if c.DiameterMin != nil {
		out = append(out, Diameter(OpGE, *c.DiameterMin))
	}
	if c.DiameterMax != nil {
		out = append(out, Diameter(OpLE, *c.DiameterMax))
	}
	if c.Hazardous != nil {
		out = append(out, Hazardous(*c.Hazardous))
	}
	return out
}

// All reports whether every predicate matches ca, stopping at the first miss.
// An empty set matches everything.
func All(ca *model.CloseApproach, preds []Predicate) bool {
	for _, p := range preds {
		if !p(ca) {
			return false
		}
	}
	return true
}

// Limit yields at most n elements of seq. n <= 0 means no limit.
func Limit[T any](seq iter.Seq[T], n int) iter.Seq[T] {
	if n <= 0 {
		return seq
	}
	return func(yield func(T) bool) {
		i := 0
		for v := range seq {
			if !yield(v) {
				return
			}
			i++
			if i >= n {
				return
			}
		}
	}
}
