package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidDiameter is returned when a diameter field is present but is not a number.
var ErrInvalidDiameter = errors.New("invalid diameter")

// NearEarthObject is a catalogued small body whose orbit brings it close to Earth.
//
// Name is nil when the object has no IAU name; the empty string is never
// stored. Diameter is NaN when unknown. Approaches is populated only by the
// catalog's link pass.
type NearEarthObject struct {
	Designation string
	Name        *string
	Diameter    float64 // km
	Hazardous   bool

	Approaches []*CloseApproach
}

// NewNearEarthObject builds an unlinked NEO from raw text fields as they appear
// in the source data: an empty name means no name, an empty diameter means
// unknown, and hazardous is "Y" (any case) for potentially hazardous objects.
func NewNearEarthObject(designation, name, diameter, hazardous string) (*NearEarthObject, error) {
	neo := &NearEarthObject{
		Designation: strings.TrimSpace(designation),
		Diameter:    math.NaN(),
		Hazardous:   strings.EqualFold(strings.TrimSpace(hazardous), "Y"),
		Approaches:  []*CloseApproach{},
	}
	if n := strings.TrimSpace(name); n != "" {
		neo.Name = &n
	}
	if d := strings.TrimSpace(diameter); d != "" {
		v, err := strconv.ParseFloat(d, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q for %s", ErrInvalidDiameter, d, neo.Designation)
		}
		neo.Diameter = v
	}
	return neo, nil
}

// HasName reports whether the object carries an IAU name.
func (n *NearEarthObject) HasName() bool {
	return n.Name != nil && *n.Name != ""
}

// NameOrEmpty returns the name, or "" when the object has none.
func (n *NearEarthObject) NameOrEmpty() string {
	if !n.HasName() {
		return ""
	}
	return *n.Name
}

// HasDiameter reports whether the diameter is known.
func (n *NearEarthObject) HasDiameter() bool {
	return !math.IsNaN(n.Diameter)
}

// FullName is the designation followed by the parenthesised name, if any.
func (n *NearEarthObject) FullName() string {
	if n.HasName() {
		return fmt.Sprintf("%s (%s)", n.Designation, *n.Name)
	}
	return n.Designation
}

func (n *NearEarthObject) String() string {
	size := "an unknown diameter"
	if n.HasDiameter() {
		size = fmt.Sprintf("a diameter of %.3f km", n.Diameter)
	}
	hazard := "is not potentially hazardous"
	if n.Hazardous {
		hazard = "is potentially hazardous"
	}
	return fmt.Sprintf("NEO %s has %s and %s.", n.FullName(), size, hazard)
}

// Serialize returns the object's exported fields in their canonical order.
func (n *NearEarthObject) Serialize() Record {
	return Record{
		{Key: FieldDesignation, Value: n.Designation},
		{Key: FieldName, Value: n.NameOrEmpty()},
		{Key: FieldDiameterKm, Value: n.Diameter},
		{Key: FieldPotentiallyHazardous, Value: n.Hazardous},
	}
}
