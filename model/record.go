package model

// Serialized field names.
const (
	FieldDatetimeUTC          = "datetime_utc"
	FieldDistanceAU           = "distance_au"
	FieldVelocityKmS          = "velocity_km_s"
	FieldDesignation          = "designation"
	FieldName                 = "name"
	FieldDiameterKm           = "diameter_km"
	FieldPotentiallyHazardous = "potentially_hazardous"
	FieldNEO                  = "neo"
)

// CSVFieldNames is the fixed column order of exported CSV files.
var CSVFieldNames = []string{
	FieldDatetimeUTC,
	FieldDistanceAU,
	FieldVelocityKmS,
	FieldDesignation,
	FieldName,
	FieldDiameterKm,
	FieldPotentiallyHazardous,
}

// Field is one key/value pair of a serialized record. Value is a string,
// float64, bool or a nested Record.
type Field struct {
	Key   string
	Value any
}

// Record is an ordered field mapping. Order is significant for output.
type Record []Field

// Get returns the value stored under key.
func (r Record) Get(key string) (any, bool) {
	for _, f := range r {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Keys lists the field names in order.
func (r Record) Keys() []string {
	keys := make([]string, len(r))
	for i, f := range r {
		keys[i] = f.Key
	}
	return keys
}

// Flatten inlines nested records into a single level, keeping order.
func (r Record) Flatten() Record {
	out := make(Record, 0, len(r))
	for _, f := range r {
		if nested, ok := f.Value.(Record); ok {
			out = append(out, nested.Flatten()...)
			continue
		}
		out = append(out, f)
	}
	return out
}
