package core

import (
	"fmt"
	"slices"
	"strings"
)

// Column and field names. They double as CSV headers, JSON keys of
// submission payloads, and database column names.
const (
	ColExternalID           = "external_id"
	FieldName               = "name"
	FieldNameEnglish        = "name_english"
	FieldGender             = "gender"
	FieldDateOfBirth        = "date_of_birth"
	FieldDateOfDeath        = "date_of_death"
	FieldLocationOfDeath    = "location_of_death"
	FieldLocationOfDeathLat = "location_of_death_lat"
	FieldLocationOfDeathLng = "location_of_death_lng"
	FieldPhotoURLThumb      = "photo_url_thumb"
	FieldPhotoURLOriginal   = "photo_url_original"
)

// FieldType represents how a field value is parsed and compared.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate
	FieldNumeric
)

// FieldSpec describes one person attribute.
type FieldSpec struct {
	Name       string
	Type       FieldType
	EnumValues []string
	Min, Max   float64 // FieldNumeric bounds, inclusive
	Editable   bool    // may be proposed by a community submission
}

// FieldSpecs lists every person attribute in export column order.
var FieldSpecs = []FieldSpec{
	{Name: FieldName, Type: FieldText},
	{Name: FieldNameEnglish, Type: FieldText},
	{Name: FieldGender, Type: FieldEnum, EnumValues: []string{"male", "female", "unknown"}},
	{Name: FieldDateOfBirth, Type: FieldDate},
	{Name: FieldDateOfDeath, Type: FieldDate, Editable: true},
	{Name: FieldLocationOfDeath, Type: FieldText, Editable: true},
	{Name: FieldLocationOfDeathLat, Type: FieldNumeric, Min: -90, Max: 90, Editable: true},
	{Name: FieldLocationOfDeathLng, Type: FieldNumeric, Min: -180, Max: 180, Editable: true},
	{Name: FieldPhotoURLThumb, Type: FieldText, Editable: true},
	{Name: FieldPhotoURLOriginal, Type: FieldText, Editable: true},
}

// LookupField returns the spec for name.
func LookupField(name string) (FieldSpec, bool) {
	for _, spec := range FieldSpecs {
		if spec.Name == name {
			return spec, true
		}
	}
	return FieldSpec{}, false
}

// EditableFields returns the names community submissions may propose.
func EditableFields() []string {
	var names []string
	for _, spec := range FieldSpecs {
		if spec.Editable {
			names = append(names, spec.Name)
		}
	}
	return names
}

// PersonFields is the fixed, fully nullable attribute schema of a person.
// A nil pointer is a missing value and is distinct from an empty string.
type PersonFields struct {
	Name               *string  `json:"name"`
	NameEnglish        *string  `json:"name_english"`
	Gender             *string  `json:"gender"`
	DateOfBirth        *string  `json:"date_of_birth"`
	DateOfDeath        *string  `json:"date_of_death"`
	LocationOfDeath    *string  `json:"location_of_death"`
	LocationOfDeathLat *float64 `json:"location_of_death_lat"`
	LocationOfDeathLng *float64 `json:"location_of_death_lng"`
	PhotoURLThumb      *string  `json:"photo_url_thumb"`
	PhotoURLOriginal   *string  `json:"photo_url_original"`
}

func (f *PersonFields) text(name string) **string {
	switch name {
	case FieldName:
		return &f.Name
	case FieldNameEnglish:
		return &f.NameEnglish
	case FieldGender:
		return &f.Gender
	case FieldDateOfBirth:
		return &f.DateOfBirth
	case FieldDateOfDeath:
		return &f.DateOfDeath
	case FieldLocationOfDeath:
		return &f.LocationOfDeath
	case FieldPhotoURLThumb:
		return &f.PhotoURLThumb
	case FieldPhotoURLOriginal:
		return &f.PhotoURLOriginal
	}
	return nil
}

func (f *PersonFields) number(name string) **float64 {
	switch name {
	case FieldLocationOfDeathLat:
		return &f.LocationOfDeathLat
	case FieldLocationOfDeathLng:
		return &f.LocationOfDeathLng
	}
	return nil
}

// Set parses raw according to the field's spec and stores the normalized
// value. An empty raw value clears the field.
func (f *PersonFields) Set(name, raw string) error {
	spec, ok := LookupField(name)
	if !ok {
		return fmt.Errorf("unknown field %q", name)
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		f.clear(spec)
		return nil
	}

	switch spec.Type {
	case FieldNumeric:
		v, err := ParseNumber(raw)
		if err != nil {
			return err
		}
		if v < spec.Min || v > spec.Max {
			return fmt.Errorf("value %s out of range [%s, %s]", FormatNumber(v), FormatNumber(spec.Min), FormatNumber(spec.Max))
		}
		*f.number(name) = &v
	case FieldDate:
		v, err := ParseDate(raw)
		if err != nil {
			return err
		}
		*f.text(name) = &v
	case FieldEnum:
		v := strings.ToLower(raw)
		if !slices.Contains(spec.EnumValues, v) {
			return fmt.Errorf("invalid enum value %q (allowed: %s)", raw, strings.Join(spec.EnumValues, ", "))
		}
		*f.text(name) = &v
	default:
		v := raw
		*f.text(name) = &v
	}
	return nil
}

func (f *PersonFields) clear(spec FieldSpec) {
	if spec.Type == FieldNumeric {
		*f.number(spec.Name) = nil
		return
	}
	*f.text(spec.Name) = nil
}

// Value returns the canonical string form of a field and whether it is set.
func (f PersonFields) Value(name string) (string, bool) {
	if p := f.number(name); p != nil {
		if *p == nil {
			return "", false
		}
		return FormatNumber(**p), true
	}
	if p := f.text(name); p != nil && *p != nil {
		return **p, true
	}
	return "", false
}

// Equal compares field by field. Two nil values are equal; nil never
// equals a set value.
func (f PersonFields) Equal(other PersonFields) bool {
	return len(f.Changes(other)) == 0
}

// Changes returns the names of fields whose values differ, in FieldSpecs order.
func (f PersonFields) Changes(other PersonFields) []string {
	var changed []string
	for _, spec := range FieldSpecs {
		a, aok := f.Value(spec.Name)
		b, bok := other.Value(spec.Name)
		if aok != bok || a != b {
			changed = append(changed, spec.Name)
		}
	}
	return changed
}

// Clone returns a deep copy.
func (f PersonFields) Clone() PersonFields {
	return PersonFields{
		Name:               cloneString(f.Name),
		NameEnglish:        cloneString(f.NameEnglish),
		Gender:             cloneString(f.Gender),
		DateOfBirth:        cloneString(f.DateOfBirth),
		DateOfDeath:        cloneString(f.DateOfDeath),
		LocationOfDeath:    cloneString(f.LocationOfDeath),
		LocationOfDeathLat: cloneFloat(f.LocationOfDeathLat),
		LocationOfDeathLng: cloneFloat(f.LocationOfDeathLng),
		PhotoURLThumb:      cloneString(f.PhotoURLThumb),
		PhotoURLOriginal:   cloneString(f.PhotoURLOriginal),
	}
}

// checkCoordinatePair enforces that latitude and longitude are set together.
func (f PersonFields) checkCoordinatePair() error {
	if (f.LocationOfDeathLat == nil) != (f.LocationOfDeathLng == nil) {
		return fmt.Errorf("%s and %s must be supplied together", FieldLocationOfDeathLat, FieldLocationOfDeathLng)
	}
	return nil
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

// FloatPtr returns a pointer to f.
func FloatPtr(f float64) *float64 { return &f }
