package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Patch is a sparse field-level edit. Keys are field names; values are
// normalized field values, with "" meaning "clear the field".
type Patch map[string]string

// Fields returns the touched field names in sorted order.
func (p Patch) Fields() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyTo returns a copy of base with the patch applied.
func (p Patch) ApplyTo(base PersonFields) (PersonFields, error) {
	out := base.Clone()
	for _, name := range p.Fields() {
		if err := out.Set(name, p[name]); err != nil {
			return PersonFields{}, fmt.Errorf("%s: %w", name, err)
		}
	}
	if err := out.checkCoordinatePair(); err != nil {
		return PersonFields{}, err
	}
	return out, nil
}

// ParsePatch validates a decoded JSON object and normalizes it into a
// Patch. Only fields for which allowed returns true may appear. Latitude
// and longitude must be proposed together, and either both set or both
// cleared.
func ParsePatch(op string, raw map[string]any, allowed func(FieldSpec) bool) (Patch, error) {
	if len(raw) == 0 {
		return nil, Validation(op, CodeInvalidValue, "no fields proposed")
	}

	patch := make(Patch, len(raw))
	var scratch PersonFields
	var disallowed []string

	for name, value := range raw {
		spec, ok := LookupField(name)
		if !ok || !allowed(spec) {
			disallowed = append(disallowed, name)
			continue
		}

		s, err := patchValueString(value)
		if err != nil {
			return nil, Validation(op, CodeInvalidValue, "%s: %v", name, err)
		}
		if err := scratch.Set(name, s); err != nil {
			code := CodeInvalidValue
			if spec.Type == FieldNumeric {
				code = CodeInvalidCoordinates
			}
			return nil, Validation(op, code, "%s: %v", name, err)
		}
		patch[name], _ = scratch.Value(name)
	}

	if len(disallowed) > 0 {
		sort.Strings(disallowed)
		return nil, Validation(op, CodeFieldNotEditable, "fields may not be edited").WithIDs(disallowed...)
	}

	_, hasLat := patch[FieldLocationOfDeathLat]
	_, hasLng := patch[FieldLocationOfDeathLng]
	if hasLat != hasLng {
		return nil, Validation(op, CodeInvalidCoordinates, "%s and %s must be supplied together",
			FieldLocationOfDeathLat, FieldLocationOfDeathLng)
	}
	if err := scratch.checkCoordinatePair(); hasLat && err != nil {
		return nil, Validation(op, CodeInvalidCoordinates, "%v", err)
	}

	return patch, nil
}

// EditableBySubmission is the allow-list used for community submissions.
func EditableBySubmission(spec FieldSpec) bool { return spec.Editable }

// EditableByAdmin allows every field.
func EditableByAdmin(FieldSpec) bool { return true }

func patchValueString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case float64:
		return FormatNumber(t), nil
	case json.Number:
		return t.String(), nil
	case int:
		return strconv.Itoa(t), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
