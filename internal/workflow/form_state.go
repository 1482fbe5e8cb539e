package workflow

import (
	"fmt"
	"maps"
	"strings"

	"github.com/ssherwood/venueservice/internal/location"
)

// FormState is the retained, serializable snapshot of a workflow: what was
// resolved and what is in each field. The field key set is fixed at creation.
type FormState struct {
	Fix     *location.Fix     `json:"fix,omitempty"`
	Address *Address          `json:"address,omitempty"`
	Region  *Region           `json:"region,omitempty"`
	Fields  map[string]string `json:"fields"`
	Edited  map[string]bool   `json:"edited,omitempty"`
}

func NewFormState(fields []string) *FormState {
	state := &FormState{
		Fields: make(map[string]string, len(fields)),
		Edited: make(map[string]bool),
	}
	for _, name := range fields {
		state.Fields[name] = ""
	}
	return state
}

// Edit records user-entered text. Edited fields are never pre-filled again.
func (s *FormState) Edit(name, text string) error {
	if _, ok := s.Fields[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	s.Fields[name] = text
	if s.Edited == nil {
		s.Edited = make(map[string]bool)
	}
	s.Edited[name] = true
	return nil
}

func (s *FormState) Clone() *FormState {
	clone := &FormState{
		Fields: maps.Clone(s.Fields),
		Edited: maps.Clone(s.Edited),
	}
	if s.Fix != nil {
		fix := *s.Fix
		clone.Fix = &fix
	}
	if s.Address != nil {
		address := *s.Address
		clone.Address = &address
	}
	if s.Region != nil {
		region := *s.Region
		clone.Region = &region
	}
	if clone.Edited == nil {
		clone.Edited = make(map[string]bool)
	}
	return clone
}

// ApplyResolution stores the resolved metadata and pre-fills fields from the
// geocoded address. The street line is only used when the originating fix has a
// known radius below accuracyThreshold; the remaining parts are used whenever
// present. Fields the user has edited are left alone. It returns the names of
// the fields it wrote.
func (s *FormState) ApplyResolution(res Resolution, accuracyThreshold float64) []string {
	if res.Fix != nil {
		fix := *res.Fix
		s.Fix = &fix
	}
	if res.Region != nil {
		s.Region = res.Region
	}
	if res.Address == nil {
		return nil
	}
	s.Address = res.Address

	var filled []string
	fill := func(name string, value *string) {
		if value == nil || strings.TrimSpace(*value) == "" || s.Edited[name] {
			return
		}
		if _, ok := s.Fields[name]; !ok {
			return
		}
		s.Fields[name] = *value
		filled = append(filled, name)
	}

	if res.Fix != nil && res.Fix.HasAccuracy() && res.Fix.Accuracy < accuracyThreshold {
		fill(FieldAddress, res.Address.Street)
	}
	fill(FieldLocality, res.Address.Locality)
	fill(FieldAdminArea, res.Address.AdminArea)
	fill(FieldPostalCode, res.Address.PostalCode)
	fill(FieldPhone, res.Address.Phone)

	return filled
}

// Record builds the submission payload. The resolved region wins over fallback.
func (s *FormState) Record(fallback *Region) Record {
	record := Record{
		Name:        s.Fields[FieldName],
		Address:     s.Fields[FieldAddress],
		CrossStreet: s.Fields[FieldCrossStreet],
		Locality:    s.Fields[FieldLocality],
		AdminArea:   s.Fields[FieldAdminArea],
		PostalCode:  s.Fields[FieldPostalCode],
		Phone:       s.Fields[FieldPhone],
	}
	switch {
	case s.Region != nil:
		record.RegionID = s.Region.ID
	case fallback != nil:
		record.RegionID = fallback.ID
	}
	return record
}
