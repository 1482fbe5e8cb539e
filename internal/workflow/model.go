package workflow

import "strings"

// Form field names.
const (
	FieldName        = "name"
	FieldAddress     = "address"
	FieldCrossStreet = "crossStreet"
	FieldLocality    = "locality"
	FieldAdminArea   = "adminArea"
	FieldPostalCode  = "postalCode"
	FieldPhone       = "phone"
)

var (
	// DefaultFields is the add-venue form schema.
	DefaultFields = []string{FieldName, FieldAddress, FieldCrossStreet, FieldLocality, FieldAdminArea, FieldPostalCode, FieldPhone}

	// RequiredFields gate the submit action.
	RequiredFields = []string{FieldName, FieldAddress, FieldLocality, FieldAdminArea, FieldPostalCode}
)

// Region is the geographic region (city) a coordinate falls within.
type Region struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Address is a reverse-geocoded address. Every part is independently optional.
type Address struct {
	Street     *string `json:"street,omitempty"`
	Locality   *string `json:"locality,omitempty"`
	AdminArea  *string `json:"adminArea,omitempty"`
	PostalCode *string `json:"postalCode,omitempty"`
	Phone      *string `json:"phone,omitempty"`
}

// Record is the finished form handed to the record creation service.
type Record struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	CrossStreet string `json:"crossStreet"`
	Locality    string `json:"locality"`
	AdminArea   string `json:"adminArea"`
	PostalCode  string `json:"postalCode"`
	RegionID    string `json:"regionId"`
	Phone       string `json:"phone"`
}

// Text returns a pointer to the trimmed value, or nil when it is blank.
func Text(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
