package venue

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

type Venue struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	AddressID   uuid.UUID `json:"addressId"`
	Street      string    `json:"street"`
	CrossStreet string    `json:"crossStreet,omitempty"`
	Locality    string    `json:"locality"`
	AdminArea   string    `json:"adminArea"`
	PostalCode  string    `json:"postalCode"`
	RegionID    string    `json:"regionId,omitempty"`
	Phone       string    `json:"phone,omitempty"`
}

var ErrInvalidVenue = errors.New("invalid venue")

// ValidationError lists the problems that kept a venue from being created.
// Its message is meant to be shown to the user as is.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidVenue
}
