package listing

import (
	"errors"

	"github.com/wasatchdata/listingradar/internal/filterplan"
)

// ErrAlertNotFound reports that no alert matched the requested id and owner.
var ErrAlertNotFound = errors.New("no alert found with given id")

// Alert is a saved search owned by a user, optionally shared with a
// recipient email, together with the criteria it matches against.
type Alert struct {
	ID             string              `json:"id"`
	OwnerID        string              `json:"owner_id"`
	OwnerEmail     string              `json:"owner_email"`
	RecipientEmail string              `json:"recipient_email"`
	Nickname       string              `json:"nickname"`
	Criteria       filterplan.Criteria `json:"criteria"`
}
