package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Customer is an organization-scoped billing customer, addressed by callers
// through ExternalID rather than the internal ID.
type Customer struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	ExternalID     string
	CreatedAt      time.Time
}
