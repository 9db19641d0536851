package entities

// ActorRole is the role an authenticated caller acts under
type ActorRole string

const (
	RoleCustomer      ActorRole = "customer"
	RoleProvider      ActorRole = "provider"
	RoleAdministrator ActorRole = "admin"
)

// IsValid reports whether r is a known role
func (r ActorRole) IsValid() bool {
	return r == RoleCustomer || r == RoleProvider || r == RoleAdministrator
}

// Actor is the identity resolved for a request
type Actor struct {
	ID   string    `json:"id"`
	Role ActorRole `json:"role"`
}

// IsAdmin reports whether the actor bypasses the role transition table
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdministrator
}

// BookingTransitions is the structural status graph. Terminal statuses have no outgoing edges.
var BookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:    {BookingStatusConfirmed, BookingStatusCancelled, BookingStatusDeclined},
	BookingStatusConfirmed:  {BookingStatusInProgress, BookingStatusCancelled, BookingStatusNoShow},
	BookingStatusInProgress: {BookingStatusCompleted},
}

// roleTransitions narrows BookingTransitions per non-admin role.
var roleTransitions = map[ActorRole]map[BookingStatus][]BookingStatus{
	RoleProvider: {
		BookingStatusPending:    {BookingStatusConfirmed, BookingStatusDeclined, BookingStatusCancelled},
		BookingStatusConfirmed:  {BookingStatusInProgress, BookingStatusCancelled, BookingStatusNoShow},
		BookingStatusInProgress: {BookingStatusCompleted},
	},
	RoleCustomer: {
		BookingStatusPending: {BookingStatusCancelled},
	},
}

// windowGrants are extra transitions a role gains only after the cancellation window check passed.
var windowGrants = map[ActorRole]map[BookingStatus][]BookingStatus{
	RoleCustomer: {
		BookingStatusConfirmed: {BookingStatusCancelled},
	},
}

// CanTransition reports whether role may move a booking from -> to.
// Administrators may apply any transition to a known status.
func CanTransition(role ActorRole, from, to BookingStatus) bool {
	if role == RoleAdministrator {
		return to.IsValid()
	}
	return contains(roleTransitions[role][from], to)
}

// CanTransitionWithinWindow is CanTransition plus the window grants for role.
func CanTransitionWithinWindow(role ActorRole, from, to BookingStatus) bool {
	return CanTransition(role, from, to) || contains(windowGrants[role][from], to)
}

// CanReach reports whether role could ever have produced status target,
// used to treat a repeated terminal transition as a no-op.
func CanReach(role ActorRole, target BookingStatus) bool {
	if role == RoleAdministrator {
		return target.IsValid()
	}
	for _, tables := range []map[ActorRole]map[BookingStatus][]BookingStatus{roleTransitions, windowGrants} {
		for _, targets := range tables[role] {
			if contains(targets, target) {
				return true
			}
		}
	}
	return false
}

// DefaultCancellationReason is recorded when the actor gives no reason
func DefaultCancellationReason(role ActorRole) string {
	switch role {
	case RoleCustomer:
		return "Cancelled by customer"
	case RoleProvider:
		return "Cancelled by provider"
	default:
		return "Cancelled by administrator"
	}
}

func contains(list []BookingStatus, s BookingStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
