package cart

import (
	"strings"

	"github.com/google/uuid"
)

// Signed-in and guest carts live under separate key namespaces, so a guest
// cart id can never address a user's cart.
const (
	userOwnerPrefix  = "user:"
	guestOwnerPrefix = "anon:"
)

// UserOwner returns the cart owner key of a signed-in user.
func UserOwner(userID string) string { return userOwnerPrefix + userID }

// GuestOwner returns the cart owner key of a guest cart id.
func GuestOwner(cartID string) string { return guestOwnerPrefix + cartID }

// ParseGuestID accepts only ids shaped like the ones Create issues and
// returns them in canonical form.
func ParseGuestID(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if len(raw) != 36 {
		return "", false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", false
	}
	return id.String(), true
}
