package domain

import "fmt"

// Owner keys scope a cart or wishlist either to an anonymous session or to an account.
func SessionOwner(token string) string {
	return fmt.Sprintf("session:%s", token)
}

func UserOwner(userID string) string {
	return fmt.Sprintf("user:%s", userID)
}
