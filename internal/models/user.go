package models

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrInvalidEmail = errors.New("invalid email address")
	ErrInvalidPhone = errors.New("invalid phone number")
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	// Philippine mobile numbers: +63 or 0 prefix, ten digits.
	phonePattern = regexp.MustCompile(`^(\+63|0)?[0-9]{10}$`)
)

// User is a member's profile. Accounts and sign-in live with the external
// identity provider; only the ID is shared with it.
type User struct {
	// ID is the identity provider's subject for this user.
	ID string

	// Email is the user's email address.
	Email string

	// FullName is the display name shown to other members.
	FullName string

	// ContactNumber is a mobile number.
	ContactNumber string

	// Bank and e-wallet details other members use when settling up.
	BankAccountName   string
	BankAccountNumber string
	GCashNumber       string

	// InstapayQRURL points at an uploaded InstaPay QR code members can
	// scan to pay this user.
	InstapayQRURL string

	// ProfileImageURL points at the uploaded avatar, if any.
	ProfileImageURL string

	// CreatedAt and UpdatedAt are Unix timestamps.
	CreatedAt int64
	UpdatedAt int64
}

// Validate checks the optional contact fields when present.
func (u *User) Validate() error {
	if u.Email != "" && !emailPattern.MatchString(u.Email) {
		return ErrInvalidEmail
	}
	for _, phone := range []string{u.ContactNumber, u.GCashNumber} {
		if phone != "" && !ValidPhoneNumber(phone) {
			return ErrInvalidPhone
		}
	}
	return nil
}

// ValidPhoneNumber reports whether phone is a Philippine mobile number.
// Whitespace is ignored.
func ValidPhoneNumber(phone string) bool {
	return phonePattern.MatchString(strings.Join(strings.Fields(phone), ""))
}
