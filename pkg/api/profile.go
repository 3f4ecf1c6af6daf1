package api

// Profile is what other members see when settling up.
type Profile struct {
	UserID            string `json:"user_id"`
	Email             string `json:"email,omitempty"`
	FullName          string `json:"full_name,omitempty"`
	ContactNumber     string `json:"contact_number,omitempty"`
	BankAccountName   string `json:"bank_account_name,omitempty"`
	BankAccountNumber string `json:"bank_account_number,omitempty"`
	GCashNumber       string `json:"gcash_number,omitempty"`
	InstapayQRURL     string `json:"instapay_qr_url,omitempty"`
	ProfileImageURL   string `json:"profile_image_url,omitempty"`
	CreatedAt         int64  `json:"created_at,omitempty"`
	UpdatedAt         int64  `json:"updated_at,omitempty"`
}

type GetProfileRequest struct {
	// UserID defaults to the caller. Other profiles are visible to members
	// of a shared group.
	UserID string `json:"user_id,omitempty"`
}

type GetProfileResponse struct {
	Profile *Profile `json:"profile"`
}

// UpdateProfileRequest replaces the caller's text fields. The uploaded
// image URLs are only changed when present; an empty string clears one.
type UpdateProfileRequest struct {
	Email             string  `json:"email,omitempty"`
	FullName          string  `json:"full_name,omitempty"`
	ContactNumber     string  `json:"contact_number,omitempty"`
	BankAccountName   string  `json:"bank_account_name,omitempty"`
	BankAccountNumber string  `json:"bank_account_number,omitempty"`
	GCashNumber       string  `json:"gcash_number,omitempty"`
	InstapayQRURL     *string `json:"instapay_qr_url,omitempty"`
	ProfileImageURL   *string `json:"profile_image_url,omitempty"`
}

type UpdateProfileResponse struct {
	Profile *Profile `json:"profile"`
}
