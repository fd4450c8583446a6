package domain

import "time"

// Roles válidos para una cuenta. El rol se fija al crear la cuenta y no cambia.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Canales de verificación OTP.
const (
	ChannelEmail = "email"
	ChannelPhone = "phone"
)

// Account representa tanto usuarios como administradores; el campo Role
// discrimina entre ambos espacios de identidad.
type Account struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name,omitempty"`
	Username            string     `json:"username"`
	Email               string     `json:"email"`
	CountryCode         string     `json:"country_code,omitempty"`
	PhoneNumber         string     `json:"phone_number,omitempty"`
	PasswordHash        string     `json:"-"`
	EmailOtpHash        string     `json:"-"`
	EmailOtpExpiresAt   *time.Time `json:"-"`
	PhoneOtpHash        string     `json:"-"`
	PhoneOtpExpiresAt   *time.Time `json:"-"`
	IsEmailVerified     bool       `json:"is_email_verified"`
	IsPhoneVerified     bool       `json:"is_phone_verified"`
	ResetTokenHash      string     `json:"-"`
	ResetTokenExpiresAt *time.Time `json:"-"`
	Role                string     `json:"role"`
	CreatedAt           time.Time  `json:"created_at"`
}

// Verified indica si la cuenta completó la verificación por algún canal.
func (a Account) Verified() bool {
	return a.IsEmailVerified || a.IsPhoneVerified
}
