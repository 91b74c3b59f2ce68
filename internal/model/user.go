package model

import "time"

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Code         string    `json:"code"`
	Signature    *string   `json:"signature"`
	EmailMode    EmailMode `json:"email_mode"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SignatureFields are the user values rendered into outgoing emails.
type SignatureFields struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Signature string `json:"signature"`
	Email     string `json:"email"`
}

// JWTClaims are the application claims carried in bearer tokens.
type JWTClaims struct {
	UserID string `json:"sub"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}
