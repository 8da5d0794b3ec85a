package models

import (
	"fmt"
	"strings"
	"time"
)

// User is the slice of the app's user record this module reads and updates.
type User struct {
	ID                  string    `json:"id"`
	Username            string    `json:"username"`
	PasswordHash        string    `json:"password_hash"`
	PublicKey           string    `json:"public_key,omitempty"`
	EncryptedPrivateKey string    `json:"encrypted_private_key,omitempty"`
	SecurityScore       int       `json:"security_score"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// UserUpdate lists the fields user.update may change; nil fields are left alone.
type UserUpdate struct {
	PublicKey           *string
	EncryptedPrivateKey *string
	SecurityScore       *int
}

// DefaultSecurityScore is assigned on registration.
const DefaultSecurityScore = 100

// PermissionType is the device permission a user grants to the app.
type PermissionType string

const (
	PermissionCamera     PermissionType = "CAMERA"
	PermissionMicrophone PermissionType = "MICROPHONE"
	PermissionGallery    PermissionType = "GALLERY"
)

// ParsePermissionType is case-insensitive.
func ParsePermissionType(s string) (PermissionType, error) {
	switch p := PermissionType(strings.ToUpper(strings.TrimSpace(s))); p {
	case PermissionCamera, PermissionMicrophone, PermissionGallery:
		return p, nil
	default:
		return "", fmt.Errorf("unknown permission type %q", s)
	}
}
