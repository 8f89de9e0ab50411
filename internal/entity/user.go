package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Gender values accepted on a user profile.
const (
	GenderMale   = "Male"
	GenderFemale = "Female"
	GenderOther  = "Other"
)

// Account status. New accounts start Inactive until an administrator activates them.
const (
	StatusActive   = "Active"
	StatusInactive = "Inactive"
)

// Profile holds the self-editable presentation fields of a user.
type Profile struct {
	FullName    string
	DateOfBirth *time.Time
	Gender      string
	PhoneNumber string
	Location    string
	AvatarURL   string
}

// User is the account record. PasswordHash and RefreshToken never leave the
// service; API representations are built in the handler layer.
type User struct {
	ID           primitive.ObjectID
	Username     string
	Email        string
	PasswordHash string
	RoleID       primitive.ObjectID // references a PermissionSet
	Profile      Profile
	Status       string
	RefreshToken string // single slot, one active session per user
	LastLogin    *time.Time
	DeletedAt    *time.Time // non-nil marks the record soft-deleted
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsDeleted reports whether the user is soft-deleted.
func (u *User) IsDeleted() bool {
	return u.DeletedAt != nil
}

// PermissionSet is a named bundle of authorization rights referenced by a
// user's role.
type PermissionSet struct {
	ID          primitive.ObjectID
	Name        string
	Description string
	Rights      []string
}

// ValidGender reports whether g is one of the accepted gender values.
// The empty string is allowed; the field is optional.
func ValidGender(g string) bool {
	switch g {
	case "", GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}
