package models

import (
	"gorm.io/gorm"
)

// User is the authenticated account a recommendation belongs to. Its numeric
// ID is the user identifier folded into every cache fingerprint.
type User struct {
	gorm.Model
	Auth0ID  string `gorm:"unique;not null"`
	Email    string `gorm:"index"`
	Name     string
	Nickname string
}
