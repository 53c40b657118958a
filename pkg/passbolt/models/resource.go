package models

import (
	"time"

	"gorm.io/gorm"
)

// Resource represents a shared password entry.
// The credential itself is never stored on the resource; each user holds
// their own Secret row encrypted with their key.
type Resource struct {
	ID          uint           `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	GroupID     uint           `gorm:"not null;index" json:"group_id"`
	CreatedByID uint           `gorm:"not null" json:"created_by_id"`
	Name        string         `gorm:"not null" json:"name"`
	Username    string         `json:"username"`
	URI         string         `json:"uri"`
	Description string         `json:"description"`

	// Relationships
	Group     Group    `gorm:"foreignKey:GroupID" json:"group,omitempty"`
	CreatedBy User     `gorm:"foreignKey:CreatedByID" json:"created_by,omitempty"`
	Secrets   []Secret `gorm:"foreignKey:ResourceID" json:"-"`
	Tags      []Tag    `gorm:"many2many:resource_tags;" json:"tags,omitempty"`
}

// Secret holds one user's encrypted copy of a resource's credential.
// Data is an armored ciphertext blob; the server never sees plaintext.
type Secret struct {
	ID         uint           `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
	ResourceID uint           `gorm:"not null;uniqueIndex:idx_resource_user" json:"resource_id"`
	UserID     uint           `gorm:"not null;uniqueIndex:idx_resource_user" json:"user_id"`
	Data       string         `gorm:"type:text;not null" json:"data"`

	// Relationships
	Resource Resource `gorm:"foreignKey:ResourceID" json:"-"`
	User     User     `gorm:"foreignKey:UserID" json:"-"`
}
