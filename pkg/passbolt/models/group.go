package models

import (
	"time"

	"gorm.io/gorm"
)

// GroupRole represents a user's role within a specific group
type GroupRole string

const (
	GroupRoleAdmin  GroupRole = "admin"
	GroupRoleMember GroupRole = "member"
)

// Group represents a group that owns shared resources
// Users can belong to multiple groups, and each user has a personal group
type Group struct {
	ID             uint           `gorm:"primarykey" json:"id"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
	OrganizationID uint           `gorm:"not null;index" json:"organization_id"`
	Name           string         `gorm:"not null" json:"name"`
	Description    string         `json:"description"`

	// Relationships
	Members   []GroupMembership `gorm:"foreignKey:GroupID" json:"members,omitempty"`
	Resources []Resource        `gorm:"foreignKey:GroupID" json:"resources,omitempty"`
}

// GroupMembership represents the many-to-many relationship between users and groups
type GroupMembership struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	UserID    uint           `gorm:"not null;uniqueIndex:idx_user_group" json:"user_id"`
	GroupID   uint           `gorm:"not null;uniqueIndex:idx_user_group" json:"group_id"`
	Role      GroupRole      `gorm:"type:varchar(20);default:'member'" json:"role"`

	// Relationships
	User  User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Group Group `gorm:"foreignKey:GroupID" json:"group,omitempty"`
}
