package models

import "time"

// EndUser is a person observed by any bot profile, keyed by the
// platform-assigned chat identifier. Rows are created on first inbound
// message and never deleted by this subsystem.
type EndUser struct {
	ExternalID int64 `gorm:"primaryKey;autoIncrement:false"`
	ChatType   string
	Username   string
	FirstName  string
	LastName   string
	ProfileID  string // profile that most recently observed this user
	FirstSeen  time.Time
	LastSeen   time.Time `gorm:"index"`
}

func (EndUser) TableName() string { return "end_users" }
