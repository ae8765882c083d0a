package models

import "time"

// OAuthCredential stores a third-party account grant for one end-user.
// Unique on (OwnerID, Provider): re-linking overwrites the grant in place.
type OAuthCredential struct {
	ID             string `gorm:"primaryKey"` // UUID
	OwnerID        int64  `gorm:"uniqueIndex:idx_owner_provider"`
	Provider       string `gorm:"uniqueIndex:idx_owner_provider"` // e.g. "gmail"
	AccountAddress string
	AccessToken    string
	RefreshToken   string
	TokenExpiry    time.Time // zero value means the provider reported no expiry
	TokenEndpoint  string
	ClientID       string
	ClientSecret   string
	Scopes         string // space-separated scope list
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (OAuthCredential) TableName() string { return "oauth_credentials" }
