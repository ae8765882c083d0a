package models

import "time"

// OAuthStateBinding maps a single-use CSRF state token back to the
// end-user who started a link flow. Bindings are consumed exactly once
// and expire by TTL; a sweeper removes dead rows.
type OAuthStateBinding struct {
	StateToken string `gorm:"primaryKey"`
	OwnerID    int64
	IssuedAt   time.Time `gorm:"index"`
	Consumed   bool      `gorm:"default:false"`
}

func (OAuthStateBinding) TableName() string { return "oauth_state_bindings" }
