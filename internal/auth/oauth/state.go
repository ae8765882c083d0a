package oauth

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"time"

	"github.com/chatforge/botvault/internal/db/models"
	"gorm.io/gorm"
)

// DefaultStateTTL bounds how long an issued state token stays redeemable.
const DefaultStateTTL = 15 * time.Minute

// StateBinder issues and consumes the single-use CSRF state tokens that
// tie an OAuth callback back to the end-user who started the flow.
type StateBinder struct {
	db  *gorm.DB
	ttl time.Duration
}

func NewStateBinder(db *gorm.DB, ttl time.Duration) *StateBinder {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateBinder{db: db, ttl: ttl}
}

// Issue generates a fresh state token bound to ownerID.
func (b *StateBinder) Issue(ownerID int64) (string, error) {
	buf := make([]byte, 16) // 128 bits of entropy
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)

	binding := models.OAuthStateBinding{
		StateToken: token,
		OwnerID:    ownerID,
		IssuedAt:   time.Now().UTC(),
	}
	if err := b.db.Create(&binding).Error; err != nil {
		return "", err
	}
	return token, nil
}

// ResolveAndConsume flips the binding to consumed and returns its owner.
// The conditional UPDATE is the atomicity gate: of any number of
// concurrent callers delivering the same token, exactly one sees a row
// affected. Everyone else gets ErrStateNotFound, as do holders of
// expired or never-issued tokens.
func (b *StateBinder) ResolveAndConsume(stateToken string) (int64, error) {
	cutoff := time.Now().UTC().Add(-b.ttl)
	res := b.db.Model(&models.OAuthStateBinding{}).
		Where("state_token = ? AND consumed = ? AND issued_at > ?", stateToken, false, cutoff).
		Update("consumed", true)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrStateNotFound
	}

	var binding models.OAuthStateBinding
	if err := b.db.First(&binding, "state_token = ?", stateToken).Error; err != nil {
		return 0, err
	}
	return binding.OwnerID, nil
}

// StartSweeper periodically deletes consumed and expired bindings.
// Abandoned link flows simply age out; there is no explicit cancel.
func (b *StateBinder) StartSweeper(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for range ticker.C {
			b.sweep()
		}
	}()
	log.Printf("🧹 State binding sweeper started (interval: %s)", interval)
}

func (b *StateBinder) sweep() {
	cutoff := time.Now().UTC().Add(-b.ttl)
	res := b.db.Where("consumed = ? OR issued_at <= ?", true, cutoff).
		Delete(&models.OAuthStateBinding{})
	if res.Error != nil {
		log.Printf("⚠️ State sweep failed: %v", res.Error)
		return
	}
	if res.RowsAffected > 0 {
		log.Printf("🧹 Swept %d dead state bindings", res.RowsAffected)
	}
}
