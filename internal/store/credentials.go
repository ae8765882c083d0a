package store

import (
	"errors"
	"time"

	"github.com/chatforge/botvault/internal/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CredentialStore is the durable vault for third-party OAuth grants,
// keyed by (owner, provider). It is shared by all profile workers.
type CredentialStore struct {
	db *gorm.DB
}

func NewCredentialStore(db *gorm.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// Put upserts a credential. Re-linking overwrites the prior grant in
// place; it never creates a second row for the same (owner, provider).
func (s *CredentialStore) Put(cred *models.OAuthCredential) error {
	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}
	cred.UpdatedAt = time.Now().UTC()
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "owner_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"account_address", "access_token", "refresh_token", "token_expiry",
			"token_endpoint", "client_id", "client_secret", "scopes", "updated_at",
		}),
	}).Create(cred).Error
}

// Get returns the stored credential, or ErrNotLinked when none exists.
func (s *CredentialStore) Get(ownerID int64, provider string) (*models.OAuthCredential, error) {
	var cred models.OAuthCredential
	err := s.db.Where("owner_id = ? AND provider = ?", ownerID, provider).First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotLinked
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// Delete removes the grant for (owner, provider). Deleting a missing
// row is not an error.
func (s *CredentialStore) Delete(ownerID int64, provider string) error {
	return s.db.Where("owner_id = ? AND provider = ?", ownerID, provider).
		Delete(&models.OAuthCredential{}).Error
}
