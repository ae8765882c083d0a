package store

import (
	"fmt"
	"time"

	"github.com/chatforge/botvault/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultMessageLimit caps ListMessages when the caller passes no limit.
const DefaultMessageLimit = 50

// Ledger is the profile-scoped conversation store. The chat-id key space
// is shared across profiles; every read filters on the profile tag.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// UpsertUser records an end-user sighting. First sight creates the row;
// later calls update the display fields, advance last_seen, and move the
// profile tag to the most recent observer. The single-statement upsert
// keeps concurrent first sightings from racing.
func (l *Ledger) UpsertUser(externalID int64, chatType, username, firstName, lastName, profileID string) error {
	now := time.Now().UTC()
	user := models.EndUser{
		ExternalID: externalID,
		ChatType:   chatType,
		Username:   username,
		FirstName:  firstName,
		LastName:   lastName,
		ProfileID:  profileID,
		FirstSeen:  now,
		LastSeen:   now,
	}
	return l.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"chat_type", "username", "first_name", "last_name", "profile_id", "last_seen",
		}),
	}).Create(&user).Error
}

// AppendMessage inserts one ledger entry. Appends never dedupe on
// content and never mutate existing rows.
func (l *Ledger) AppendMessage(chatID int64, direction, text, profileID string) error {
	if direction != models.DirectionIn && direction != models.DirectionOut {
		return fmt.Errorf("%w: got %q", ErrBadDirection, direction)
	}
	msg := models.Message{
		ChatID:    chatID,
		Direction: direction,
		Text:      text,
		CreatedAt: time.Now().UTC(),
		ProfileID: profileID,
	}
	return l.db.Create(&msg).Error
}

// ListUsers returns the users most recently seen by the given profile,
// newest sighting first.
func (l *Ledger) ListUsers(profileID string) ([]models.EndUser, error) {
	var users []models.EndUser
	err := l.db.Where("profile_id = ?", profileID).
		Order("last_seen DESC").
		Find(&users).Error
	return users, err
}

// ListMessages returns up to limit messages for one chat under one
// profile, most recent first. Rows written under a different profile are
// excluded even when they share the chat id.
func (l *Ledger) ListMessages(chatID int64, profileID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	var msgs []models.Message
	err := l.db.Where("chat_id = ? AND profile_id = ?", chatID, profileID).
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}
