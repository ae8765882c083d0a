package models

import "time"

// Message direction values.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Message is one append-only conversation ledger entry. The numeric
// primary key carries the ordering guarantee; CreatedAt is informational
// only (clock resolution may collide).
type Message struct {
	ID        int64  `gorm:"primaryKey"`
	ChatID    int64  `gorm:"index:idx_messages_chat_profile"`
	Direction string `gorm:"check:direction IN ('in','out')"`
	Text      string
	CreatedAt time.Time
	ProfileID string `gorm:"index:idx_messages_chat_profile"`
}

func (Message) TableName() string { return "messages" }
