package oauth

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/chatforge/botvault/internal/db/models"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.OAuthStateBinding{}, &models.OAuthCredential{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestIssueThenConsume(t *testing.T) {
	b := NewStateBinder(newTestDB(t), DefaultStateTTL)

	token, err := b.Issue(42)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(token) != 32 { // 16 random bytes, hex encoded
		t.Fatalf("unexpected token length %d", len(token))
	}

	owner, err := b.ResolveAndConsume(token)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if owner != 42 {
		t.Fatalf("expected owner 42, got %d", owner)
	}

	// Replay must fail: tokens are single-use
	if _, err := b.ResolveAndConsume(token); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound on replay, got %v", err)
	}
}

func TestConsumeUnknownToken(t *testing.T) {
	b := NewStateBinder(newTestDB(t), DefaultStateTTL)

	if _, err := b.ResolveAndConsume("deadbeefdeadbeefdeadbeefdeadbeef"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound, got %v", err)
	}
}

func TestConsumeExpiredToken(t *testing.T) {
	db := newTestDB(t)
	b := NewStateBinder(db, time.Minute)

	token, err := b.Issue(42)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Age the binding past the TTL
	old := time.Now().UTC().Add(-2 * time.Minute)
	if err := db.Model(&models.OAuthStateBinding{}).
		Where("state_token = ?", token).
		Update("issued_at", old).Error; err != nil {
		t.Fatalf("age binding: %v", err)
	}

	if _, err := b.ResolveAndConsume(token); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound for expired token, got %v", err)
	}
}

func TestConcurrentConsumeExactlyOneWinner(t *testing.T) {
	b := NewStateBinder(newTestDB(t), DefaultStateTTL)

	token, err := b.Issue(42)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	const callers = 10
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.ResolveAndConsume(token)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrStateNotFound):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one successful consume, got %d (losses %d)", wins, losses)
	}
}

func TestTokensAreUnique(t *testing.T) {
	b := NewStateBinder(newTestDB(t), DefaultStateTTL)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := b.Issue(int64(i))
		if err != nil {
			t.Fatalf("issue %d: %v", i, err)
		}
		if seen[token] {
			t.Fatalf("duplicate token issued: %s", token)
		}
		seen[token] = true
	}
}

func TestSweepRemovesDeadBindings(t *testing.T) {
	db := newTestDB(t)
	b := NewStateBinder(db, time.Minute)

	consumed, err := b.Issue(1)
	if err != nil {
		t.Fatalf("issue consumed: %v", err)
	}
	if _, err := b.ResolveAndConsume(consumed); err != nil {
		t.Fatalf("consume: %v", err)
	}

	expired, err := b.Issue(2)
	if err != nil {
		t.Fatalf("issue expired: %v", err)
	}
	old := time.Now().UTC().Add(-2 * time.Minute)
	if err := db.Model(&models.OAuthStateBinding{}).
		Where("state_token = ?", expired).
		Update("issued_at", old).Error; err != nil {
		t.Fatalf("age binding: %v", err)
	}

	live, err := b.Issue(3)
	if err != nil {
		t.Fatalf("issue live: %v", err)
	}

	b.sweep()

	var count int64
	db.Model(&models.OAuthStateBinding{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected only the live binding to survive, got %d rows", count)
	}
	if owner, err := b.ResolveAndConsume(live); err != nil || owner != 3 {
		t.Fatalf("live binding should still consume: owner=%d err=%v", owner, err)
	}
}
