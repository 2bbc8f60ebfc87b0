package authcore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func resetStoresUnderTest(t *testing.T, clock Clock) map[string]PasswordResetStore {
	t.Helper()
	database, openErr := OpenDatabase(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "auth.db"))
	if openErr != nil {
		t.Fatalf("OpenDatabase: %v", openErr)
	}
	return map[string]PasswordResetStore{
		"memory":   NewMemoryPasswordResetStore(clock),
		"database": NewDatabasePasswordResetStore(database, clock),
	}
}

func TestPasswordResetStoreConsume(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	for label, store := range resetStoresUnderTest(t, newFixedClock(now)) {
		t.Run(label, func(t *testing.T) {
			ctx := context.Background()
			hash := hashToken("reset-opaque")
			if err := store.Create(ctx, "subject-1", hash, now.Add(time.Hour).Unix()); err != nil {
				t.Fatalf("Create: %v", err)
			}

			subjectID, consumeErr := store.Consume(ctx, hash)
			if consumeErr != nil {
				t.Fatalf("Consume: %v", consumeErr)
			}
			if subjectID != "subject-1" {
				t.Fatalf("expected subject-1, got %q", subjectID)
			}

			if _, err := store.Consume(ctx, hash); !errors.Is(err, ErrResetTokenUsed) {
				t.Fatalf("second consume must report ErrResetTokenUsed, got %v", err)
			}
		})
	}
}

func TestPasswordResetStoreRejectsExpiredAndUnknown(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	clock := newFixedClock(now)
	for label, store := range resetStoresUnderTest(t, clock) {
		t.Run(label, func(t *testing.T) {
			ctx := context.Background()
			if _, err := store.Consume(ctx, hashToken("never-issued")); !errors.Is(err, ErrResetTokenInvalid) {
				t.Fatalf("unknown token must report ErrResetTokenInvalid, got %v", err)
			}

			expiredHash := hashToken("expired-opaque-" + label)
			if err := store.Create(ctx, "subject-1", expiredHash, now.Add(-time.Minute).Unix()); err != nil {
				t.Fatalf("Create: %v", err)
			}
			if _, err := store.Consume(ctx, expiredHash); !errors.Is(err, ErrResetTokenExpired) {
				t.Fatalf("expired token must report ErrResetTokenExpired, got %v", err)
			}
		})
	}
}
