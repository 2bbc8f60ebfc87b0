package authcore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func sessionStoresUnderTest(t *testing.T, clock Clock) map[string]SessionStore {
	t.Helper()
	database, openErr := OpenDatabase(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "auth.db"))
	if openErr != nil {
		t.Fatalf("OpenDatabase: %v", openErr)
	}
	return map[string]SessionStore{
		"memory":   NewMemorySessionStore(clock),
		"database": NewDatabaseSessionStore(database, clock),
	}
}

func TestSessionStoreLifecycle(t *testing.T) {
	t.Parallel()

	clock := newFixedClock(time.Unix(1700000000, 0).UTC())
	for label, store := range sessionStoresUnderTest(t, clock) {
		t.Run(label, func(t *testing.T) {
			ctx := context.Background()
			session := Session{
				ID:             "session-1",
				SubjectID:      "subject-1",
				AccessToken:    "access-1",
				RefreshTokenID: "refresh-1",
				StartedUnix:    clock.Now().Unix(),
			}
			if err := store.Create(ctx, session); err != nil {
				t.Fatalf("Create: %v", err)
			}

			found, findErr := store.FindByRefreshTokenID(ctx, "refresh-1")
			if findErr != nil || found.ID != "session-1" {
				t.Fatalf("FindByRefreshTokenID: %v %v", found, findErr)
			}
			found, findErr = store.FindByAccessToken(ctx, "access-1")
			if findErr != nil || found.ID != "session-1" {
				t.Fatalf("FindByAccessToken: %v %v", found, findErr)
			}

			if err := store.Rotate(ctx, "session-1", "access-2", "refresh-2"); err != nil {
				t.Fatalf("Rotate: %v", err)
			}
			if _, err := store.FindByRefreshTokenID(ctx, "refresh-1"); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("stale refresh id must not resolve, got %v", err)
			}
			found, findErr = store.FindByRefreshTokenID(ctx, "refresh-2")
			if findErr != nil || found.AccessToken != "access-2" {
				t.Fatalf("rotated session must carry new pair: %v %v", found, findErr)
			}

			if err := store.End(ctx, "session-1", SessionEndLogout); err != nil {
				t.Fatalf("End: %v", err)
			}
			if _, err := store.FindByRefreshTokenID(ctx, "refresh-2"); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("ended session must not resolve, got %v", err)
			}
		})
	}
}

func TestSessionStoreEndKeepsFirstReason(t *testing.T) {
	t.Parallel()

	clock := newFixedClock(time.Unix(1700000000, 0).UTC())
	ctx := context.Background()
	store := NewMemorySessionStore(clock)

	if err := store.Create(ctx, Session{ID: "session-1", SubjectID: "subject-1", RefreshTokenID: "refresh-1"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.End(ctx, "session-1", SessionEndLogout); err != nil {
		t.Fatalf("first End: %v", err)
	}
	if err := store.End(ctx, "session-1", SessionEndPasswordChange); err != nil {
		t.Fatalf("second End must be a no-op: %v", err)
	}
	if store.sessions["session-1"].EndReason != SessionEndLogout {
		t.Fatalf("second End must not overwrite the reason")
	}
	if err := store.End(ctx, "missing", SessionEndLogout); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionStoreEndAllForSubjectSparesException(t *testing.T) {
	t.Parallel()

	clock := newFixedClock(time.Unix(1700000000, 0).UTC())
	for label, store := range sessionStoresUnderTest(t, clock) {
		t.Run(label, func(t *testing.T) {
			ctx := context.Background()
			for _, session := range []Session{
				{ID: "keep", SubjectID: "subject-1", AccessToken: "a-keep", RefreshTokenID: "r-keep"},
				{ID: "drop-one", SubjectID: "subject-1", AccessToken: "a-one", RefreshTokenID: "r-one"},
				{ID: "drop-two", SubjectID: "subject-1", AccessToken: "a-two", RefreshTokenID: "r-two"},
				{ID: "other", SubjectID: "subject-2", AccessToken: "a-other", RefreshTokenID: "r-other"},
			} {
				if err := store.Create(ctx, session); err != nil {
					t.Fatalf("Create(%s): %v", session.ID, err)
				}
			}

			ended, endErr := store.EndAllForSubject(ctx, "subject-1", SessionEndPasswordChange, "keep")
			if endErr != nil {
				t.Fatalf("EndAllForSubject: %v", endErr)
			}
			if len(ended) != 2 {
				t.Fatalf("expected 2 ended sessions, got %d", len(ended))
			}
			for _, session := range ended {
				if session.AccessToken == "" {
					t.Fatalf("ended sessions must surface their access tokens")
				}
			}

			if _, err := store.FindByRefreshTokenID(ctx, "r-keep"); err != nil {
				t.Fatalf("spared session must stay live: %v", err)
			}
			if _, err := store.FindByRefreshTokenID(ctx, "r-one"); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("sibling session must be ended, got %v", err)
			}
			if _, err := store.FindByRefreshTokenID(ctx, "r-other"); err != nil {
				t.Fatalf("other subject's session must stay live: %v", err)
			}
		})
	}
}
