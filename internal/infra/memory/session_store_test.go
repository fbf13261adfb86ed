package memory

import (
	"testing"

	"quiz-session-service/internal/app"
)

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore()
	key := app.SessionKey{UserID: "u1", SubjectID: "physics"}

	session := app.NewSession("u1", "physics", app.DefaultSessionConfig(), app.SessionDeps{})
	store.Put(key, session)
	if got, ok := store.Get(key); !ok || got != session {
		t.Fatalf("expected session present")
	}

	replacement := app.NewSession("u1", "physics", app.DefaultSessionConfig(), app.SessionDeps{})
	store.Put(key, replacement)

	// deleting the replaced session must not drop the replacement
	store.Delete(key, session)
	if got, ok := store.Get(key); !ok || got != replacement {
		t.Fatalf("expected replacement to survive stale delete")
	}

	store.Delete(key, replacement)
	if _, ok := store.Get(key); ok {
		t.Fatalf("expected session removed")
	}
}
