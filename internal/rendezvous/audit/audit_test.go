package audit

import "testing"

func TestOpenAppliesMigrationsAndLogsPairings(t *testing.T) {
	l, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	if err := l.LogPairing("session-a"); err != nil {
		t.Fatalf("LogPairing: %v", err)
	}
	if err := l.LogPairing("session-a"); err != nil {
		t.Fatalf("LogPairing (second row): %v", err)
	}

	var count int
	if err := l.db.QueryRow(`SELECT COUNT(*) FROM pairings WHERE session_id = ?`, "session-a").Scan(&count); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if count != 2 {
		t.Errorf("pairings rows for session-a = %d, want 2", count)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	l1, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l1.Close()
	if _, err := Open(":memory:"); err != nil {
		t.Fatalf("second Open against a fresh :memory: db: %v", err)
	}
}
