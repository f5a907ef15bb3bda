package docstore

import (
	"testing"
	"time"
)

func TestCreateRejectsDuplicateIDs(t *testing.T) {
	s := NewStore()

	if err := s.Create("games", "ABCDEF", Document{"round": 1}); err != nil {
		t.Fatalf("expected create to succeed, got %v", err)
	}
	if err := s.Create("games", "ABCDEF", Document{"round": 1}); err != ErrExists {
		t.Fatalf("expected ErrExists on duplicate id, got %v", err)
	}
	// Same id in another collection is a different document.
	if err := s.Create("archive", "ABCDEF", Document{"round": 1}); err != nil {
		t.Fatalf("expected create in other collection to succeed, got %v", err)
	}
}

func TestGetReturnsSnapshot(t *testing.T) {
	s := NewStore()
	if err := s.Create("games", "g1", Document{"status": "waiting"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	doc, ok := s.Get("games", "g1")
	if !ok {
		t.Fatalf("expected document to exist")
	}

	// Mutating the snapshot must not leak into the store.
	doc["status"] = "hacked"
	again, _ := s.Get("games", "g1")
	if again["status"] != "waiting" {
		t.Fatalf("snapshot mutation leaked into store: %v", again["status"])
	}

	if _, ok := s.Get("games", "missing"); ok {
		t.Fatalf("expected missing document to report ok=false")
	}
}

func TestUpdateMergesNestedPaths(t *testing.T) {
	s := NewStore()
	err := s.Create("games", "g1", Document{
		"status": "playing",
		"round":  1,
		"players": map[string]any{
			"alice": map[string]any{"name": "Alice", "lastWord": nil},
			"bob":   map[string]any{"name": "Bob", "lastWord": nil},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	err = s.Update("games", "g1", map[string]any{
		"players.alice.lastWord": "Dog",
		"round":                  2,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	doc, _ := s.Get("games", "g1")
	players := doc["players"].(map[string]any)
	alice := players["alice"].(map[string]any)
	bob := players["bob"].(map[string]any)

	if alice["lastWord"] != "Dog" {
		t.Fatalf("expected alice's word to be set, got %v", alice["lastWord"])
	}
	if alice["name"] != "Alice" || bob["name"] != "Bob" {
		t.Fatalf("untouched fields were not preserved: %v", doc)
	}
	if doc["round"] != 2 {
		t.Fatalf("expected round 2, got %v", doc["round"])
	}
	if doc["status"] != "playing" {
		t.Fatalf("expected status preserved, got %v", doc["status"])
	}
}

func TestUpdateMissingDocument(t *testing.T) {
	s := NewStore()
	if err := s.Update("games", "nope", map[string]any{"round": 2}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateIfAppliesOnlyWhenExpected(t *testing.T) {
	s := NewStore()
	if err := s.Create("games", "g1", Document{"status": "playing", "round": 1}); err != nil {
		t.Fatalf("create: %v", err)
	}

	applied, err := s.UpdateIf("games", "g1",
		map[string]any{"round": 2},
		map[string]any{"round": 1, "status": "playing"},
	)
	if err != nil || !applied {
		t.Fatalf("expected first conditional write to apply, got applied=%v err=%v", applied, err)
	}

	// A duplicate resolver using the stale expectation must lose.
	applied, err = s.UpdateIf("games", "g1",
		map[string]any{"round": 2},
		map[string]any{"round": 1, "status": "playing"},
	)
	if err != nil {
		t.Fatalf("updateif: %v", err)
	}
	if applied {
		t.Fatalf("expected stale conditional write to be discarded")
	}

	doc, _ := s.Get("games", "g1")
	if doc["round"] != 2 {
		t.Fatalf("expected round 2 after one resolution, got %v", doc["round"])
	}
}

func TestUpdateIfMissingFieldMatchesNil(t *testing.T) {
	s := NewStore()
	if err := s.Create("games", "g1", Document{"status": "gameover"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	applied, err := s.UpdateIf("games", "g1",
		map[string]any{"nextGameId": "ZZZZZZ"},
		map[string]any{"nextGameId": nil},
	)
	if err != nil || !applied {
		t.Fatalf("expected unset field to satisfy nil expectation, got applied=%v err=%v", applied, err)
	}

	applied, _ = s.UpdateIf("games", "g1",
		map[string]any{"nextGameId": "YYYYYY"},
		map[string]any{"nextGameId": nil},
	)
	if applied {
		t.Fatalf("expected second chain write to be discarded")
	}

	doc, _ := s.Get("games", "g1")
	if doc["nextGameId"] != "ZZZZZZ" {
		t.Fatalf("expected first pointer to win, got %v", doc["nextGameId"])
	}
}

func collect(t *testing.T, s *Store, collection, id string) (chan change, func()) {
	t.Helper()
	ch := make(chan change, 32)
	cancel := s.Subscribe(collection, id, func(doc Document, ok bool) {
		ch <- change{doc: doc, ok: ok}
	})
	return ch, cancel
}

func next(t *testing.T, ch chan change) change {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for change delivery")
		return change{}
	}
}

func TestSubscribeDeliversInitialThenWrites(t *testing.T) {
	s := NewStore()
	if err := s.Create("games", "g1", Document{"round": 1}); err != nil {
		t.Fatalf("create: %v", err)
	}

	ch, cancel := collect(t, s, "games", "g1")
	defer cancel()

	first := next(t, ch)
	if !first.ok || first.doc["round"] != 1 {
		t.Fatalf("expected immediate snapshot with round 1, got %+v", first)
	}

	for round := 2; round <= 5; round++ {
		if err := s.Update("games", "g1", map[string]any{"round": round}); err != nil {
			t.Fatalf("update: %v", err)
		}
	}

	// Deliveries arrive in write order.
	for round := 2; round <= 5; round++ {
		c := next(t, ch)
		if !c.ok || c.doc["round"] != round {
			t.Fatalf("expected round %d in order, got %+v", round, c)
		}
	}
}

func TestSubscribeToAbsentDocument(t *testing.T) {
	s := NewStore()

	ch, cancel := collect(t, s, "games", "nope")
	defer cancel()

	if c := next(t, ch); c.ok {
		t.Fatalf("expected initial absent delivery, got %+v", c)
	}

	if err := s.Create("games", "nope", Document{"round": 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if c := next(t, ch); !c.ok || c.doc["round"] != 1 {
		t.Fatalf("expected creation delivery, got %+v", c)
	}
}

func TestDeleteNotifiesSubscribers(t *testing.T) {
	s := NewStore()
	if err := s.Create("games", "g1", Document{"round": 1}); err != nil {
		t.Fatalf("create: %v", err)
	}

	ch, cancel := collect(t, s, "games", "g1")
	defer cancel()
	next(t, ch)

	s.Delete("games", "g1")
	if c := next(t, ch); c.ok {
		t.Fatalf("expected deletion to deliver absent, got %+v", c)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	s := NewStore()
	if err := s.Create("games", "g1", Document{"round": 1}); err != nil {
		t.Fatalf("create: %v", err)
	}

	ch, cancel := collect(t, s, "games", "g1")
	next(t, ch)
	cancel()

	if err := s.Update("games", "g1", map[string]any{"round": 2}); err != nil {
		t.Fatalf("update: %v", err)
	}

	select {
	case c := <-ch:
		t.Fatalf("expected no delivery after unsubscribe, got %+v", c)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReapRemovesIdleDocuments(t *testing.T) {
	s := NewStore()
	if err := s.Create("games", "old", Document{"round": 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create("games", "new", Document{"round": 1}); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Backdate one document past the cutoff.
	s.mu.Lock()
	s.docs["games/old"].updated = time.Now().Add(-2 * time.Hour)
	s.mu.Unlock()

	if reaped := s.Reap(time.Hour); reaped != 1 {
		t.Fatalf("expected 1 reaped document, got %d", reaped)
	}
	if _, ok := s.Get("games", "old"); ok {
		t.Fatalf("expected idle document to be removed")
	}
	if _, ok := s.Get("games", "new"); !ok {
		t.Fatalf("expected fresh document to survive")
	}
}
