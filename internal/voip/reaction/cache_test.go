package reaction

import (
	"sync"
	"testing"
)

func TestConsumeEmpty(t *testing.T) {
	c := NewCache()
	if _, ok := c.Consume(); ok {
		t.Fatal("Consume() on empty cache returned a record")
	}
}

func TestConsumeClears(t *testing.T) {
	c := NewCache()
	c.Record(Accepted, map[string]any{"uuid": "A"})

	rec, ok := c.Consume()
	if !ok {
		t.Fatal("Consume() returned nothing after Record")
	}
	if rec.Reaction != Accepted || rec.Payload["uuid"] != "A" {
		t.Errorf("Consume() = %+v, want Accepted for A", rec)
	}
	if _, ok := c.Consume(); ok {
		t.Error("second Consume() returned a record")
	}
	if c.Pending() {
		t.Error("Pending() = true after Consume")
	}
}

func TestLastReactionWins(t *testing.T) {
	c := NewCache()
	if c.Record(Accepted, map[string]any{"uuid": "A"}) {
		t.Error("first Record reported an overwrite")
	}
	if !c.Record(Rejected, map[string]any{"uuid": "B"}) {
		t.Error("second Record did not report an overwrite")
	}

	rec, _ := c.Consume()
	if rec.Reaction != Rejected || rec.Payload["uuid"] != "B" {
		t.Errorf("Consume() = %+v, want Rejected for B", rec)
	}
}

func TestPayloadIsCopied(t *testing.T) {
	c := NewCache()
	payload := map[string]any{"uuid": "A"}
	c.Record(Accepted, payload)
	payload["uuid"] = "changed"

	rec, _ := c.Consume()
	if rec.Payload["uuid"] != "A" {
		t.Errorf("payload leaked caller mutation: %v", rec.Payload["uuid"])
	}
}

func TestConcurrentConsumeDeliversOnce(t *testing.T) {
	c := NewCache()
	c.Record(Accepted, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	delivered := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := c.Consume(); ok {
				mu.Lock()
				delivered++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if delivered != 1 {
		t.Errorf("delivered %d times, want 1", delivered)
	}
}
