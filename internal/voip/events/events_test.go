package events

import (
	"context"
	"encoding/json"
	"testing"
)

func TestEventJSONIsFlat(t *testing.T) {
	builder := NewBuilder("test-node")

	event := builder.CallEnded("A", "C1", true, map[string]any{"infoTest": "text"})

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}

	checks := map[string]string{
		"event":              "onDidEndCall",
		"uuid":               "A",
		"incoming_caller_id": "C1",
		"node_id":            "test-node",
	}
	for k, want := range checks {
		if got, ok := m[k].(string); !ok || got != want {
			t.Errorf("m[%q] = %v, want %q", k, m[k], want)
		}
	}
	if m["isEndCallManually"] != true {
		t.Errorf("isEndCallManually = %v, want true", m["isEndCallManually"])
	}
	info, ok := m["info"].(map[string]interface{})
	if !ok || info["infoTest"] != "text" {
		t.Errorf("info = %v", m["info"])
	}
	if m["event_id"] == "" {
		t.Error("event_id is empty")
	}
}

func TestPushReceivedCarriesPayload(t *testing.T) {
	payload := map[string]any{"uuid": "A", "incoming_caller_name": "Bob"}
	event := NewBuilder("").PushReceived("A", payload, "Bob")
	payload["uuid"] = "mutated"

	got := event.Fields[FieldPayload].(map[string]any)
	if got["uuid"] != "A" {
		t.Errorf("payload uuid = %v, want A", got["uuid"])
	}
	if event.Fields[FieldCallerName] != "Bob" {
		t.Errorf("caller name = %v, want Bob", event.Fields[FieldCallerName])
	}
}

func TestBridgeDropsWithoutListener(t *testing.T) {
	b := NewBridge(4)
	var dropped []Kind
	b.SetOnDrop(func(k Kind) { dropped = append(dropped, k) })

	if err := b.Publish(context.Background(), NewBuilder("").AudioSessionActivated("A")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if b.DroppedCount() != 1 || len(dropped) != 1 || dropped[0] != AudioSessionActivated {
		t.Errorf("dropped = %d %v, want 1 activation", b.DroppedCount(), dropped)
	}

	// A listener attached later does not see the dropped event
	l := b.Attach()
	select {
	case e := <-l.Events():
		t.Fatalf("unexpected queued event %s", e.Kind)
	default:
	}
}

func TestBridgePreservesOrder(t *testing.T) {
	b := NewBridge(8)
	l := b.Attach()
	builder := NewBuilder("")

	kinds := []Kind{PushReceived, CallAccepted, AudioSessionActivated, CallEnded}
	for _, k := range kinds {
		_ = b.Publish(context.Background(), builder.newEvent(k, "A", nil))
	}

	for i, want := range kinds {
		got := <-l.Events()
		if got.Kind != want {
			t.Errorf("event %d = %s, want %s", i, got.Kind, want)
		}
	}
}

func TestBridgeSlowListenerLosesEvents(t *testing.T) {
	b := NewBridge(1)
	l := b.Attach()
	builder := NewBuilder("")

	_ = b.Publish(context.Background(), builder.PushTokenUpdated("aa"))
	_ = b.Publish(context.Background(), builder.PushTokenUpdated("bb"))

	if got := (<-l.Events()).Fields[FieldToken]; got != "aa" {
		t.Errorf("first token = %v, want aa", got)
	}
	if b.DroppedCount() != 1 {
		t.Errorf("DroppedCount() = %d, want 1", b.DroppedCount())
	}
}

func TestBridgeDetachClosesListener(t *testing.T) {
	b := NewBridge(1)
	l := b.Attach()
	if !b.Listening() {
		t.Fatal("Listening() = false after Attach")
	}
	b.Detach(l)
	b.Detach(l)
	if _, ok := <-l.Events(); ok {
		t.Error("listener channel still open after Detach")
	}
	if b.Listening() {
		t.Error("Listening() = true after Detach")
	}
}

func TestMultiPublisherFansOut(t *testing.T) {
	a := NewChannelPublisher(1)
	c := NewChannelPublisher(1)
	m := NewMultiPublisher(a, NewLoggingPublisher(nil), c, NewNoopPublisher())

	if err := m.Publish(context.Background(), NewBuilder("").CallAccepted("A", "C1")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	for _, p := range []*ChannelPublisher{a, c} {
		if e := <-p.Events(); e.Kind != CallAccepted {
			t.Errorf("got %s, want %s", e.Kind, CallAccepted)
		}
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}
