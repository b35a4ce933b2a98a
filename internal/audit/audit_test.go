package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type recordingPublisher struct {
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev Event) error {
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func TestEmitStampsTime(t *testing.T) {
	p := &recordingPublisher{}
	Emit(context.Background(), p, Event{Type: DraftCreated, DraftID: "d1"})
	if len(p.events) != 1 {
		t.Fatalf("got %d events, want 1", len(p.events))
	}
	if p.events[0].At.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestEmitSwallowsErrors(t *testing.T) {
	p := &recordingPublisher{err: errors.New("broker down")}
	Emit(context.Background(), p, Event{Type: DraftRejected, DraftID: "d1"})
	Emit(context.Background(), nil, Event{Type: DraftRejected})
}

func TestEncodeMessage(t *testing.T) {
	msg, err := encodeMessage(Event{Type: DraftRejected, DraftID: "d1", Feedback: "duplicate"})
	if err != nil {
		t.Fatalf("encodeMessage: %v", err)
	}
	if string(msg.Key) != "d1" {
		t.Errorf("key = %q, want d1", msg.Key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != DraftRejected {
		t.Errorf("headers = %+v", msg.Headers)
	}
	var got map[string]any
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("value is not JSON: %v", err)
	}
	if got["feedback"] != "duplicate" {
		t.Errorf("feedback = %v", got["feedback"])
	}
}

func TestLogPublisher(t *testing.T) {
	p := NewLogPublisher()
	if err := p.Publish(context.Background(), Event{Type: ArticlePublished, DraftID: "d", ArticleID: "a"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}
