package eventbus

import (
	"errors"
	"testing"
	"time"

	"jobsched/internal/job"
)

func TestPublishFanOutAndFilter(t *testing.T) {
	t.Parallel()
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	failed, unsubFailed := b.Subscribe(4, TypeJobFailed)
	defer unsubFailed()

	b.Publish(Event{Type: TypeJobStarted})
	b.Publish(Event{Type: TypeJobFailed})

	if got := (<-all).Type; got != TypeJobStarted {
		t.Fatalf("first event = %q", got)
	}
	if got := (<-all).Type; got != TypeJobFailed {
		t.Fatalf("second event = %q", got)
	}
	e := <-failed
	if e.Type != TypeJobFailed || e.Time.IsZero() {
		t.Fatalf("filtered event = %+v", e)
	}
	select {
	case e := <-failed:
		t.Fatalf("unexpected event %+v", e)
	default:
	}
}

func TestSlowSubscriberDrops(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})
	if b.Dropped() != 1 {
		t.Fatalf("Dropped() = %d, want 1", b.Dropped())
	}
	unsub()
	unsub()
	// Publishing after unsubscribe must not panic.
	b.Publish(Event{Type: "c"})
}

func TestListenerPublishesJobEvents(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(8)
	defer unsub()

	l := Listener{Bus: b}
	key := job.CategoryOf("c").Type("t").Key("1")
	run := job.Run{ID: "r1", Key: key, Forced: true}
	l.OnJobStart(run)
	l.OnJobProgress(run, "half way")
	l.OnJobError(run, errors.New("Failure"), time.Second)
	l.OnJobPaused(key)

	want := []string{TypeJobStarted, TypeJobProgress, TypeJobFailed, TypeJobPaused}
	for i, typ := range want {
		e := <-ch
		if e.Type != typ {
			t.Fatalf("event %d type = %q, want %q", i, e.Type, typ)
		}
		ev := e.Data.(JobEvent)
		if ev.Key != key {
			t.Fatalf("event %d key = %v", i, ev.Key)
		}
		if typ == TypeJobFailed && (ev.Error != "Failure" || ev.RunID != "r1" || !ev.Forced) {
			t.Fatalf("failed event = %+v", ev)
		}
	}

	// A listener without a bus is a no-op.
	Listener{}.OnJobStart(run)
}
