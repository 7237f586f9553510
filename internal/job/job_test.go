package job

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

type paramJob struct {
	*Basic
	got map[string]string
}

func (p *paramJob) ParameterizedTask(params map[string]string) Task {
	return func(context.Context, RunListener) error {
		p.got = params
		return nil
	}
}

func TestTaskForThreadsParams(t *testing.T) {
	t.Parallel()
	plainRan := false
	pj := &paramJob{Basic: New(CategoryOf("c").Type("t").Key("p"), "param", func(context.Context, RunListener) error {
		plainRan = true
		return nil
	})}

	_ = TaskFor(pj, map[string]string{"text": "Test"})(context.Background(), NopRunListener)
	if pj.got["text"] != "Test" {
		t.Fatalf("params not threaded: %v", pj.got)
	}
	_ = TaskFor(pj, nil)(context.Background(), NopRunListener)
	if !plainRan {
		t.Fatal("no params must select the plain task")
	}

	// Plain jobs ignore parameters.
	ran := false
	b := New(CategoryOf("c").Type("t").Key("b"), "", func(context.Context, RunListener) error { ran = true; return nil })
	_ = TaskFor(b, map[string]string{"x": "y"})(context.Background(), NopRunListener)
	if !ran {
		t.Fatal("plain job should run its task")
	}
}

func TestBasicFlags(t *testing.T) {
	t.Parallel()
	b := New(CategoryOf("c").Type("t").Key("1"), "d", nil)
	if b.Disabled() || !IsValid(b) {
		t.Fatal("new job must be enabled and valid")
	}
	b.SetDisabled(true)
	b.Invalidate()
	if !b.Disabled() || IsValid(b) {
		t.Fatal("flags not applied")
	}
}

func TestFailureMessage(t *testing.T) {
	t.Parallel()
	if got := FailureMessage(errors.New("")); got != DefaultFailureMessage {
		t.Fatalf("empty message fallback = %q", got)
	}
	if got := FailureMessage(errors.New("Failure")); got != "Failure" {
		t.Fatalf("got %q", got)
	}
	te := &TaskError{Key: Key{"a", "b", "c"}, Err: errors.New("Failure")}
	if !strings.Contains(te.Error(), "a/b/c") || errors.Unwrap(te).Error() != "Failure" {
		t.Fatalf("TaskError = %v", te)
	}
	if err := NotScheduled(Key{"a", "b", "c"}); !errors.Is(err, ErrNotScheduled) {
		t.Fatalf("NotScheduled must wrap ErrNotScheduled: %v", err)
	}
}

type recListener struct {
	NopListener
	events []string
}

func (r *recListener) OnJobStart(run Run)  { r.events = append(r.events, "start:"+run.Key.ID) }
func (r *recListener) OnJobPaused(key Key) { r.events = append(r.events, "paused:"+key.ID) }

func TestListenersFanOut(t *testing.T) {
	t.Parallel()
	a, b := &recListener{}, &recListener{}
	l := Listeners(a, nil, Listeners(b))
	l.OnJobStart(Run{Key: Key{"c", "t", "1"}})
	l.OnJobPaused(Key{"c", "t", "2"})
	l.OnJobComplete(Run{}, time.Second)
	for _, r := range []*recListener{a, b} {
		if strings.Join(r.events, ",") != "start:1,paused:2" {
			t.Fatalf("events = %v", r.events)
		}
	}
	if _, ok := Listeners().(NopListener); !ok {
		t.Fatal("empty Listeners() should be a NopListener")
	}
}

func TestChainDecoratorsOrderAndTimeout(t *testing.T) {
	t.Parallel()
	var order []string
	mk := func(name string) Decorator {
		return DecoratorFunc(func(_ Job, next Task) Task {
			return func(ctx context.Context, l RunListener) error {
				order = append(order, name)
				return next(ctx, l)
			}
		})
	}
	base := func(ctx context.Context, _ RunListener) error {
		order = append(order, "task")
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline")
		}
		return nil
	}
	task := ChainDecorators(mk("outer"), nil, mk("inner"), TimeoutDecorator(time.Second)).Decorate(nil, base)
	if err := task(context.Background(), NopRunListener); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(order, ",") != "outer,inner,task" {
		t.Fatalf("order = %v", order)
	}
}

func TestStatusJSONNulls(t *testing.T) {
	t.Parallel()
	st := Status{Key: Key{"c", "t", "1"}, Schedule: None, Valid: true}
	b, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["nextRun"] != nil || m["lastError"] != nil {
		t.Fatalf("expected nulls, got %s", b)
	}
	if m["key"] != "c/t/1" || m["schedule"] != "none" {
		t.Fatalf("unexpected payload %s", b)
	}
}
