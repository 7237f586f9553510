package job

import (
	"context"
	"time"
)

// Decorator wraps a job's task, e.g. to add tracing or a deadline.
// Decorators never change scheduling semantics.
type Decorator interface {
	Decorate(j Job, t Task) Task
}

type DecoratorFunc func(j Job, t Task) Task

func (f DecoratorFunc) Decorate(j Job, t Task) Task { return f(j, t) }

type identityDecorator struct{}

func (identityDecorator) Decorate(_ Job, t Task) Task { return t }

// ChainDecorators applies ds so that the first one is the outermost wrapper.
func ChainDecorators(ds ...Decorator) Decorator {
	list := make([]Decorator, 0, len(ds))
	for _, d := range ds {
		if d != nil {
			list = append(list, d)
		}
	}
	if len(list) == 0 {
		return identityDecorator{}
	}
	return DecoratorFunc(func(j Job, t Task) Task {
		for i := len(list) - 1; i >= 0; i-- {
			t = list[i].Decorate(j, t)
		}
		return t
	})
}

// TimeoutDecorator bounds each run's context by d. The task must honor ctx
// for the deadline to have any effect.
func TimeoutDecorator(d time.Duration) Decorator {
	return DecoratorFunc(func(_ Job, t Task) Task {
		if d <= 0 {
			return t
		}
		return func(ctx context.Context, l RunListener) error {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return t(ctx, l)
		}
	})
}
