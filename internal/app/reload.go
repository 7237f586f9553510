package app

import (
	"context"
	"strings"
	"time"

	"jobsched/internal/config"
	"jobsched/internal/eventbus"
	logx "jobsched/pkg/logx"
)

// reloadLoop applies published configs until c is done.
func (a *App) reloadLoop(c context.Context, sub chan config.Reload) {
	defer a.cfgm.Unsubscribe(sub)
	applied := a.cfgm.Get()
	for {
		select {
		case <-c.Done():
			return
		case rl, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts and diff against what was actually applied.
			rl = latest(sub, rl).Since(applied)
			a.applyConfig(c, rl)
			applied = rl.Next
		}
	}
}

func latest(sub chan config.Reload, cur config.Reload) config.Reload {
	for {
		select {
		case newer, ok := <-sub:
			if !ok {
				return cur
			}
			cur = newer
		default:
			return cur
		}
	}
}

// applyConfig applies everything that can change at runtime. Engine and
// storage settings only take effect on restart.
func (a *App) applyConfig(c context.Context, rl config.Reload) {
	if rl.Empty() {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	next := rl.Next
	fields := append([]logx.Field{logx.String("changed", strings.Join(rl.Sections, ","))}, rl.Fields...)
	a.log.Debug("config change summary", fields...)
	if len(rl.Jobs) > 0 {
		a.log.Debug("job config changes detected", logx.Any("jobs", rl.Jobs))
	}

	for _, s := range rl.RestartRequired() {
		a.log.Warn(s + " config changed; restart required for changes to take effect")
	}

	if rl.Changed("logging") {
		a.logs.Apply(mapLogConfig(next))
	}

	if paused, ok := rl.PauseRequest(); ok && paused != a.sched.Paused() {
		if paused {
			a.sched.Pause()
			a.log.Info("scheduler paused via config")
		} else {
			a.sched.Resume()
			a.log.Info("scheduler resumed via config")
		}
	}

	if rl.Changed("jobs") {
		if _, err := a.syncer.Sync(next.Jobs); err != nil {
			a.log.Warn("job sync incomplete", logx.Err(err))
		}
	}

	if rl.Changed("ops") {
		if oc, err := mapOpsConfig(next); err != nil {
			a.log.Warn("invalid ops config; keeping previous", logx.Err(err))
		} else {
			stopCtx, cancel := context.WithTimeout(c, 3*time.Second)
			a.ops.Reconfigure(stopCtx, oc)
			cancel()
		}
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigReloaded, Time: time.Now(), Data: rl.Sections})

	// Keep the final log line concise and human-friendly (details are in debug logs).
	a.log.Info("config reloaded", fields...)
}
