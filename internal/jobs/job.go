package jobs

import (
	"context"
	"maps"
	"reflect"
	"strings"
	"sync/atomic"
	"time"

	"jobsched/internal/config"
	"jobsched/internal/job"
	logx "jobsched/pkg/logx"
)

// RunFunc executes one run with the merged parameters.
type RunFunc func(ctx context.Context, l job.RunListener, params map[string]string) error

// ConfigJob is a job declared in the config file. It is a ParameterizedJob:
// forced-run parameters are merged over the block's params.
type ConfigJob struct {
	spec     config.JobConfig
	key      job.Key
	schedule job.Schedule
	timeout  time.Duration
	run      RunFunc

	disabled atomic.Bool
	invalid  atomic.Bool
}

var (
	_ job.ParameterizedJob = (*ConfigJob)(nil)
	_ job.Validator        = (*ConfigJob)(nil)
)

func newConfigJob(jc config.JobConfig, f Factory, deps Deps) (*ConfigJob, error) {
	sched, err := job.ParseSchedule(jc.Schedule)
	if err != nil {
		return nil, err
	}
	timeout, err := config.ParseDurationField("timeout", jc.Timeout)
	if err != nil {
		return nil, err
	}
	key := jc.Key()
	run, err := f(jc, Deps{Log: deps.Log.With(logx.Stringer("job", key)), HTTP: deps.HTTP})
	if err != nil {
		return nil, err
	}
	cj := &ConfigJob{
		spec:     jc,
		key:      key,
		schedule: sched,
		timeout:  timeout,
		run:      run,
	}
	cj.disabled.Store(jc.Disabled)
	return cj, nil
}

func (j *ConfigJob) Key() job.Key { return j.key }

func (j *ConfigJob) Description() string {
	if d := strings.TrimSpace(j.spec.Description); d != "" {
		return d
	}
	return j.spec.Kind + " job " + j.spec.ID
}

func (j *ConfigJob) Disabled() bool         { return j.disabled.Load() }
func (j *ConfigJob) Valid() bool            { return !j.invalid.Load() }
func (j *ConfigJob) Schedule() job.Schedule { return j.schedule }
func (j *ConfigJob) Spec() config.JobConfig { return j.spec }
func (j *ConfigJob) Task() job.Task         { return j.ParameterizedTask(nil) }
func (j *ConfigJob) SetDisabled(v bool)     { j.disabled.Store(v) }
func (j *ConfigJob) Invalidate()            { j.invalid.Store(true) }

func (j *ConfigJob) ParameterizedTask(params map[string]string) job.Task {
	merged := make(map[string]string, len(j.spec.Params)+len(params))
	maps.Copy(merged, j.spec.Params)
	maps.Copy(merged, params)
	return func(ctx context.Context, l job.RunListener) error {
		if j.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, j.timeout)
			defer cancel()
		}
		return j.run(ctx, l, merged)
	}
}

func (j *ConfigJob) sameTask(o *ConfigJob) bool {
	return reflect.DeepEqual(taskSpec(j.spec), taskSpec(o.spec))
}

// taskSpec strips the fields that can change without rebuilding the task.
func taskSpec(jc config.JobConfig) config.JobConfig {
	jc.Schedule = ""
	jc.Disabled = false
	return jc
}
