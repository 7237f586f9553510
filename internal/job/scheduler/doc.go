// Package scheduler is the job scheduler: a registry of jobs keyed by
// job.Key, ticked by robfig/cron and executed on the task engine.
//
// Run eligibility is evaluated on every tick, in order: validity (invalid
// jobs are removed), the job's own Disabled flag, scheduler pause (global or
// per key) and finally the single-flight guard. Forced runs skip the pause
// check and attach to an in-flight run instead of starting a second one.
package scheduler
