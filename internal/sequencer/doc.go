// Package sequencer submits motion plans on a schedule.
//
// Each entry pairs a schedule (cron expression, interval duration, or
// HH:MM shorthand) with a job that commits a plan to the motion scheduler.
// It exists so a headless daemon can keep a runtime exercised without an
// interactive caller.
package sequencer
