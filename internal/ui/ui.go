// Package ui renders colorized phase announcements for the run loop.
// It is presentation only — the engine never consults it to decide
// behavior, matching spec §1's carve-out of "terminal spinner
// rendering" as an external concern.
package ui

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	taskColor  = color.New(color.FgCyan, color.Bold)
	hitColor   = color.New(color.FgGreen)
	missColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed, color.Bold)
)

// TaskStarted announces that a task has begun executing.
func TaskStarted(w io.Writer, taskName string) {
	fmt.Fprintln(w, taskColor.Sprintf("[toast] running task `%s`", taskName))
}

// CacheHit announces that a task's committed image already exists and
// its command will be skipped.
func CacheHit(w io.Writer, taskName string) {
	fmt.Fprintln(w, hitColor.Sprintf("[toast] `%s` is cached, skipping", taskName))
}

// CacheMiss announces that no cached image was found for a task.
func CacheMiss(w io.Writer, taskName string) {
	fmt.Fprintln(w, missColor.Sprintf("[toast] no cache entry for `%s`", taskName))
}

// TaskFailed announces a task's non-zero exit.
func TaskFailed(w io.Writer, taskName string, err error) {
	fmt.Fprintln(w, errorColor.Sprintf("[toast] task `%s` failed: %v", taskName, err))
}

// ScheduleFinished announces that every scheduled task completed.
func ScheduleFinished(w io.Writer) {
	fmt.Fprintln(w, taskColor.Sprint("[toast] done"))
}
