// Package ui renders build progress. Implementations range from a
// throttled stdout line to a full tview dashboard; the driver feeds both
// from the same periodic tracker snapshot poll.
package ui

import "cbuild/tracker"

// Progress is one point-in-time snapshot the driver hands to a UI.
type Progress struct {
	Elapsed   string
	Total     int
	Compiled  int
	Linked    int
	Failed    int
	Snapshots []tracker.Snapshot
}

// UI is the interface for displaying build progress.
type UI interface {
	Start() error
	Stop()
	Update(p Progress)
	LogEvent(target, message string)
}
