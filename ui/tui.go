package ui

import (
	"fmt"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"cbuild/tracker"
)

// TUI is a full-screen dashboard listing every target's compile/link
// status alongside a rolling log pane, built on gdamore/tcell and
// rivo/tview.
type TUI struct {
	mu       sync.Mutex
	app      *tview.Application
	table    *tview.Table
	logView  *tview.TextView
	started  bool
	doneChan chan struct{}
}

func NewTUI() *TUI {
	app := tview.NewApplication()
	table := tview.NewTable().SetBorders(false)
	logView := tview.NewTextView().SetDynamicColors(true).SetScrollable(true)
	logView.SetBorder(true).SetTitle("events")
	table.SetBorder(true).SetTitle("targets")

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(table, 0, 2, false).
		AddItem(logView, 0, 1, false)

	app.SetRoot(flex, true)
	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlC {
			app.Stop()
			return nil
		}
		return event
	})

	return &TUI{app: app, table: table, logView: logView}
}

func (u *TUI) Start() error {
	u.mu.Lock()
	u.started = true
	u.doneChan = make(chan struct{})
	u.mu.Unlock()

	go func() {
		_ = u.app.Run()
		close(u.doneChan)
	}()
	return nil
}

func (u *TUI) Stop() {
	u.mu.Lock()
	started := u.started
	u.started = false
	u.mu.Unlock()
	if !started {
		return
	}
	u.app.Stop()
	<-u.doneChan
}

func (u *TUI) Update(p Progress) {
	u.app.QueueUpdateDraw(func() {
		u.table.Clear()
		u.table.SetCell(0, 0, tview.NewTableCell("target").SetSelectable(false))
		u.table.SetCell(0, 1, tview.NewTableCell("compile").SetSelectable(false))
		u.table.SetCell(0, 2, tview.NewTableCell("link").SetSelectable(false))
		for i, s := range p.Snapshots {
			row := i + 1
			u.table.SetCell(row, 0, tview.NewTableCell(s.Name))
			u.table.SetCell(row, 1, tview.NewTableCell(compileLabel(s.Compile)))
			u.table.SetCell(row, 2, tview.NewTableCell(linkLabel(s.Link)))
		}
	})
}

func (u *TUI) LogEvent(target, message string) {
	u.app.QueueUpdateDraw(func() {
		fmt.Fprintf(u.logView, "[%s] %s\n", target, message)
	})
}

func compileLabel(s tracker.CompileStatus) string {
	switch s {
	case tracker.Compiling:
		return "compiling"
	case tracker.CompileFailed:
		return "[red]failed[-]"
	case tracker.CompileSuccess:
		return "[green]success[-]"
	default:
		return "?"
	}
}

func linkLabel(s tracker.LinkStatus) string {
	switch s {
	case tracker.Waiting:
		return "waiting"
	case tracker.Linking:
		return "linking"
	case tracker.LinkFailed:
		return "[red]failed[-]"
	case tracker.LinkSuccess:
		return "[green]success[-]"
	default:
		return "?"
	}
}
