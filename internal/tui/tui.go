// Package tui is the terminal front end: a stream picker and a live view of
// the running session.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jroimartin/gocui"

	"github.com/MrWong99/buzzer/internal/app"
	"github.com/MrWong99/buzzer/internal/session"
)

// refresh is how often the live views are redrawn.
const refresh = 250 * time.Millisecond

// UI is the live session view.
type UI struct {
	sessions *app.SessionManager
	url      string

	gui     *gocui.Gui
	message string

	vstatus *gocui.View
	vtone   *gocui.View
	vbits   *gocui.View
	vreport *gocui.View
	vcmd    *gocui.View
}

// New creates a UI controlling sessions. url is the stream started with s.
func New(sessions *app.SessionManager, url string) *UI {
	return &UI{sessions: sessions, url: url}
}

// Run takes over the terminal until the user quits or ctx ends.
func (ui *UI) Run(ctx context.Context) error {
	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	defer g.Close()
	ui.gui = g

	g.SetManagerFunc(ui.layout)
	if err := ui.setKeyBindings(); err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go ui.tick(ctx, done)

	if err := g.MainLoop(); err != nil && !errors.Is(err, gocui.ErrQuit) {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

// tick redraws periodically and quits the main loop when ctx ends.
func (ui *UI) tick(ctx context.Context, done <-chan struct{}) {
	t := time.NewTicker(refresh)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			ui.gui.Update(func(*gocui.Gui) error { return gocui.ErrQuit })
			return
		case <-t.C:
			ui.gui.Update(func(*gocui.Gui) error { return nil })
		}
	}
}

func (ui *UI) layout(g *gocui.Gui) (err error) {
	maxX, maxY := g.Size()
	split := maxX / 3

	ui.vstatus, err = g.SetView("status", 0, 0, maxX-1, 2)
	if err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		ui.vstatus.Title = "buzzer - UVB-76 decoder"
	}

	ui.vtone, err = g.SetView("tone", 0, 3, split-1, maxY-5)
	if err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		ui.vtone.Title = "Tone"
	}

	ui.vbits, err = g.SetView("bits", split, 3, maxX-1, (maxY-5)/2)
	if err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		ui.vbits.Title = "Binary stream"
		ui.vbits.Autoscroll = true
	}

	ui.vreport, err = g.SetView("report", split, (maxY-5)/2+1, maxX-1, maxY-5)
	if err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		ui.vreport.Title = "Pattern analysis (r: refresh)"
		ui.vreport.Wrap = true
	}

	ui.vcmd, err = g.SetView("cmdline", 0, maxY-4, maxX-1, maxY-1)
	if err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		ui.vcmd.Title = "Commands"
	}

	ui.draw()
	return nil
}

func (ui *UI) draw() {
	snap, info, err := ui.sessions.Snapshot()
	var sp *session.Snapshot
	if err == nil {
		sp = &snap
	}

	ui.vstatus.Clear()
	fmt.Fprint(ui.vstatus, statusLine(info, sp, time.Now()))

	_, toneRows := ui.vtone.Size()
	ui.vtone.Clear()
	fmt.Fprint(ui.vtone, toneLines(sp, max(toneRows-4, 0)))

	ui.vbits.Clear()
	if sp != nil {
		cols, _ := ui.vbits.Size()
		fmt.Fprint(ui.vbits, bitLines(sp.Bits, bitsPerRow(cols)))
	}

	ui.vcmd.Clear()
	fmt.Fprintln(ui.vcmd, "s: start  x: stop  e: export  r: report  ^C/q: quit")
	fmt.Fprint(ui.vcmd, ui.message)
}

func (ui *UI) setKeyBindings() error {
	quit := func(*gocui.Gui, *gocui.View) error { return gocui.ErrQuit }

	bindings := []struct {
		key     any
		handler func(*gocui.Gui, *gocui.View) error
	}{
		{gocui.KeyCtrlC, quit},
		{'q', quit},
		{'s', ui.start},
		{'x', ui.stop},
		{'e', ui.export},
		{'r', ui.report},
	}
	for _, b := range bindings {
		if err := ui.gui.SetKeybinding("", b.key, gocui.ModNone, b.handler); err != nil {
			return fmt.Errorf("tui: keybinding %v: %w", b.key, err)
		}
	}
	return nil
}

func (ui *UI) start(*gocui.Gui, *gocui.View) error {
	info, err := ui.sessions.Start(context.Background(), ui.url)
	if err != nil {
		ui.message = "start: " + err.Error()
		return nil
	}
	ui.message = "started " + info.SessionID
	return nil
}

// stop and export block on the session; they run off the GUI goroutine.
func (ui *UI) stop(*gocui.Gui, *gocui.View) error {
	ui.message = "stopping..."
	go func() {
		_, err := ui.sessions.Stop(context.Background())
		ui.notify("stopped", err)
	}()
	return nil
}

func (ui *UI) export(*gocui.Gui, *gocui.View) error {
	ui.message = "exporting..."
	go func() {
		files, err := ui.sessions.Export(context.Background())
		ui.notify(fmt.Sprintf("exported %d files", len(files)), err)
	}()
	return nil
}

func (ui *UI) notify(ok string, err error) {
	msg := ok
	if err != nil {
		msg = err.Error()
		slog.Warn("tui: action failed", "err", err)
	}
	ui.gui.Update(func(*gocui.Gui) error {
		ui.message = msg
		return nil
	})
}

func (ui *UI) report(*gocui.Gui, *gocui.View) error {
	ui.vreport.Clear()
	r, err := ui.sessions.Report(context.Background())
	if err != nil {
		fmt.Fprint(ui.vreport, "no session")
		return nil
	}
	fmt.Fprint(ui.vreport, r.Text())
	return nil
}
