// Package tui is the full-screen player: game text and a command
// input line, with a status bar and a machine-state sidebar for
// poking at a running story.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"go.zmach.net/zmach/cli"
	"go.zmach.net/zmach/vm"
)

// Player owns the terminal while a story plays.
type Player struct {
	app *tview.Application

	outputView *tview.TextView
	inputField *tview.InputField
	statusView *tview.TextView
	stateView  *tview.TextView

	m        *vm.Machine
	settings cli.Settings
	story    *cli.Story

	lines  chan string
	ctx    context.Context
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func New(ctx context.Context, story *cli.Story, settings cli.Settings) (*Player, error) {
	m, err := vm.New(story.Image, settings.VMConfig())
	if err != nil {
		return nil, err
	}

	app := tview.NewApplication()

	outputView := tview.NewTextView().
		SetDynamicColors(true).
		SetChangedFunc(func() { app.Draw() })
	outputView.SetBorder(true).SetTitle(story.Path)
	outputView.ScrollToEnd()

	statusView := tview.NewTextView().SetTextAlign(tview.AlignLeft)
	statusView.SetBackgroundColor(tcell.ColorDarkBlue)

	stateView := tview.NewTextView()
	stateView.SetTitle("Machine").SetBorder(true)

	inputField := tview.NewInputField().SetLabel("> ")

	ctx, cancel := context.WithCancel(ctx)
	p := &Player{
		app:        app,
		outputView: outputView,
		inputField: inputField,
		statusView: statusView,
		stateView:  stateView,
		m:          m,
		settings:   settings,
		story:      story,
		lines:      make(chan string, 1),
		ctx:        ctx,
		cancel:     cancel,
	}

	m.SetOutput(tview.ANSIWriter(outputView))
	m.SetStatusHandler(func(location string, score, moves int16) {
		app.QueueUpdateDraw(func() {
			statusView.SetText(fmt.Sprintf(" %s | Score: %d  Moves: %d", location, score, moves))
		})
	})
	m.SetSaveHandler(p.save)
	m.SetRestoreHandler(p.restore)
	if settings.Transcript != "" {
		f, err := os.OpenFile(settings.Transcript, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("open transcript: %w", err)
		}
		m.SetTranscript(f)
	}

	inputField.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		line := inputField.GetText()
		inputField.SetText("")
		fmt.Fprintf(outputView, "> %s\n", line)
		select {
		case p.lines <- line:
		case <-p.ctx.Done():
		}
	})
	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC, tcell.KeyEscape:
			p.Stop()
			return nil
		}
		return event
	})

	return p, nil
}

func (p *Player) Stop() {
	p.app.Stop()
	p.cancel()
}

// save and restore back the game's own save and restore opcodes with
// snapshot files under the configured save directory.
func (p *Player) save(s *vm.Snapshot) error {
	path, err := p.settings.SavePath("game")
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return vm.WriteSnapshot(f, s)
}

func (p *Player) restore() (*vm.Snapshot, error) {
	path, err := p.settings.SavePath("game")
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return vm.ReadSnapshot(f)
}

func (p *Player) drawState() {
	p.stateView.Clear()
	h := p.m.Header()
	fmt.Fprintf(p.stateView, "Release: %d\n", h.Release)
	fmt.Fprintf(p.stateView, "Serial: %s\n", h.Serial)
	fmt.Fprintf(p.stateView, "PC: 0x%05x\n", p.m.PC())
	fmt.Fprintf(p.stateView, "Steps: %d\n", p.m.Steps())
	fmt.Fprintf(p.stateView, "Call depth: %d\n", p.m.Frames())
	fmt.Fprintf(p.stateView, "Location: %d\n", p.m.Location())
}

// run drives the machine: batches of instructions until the story
// wants input, then a line from the input field, repeat.
func (p *Player) run() {
	defer p.Stop()
	for {
		status, err := p.m.RunBatch(p.settings.BatchLimit)
		if err != nil {
			p.fail(err)
			return
		}
		p.app.QueueUpdateDraw(p.drawState)
		switch status {
		case vm.Quit:
			return
		case vm.AwaitingInput:
			select {
			case line := <-p.lines:
				if err := p.m.Feed(line); err != nil {
					p.fail(err)
					return
				}
			case <-p.ctx.Done():
				return
			}
		}
	}
}

func (p *Player) fail(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// Run plays the story until it quits, faults, or the player leaves.
func (p *Player) Run() error {
	go p.run()
	if err := p.app.SetRoot(tview.NewPages().AddPage("main", p.flexRoot(), true, true), true).
		SetFocus(p.inputField).Run(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil && !errors.Is(p.err, io.EOF) {
		return p.err
	}
	return nil
}

func (p *Player) flexRoot() tview.Primitive {
	// Rebuild the layout from the already-wired views.
	leftPane := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(p.statusView, 1, 0, false).
		AddItem(p.outputView, 0, 1, false).
		AddItem(p.inputField, 1, 0, true)
	return tview.NewFlex().
		AddItem(leftPane, 0, 4, true).
		AddItem(p.stateView, 0, 1, false)
}
