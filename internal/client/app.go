package client

import (
	"context"
	"fmt"

	"e2e_relay/internal/utils/log"

	"github.com/gdamore/tcell/v2"
	"github.com/pkg/errors"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

const help = "[gray]/add /accept /reject /remove <handle>, /contacts, /requests, /chat <handle>, /quit[-]"

// App is the terminal UI around a Client.
type App struct {
	app     *tview.Application
	chatbox *tview.TextView
	input   *tview.InputField

	client *Client
}

func NewApp() *App {
	a := &App{app: tview.NewApplication()}

	a.chatbox = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetChangedFunc(func() { a.app.Draw() })
	a.chatbox.SetBorder(true).SetTitle(" e2e_relay ")
	a.chatbox.ScrollToEnd()

	a.input = tview.NewInputField().
		SetLabel("> ").
		SetFieldWidth(0)
	a.input.SetBorder(true)

	return a
}

// Print appends a line to the chat box. It is safe to call from any
// goroutine.
func (a *App) Print(line string) {
	fmt.Fprintln(a.chatbox, line)
}

// Run connects, then blocks in the UI loop until /quit, ctx is cancelled or
// the relay drops the connection.
func (a *App) Run(ctx context.Context, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c, err := Open(ctx, opts, a.Print)
	if err != nil {
		return err
	}
	a.client = c
	defer c.Close()

	a.chatbox.SetTitle(fmt.Sprintf(" %s ", c.Handle()))
	a.Print(help)

	go func() {
		if err := c.Listen(ctx); err != nil && ctx.Err() == nil {
			log.Debug("event stream closed", zap.Error(err))
			a.Print("[red]disconnected from relay[-]")
		}
	}()
	go func() {
		<-ctx.Done()
		a.app.Stop()
	}()

	a.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		line := a.input.GetText()
		a.input.SetText("")

		go func() {
			err := c.Exec(ctx, line)
			switch {
			case errors.Is(err, ErrQuit):
				cancel()
			case err != nil:
				a.Print(fmt.Sprintf("[red]error:[-] %v", err))
			}
			if peer := c.Peer(); peer != "" {
				a.app.QueueUpdateDraw(func() {
					a.input.SetLabel(peer + "> ")
				})
			}
		}()
	})

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.chatbox, 0, 1, false).
		AddItem(a.input, 3, 0, true)

	return a.app.SetRoot(layout, true).SetFocus(a.input).Run()
}
