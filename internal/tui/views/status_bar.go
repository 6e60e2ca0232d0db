package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/ternmail/tern/internal/status"
)

// StatusBar displays persistent account/connection status.
type StatusBar struct {
	*tview.TextView
	account  string
	state    status.State
	activity string
	flash    string
}

// NewStatusBar creates a new status bar.
func NewStatusBar() *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv}
}

// SetAccount updates the account name display.
func (sb *StatusBar) SetAccount(name string) {
	sb.account = name
	sb.render()
}

// SetState updates the connection state display.
func (sb *StatusBar) SetState(st status.State) {
	sb.state = st
	sb.render()
}

// SetActivity shows what the engine is currently doing.
func (sb *StatusBar) SetActivity(line string) {
	sb.activity = line
	sb.render()
}

// SetFlash sets a temporary message.
func (sb *StatusBar) SetFlash(msg string) {
	sb.flash = msg
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	stateColor := "red"
	if sb.state == status.Connected {
		stateColor = "green"
	} else if sb.state == status.Connecting {
		stateColor = "yellow"
	}

	clock := time.Now().Format("15:04")
	line := fmt.Sprintf(" [white]%s[-] [%s]%s[-]", sb.account, stateColor, sb.state)
	if sb.activity != "" {
		line += " [gray]" + tview.Escape(sb.activity) + "[-]"
	}
	if sb.flash != "" {
		line += " [orange]" + tview.Escape(sb.flash) + "[-]"
	}
	line += fmt.Sprintf(" [gray]%s[-]", clock)
	fmt.Fprint(sb, line)
}
