// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package ui

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/derailed/tcell/v2"
	"github.com/derailed/tview"
)

// FlashDelay sets the flash auto-clear delay.
const FlashDelay = 5 * time.Second

// FlashLevel represents flash message severity.
type FlashLevel int

const (
	// FlashInfo represents an info message.
	FlashInfo FlashLevel = iota
	// FlashWarn represents a warning message.
	FlashWarn
	// FlashErr represents an error message.
	FlashErr
)

// Flash shows transient status messages.
type Flash struct {
	*tview.TextView
	queue  QueueFunc
	delay  time.Duration
	cancel context.CancelFunc
	mx     sync.Mutex
}

// NewFlash creates a new Flash drawing through queue.
func NewFlash(queue QueueFunc) *Flash {
	f := &Flash{
		TextView: tview.NewTextView(),
		queue:    queue,
		delay:    FlashDelay,
	}
	f.SetDynamicColors(true)
	f.SetTextAlign(tview.AlignLeft)
	f.SetBorderPadding(0, 0, 1, 1)
	f.SetBackgroundColor(tcell.ColorDefault)

	return f
}

// Info displays an informational message.
func (f *Flash) Info(msg string) {
	f.setMessage(FlashInfo, msg)
}

// Infof displays a formatted informational message.
func (f *Flash) Infof(format string, args ...any) {
	f.Info(fmt.Sprintf(format, args...))
}

// Warn displays a warning message.
func (f *Flash) Warn(msg string) {
	f.setMessage(FlashWarn, msg)
}

// Err displays an error message.
func (f *Flash) Err(err error) {
	if err != nil {
		f.setMessage(FlashErr, err.Error())
	}
}

// Clear clears the flash message.
func (f *Flash) Clear() {
	f.stopTimer()
	f.queue(func() { f.TextView.Clear() })
}

func (f *Flash) stopTimer() {
	f.mx.Lock()
	defer f.mx.Unlock()
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

func (f *Flash) setMessage(level FlashLevel, msg string) {
	if msg == "" {
		f.Clear()
		return
	}
	f.stopTimer()

	f.queue(func() {
		f.TextView.Clear()
		f.SetTextColor(flashColor(level))
		fmt.Fprintf(f.TextView, "%s %s", tview.Escape(flashPrefix(level)), tview.Escape(msg))
	})

	ctx, cancel := context.WithCancel(context.Background())
	f.mx.Lock()
	f.cancel = cancel
	f.mx.Unlock()

	go f.autoClear(ctx)
}

func (f *Flash) autoClear(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(f.delay):
		f.queue(func() { f.TextView.Clear() })
	}
}

func flashColor(level FlashLevel) tcell.Color {
	switch level {
	case FlashWarn:
		return tcell.ColorYellow
	case FlashErr:
		return tcell.ColorRed
	default:
		return tcell.ColorGreen
	}
}

func flashPrefix(level FlashLevel) string {
	switch level {
	case FlashWarn:
		return "[WARN]"
	case FlashErr:
		return "[ERROR]"
	default:
		return "[INFO]"
	}
}
