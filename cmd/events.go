// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/a1s/gridsource/internal/datasource"
)

var (
	watchEvents bool
	eventsCmd   = &cobra.Command{
		Use:   "events [location|alias]",
		Short: "Print the events emitted by a data source",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runEvents,
	}
)

func init() {
	eventsCmd.Flags().BoolVarP(&watchEvents, "watch", "w", false, "Keep following backend changes")
}

func runEvents(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Events go to stdout, logs stay on stderr unless a file is configured.
	s, err := openSession(ctx, cmd, args, "")
	if err != nil {
		return err
	}
	defer s.Close()

	p := newEventPrinter(cmd.OutOrStdout())
	unsub := s.src.Subscribe(p)
	defer unsub()

	if s.src.IsReady() {
		n, err := s.src.RecordCount(ctx)
		if err != nil {
			return err
		}
		p.printf(p.ready, "ready", "%d records from %s", n, s.location)
	}
	if !watchEvents {
		return nil
	}

	w, ok := s.src.(datasource.Watcher)
	if !ok {
		return &datasource.UnsupportedOperationError{Op: "watch"}
	}
	if err := w.Watch(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	return nil
}

// eventPrinter writes one colored line per event.
type eventPrinter struct {
	out     io.Writer
	ready   *color.Color
	added   *color.Color
	removed *color.Color
	loaded  *color.Color
	changed *color.Color
	failed  *color.Color
	mx      sync.Mutex
}

func newEventPrinter(out io.Writer) *eventPrinter {
	return &eventPrinter{
		out:     out,
		ready:   color.New(color.FgCyan, color.Bold),
		added:   color.New(color.FgGreen),
		removed: color.New(color.FgRed),
		loaded:  color.New(color.FgBlue),
		changed: color.New(color.FgYellow),
		failed:  color.New(color.FgRed, color.Bold),
	}
}

func (p *eventPrinter) printf(c *color.Color, kind, format string, args ...any) {
	p.mx.Lock()
	defer p.mx.Unlock()

	fmt.Fprintf(p.out, "%s %s %s\n",
		time.Now().Format(time.TimeOnly),
		c.Sprintf("%-12s", kind),
		fmt.Sprintf(format, args...),
	)
}

func (p *eventPrinter) Ready() {
	p.printf(p.ready, datasource.EventReady.String(), "")
}

func (p *eventPrinter) RowsAdded(r datasource.Range) {
	p.printf(p.added, datasource.EventRowsAdded.String(), "%s", r)
}

func (p *eventPrinter) RowsRemoved(r datasource.Range) {
	p.printf(p.removed, datasource.EventRowsRemoved.String(), "%s", r)
}

func (p *eventPrinter) DataLoaded() {
	p.printf(p.loaded, datasource.EventDataLoaded.String(), "")
}

func (p *eventPrinter) DataChanged(c datasource.Change) {
	for _, v := range c.Values {
		p.printf(p.changed, datasource.EventDataChanged.String(), "%s.%s", v.RowID, v.Key)
	}
	for _, r := range c.Rows {
		p.printf(p.changed, datasource.EventDataChanged.String(), "%v", r)
	}
}

func (p *eventPrinter) LoadFailed(err error) {
	p.printf(p.failed, "failed", "%v", err)
}
