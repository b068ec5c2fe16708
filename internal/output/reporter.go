// Package output renders progress, status and error messages for a
// migration run.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"

	"github.com/BartekS5/cmigrate/pkg/logger"
)

// Reporter writes user facing messages. Errors are mirrored to the logger
// and counted.
type Reporter struct {
	w        io.Writer
	debug    bool
	progress bool

	info    *color.Color
	warn    *color.Color
	fail    *color.Color
	success *color.Color
	faint   *color.Color

	errors int
}

type Option func(*Reporter)

// WithDebug enables Debug messages.
func WithDebug(on bool) Option {
	return func(r *Reporter) { r.debug = on }
}

// WithProgress enables progress bars.
func WithProgress(on bool) Option {
	return func(r *Reporter) { r.progress = on }
}

// WithColor forces colored output on or off.
func WithColor(on bool) Option {
	return func(r *Reporter) {
		for _, c := range []*color.Color{r.info, r.warn, r.fail, r.success, r.faint} {
			if on {
				c.EnableColor()
			} else {
				c.DisableColor()
			}
		}
	}
}

func New(w io.Writer, opts ...Option) *Reporter {
	if w == nil {
		w = os.Stdout
	}
	r := &Reporter{
		w:       w,
		info:    color.New(color.FgCyan),
		warn:    color.New(color.FgYellow),
		fail:    color.New(color.FgRed, color.Bold),
		success: color.New(color.FgGreen),
		faint:   color.New(color.Faint),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Discard returns a Reporter that writes nowhere.
func Discard() *Reporter {
	return New(io.Discard, WithColor(false))
}

func (r *Reporter) line(c *color.Color, tag, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	c.Fprint(r.w, tag)
	fmt.Fprintln(r.w, " "+msg)
}

func (r *Reporter) Info(format string, args ...interface{}) {
	r.line(r.info, "[info]", format, args...)
}

func (r *Reporter) Debug(format string, args ...interface{}) {
	if !r.debug {
		return
	}
	r.line(r.faint, "[debug]", format, args...)
}

func (r *Reporter) Warn(format string, args ...interface{}) {
	logger.Warnf(format, args...)
	r.line(r.warn, "[warn]", format, args...)
}

func (r *Reporter) Error(format string, args ...interface{}) {
	r.errors++
	logger.Errorf(format, args...)
	r.line(r.fail, "[error]", format, args...)
}

func (r *Reporter) Success(format string, args ...interface{}) {
	r.line(r.success, "[ok]", format, args...)
}

// Errors is the number of errors reported so far.
func (r *Reporter) Errors() int {
	return r.errors
}

// Table prints rows under a header line.
func (r *Reporter) Table(header []string, rows [][]string) {
	table := uitable.New()
	table.MaxColWidth = 60
	table.AddRow(toCells(header)...)
	for _, row := range rows {
		table.AddRow(toCells(row)...)
	}
	fmt.Fprintln(r.w, strings.TrimRight(table.String(), "\n"))
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}
