package cli

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	color2 "github.com/fatih/color"
	"github.com/mattn/go-colorable"
)

var (
	Default = New(os.Stderr, true)
	bold    = color2.New(color2.Bold)
	boldred = color2.New(color2.Bold, color2.FgRed)
)

var Strings = [...]string{
	log.DebugLevel: "DEBUG",
	log.InfoLevel:  " INFO",
	log.WarnLevel:  " WARN",
	log.ErrorLevel: "ERROR",
	log.FatalLevel: "FATAL",
}

// Handler writes log entries as single aligned lines, followed by the
// stacktrace of any attached error.
type Handler struct {
	mu      sync.Mutex
	Writer  io.Writer
	Padding int
}

// New returns a handler writing to w. Colors are only used when w is a file
// and useColors is set.
func New(w io.Writer, useColors bool) *Handler {
	if f, ok := w.(*os.File); ok && useColors {
		return &Handler{Writer: colorable.NewColorable(f), Padding: 2}
	}
	return &Handler{Writer: colorable.NewNonColorable(w), Padding: 2}
}

// HandleLog implements log.Handler.
func (h *Handler) HandleLog(e *log.Entry) error {
	color := cli.Colors[e.Level]
	level := Strings[e.Level]
	names := e.Fields.Names()

	h.mu.Lock()
	defer h.mu.Unlock()

	color.Fprintf(h.Writer, "%s: [%s] %-25s", bold.Sprintf("%*s", h.Padding+1, level), time.Now().Format(time.StampMilli), e.Message)

	var errField error
	for _, name := range names {
		if name == "source" {
			continue
		}
		v := e.Fields.Get(name)
		if err, ok := v.(error); ok && name == "error" {
			errField = err
		}
		fmt.Fprintf(h.Writer, " %s=%v", color.Sprint(name), v)
	}
	fmt.Fprintln(h.Writer)

	// Stacktraces are only useful when debugging.
	if l, ok := log.Log.(*log.Logger); ok && errField != nil && l.Level == log.DebugLevel {
		err := errors.WithStackDepthIf(errField, 1)
		fmt.Fprintf(h.Writer, "\n%s\n%+v\n\n", boldred.Sprintf("Stacktrace:"), err)
	}
	return nil
}
