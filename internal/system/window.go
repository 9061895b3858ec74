package system

import (
	"context"
	"log/slog"
	"strings"
)

// WindowTitle reports the title of the focused window, used as a context
// hint for enhancement prompts. X11 only; on Wayland or without xdotool
// it degrades to empty answers.
type WindowTitle struct {
	run       runner
	log       *slog.Logger
	available bool
}

// NewWindowTitle probes for xdotool.
func NewWindowTitle(log *slog.Logger) *WindowTitle {
	return newWindowTitle(execRunner{}, log)
}

func newWindowTitle(run runner, log *slog.Logger) *WindowTitle {
	if log == nil {
		log = slog.Default()
	}
	w := &WindowTitle{run: run, log: log}
	if available(run, "xdotool") {
		w.available = true
	} else {
		log.Debug("xdotool not found, window titles unavailable")
	}
	return w
}

// Title returns the focused window's title, or "" when unavailable.
func (w *WindowTitle) Title(ctx context.Context) string {
	if !w.available {
		return ""
	}
	out, err := w.run.run(ctx, "", "xdotool", "getactivewindow", "getwindowname")
	if err != nil {
		w.log.Debug("reading active window title", "err", err)
		return ""
	}
	return strings.TrimSpace(out)
}
