package system

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// ErrNoClipboard is reported when neither wl-copy/wl-paste nor xclip is
// installed.
var ErrNoClipboard = errors.New("system: no clipboard tool available")

// Clipboard reads and writes the desktop clipboard through wl-copy and
// wl-paste on Wayland or xclip on X11.
type Clipboard struct {
	run       runner
	log       *slog.Logger
	copyArgv  []string
	pasteArgv []string
}

// NewClipboard probes the available clipboard tools.
func NewClipboard(log *slog.Logger) *Clipboard {
	return newClipboard(execRunner{}, log)
}

func newClipboard(run runner, log *slog.Logger) *Clipboard {
	if log == nil {
		log = slog.Default()
	}
	c := &Clipboard{run: run, log: log}
	switch {
	case os.Getenv("WAYLAND_DISPLAY") != "" && available(run, "wl-copy") && available(run, "wl-paste"):
		c.copyArgv = []string{"wl-copy"}
		c.pasteArgv = []string{"wl-paste", "--no-newline"}
	case available(run, "xclip"):
		c.copyArgv = []string{"xclip", "-selection", "clipboard"}
		c.pasteArgv = []string{"xclip", "-selection", "clipboard", "-o"}
	default:
		log.Warn("no clipboard tool found, clipboard features disabled")
	}
	return c
}

// Available reports whether a clipboard tool was found.
func (c *Clipboard) Available() bool {
	return len(c.copyArgv) > 0
}

// Write replaces the clipboard content.
func (c *Clipboard) Write(ctx context.Context, text string) error {
	if !c.Available() {
		return ErrNoClipboard
	}
	if _, err := c.run.run(ctx, text, c.copyArgv[0], c.copyArgv[1:]...); err != nil {
		return fmt.Errorf("system: writing clipboard: %w", err)
	}
	return nil
}

// Read returns the current clipboard content.
func (c *Clipboard) Read(ctx context.Context) (string, error) {
	if !c.Available() {
		return "", ErrNoClipboard
	}
	out, err := c.run.run(ctx, "", c.pasteArgv[0], c.pasteArgv[1:]...)
	if err != nil {
		return "", fmt.Errorf("system: reading clipboard: %w", err)
	}
	return strings.TrimSuffix(out, "\n"), nil
}
