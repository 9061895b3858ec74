package system

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// ErrNoOutputSink is reported when no typing tool and no clipboard tool
// could be found, leaving delivered text nowhere to go.
var ErrNoOutputSink = errors.New("system: no typing or clipboard tool available")

// typeMode identifies the delivery path selected at construction.
type typeMode int

const (
	typeNone typeMode = iota
	typeWayland
	typeX11
	typeClipboardOnly
)

// Typer delivers text into the focused window. It prefers direct typing
// (wtype on Wayland, xdotool on X11) and falls back to leaving the text
// in the clipboard when no typing tool exists.
type Typer struct {
	run  runner
	log  *slog.Logger
	clip *Clipboard
	mode typeMode
}

// NewTyper probes the available typing tools. pref narrows the choice:
// "wtype", "xdotool" or "clipboard" pick that path when its tool is
// installed; anything else, or a preferred tool that is missing, falls
// back to probing in order. The clipboard is shared with the rest of the
// app so the fallback does not re-probe.
func NewTyper(pref string, clip *Clipboard, log *slog.Logger) *Typer {
	return newTyper(execRunner{}, pref, clip, log)
}

func newTyper(run runner, pref string, clip *Clipboard, log *slog.Logger) *Typer {
	if log == nil {
		log = slog.Default()
	}
	if clip == nil {
		clip = newClipboard(run, log)
	}
	t := &Typer{run: run, log: log, clip: clip}

	switch pref {
	case "wtype":
		if available(run, "wtype") {
			t.mode = typeWayland
			return t
		}
	case "xdotool":
		if available(run, "xdotool") {
			t.mode = typeX11
			return t
		}
	case "clipboard":
		if clip.Available() {
			t.mode = typeClipboardOnly
			return t
		}
	case "", "auto":
		pref = ""
	}
	if pref != "" {
		log.Warn("configured typer is not installed, probing for another", "typer", pref)
	}

	switch {
	case os.Getenv("WAYLAND_DISPLAY") != "" && available(run, "wtype"):
		t.mode = typeWayland
	case available(run, "xdotool"):
		t.mode = typeX11
	case clip.Available():
		t.mode = typeClipboardOnly
		log.Warn("no typing tool found, delivering text via clipboard only")
	default:
		t.mode = typeNone
		log.Warn("no typing or clipboard tool found, text delivery will fail")
	}
	return t
}

// Deliver types text into the focused window. On a typing failure the
// text is parked in the clipboard as a courtesy before the error is
// returned, so a dictation is never silently lost.
func (t *Typer) Deliver(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	switch t.mode {
	case typeWayland:
		return t.typeText(ctx, text, "wtype", "-")
	case typeX11:
		return t.typeText(ctx, text, "xdotool", "type", "--clearmodifiers", "--file", "-")
	case typeClipboardOnly:
		if err := t.clip.Write(ctx, text); err != nil {
			return fmt.Errorf("system: delivering text: %w", err)
		}
		t.log.Info("text delivered to clipboard", "chars", len(text))
		return nil
	default:
		return ErrNoOutputSink
	}
}

// Submit presses Return in the focused window, for bindings that want
// the dictated text sent off immediately. Clipboard-only delivery has no
// way to press keys, so it reports ErrNoOutputSink.
func (t *Typer) Submit(ctx context.Context) error {
	switch t.mode {
	case typeWayland:
		if _, err := t.run.run(ctx, "", "wtype", "-k", "Return"); err != nil {
			return fmt.Errorf("system: pressing enter: %w", err)
		}
		return nil
	case typeX11:
		if _, err := t.run.run(ctx, "", "xdotool", "key", "--clearmodifiers", "Return"); err != nil {
			return fmt.Errorf("system: pressing enter: %w", err)
		}
		return nil
	default:
		return ErrNoOutputSink
	}
}

func (t *Typer) typeText(ctx context.Context, text, tool string, args ...string) error {
	if _, err := t.run.run(ctx, text, tool, args...); err != nil {
		if t.clip.Available() {
			rescueCtx, cancel := detachedCtx()
			defer cancel()
			if werr := t.clip.Write(rescueCtx, text); werr == nil {
				t.log.Warn("typing failed, text parked in clipboard", "err", err)
			}
		}
		return fmt.Errorf("system: typing text: %w", err)
	}
	return nil
}
