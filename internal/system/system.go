// Package system adapts the Linux desktop tooling sussurro depends on:
// typing text into the focused window, the clipboard, media players,
// audio mute and desktop notifications. Everything shells out to the
// usual command line tools (wtype, xdotool, wl-copy, playerctl, pactl,
// notify-send); a missing tool degrades the feature to a no-op with a
// warning instead of failing the session, except for text delivery,
// which is the whole point and reports an error when no sink exists.
package system

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// cmdTimeout bounds every helper command. The tools are local and fast;
// anything slower is stuck.
const cmdTimeout = 3 * time.Second

// runner abstracts tool lookup and execution so tests can fake the
// desktop.
type runner interface {
	look(tool string) (string, error)
	run(ctx context.Context, stdin, tool string, args ...string) (string, error)
}

// execRunner is the production runner.
type execRunner struct{}

func (execRunner) look(tool string) (string, error) {
	return exec.LookPath(tool)
}

func (execRunner) run(ctx context.Context, stdin, tool string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, tool, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("%s: %w: %s", tool, err, msg)
		}
		return "", fmt.Errorf("%s: %w", tool, err)
	}
	return stdout.String(), nil
}

// available reports whether the tool resolves on PATH.
func available(r runner, tool string) bool {
	_, err := r.look(tool)
	return err == nil
}

// detachedCtx returns a fresh bounded context for helper commands, so
// mute and media state can still be restored after the session context
// was cancelled.
func detachedCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), cmdTimeout)
}
