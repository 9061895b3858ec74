package capture

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// process abstracts the capture subprocess so tests can substitute a scripted
// audio source for ffmpeg.
type process interface {
	// Stdout is the raw PCM stream. It reaches EOF when the process exits.
	Stdout() io.Reader

	// Interrupt asks the process to finish gracefully and flush its output.
	Interrupt() error

	// Kill terminates the process immediately.
	Kill()

	// Wait reaps the process after Stdout has hit EOF.
	Wait() error
}

// launchFunc starts the capture subprocess for one recording.
type launchFunc func(ctx context.Context, argv []string) (process, error)

// ffmpegProcess wraps a running ffmpeg command.
type ffmpegProcess struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer
}

func launchFFmpeg(ctx context.Context, argv []string) (process, error) {
	if _, err := exec.LookPath(argv[0]); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &ffmpegProcess{cmd: cmd, stdout: stdout, stderr: &stderr}, nil
}

func (p *ffmpegProcess) Stdout() io.Reader { return p.stdout }

// Interrupt sends SIGINT, which makes ffmpeg finalize and close stdout.
func (p *ffmpegProcess) Interrupt() error {
	return p.cmd.Process.Signal(os.Interrupt)
}

func (p *ffmpegProcess) Kill() {
	_ = p.cmd.Process.Kill()
}

func (p *ffmpegProcess) Wait() error {
	err := p.cmd.Wait()
	if err == nil {
		return nil
	}
	if msg := strings.TrimSpace(p.stderr.String()); msg != "" {
		return fmt.Errorf("%w: %s", err, msg)
	}
	return err
}
