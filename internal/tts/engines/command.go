package engines

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-shellwords"

	"github.com/dgnsrekt/speakstream/internal/subprocess"
	"github.com/dgnsrekt/speakstream/internal/tts"
)

// CommandEngine runs a local synthesizer binary once per sentence.
// The sentence is written to the process's stdin and audio is read from its
// stdout. Arguments may contain {voice} and {format} placeholders.
type CommandEngine struct {
	argv        []string
	gracePeriod time.Duration
	logger      *log.Logger
}

// NewCommandEngine parses command with shell quoting rules.
func NewCommandEngine(command string, logger *log.Logger) (*CommandEngine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse synthesis command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("synthesis command empty")
	}
	if logger == nil {
		logger = log.Default().WithPrefix("command")
	}
	return &CommandEngine{
		argv:        args,
		gracePeriod: subprocess.DefaultGracePeriod,
		logger:      logger,
	}, nil
}

// Name implements tts.Synthesizer.
func (e *CommandEngine) Name() string {
	return e.argv[0]
}

// Synthesize runs the command to completion and returns its output.
func (e *CommandEngine) Synthesize(ctx context.Context, req tts.Request) (io.ReadCloser, error) {
	replacer := strings.NewReplacer("{voice}", req.Voice, "{format}", string(req.Format))
	args := make([]string, 0, len(e.argv)-1)
	for _, a := range e.argv[1:] {
		args = append(args, replacer.Replace(a))
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.Command(e.argv[0], args...)
	cmd.Stdin = strings.NewReader(req.Text)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := subprocess.Run(ctx, cmd, e.gracePeriod); err != nil {
		return nil, fmt.Errorf("%s failed: %w, stderr: %s", e.argv[0], err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%s produced no audio, stderr: %s", e.argv[0], strings.TrimSpace(stderr.String()))
	}

	e.logger.Debug("command synthesized", "bytes", stdout.Len())
	return io.NopCloser(&stdout), nil
}
