package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-shellwords"

	"github.com/dgnsrekt/speakstream/internal/subprocess"
	"github.com/dgnsrekt/speakstream/internal/tts"
)

// DeviceProbe reports the name of the system's current default output device.
type DeviceProbe interface {
	DefaultDevice(ctx context.Context) (string, error)
}

// ProbeFunc adapts a function to DeviceProbe.
type ProbeFunc func(ctx context.Context) (string, error)

// DefaultDevice calls f.
func (f ProbeFunc) DefaultDevice(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticProbe always reports the same device, disabling hot-swap.
type StaticProbe string

// DefaultDevice implements DeviceProbe.
func (p StaticProbe) DefaultDevice(context.Context) (string, error) {
	return string(p), nil
}

// CommandProbe asks an external command for the default device name,
// e.g. "pactl get-default-sink" or "wpctl inspect @DEFAULT_AUDIO_SINK@".
type CommandProbe struct {
	argv    []string
	timeout time.Duration
}

// NewCommandProbe parses command with shell quoting rules.
func NewCommandProbe(command string) (*CommandProbe, error) {
	args, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse device command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("device command empty")
	}
	return &CommandProbe{argv: args, timeout: 2 * time.Second}, nil
}

// DefaultDevice implements DeviceProbe.
func (p *CommandProbe) DefaultDevice(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var stdout bytes.Buffer
	cmd := exec.Command(p.argv[0], p.argv[1:]...)
	cmd.Stdout = &stdout
	if err := subprocess.Run(ctx, cmd, 0); err != nil {
		return "", fmt.Errorf("device probe: %w", err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// DeviceSink keeps a Sink attached to the current default device.
// Sync re-opens the sink when the default changes, carrying over volume
// and pause state.
type DeviceSink struct {
	open   Opener
	probe  DeviceProbe
	logger *log.Logger

	// OnSwap is called after a successful re-open.
	OnSwap func(from, to string)

	mu     sync.Mutex
	sink   Sink
	device string
	volume float64
	paused bool
}

// NewDeviceSink opens the initial sink. Failure here is fatal to the engine
// and is reported as a DEVICE_UNAVAILABLE error.
func NewDeviceSink(ctx context.Context, open Opener, probe DeviceProbe, logger *log.Logger) (*DeviceSink, error) {
	if probe == nil {
		probe = StaticProbe("default")
	}
	if logger == nil {
		logger = log.Default().WithPrefix("audio")
	}

	sink, err := open()
	if err != nil {
		return nil, tts.NewTTSError(tts.ErrorCodeDeviceUnavailable, "failed to open output device", fmt.Errorf("%w: %w", tts.ErrAudioDeviceUnavailable, err))
	}

	device, err := probe.DefaultDevice(ctx)
	if err != nil {
		logger.Debug("default device unknown", "err", err)
	}
	logger.Info("audio output opened", "device", device)

	return &DeviceSink{
		open:   open,
		probe:  probe,
		logger: logger,
		sink:   sink,
		device: device,
		volume: 1.0,
	}, nil
}

// Sync checks the default device and re-opens the sink if it changed.
// A probe failure keeps the current sink. A failed re-open also keeps the
// old sink and returns a PLAYBACK_FAILED error.
func (d *DeviceSink) Sync(ctx context.Context) (bool, error) {
	name, err := d.probe.DefaultDevice(ctx)
	if err != nil {
		d.logger.Debug("device probe failed", "err", err)
		return false, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if name == d.device {
		return false, nil
	}

	next, err := d.open()
	if err != nil {
		return false, tts.NewTTSError(tts.ErrorCodePlaybackFailed, "failed to reopen output on "+name, err)
	}
	next.SetVolume(d.volume)
	if d.paused {
		next.Pause()
	}

	prev := d.device
	if err := d.sink.Close(); err != nil {
		d.logger.Debug("closing previous sink", "err", err)
	}
	d.sink = next
	d.device = name

	d.logger.Info("output device changed", "from", prev, "to", name)
	if d.OnSwap != nil {
		d.OnSwap(prev, name)
	}
	return true, nil
}

// Sink returns the current sink.
func (d *DeviceSink) Sink() Sink {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sink
}

// Device returns the name of the device the sink was opened on.
func (d *DeviceSink) Device() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.device
}

// SetVolume sets the volume on the current sink and any future one.
func (d *DeviceSink) SetVolume(v float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.volume = clampVolume(v)
	d.sink.SetVolume(d.volume)
}

// Pause pauses output and keeps it paused across swaps.
func (d *DeviceSink) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = true
	d.sink.Pause()
}

// Play resumes output.
func (d *DeviceSink) Play() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = false
	d.sink.Play()
}

// Close closes the current sink.
func (d *DeviceSink) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sink.Close()
}
