// Package emergency watches for an operator-requested abort — a stop
// file or SIGINT/SIGTERM — and fans it out to registered callbacks. The
// runner's batch driver (pkg/runner) checks IsStopped before scheduling
// each seed, so a stop ends the scheduling of new seeds and lets any
// in-flight seed finish on its own.
package emergency

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jihwankim/viewharness/pkg/harnesslog"
)

// Controller polls for a stop file and, optionally, OS signals, and
// runs every registered callback exactly once on the first trigger.
type Controller struct {
	stopFile       string
	stopCh         chan struct{}
	stopped        bool
	mutex          sync.RWMutex
	callbacks      []func()
	pollInterval   time.Duration
	signalHandlers bool
	logger         *harnesslog.Logger
}

// Config configures a Controller.
type Config struct {
	// StopFile is the path polled for emergency stop.
	StopFile string

	// PollInterval between stop-file checks.
	PollInterval time.Duration

	// EnableSignalHandlers also triggers a stop on SIGINT/SIGTERM.
	EnableSignalHandlers bool

	// Logger receives a structured "emergency stop triggered" event.
	// Nil is safe: the controller silently no-ops logging.
	Logger *harnesslog.Logger
}

// New constructs a Controller from cfg, applying defaults for an
// unset StopFile (/tmp/viewharness-emergency-stop) and PollInterval
// (1s).
func New(config Config) *Controller {
	if config.StopFile == "" {
		config.StopFile = "/tmp/viewharness-emergency-stop"
	}
	if config.PollInterval == 0 {
		config.PollInterval = time.Second
	}

	return &Controller{
		stopFile:       config.StopFile,
		stopCh:         make(chan struct{}),
		callbacks:      make([]func(), 0),
		pollInterval:   config.PollInterval,
		signalHandlers: config.EnableSignalHandlers,
		logger:         config.Logger,
	}
}

// Start launches the stop-file poller and, if enabled, the signal
// watcher, both stopping when ctx is cancelled.
func (c *Controller) Start(ctx context.Context) {
	go c.watchStopFile(ctx)
	if c.signalHandlers {
		go c.watchSignals(ctx)
	}
}

func (c *Controller) watchStopFile(ctx context.Context) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.checkStopFile() {
				c.triggerStop(fmt.Sprintf("stop file detected: %s", c.stopFile))
				return
			}
		}
	}
}

func (c *Controller) watchSignals(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		signal.Stop(sigCh)
	case sig := <-sigCh:
		c.triggerStop(fmt.Sprintf("signal: %v", sig))
		signal.Stop(sigCh)
	}
}

func (c *Controller) checkStopFile() bool {
	_, err := os.Stat(c.stopFile)
	return err == nil
}

func (c *Controller) triggerStop(reason string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.stopped {
		return
	}
	c.stopped = true
	close(c.stopCh)

	if c.logger != nil {
		c.logger.Warn("emergency stop triggered", "reason", reason, "callbacks", len(c.callbacks))
	}
	for _, callback := range c.callbacks {
		callback()
	}
}

// Stop manually triggers the same stop path a detected stop file or
// signal would, for callers (e.g. the CLI's SIGINT handler) that
// already hold a cancellation reason.
func (c *Controller) Stop(reason string) {
	c.triggerStop(reason)
}

// IsStopped reports whether a stop has already been triggered.
func (c *Controller) IsStopped() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.stopped
}

// StopChannel returns a channel closed exactly once, on first trigger.
func (c *Controller) StopChannel() <-chan struct{} {
	return c.stopCh
}

// OnStop registers a callback run (in registration order) when a stop
// is triggered. Callbacks registered after a stop has already fired
// are never invoked.
func (c *Controller) OnStop(callback func()) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.callbacks = append(c.callbacks, callback)
}

// CreateStopFile writes the stop file, the on-disk trigger a
// long-running batch process polls for.
func (c *Controller) CreateStopFile() error {
	f, err := os.Create(c.stopFile)
	if err != nil {
		return fmt.Errorf("emergency: creating stop file: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "emergency stop requested at %s\n", time.Now().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("emergency: writing stop file: %w", err)
	}
	return nil
}

// RemoveStopFile removes the stop file, tolerating its absence.
func (c *Controller) RemoveStopFile() error {
	if err := os.Remove(c.stopFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("emergency: removing stop file: %w", err)
	}
	return nil
}

// StopFilePath returns the path this controller polls.
func (c *Controller) StopFilePath() string {
	return c.stopFile
}
