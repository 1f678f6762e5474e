// Package daemon runs the capture pipeline: one watcher-driven worker per
// stage, a UDS control socket, and the periodic digest loop.
package daemon

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/smizuno/caplog/internal/events"
	"github.com/smizuno/caplog/internal/ingest"
	"github.com/smizuno/caplog/internal/lock"
	"github.com/smizuno/caplog/internal/logging"
	"github.com/smizuno/caplog/internal/model"
	"github.com/smizuno/caplog/internal/notify"
	"github.com/smizuno/caplog/internal/pipeline"
	"github.com/smizuno/caplog/internal/stage"
	"github.com/smizuno/caplog/internal/transcribe"
	"github.com/smizuno/caplog/internal/uds"
	"github.com/smizuno/caplog/internal/vault"
	"github.com/smizuno/caplog/internal/watch"
)

// Daemon is the main caplog daemon process.
type Daemon struct {
	caplogDir string
	config    model.Config
	logger    *logging.Logger
	logFile   io.Closer

	fileLock *lock.FileLock
	server   *uds.Server
	lockMap  *lock.MutexMap

	bus   *events.Bus
	audit *events.AuditLogger

	publisher *vault.Publisher
	watchers  []*watch.Watcher

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	shutdown sync.Once
	done     chan struct{}

	forceExit atomic.Bool
}

// New creates a new Daemon instance logging to logs/daemon.log.
func New(caplogDir string, cfg model.Config) (*Daemon, error) {
	logPath := filepath.Join(caplogDir, "logs", "daemon.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open daemon log: %w", err)
	}

	return newDaemon(caplogDir, cfg, logFile, logFile), nil
}

// newDaemon is the internal constructor for testing.
func newDaemon(caplogDir string, cfg model.Config, w io.Writer, closer io.Closer) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())

	logger := logging.New(w, logging.ParseLevel(cfg.Logging.Level), "daemon")
	socketPath := filepath.Join(caplogDir, uds.DefaultSocketName)

	return &Daemon{
		caplogDir: caplogDir,
		config:    cfg,
		logger:    logger,
		logFile:   closer,
		fileLock:  lock.NewFileLock(filepath.Join(caplogDir, "locks", "daemon.lock")),
		server:    uds.NewServer(socketPath, logger.WithComponent("uds")),
		lockMap:   lock.NewMutexMap(),
		bus:       events.NewBus(0),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Run starts the daemon and blocks until shutdown completes.
func (d *Daemon) Run() error {
	// Step 1: Acquire file lock
	if err := d.fileLock.TryLock(); err != nil {
		return fmt.Errorf("daemon lock: %w", err)
	}
	d.logger.Infof("daemon starting pid=%d", os.Getpid())

	// Step 2: Construct the transcriber. A missing model or engine is fatal
	// here, before any watch loop starts.
	transcriber, err := transcribe.NewWhisperTranscriber(d.config.Transcriber, d.logger.WithComponent("transcribe"))
	if err != nil {
		d.cleanup()
		return fmt.Errorf("transcriber: %w", err)
	}

	// Step 3: Audit log subscribed to every pipeline event
	audit, err := events.NewAuditLogger(filepath.Join(d.caplogDir, "logs", "audit.jsonl"), 0)
	if err != nil {
		d.cleanup()
		return fmt.Errorf("audit log: %w", err)
	}
	d.audit = audit
	d.bus.SubscribeAll(func(ev events.Event) {
		if err := d.audit.Record(ev); err != nil {
			d.logger.Warnf("audit write error=%v", err)
		}
	})

	// Step 4: Stage handlers
	var notifier notify.Notifier = notify.Noop{}
	if d.config.Notify.Enabled {
		notifier = notify.Desktop{}
	}

	textHandler := pipeline.NewTextHandler(d.caplogDir, d.bus, d.logger.WithComponent("text"))
	voiceHandler := pipeline.NewVoiceHandler(d.caplogDir, transcriber, d.config.Pipeline, notifier, d.bus, d.logger.WithComponent("voice"))
	d.publisher = vault.NewPublisher(d.caplogDir, d.config.Vault, d.bus, d.logger.WithComponent("vault"))
	if err := d.publisher.EnsureStructure(); err != nil {
		d.cleanup()
		return fmt.Errorf("vault structure: %w", err)
	}

	// Step 5: One watcher per stage
	debounce := time.Duration(d.config.Watcher.DebounceSec * float64(time.Second))
	opts := []watch.Option{
		watch.WithDebounce(debounce),
		watch.WithScanInterval(time.Duration(d.config.Watcher.ScanIntervalSec) * time.Second),
	}
	d.watchers = []*watch.Watcher{
		watch.New(filepath.Join(d.caplogDir, string(model.StageIncoming)),
			[]string{"*.yaml"}, textHandler.Handle, d.lockMap, d.logger.WithComponent("watch.incoming"), opts...),
		watch.New(filepath.Join(d.caplogDir, string(model.StageVoices)),
			ingest.AudioPatterns, voiceHandler.Handle, d.lockMap, d.logger.WithComponent("watch.voices"), opts...),
		watch.New(filepath.Join(d.caplogDir, string(model.StageReady)),
			[]string{"*.md"}, d.publisher.Handle, d.lockMap, d.logger.WithComponent("watch.ready"), opts...),
	}

	// Step 6: Register UDS handlers and start the control socket
	d.registerHandlers()
	if err := d.server.Start(); err != nil {
		d.cleanup()
		return fmt.Errorf("start UDS server: %w", err)
	}
	d.logger.Infof("UDS server listening on %s", filepath.Join(d.caplogDir, uds.DefaultSocketName))

	// Step 7: Start workers. Each watcher drains existing entries before
	// switching to event-based watching.
	for _, w := range d.watchers {
		w := w
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := w.Run(d.ctx); err != nil {
				d.logger.Errorf("watcher stopped error=%v", err)
			}
		}()
	}

	// Step 8: Digest loop
	if d.config.Vault.DigestEnabled {
		d.wg.Add(1)
		go d.digestLoop()
	}

	d.logger.Infof("daemon ready")

	// Step 9: Wait for signals
	d.waitSignals()

	return nil
}

// registerHandlers registers UDS request handlers.
func (d *Daemon) registerHandlers() {
	d.server.Handle("ping", func(req *uds.Request) *uds.Response {
		return uds.SuccessResponse(map[string]string{"status": "ok"})
	})

	d.server.Handle("scan", func(req *uds.Request) *uds.Response {
		for _, w := range d.watchers {
			w.DrainExisting()
		}
		return uds.SuccessResponse(map[string]string{"status": "scanned"})
	})

	d.server.Handle("digest", func(req *uds.Request) *uds.Response {
		if err := d.publisher.UpdateDailyDigest(); err != nil {
			return uds.ErrorResponse(uds.ErrCodeInternal, err.Error())
		}
		return uds.SuccessResponse(map[string]string{"status": "digest_updated"})
	})

	d.server.Handle("status", func(req *uds.Request) *uds.Response {
		return uds.SuccessResponse(d.stageDepths())
	})

	d.server.Handle("shutdown", func(req *uds.Request) *uds.Response {
		d.logger.Infof("shutdown requested via UDS")
		go d.Shutdown()
		return uds.SuccessResponse(map[string]string{"status": "shutdown_accepted"})
	})
}

// stageDepths reports queue depth per active stage.
func (d *Daemon) stageDepths() map[string]int {
	return map[string]int{
		string(model.StageIncoming):   stage.New(d.caplogDir, model.StageIncoming).Count("*.yaml"),
		string(model.StageVoices):     stage.New(d.caplogDir, model.StageVoices).Count(ingest.AudioPatterns...),
		string(model.StageProcessed):  stage.New(d.caplogDir, model.StageProcessed).Count("*.yaml"),
		string(model.StageReady):      stage.New(d.caplogDir, model.StageReady).Count("*.md"),
		string(model.StageDeadLetter): stage.New(d.caplogDir, model.StageDeadLetter).Count(),
	}
}

// digestLoop appends the daily digest at the configured cadence.
func (d *Daemon) digestLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(time.Duration(d.config.Vault.DigestIntervalMin) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			if err := d.publisher.UpdateDailyDigest(); err != nil {
				d.logger.Errorf("digest error=%v", err)
			}
		}
	}
}

// waitSignals blocks until a shutdown signal is received or a shutdown
// completes via the control socket (the stop command must terminate the
// process, not just its workers).
func (d *Daemon) waitSignals() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		d.logger.Infof("received signal=%s, initiating graceful shutdown", sig)

		// Second signal forces exit
		go func() {
			<-sigCh
			d.logger.Warnf("received second signal, forcing exit")
			d.forceExit.Store(true)
			os.Exit(1)
		}()

		d.Shutdown()
	case <-d.done:
	}
}

// Shutdown performs graceful shutdown (idempotent via sync.Once).
func (d *Daemon) Shutdown() {
	d.shutdown.Do(func() {
		d.logger.Infof("shutdown started")

		// 1. Cancel context (stops accepting new work)
		d.cancel()

		// 2. Stop the control socket
		if d.server != nil {
			_ = d.server.Stop()
		}

		// 3. Drain in-flight workers with timeout
		timeout := d.config.Daemon.ShutdownTimeoutSec
		if timeout <= 0 {
			timeout = 30
		}

		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			d.logger.Infof("all workers drained")
		case <-time.After(time.Duration(timeout) * time.Second):
			d.logger.Warnf("shutdown timeout after %ds, some operations may be incomplete", timeout)
		}

		// 4. Cleanup
		d.bus.Close()
		if d.audit != nil {
			_ = d.audit.Close()
		}
		d.cleanup()
		d.logger.Infof("daemon stopped")
		close(d.done)
	})
}

// cleanup releases resources.
func (d *Daemon) cleanup() {
	socketPath := filepath.Join(d.caplogDir, uds.DefaultSocketName)
	_ = os.Remove(socketPath)
	_ = d.fileLock.Unlock()
	if d.logFile != nil {
		_ = d.logFile.Close()
	}
}
