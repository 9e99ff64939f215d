// Package configwatcher provides config file monitoring for rtcshare.
// When enabled, it watches the TOML config file and applies changed
// peer pacing limits to the running service without a restart.
package configwatcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/rtcshare/internal/cliconfig"
	"github.com/bft-labs/rtcshare/pkg/log"
	"github.com/bft-labs/rtcshare/pkg/rtcshare"
	"github.com/bft-labs/rtcshare/pkg/throttle"
)

// Plugin watches a config file and re-applies its throttle limits.
type Plugin struct {
	mu sync.Mutex

	path          string
	debounceDelay time.Duration

	logger   rtcshare.Logger
	pacer    rtcshare.Pacer
	limit    int
	period   time.Duration
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce *time.Timer
}

// Config holds configuration options for the config watcher plugin.
type Config struct {
	// Path is the config file to watch. Empty disables the plugin.
	Path string

	// DebounceDelay is the delay to wait after a file change before
	// reloading.
	// Default: 100 milliseconds
	DebounceDelay time.Duration

	// MaxBytesPerPeriod and Period are the limits in effect at startup.
	// Changes are applied only when the file differs from them.
	// Default: throttle defaults
	MaxBytesPerPeriod int
	Period            time.Duration
}

// DefaultConfig returns a Config watching the default config path.
func DefaultConfig() Config {
	return Config{
		Path:              cliconfig.DefaultConfigPath(),
		DebounceDelay:     100 * time.Millisecond,
		MaxBytesPerPeriod: throttle.DefaultMaxBytesPerPeriod,
		Period:            throttle.DefaultPeriod,
	}
}

// New creates a new config watcher plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	if cfg.MaxBytesPerPeriod <= 0 {
		cfg.MaxBytesPerPeriod = throttle.DefaultMaxBytesPerPeriod
	}
	if cfg.Period <= 0 {
		cfg.Period = throttle.DefaultPeriod
	}
	return &Plugin{
		path:          cfg.Path,
		debounceDelay: cfg.DebounceDelay,
		limit:         cfg.MaxBytesPerPeriod,
		period:        cfg.Period,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "configwatcher"
}

// Initialize starts watching the config file.
func (p *Plugin) Initialize(ctx context.Context, cfg rtcshare.PluginConfig) error {
	p.mu.Lock()
	p.logger = cfg.Logger
	if p.logger == nil {
		p.logger = log.NoopLogger{}
	}
	p.pacer = cfg.Pacer
	p.mu.Unlock()

	if p.path == "" || p.pacer == nil {
		p.logger.Warn("config watcher disabled: no config file or pacer")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory so editors that replace the file are seen.
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(p.path), err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("config watcher started", log.String("path", p.path))

	p.wg.Add(1)
	go p.watchLoop(watchCtx, watcher)
	return nil
}

// Shutdown stops the config watcher.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.mu.Unlock()
	return nil
}

func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()
	defer watcher.Close()

	name := filepath.Base(p.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			p.debounceReload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("config watcher error", log.Err(err))
		}
	}
}

func (p *Plugin) debounceReload(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.debounce = time.AfterFunc(p.debounceDelay, func() {
		if ctx.Err() != nil {
			return
		}
		if err := p.Reload(); err != nil {
			p.logger.Warn("config reload failed", log.String("path", p.path), log.Err(err))
		}
	})
}

// Reload reads the config file and applies its throttle limits if they
// changed. Fields missing from the file keep their current values.
func (p *Plugin) Reload() error {
	fc, err := cliconfig.LoadFileConfig(p.path)
	if err != nil {
		return err
	}

	p.mu.Lock()
	limit, period := p.limit, p.period
	p.mu.Unlock()

	if fc.MaxBytesPerPeriod > 0 {
		limit = fc.MaxBytesPerPeriod
	}
	if fc.Period != "" {
		d, err := time.ParseDuration(fc.Period)
		if err != nil {
			return fmt.Errorf("parse period: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("period must be positive, got %s", d)
		}
		period = d
	}

	p.mu.Lock()
	if limit == p.limit && period == p.period {
		p.mu.Unlock()
		return nil
	}
	p.limit, p.period = limit, period
	pacer := p.pacer
	p.mu.Unlock()

	p.logger.Info("config reloaded",
		log.Int("max_bytes_per_period", limit),
		log.Duration("period", period))
	if pacer != nil {
		pacer.SetLimit(limit, period)
	}
	return nil
}

// Ensure Plugin implements rtcshare.Plugin.
var _ rtcshare.Plugin = (*Plugin)(nil)
