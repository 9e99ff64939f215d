package configwatcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/rtcshare/pkg/log"
	"github.com/bft-labs/rtcshare/pkg/rtcshare"
)

type limit struct {
	bytes  int
	period time.Duration
}

type recordingPacer struct {
	mu     sync.Mutex
	limits []limit
}

func (r *recordingPacer) SetLimit(maxBytesPerPeriod int, period time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limits = append(r.limits, limit{maxBytesPerPeriod, period})
}

func (r *recordingPacer) snapshot() []limit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]limit(nil), r.limits...)
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestPlugin_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeConfig(t, path, `max_bytes_per_period = 1000000`)

	pacer := &recordingPacer{}
	plugin := New(Config{Path: path, DebounceDelay: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := plugin.Initialize(ctx, rtcshare.PluginConfig{Pacer: pacer, Logger: log.NoopLogger{}}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer plugin.Shutdown(context.Background())

	writeConfig(t, path, "max_bytes_per_period = 250000\nperiod = \"250ms\"\n")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(pacer.snapshot()) == 0 {
		time.Sleep(10 * time.Millisecond)
	}

	got := pacer.snapshot()
	if len(got) != 1 {
		t.Fatalf("SetLimit calls = %v, want exactly one", got)
	}
	if got[0] != (limit{250000, 250 * time.Millisecond}) {
		t.Errorf("SetLimit(%d, %v), want (250000, 250ms)", got[0].bytes, got[0].period)
	}
}

func TestPlugin_Reload(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []limit
		wantErr bool
	}{
		{
			name:    "unchanged limits are not applied",
			content: "max_bytes_per_period = 1000000\nperiod = \"125ms\"\n",
		},
		{
			name:    "only budget changes",
			content: "max_bytes_per_period = 500000\n",
			want:    []limit{{500000, 125 * time.Millisecond}},
		},
		{
			name:    "only period changes",
			content: "period = \"1s\"\n",
			want:    []limit{{1000000, time.Second}},
		},
		{
			name:    "invalid period",
			content: "period = \"soon\"\n",
			wantErr: true,
		},
		{
			name:    "negative period",
			content: "period = \"-1s\"\n",
			wantErr: true,
		},
		{
			name:    "invalid toml",
			content: "this is not toml",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			writeConfig(t, path, tt.content)

			pacer := &recordingPacer{}
			plugin := New(Config{Path: path})
			plugin.pacer = pacer
			plugin.logger = log.NoopLogger{}

			err := plugin.Reload()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Reload() error = %v, wantErr %v", err, tt.wantErr)
			}
			got := pacer.snapshot()
			if len(got) != len(tt.want) {
				t.Fatalf("SetLimit calls = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("call %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestPlugin_Name(t *testing.T) {
	if got := New(DefaultConfig()).Name(); got != "configwatcher" {
		t.Errorf("Name() = %q, want configwatcher", got)
	}
}

func TestPlugin_DisabledWithoutPath(t *testing.T) {
	plugin := New(Config{})

	err := plugin.Initialize(context.Background(), rtcshare.PluginConfig{
		Pacer:  &recordingPacer{},
		Logger: log.NoopLogger{},
	})
	if err != nil {
		t.Fatalf("Initialize should not fail when disabled: %v", err)
	}
	if err := plugin.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestPlugin_MissingDirectory(t *testing.T) {
	plugin := New(Config{Path: filepath.Join(t.TempDir(), "missing", "config.toml")})

	err := plugin.Initialize(context.Background(), rtcshare.PluginConfig{
		Pacer:  &recordingPacer{},
		Logger: log.NoopLogger{},
	})
	if err == nil {
		t.Fatal("Initialize should fail when the config directory does not exist")
	}
}

func TestPlugin_WithService(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeConfig(t, path, "")

	cfg := rtcshare.DefaultConfig(dir)
	cfg.ListenAddr = "127.0.0.1:0"

	events := &limitEvents{}
	svc, err := rtcshare.New(cfg,
		rtcshare.WithEventHandler(events),
		WithConfigWatcher(Config{Path: path, DebounceDelay: 10 * time.Millisecond}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer svc.Stop()

	writeConfig(t, path, "max_bytes_per_period = 64000\n")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && events.count() == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if events.count() != 1 {
		t.Fatalf("limit change events = %d, want 1", events.count())
	}
}

type limitEvents struct {
	rtcshare.BaseEventHandler

	mu     sync.Mutex
	events []rtcshare.LimitChangeEvent
}

func (e *limitEvents) OnLimitChange(ev rtcshare.LimitChangeEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *limitEvents) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}
