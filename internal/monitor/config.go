// Package monitor implements the connection monitor behind the
// `pgline monitor` command: periodic liveness probes over configured
// connection profiles, with Prometheus metrics and an HTTP status API.
package monitor

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/pgline/pgline"
)

// Config is the top-level monitor configuration.
type Config struct {
	Listen   ListenConfig             `yaml:"listen"`
	Defaults ProbeDefaults            `yaml:"defaults"`
	Profiles map[string]ProfileConfig `yaml:"profiles"`
}

// ListenConfig defines where the HTTP status API binds.
type ListenConfig struct {
	Port int    `yaml:"port"`
	Bind string `yaml:"bind"`
}

// ProbeDefaults applies when profiles don't override.
type ProbeDefaults struct {
	Interval         time.Duration `yaml:"interval"`
	FailureThreshold int           `yaml:"failure_threshold"`
	ProbeTimeout     time.Duration `yaml:"probe_timeout"`
}

// ProfileConfig holds one monitored connection.
type ProfileConfig struct {
	URL              string `yaml:"url"`
	FailureThreshold *int   `yaml:"failure_threshold,omitempty"`
}

// EffectiveFailureThreshold returns the profile's threshold or the default.
func (p ProfileConfig) EffectiveFailureThreshold(defaults ProbeDefaults) int {
	if p.FailureThreshold != nil {
		return *p.FailureThreshold
	}
	return defaults.FailureThreshold
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(varName)); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file with env var substitution.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = substituteEnvVars(data)

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Listen.Port == 0 {
		cfg.Listen.Port = 9187
	}
	if cfg.Listen.Bind == "" {
		cfg.Listen.Bind = "127.0.0.1"
	}
	if cfg.Defaults.Interval == 0 {
		cfg.Defaults.Interval = 30 * time.Second
	}
	if cfg.Defaults.FailureThreshold == 0 {
		cfg.Defaults.FailureThreshold = 3
	}
	if cfg.Defaults.ProbeTimeout == 0 {
		cfg.Defaults.ProbeTimeout = 5 * time.Second
	}
}

func validate(cfg *Config) error {
	for name, p := range cfg.Profiles {
		if p.URL == "" {
			return fmt.Errorf("profile %q: url is required", name)
		}
		if _, err := pgline.ParseURL(p.URL); err != nil {
			return fmt.Errorf("profile %q: %w", name, err)
		}
	}
	return nil
}

// Watcher watches a config file for changes and calls the callback with the new config.
type Watcher struct {
	path     string
	callback func(*Config)
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	stopCh   chan struct{}
}

// NewWatcher creates a new config file watcher.
func NewWatcher(path string, callback func(*Config)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching config file: %w", err)
	}

	cw := &Watcher{
		path:     path,
		callback: callback,
		watcher:  w,
		stopCh:   make(chan struct{}),
	}

	go cw.run()
	return cw, nil
}

func (cw *Watcher) run() {
	// Debounce timer to avoid rapid reloads
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					cw.reload()
				})
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[config] watcher error: %v", err)
		case <-cw.stopCh:
			return
		}
	}
}

func (cw *Watcher) reload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cfg, err := Load(cw.path)
	if err != nil {
		log.Printf("[config] hot-reload failed: %v", err)
		return
	}

	log.Printf("[config] configuration reloaded from %s", cw.path)
	cw.callback(cfg)
}

// Stop stops the config watcher.
func (cw *Watcher) Stop() error {
	close(cw.stopCh)
	return cw.watcher.Close()
}
