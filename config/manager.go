package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/natsclient"
)

// DefaultBucket is the KV bucket configuration is mirrored to
const DefaultBucket = "rtm_config"

// Update is delivered to OnChange subscribers after a KV key was applied
type Update struct {
	Path   string      // KV key, e.g. "components.seqout0"
	Config *SafeConfig // configuration after the change
}

type subscription struct {
	pattern string
	ch      chan Update
}

// sectionDecoders apply single-part KV keys onto a Config. An empty value
// means the key was deleted.
var sectionDecoders = map[string]func(c *Config, value []byte) error{
	"platform": func(c *Config, value []byte) error {
		return json.Unmarshal(value, &c.Platform)
	},
	"runtime": func(c *Config, value []byte) error {
		return json.Unmarshal(value, &c.Runtime)
	},
	"execution_contexts": func(c *Config, value []byte) error {
		c.ExecutionContexts = nil
		if len(value) == 0 {
			return nil
		}
		return json.Unmarshal(value, &c.ExecutionContexts)
	},
	"connections": func(c *Config, value []byte) error {
		c.Connections = nil
		if len(value) == 0 {
			return nil
		}
		return json.Unmarshal(value, &c.Connections)
	},
}

// Manager keeps a Config in sync with the rtm_config KV bucket. Each
// top-level section is one key; components are stored one per key as
// "components.<name>".
type Manager struct {
	config  *SafeConfig
	kv      jetstream.KeyValue
	kvStore *natsclient.KVStore
	logger  *slog.Logger

	mu   sync.RWMutex
	subs []subscription

	watcher jetstream.KeyWatcher
	done    chan struct{}
	wg      sync.WaitGroup
	stopped atomic.Bool
}

// NewConfigManager opens (or creates) the configuration bucket
func NewConfigManager(ctx context.Context, cfg *Config, natsClient *natsclient.Client, logger *slog.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Manager", "NewConfigManager", "nil config")
	}
	if natsClient == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Manager", "NewConfigManager", "nil NATS client")
	}
	if logger == nil {
		logger = slog.Default()
	}

	kv, err := natsClient.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      DefaultBucket,
		Description: "RTM host configuration",
		History:     5,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "Manager", "NewConfigManager", "create KV bucket")
	}

	return &Manager{
		config:  NewSafeConfig(cfg),
		kv:      kv,
		kvStore: natsclient.NewKVStore(kv),
		logger:  logger.With("bucket", DefaultBucket),
		done:    make(chan struct{}),
	}, nil
}

// GetConfig returns the current configuration
func (cm *Manager) GetConfig() *SafeConfig {
	return cm.config
}

// OnChange returns a channel receiving an Update for every applied key
// matching pattern, using path.Match syntax ("runtime", "components.*",
// "components.seq*"). The current configuration is delivered first.
// Slow subscribers miss updates rather than block the watcher.
func (cm *Manager) OnChange(pattern string) <-chan Update {
	ch := make(chan Update, 1)
	ch <- Update{Path: pattern, Config: cm.config}

	cm.mu.Lock()
	cm.subs = append(cm.subs, subscription{pattern: pattern, ch: ch})
	cm.mu.Unlock()
	return ch
}

// Start reconciles the file and KV configurations, then watches KV for
// changes. An empty bucket is seeded from the file. Otherwise the newer
// version wins and equal versions take KV, which may hold edits made at
// runtime.
func (cm *Manager) Start(ctx context.Context) error {
	if err := cm.reconcile(ctx); err != nil {
		cm.logger.Warn("Configuration reconcile failed", "error", err)
	}

	w, err := cm.kv.WatchAll(ctx, jetstream.UpdatesOnly())
	if err != nil {
		return errors.WrapTransient(err, "Manager", "Start", "watch KV")
	}
	cm.watcher = w

	cm.wg.Add(1)
	go cm.watch(ctx, w)
	return nil
}

// Stop ends the watch and closes every subscriber channel. It waits up to
// timeout for the watch goroutine.
func (cm *Manager) Stop(timeout time.Duration) error {
	if !cm.stopped.CompareAndSwap(false, true) {
		return nil
	}
	close(cm.done)
	if cm.watcher != nil {
		_ = cm.watcher.Stop()
	}

	finished := make(chan struct{})
	go func() {
		cm.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(timeout):
		cm.logger.Warn("Manager shutdown timeout", "timeout", timeout)
	}

	cm.mu.Lock()
	for _, s := range cm.subs {
		close(s.ch)
	}
	cm.subs = nil
	cm.mu.Unlock()
	return nil
}

func (cm *Manager) watch(ctx context.Context, w jetstream.KeyWatcher) {
	defer cm.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-cm.done:
			return
		case entry, ok := <-w.Updates():
			if !ok {
				return
			}
			if entry == nil {
				continue
			}
			var value []byte
			if entry.Operation() == jetstream.KeyValuePut {
				value = entry.Value()
			}
			cm.handleUpdate(entry.Key(), value)
		}
	}
}

func (cm *Manager) handleUpdate(key string, value []byte) {
	if cm.stopped.Load() {
		return
	}
	applied, err := cm.apply(key, value)
	if err != nil {
		cm.logger.Error("Failed to apply configuration update", "key", key, "error", err)
		return
	}
	if !applied {
		return
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()
	update := Update{Path: key, Config: cm.config}
	for _, s := range cm.subs {
		if ok, _ := path.Match(s.pattern, key); !ok {
			continue
		}
		select {
		case s.ch <- update:
		default:
		}
	}
}

// apply merges one KV key into the configuration. Keys it does not manage,
// including property-level keys below a component, report false.
func (cm *Manager) apply(key string, value []byte) (bool, error) {
	if len(value) > 0 {
		if len(value) > maxConfigSize {
			return false, fmt.Errorf("value too large: %d bytes > %d", len(value), maxConfigSize)
		}
		if err := checkJSON(value); err != nil {
			return false, err
		}
	}

	cfg := cm.config.Get()
	section, name, nested := strings.Cut(key, ".")
	switch {
	case section == "components" && nested && !strings.Contains(name, "."):
		if len(value) == 0 {
			delete(cfg.Components, name)
			break
		}
		var cc ComponentConfig
		if err := json.Unmarshal(value, &cc); err != nil {
			return false, fmt.Errorf("component %s: %w", name, err)
		}
		if cfg.Components == nil {
			cfg.Components = make(ComponentConfigs)
		}
		cfg.Components[name] = cc
	case !nested && sectionDecoders[section] != nil:
		if err := sectionDecoders[section](cfg, value); err != nil {
			return false, fmt.Errorf("%s: %w", section, err)
		}
	default:
		return false, nil
	}
	return true, cm.config.Update(cfg)
}

// PushToKV writes the version, every component and every section of the
// current configuration to KV
func (cm *Manager) PushToKV(ctx context.Context) error {
	cfg := cm.config.Get()

	entries := make(map[string]any, len(cfg.Components)+5)
	if cfg.Version != "" {
		entries["version"] = cfg.Version
	} else {
		cm.logger.Warn("Config version is empty, not pushing it to KV")
	}
	for name, cc := range cfg.Components {
		entries["components."+strings.ReplaceAll(name, " ", "_")] = cc
	}
	entries["platform"] = cfg.Platform
	entries["runtime"] = cfg.Runtime
	entries["execution_contexts"] = cfg.ExecutionContexts
	entries["connections"] = cfg.Connections

	for key, v := range entries {
		data, err := json.Marshal(v)
		if err != nil {
			return errors.Wrap(err, "Manager", "PushToKV", "marshal "+key)
		}
		if _, err := cm.kvStore.Put(ctx, key, data); err != nil {
			return errors.Wrap(err, "Manager", "PushToKV", "put "+key)
		}
	}
	cm.logger.Info("Pushed configuration to KV", "version", cfg.Version, "keys", len(entries))
	return nil
}

func (cm *Manager) reconcile(ctx context.Context) error {
	keys, err := cm.kvStore.Keys(ctx)
	if err != nil || len(keys) == 0 {
		cm.logger.Info("Seeding KV from file configuration")
		return cm.PushToKV(ctx)
	}

	fileVersion := cm.config.Get().Version
	kvVersion := cm.kvVersion(ctx)
	cmp, err := CompareVersions(fileVersion, kvVersion)
	switch {
	case err != nil:
		cm.logger.Warn("Unusable versions, syncing from KV",
			"file_version", fileVersion, "kv_version", kvVersion, "error", err)
	case cmp > 0:
		cm.logger.Info("File version is newer than KV, updating KV",
			"file_version", fileVersion, "kv_version", kvVersion)
		return cm.PushToKV(ctx)
	case cmp < 0:
		cm.logger.Warn("File version is older than KV, using KV config",
			"file_version", fileVersion, "kv_version", kvVersion)
	}
	return cm.syncFromKV(ctx, keys)
}

// kvVersion returns the stored version, "0.0.0" when missing or unreadable
func (cm *Manager) kvVersion(ctx context.Context) string {
	entry, err := cm.kvStore.Get(ctx, "version")
	if err != nil {
		return "0.0.0"
	}
	var version string
	if err := json.Unmarshal(entry.Value, &version); err != nil {
		cm.logger.Warn("Unreadable version in KV, treating as 0.0.0", "error", err)
		return "0.0.0"
	}
	return version
}

func (cm *Manager) syncFromKV(ctx context.Context, keys []string) error {
	applied := 0
	for _, key := range keys {
		entry, err := cm.kvStore.Get(ctx, key)
		if err != nil {
			cm.logger.Warn("Failed to read KV entry", "key", key, "error", err)
			continue
		}
		ok, err := cm.apply(key, entry.Value)
		if err != nil {
			cm.logger.Warn("Failed to apply KV entry", "key", key, "error", err)
			continue
		}
		if ok {
			applied++
		}
	}
	cm.logger.Info("Synced configuration from KV", "keys", len(keys), "applied", applied)
	return nil
}
