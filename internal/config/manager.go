package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Manager is the core's ConfigManager (§6): a hierarchical store of
// `section:key=value` settings, addressable either globally or scoped to
// one arena. An arena-scoped lookup that misses its override file falls
// through to the global value; a lookup that misses both falls through
// to the caller-supplied default.
//
// Files are watched with fsnotify; an external edit re-reads the file
// and fires every registered change callback, so a running arena can
// react to a live config edit without a restart.
type Manager struct {
	mu sync.RWMutex

	global    sections
	overrides map[string]sections // arena name -> its override file's sections

	globalPath string
	overrideOf func(arena string) string // arena name -> override file path

	watcher *fsnotify.Watcher
	log     *slog.Logger

	onChangeMu sync.Mutex
	onChange   []func()
}

// sections is section name -> key -> raw string value.
type sections map[string]map[string]string

// NewManager loads the global config file dir/global.yaml plus one
// override file per arena found in dir (named "<arena>.yaml"), and
// starts watching dir for edits. log may be nil, in which case a
// discard logger is used.
func NewManager(dir string, log *slog.Logger) (*Manager, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	globalPath := filepath.Join(dir, "global.yaml")

	m := &Manager{
		overrides:  make(map[string]sections),
		globalPath: globalPath,
		log:        log,
	}
	m.overrideOf = func(arena string) string {
		return filepath.Join(dir, strings.ToLower(arena)+".yaml")
	}

	global, err := loadSections(globalPath)
	if err != nil {
		return nil, fmt.Errorf("loading global config %s: %w", globalPath, err)
	}
	m.global = global

	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config dir %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || e.Name() == "global.yaml" || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		arena := strings.TrimSuffix(e.Name(), ".yaml")
		s, err := loadSections(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("loading arena config %s: %w", e.Name(), err)
		}
		m.overrides[arena] = s
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("starting config watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching config dir %s: %w", dir, err)
	}
	m.watcher = watcher
	go m.watchLoop()

	return m, nil
}

// Close stops the config file watcher.
func (m *Manager) Close() error {
	if m.watcher == nil {
		return nil
	}
	return m.watcher.Close()
}

// OnChange registers a callback fired after any config file is
// reloaded due to an external edit. Callbacks run on the watcher
// goroutine; they must not block.
func (m *Manager) OnChange(fn func()) {
	m.onChangeMu.Lock()
	defer m.onChangeMu.Unlock()
	m.onChange = append(m.onChange, fn)
}

func (m *Manager) watchLoop() {
	for {
		select {
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			m.reload(ev.Name)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.log.Warn("config watcher error", "error", err)
		}
	}
}

func (m *Manager) reload(path string) {
	name := filepath.Base(path)
	if filepath.Ext(name) != ".yaml" {
		return
	}

	s, err := loadSections(path)
	if err != nil {
		m.log.Error("config reload failed, keeping previous values", "file", name, "error", err)
		return
	}

	m.mu.Lock()
	if name == "global.yaml" {
		m.global = s
	} else {
		m.overrides[strings.TrimSuffix(name, ".yaml")] = s
	}
	m.mu.Unlock()

	m.log.Info("config reloaded", "file", name)

	m.onChangeMu.Lock()
	callbacks := append([]func(){}, m.onChange...)
	m.onChangeMu.Unlock()
	for _, cb := range callbacks {
		cb()
	}
}

func loadSections(path string) (sections, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sections{}, nil
		}
		return nil, err
	}

	var raw map[string]map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	out := make(sections, len(raw))
	for section, kv := range raw {
		vals := make(map[string]string, len(kv))
		for k, v := range kv {
			vals[k] = fmt.Sprintf("%v", v)
		}
		out[section] = vals
	}
	return out, nil
}

func (m *Manager) lookup(arena, section, key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if arena != "" {
		if s, ok := m.overrides[arena][section][key]; ok {
			return s, true
		}
	}
	if s, ok := m.global[section][key]; ok {
		return s, true
	}
	return "", false
}

// GetInt returns the integer value of section:key, preferring arena's
// override file. arena == "" looks up the global file only.
func (m *Manager) GetInt(arena, section, key string, def int) int {
	raw, ok := m.lookup(arena, section, key)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 0, 64)
	if err != nil {
		m.log.Warn("config value not an integer, using default", "section", section, "key", key, "value", raw)
		return def
	}
	return int(n)
}

// GetStr returns the string value of section:key, preferring arena's
// override file.
func (m *Manager) GetStr(arena, section, key string, def string) string {
	raw, ok := m.lookup(arena, section, key)
	if !ok {
		return def
	}
	return raw
}

// GetBool returns the boolean value of section:key.
func (m *Manager) GetBool(arena, section, key string, def bool) bool {
	raw, ok := m.lookup(arena, section, key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		m.log.Warn("config value not a bool, using default", "section", section, "key", key, "value", raw)
		return def
	}
	return b
}

// GetEnum parses section:key against a name->value table, returning def
// if the key is absent or its value isn't in the table. T is typically
// a small int-backed enum type defined by the caller.
func GetEnum[T any](m *Manager, arena, section, key string, table map[string]T, def T) T {
	raw, ok := m.lookup(arena, section, key)
	if !ok {
		return def
	}
	v, ok := table[strings.TrimSpace(raw)]
	if !ok {
		m.log.Warn("config value not a recognized enum member, using default", "section", section, "key", key, "value", raw)
		return def
	}
	return v
}
