package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "shardmem.yaml")
	require.NoError(t, DefaultConfig().Save(path))

	reloaded := make(chan *Config, 4)
	w, err := NewWatcher(path, func(cfg *Config) { reloaded <- cfg })
	require.NoError(t, err)
	defer w.Close()

	updated := DefaultConfig()
	updated.Router.ImportanceWeight = 7.0
	require.NoError(t, updated.Save(path))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 7.0, cfg.Router.ImportanceWeight)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload after config write")
	}
}

func TestWatcherKeepsPreviousConfigOnParseFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "shardmem.yaml")
	require.NoError(t, DefaultConfig().Save(path))

	reloaded := make(chan *Config, 4)
	w, err := NewWatcher(path, func(cfg *Config) { reloaded <- cfg })
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, writeFile(path, "{{{not yaml"))

	select {
	case <-reloaded:
		t.Fatal("broken config must not trigger the reload callback")
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "shardmem.yaml")
	require.NoError(t, DefaultConfig().Save(path))

	reloaded := make(chan *Config, 4)
	w, err := NewWatcher(path, func(cfg *Config) { reloaded <- cfg })
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, writeFile(filepath.Join(dir, "other.yaml"), "name: other"))

	select {
	case <-reloaded:
		t.Fatal("unrelated file must not trigger a reload")
	case <-time.After(500 * time.Millisecond):
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
