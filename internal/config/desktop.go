package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const defaultReloadDebounce = 100 * time.Millisecond

// OpenAI is the chat completion configuration of the Scout server.
type OpenAI struct {
	APIKey  string
	Model   string
	BaseURL string
}

// MinIO is the object store configuration of the s3 server.
type MinIO struct {
	ServerURL string
	AccessKey string
	SecretKey string
	Secure    bool
}

// DefaultDesktopPath returns the location of the desktop client's
// configuration file for the current user.
func DefaultDesktopPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "claude_desktop_config.json"
	}
	return filepath.Join(dir, "Claude", "claude_desktop_config.json")
}

// Desktop reads server sections of the desktop client's configuration file
// (`mcpServers.<server>...`). The parsed file is cached until the file
// changes on disk (see Watch) or Invalidate is called.
type Desktop struct {
	path string
	log  *slog.Logger

	mu     sync.Mutex
	cached *viper.Viper
}

// NewDesktop returns a reader for the configuration file at path. An empty
// path selects DefaultDesktopPath.
func NewDesktop(path string, log *slog.Logger) *Desktop {
	if path == "" {
		path = DefaultDesktopPath()
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Desktop{path: path, log: log}
}

// Path returns the file the reader loads.
func (d *Desktop) Path() string { return d.path }

// Invalidate drops the cached file contents.
func (d *Desktop) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}

func (d *Desktop) load() (*viper.Viper, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cached != nil {
		return d.cached, nil
	}

	v := viper.New()
	v.SetConfigFile(d.path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("Configuration file not found: %s", d.path)
		}
		return nil, fmt.Errorf("Invalid JSON in configuration file: %w", err)
	}
	d.log.Debug("config.desktop.load.ok", slog.String("path", d.path))
	d.cached = v
	return v, nil
}

// OpenAI reads `mcpServers.Scout.env`. OPENAI_API_KEY is required;
// OPENAI_MODEL defaults to gpt-4.
func (d *Desktop) OpenAI() (OpenAI, error) {
	v, err := d.load()
	if err != nil {
		return OpenAI{}, err
	}
	switch {
	case !v.IsSet("mcpServers"):
		return OpenAI{}, errors.New("Missing 'mcpServers' section in config file")
	case !v.IsSet("mcpServers.Scout"):
		return OpenAI{}, errors.New("Missing 'Scout' section in mcpServers config")
	case !v.IsSet("mcpServers.Scout.env"):
		return OpenAI{}, errors.New("Missing 'env' section in Scout config")
	}

	env := v.Sub("mcpServers.Scout.env")
	if env == nil {
		return OpenAI{}, errors.New("Missing 'env' section in Scout config")
	}
	key := env.GetString("OPENAI_API_KEY")
	if key == "" {
		return OpenAI{}, errors.New("Missing OPENAI_API_KEY in configuration")
	}
	env.SetDefault("OPENAI_MODEL", "gpt-4")
	return OpenAI{
		APIKey:  key,
		Model:   env.GetString("OPENAI_MODEL"),
		BaseURL: env.GetString("OPENAI_BASE_URL"),
	}, nil
}

// MinIO reads `mcpServers.s3.minioConfig`. serverUrl, accessKey and
// secretKey are required; secure defaults to false.
func (d *Desktop) MinIO() (MinIO, error) {
	v, err := d.load()
	if err != nil {
		return MinIO{}, err
	}
	for _, field := range []string{"serverUrl", "accessKey", "secretKey"} {
		if !v.IsSet("mcpServers.s3.minioConfig." + field) {
			return MinIO{}, fmt.Errorf("Missing required MinIO configuration: %s", field)
		}
	}
	return MinIO{
		ServerURL: v.GetString("mcpServers.s3.minioConfig.serverUrl"),
		AccessKey: v.GetString("mcpServers.s3.minioConfig.accessKey"),
		SecretKey: v.GetString("mcpServers.s3.minioConfig.secretKey"),
		Secure:    v.GetBool("mcpServers.s3.minioConfig.secure"),
	}, nil
}

// Watch invalidates the cache whenever the configuration file is written,
// created, renamed or removed. It watches the parent directory so that
// editors replacing the file are noticed. Watch blocks until ctx is done.
func (d *Desktop) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(d.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(d.path)

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.log.WarnContext(ctx, "config.watch.error", slog.String("err", err.Error()))
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			debounce = time.After(defaultReloadDebounce)
		case <-debounce:
			debounce = nil
			d.Invalidate()
			d.log.InfoContext(ctx, "config.desktop.invalidated", slog.String("path", d.path))
		}
	}
}
