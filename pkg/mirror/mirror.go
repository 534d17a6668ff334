package mirror

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/olimci/kanna/pkg/catalog"
	"github.com/olimci/kanna/pkg/mirror/config"
	"github.com/olimci/kanna/pkg/version"
)

const (
	infoFile       = "info.json"
	imagesDir      = "images"
	ledgerFile     = "meta.json"
	configFile     = "config.toml"
	envDataDir     = "KANNA_DATA_DIR"
	defaultDirName = "cards"
)

// Role names one of the image variants published per identity.
type Role string

const (
	RoleFull    Role = "full"
	RoleSmall   Role = "small"
	RoleCropped Role = "cropped"
)

// Roles returns all image roles in their canonical order.
func Roles() []Role {
	return []Role{RoleFull, RoleSmall, RoleCropped}
}

func (r Role) Filename() string {
	return string(r) + ".jpg"
}

// URL selects this role's locator from an image descriptor set.
func (r Role) URL(set catalog.ImageSet) string {
	switch r {
	case RoleSmall:
		return set.SmallURL
	case RoleCropped:
		return set.CroppedURL
	default:
		return set.URL
	}
}

// Mirror points to the local mirror tree.
type Mirror struct {
	Root string
}

func DefaultMirror() (Mirror, error) {
	root := strings.TrimSpace(os.Getenv(envDataDir))
	if root == "" {
		root = defaultDirName
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return Mirror{}, fmt.Errorf("resolve mirror root %q: %w", root, err)
	}
	return Mirror{Root: absRoot}, nil
}

func (m Mirror) CardDir(identity int64) string {
	return filepath.Join(m.Root, strconv.FormatInt(identity, 10))
}

func (m Mirror) InfoPath(identity int64) string {
	return filepath.Join(m.CardDir(identity), infoFile)
}

func (m Mirror) ImagesDir(identity int64) string {
	return filepath.Join(m.CardDir(identity), imagesDir)
}

func (m Mirror) ImagePath(identity int64, role Role) string {
	return filepath.Join(m.ImagesDir(identity), role.Filename())
}

func (m Mirror) LedgerPath() string {
	return filepath.Join(m.Root, ledgerFile)
}

func (m Mirror) ConfigPath() string {
	return filepath.Join(m.Root, configFile)
}

// EnsureInstalled creates the mirror root and a default config if missing.
func (m Mirror) EnsureInstalled() error {
	if err := os.MkdirAll(m.Root, 0o755); err != nil {
		return fmt.Errorf("create mirror root: %w", err)
	}

	if _, err := os.Stat(m.ConfigPath()); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", m.ConfigPath(), err)
	}

	return m.SaveConfig(DefaultConfig())
}

func DefaultConfig() config.Config {
	return config.Config{
		Kanna: config.Kanna{
			Version: version.Version,
		},
		API: config.API{
			BaseURL: catalog.DefaultBaseURL,
			Version: catalog.DefaultAPIVersion,
		},
		Sync: config.Sync{
			BatchSize:   10,
			Concurrency: 10,
			Target:      0,
		},
	}
}

func (m Mirror) LoadConfig() (config.Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(m.ConfigPath()); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return config.Config{}, fmt.Errorf("stat %s: %w", m.ConfigPath(), err)
	}

	if _, err := toml.DecodeFile(m.ConfigPath(), &cfg); err != nil {
		return config.Config{}, fmt.Errorf("decode %s: %w", m.ConfigPath(), err)
	}

	if cfg.Kanna.Version == "" {
		cfg.Kanna.Version = version.Version
	}
	if err := version.EnsureCompatible(cfg.Kanna.Version); err != nil {
		return config.Config{}, fmt.Errorf("unsupported config version %q: %w", cfg.Kanna.Version, err)
	}

	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = catalog.DefaultBaseURL
	}
	if cfg.API.Version <= 0 {
		cfg.API.Version = catalog.DefaultAPIVersion
	}
	if cfg.Sync.BatchSize <= 0 {
		cfg.Sync.BatchSize = 10
	}
	if cfg.Sync.Concurrency <= 0 {
		cfg.Sync.Concurrency = 10
	}

	return cfg, nil
}

func (m Mirror) SaveConfig(cfg config.Config) error {
	if cfg.Kanna.Version == "" {
		cfg.Kanna.Version = version.Version
	}
	return writeTOML(m.ConfigPath(), cfg)
}

func writeTOML(path string, value any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}

	tp := path + ".tmp"

	f, err := os.OpenFile(tp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", tp, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(value); err != nil {
		_ = os.Remove(tp)
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tp)
		return fmt.Errorf("close %s: %w", path, err)
	}

	if err := os.Rename(tp, path); err != nil {
		_ = os.Remove(tp)
		return fmt.Errorf("replace %s: %w", path, err)
	}

	return nil
}
