package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/marmos91/arcfs/internal/cli/prompt"
	"github.com/marmos91/arcfs/internal/logger"
	"github.com/marmos91/arcfs/pkg/config"
	"github.com/marmos91/arcfs/pkg/fs/controller"
	"github.com/marmos91/arcfs/pkg/fs/driver"
	"github.com/marmos91/arcfs/pkg/fs/driver/tar"
	fserrors "github.com/marmos91/arcfs/pkg/fs/errors"
	"github.com/marmos91/arcfs/pkg/fs/manager"
	"github.com/marmos91/arcfs/pkg/fs/mountpoint"
	"github.com/marmos91/arcfs/pkg/keys"
)

// PasswordEnv holds the password of encrypted archives for non-interactive
// use.
const PasswordEnv = "ARCFS_PASSWORD"

// session is the virtual tree of one command invocation.
type session struct {
	cfg     *config.Config
	drivers *driver.Registry
	keys    *keys.Registry
	manager manager.Manager
}

func newSession(cfg *config.Config, m manager.Manager) (*session, error) {
	strength, err := keys.ParseKeyStrength(fmt.Sprint(cfg.Crypto.KeyStrength))
	if err != nil {
		return nil, err
	}
	passwords := keys.NewRegistry(passwordSource(strength, cfg.Crypto.MaxPasswordAttempts))

	drivers, err := newDrivers(cfg, afero.NewOsFs(), passwords)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, drivers: drivers, keys: passwords, manager: m}, nil
}

// newDrivers registers the tar drivers configured by cfg on fsys.
func newDrivers(cfg *config.Config, fsys afero.Fs, passwords *keys.Registry) (*driver.Registry, error) {
	reg := driver.NewRegistry()
	err := tar.Register(reg, fsys, tar.Config{
		MaxSize:          cfg.Archive.MaxSize.Int64(),
		CompressionLevel: cfg.Archive.CompressionLevel,
		KDFIterations:    cfg.Crypto.KDFIterations,
		Keys:             passwords,
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

// passwordSource uses $ARCFS_PASSWORD when set and prompts otherwise.
func passwordSource(strength keys.KeyStrength, maxAttempts int) keys.Factory {
	if pw, ok := os.LookupEnv(PasswordEnv); ok {
		return func(mp mountpoint.MountPoint) keys.Provider {
			return keys.NewStatic(mp.String(), []byte(pw), strength)
		}
	}
	return func(mp mountpoint.MountPoint) keys.Provider {
		return keys.NewPromptProvider(mp.String(), prompt.Terminal{}, strength, maxAttempts)
	}
}

// resolve maps a command line path to its archive and entry.
func (s *session) resolve(arg string) (driver.Target, error) {
	abs, err := filepath.Abs(arg)
	if err != nil {
		return driver.Target{}, err
	}
	target, err := s.drivers.Resolve(abs)
	if fserrors.IsNotFound(err) {
		return driver.Target{}, fmt.Errorf("%s is not inside an archive (known formats: %v)", arg, s.drivers.Schemes())
	}
	return target, err
}

// open resolves arg and returns the controller of its innermost archive.
func (s *session) open(ctx context.Context, arg string) (controller.Controller, driver.Target, error) {
	target, err := s.resolve(arg)
	if err != nil {
		return nil, driver.Target{}, err
	}
	c, err := s.manager.Controller(ctx, target.MountPoint, s.drivers)
	if err != nil {
		return nil, driver.Target{}, err
	}
	logger.DebugCtx(withController(ctx, c), "Resolved path", logger.KeyPath, target.Entry)
	return c, target, nil
}

// withController scopes the log context of ctx to c.
func withController(ctx context.Context, c controller.Controller) context.Context {
	lc := logger.FromContext(ctx)
	if lc == nil {
		lc = logger.NewLogContext("")
	}
	return logger.WithContext(ctx, lc.WithMountPoint(c.MountPoint().String()).WithController(c.ID()))
}

// openEntry is open for commands that need a path below an archive root.
func (s *session) openEntry(ctx context.Context, arg string) (controller.Controller, string, error) {
	c, target, err := s.open(ctx, arg)
	if err != nil {
		return nil, "", err
	}
	if target.Entry == "" {
		return nil, "", fmt.Errorf("%s names an archive, not an entry inside it", arg)
	}
	return c, target.Entry, nil
}

// requireArchive fails when c's archive does not exist yet and the
// configuration forbids creating archives.
func (s *session) requireArchive(ctx context.Context, c controller.Controller) error {
	if s.cfg.Archive.CreateMissing() {
		return nil
	}
	_, err := c.Stat(ctx, "")
	if fserrors.IsNotFound(err) {
		return fmt.Errorf("archive %s does not exist and archive.auto_create is disabled", c.MountPoint())
	}
	return err
}

// commit syncs and unmounts every archive touched by the session, then
// drops the cached passwords.
func (s *session) commit(ctx context.Context) error {
	err := s.manager.Sync(ctx, controller.SyncOptions{Unmount: true})
	s.keys.InvalidateAll()
	if err != nil {
		return fmt.Errorf("failed to write archives: %w", err)
	}
	logger.DebugCtx(ctx, "Session committed", logger.DurationMs(logger.FromContext(ctx).DurationMs()))
	return nil
}
