package tar

import (
	"context"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/marmos91/arcfs/internal/logger"
	"github.com/marmos91/arcfs/pkg/fs/controller"
	"github.com/marmos91/arcfs/pkg/fs/driver"
	fserrors "github.com/marmos91/arcfs/pkg/fs/errors"
	"github.com/marmos91/arcfs/pkg/fs/filter"
	"github.com/marmos91/arcfs/pkg/fs/filter/raes"
	"github.com/marmos91/arcfs/pkg/fs/lock"
	"github.com/marmos91/arcfs/pkg/fs/mountpoint"
	"github.com/marmos91/arcfs/pkg/keys"
)

// Supported schemes.
const (
	SchemeTar     = "tar"
	SchemeTarGzip = "tar.gz"
	SchemeTgz     = "tgz"
	SchemeTarZstd = "tar.zst"
	SchemeTarLZ4  = "tar.lz4"
	SchemeTarRAES = "tar.raes"
)

// Schemes returns every scheme served by this package.
func Schemes() []string {
	return []string{SchemeTar, SchemeTarGzip, SchemeTgz, SchemeTarZstd, SchemeTarLZ4, SchemeTarRAES}
}

// Config configures the tar drivers.
type Config struct {
	// MaxSize bounds the decoded size of one archive. Zero means
	// DefaultMaxSize.
	MaxSize int64

	// CompressionLevel is passed to the compression filter; zero selects
	// the library default.
	CompressionLevel int

	// KDFIterations overrides the PBKDF2 iteration count of tar.raes.
	KDFIterations int

	// Keys hands out the password provider of each encrypted mount point.
	// Without it tar.raes is not available.
	Keys *keys.Registry
}

// Driver creates tar archive controllers for one scheme.
type Driver struct {
	fs     afero.Fs
	scheme string
	codec  Codec
	cfg    Config
}

var _ driver.Driver = (*Driver)(nil)

// New creates the driver for scheme. Top-level archives live on fsys.
func New(fsys afero.Fs, scheme string, cfg Config) (*Driver, error) {
	if fsys == nil {
		return nil, fserrors.NewInvalidArgumentError("host file system must not be nil")
	}
	switch scheme {
	case SchemeTar, SchemeTarGzip, SchemeTgz, SchemeTarZstd, SchemeTarLZ4:
	case SchemeTarRAES:
		if cfg.Keys == nil {
			return nil, fserrors.NewInvalidArgumentError("scheme " + scheme + " requires a key registry")
		}
	default:
		return nil, fserrors.NewNotSupportedError("unknown tar scheme " + scheme)
	}
	return &Driver{fs: fsys, scheme: scheme, codec: Codec{MaxSize: cfg.MaxSize}, cfg: cfg}, nil
}

// Register adds a driver for every scheme to reg. tar.raes is skipped when
// cfg has no key registry.
func Register(reg *driver.Registry, fsys afero.Fs, cfg Config) error {
	for _, scheme := range Schemes() {
		if scheme == SchemeTarRAES && cfg.Keys == nil {
			continue
		}
		d, err := New(fsys, scheme, cfg)
		if err != nil {
			return err
		}
		if err := reg.Register(scheme, d); err != nil {
			return err
		}
	}
	return nil
}

// Scheme returns the scheme served by d.
func (d *Driver) Scheme() string { return d.scheme }

func (d *Driver) NewController(ctx context.Context, mp mountpoint.MountPoint, model *lock.Model, parent controller.Controller) (controller.Controller, error) {
	if mp.Scheme() != d.scheme {
		return nil, fserrors.NewInvalidArgumentError("driver " + d.scheme + " cannot serve " + mp.String())
	}

	var backing controller.Backing
	switch {
	case parent == nil && mp.IsTopLevel():
		backing = controller.NewHostBacking(d.fs, filepath.FromSlash(mp.Path()))
	case parent != nil && !mp.IsTopLevel():
		backing = controller.NewEntryBacking(parent, mp.Path())
	default:
		return nil, fserrors.NewInvalidArgumentError("parent controller does not match " + mp.String())
	}

	cfg := controller.ArchiveConfig[*Entry]{
		Model:   model,
		Parent:  parent,
		Codec:   d.codec,
		Filters: d.filters(mp),
		Backing: backing,
	}
	if d.scheme == SchemeTarRAES {
		cfg.ResetKeys = func() { d.cfg.Keys.Invalidate(mp) }
	}
	a, err := controller.NewArchive(cfg)
	if err != nil {
		return nil, err
	}

	logger.DebugCtx(ctx, "Controller created",
		logger.KeyMountPoint, mp.String(),
		logger.KeyScheme, d.scheme,
		logger.KeyController, a.ID())
	return a, nil
}

// filters returns the chain for mp, innermost first.
func (d *Driver) filters(mp mountpoint.MountPoint) []filter.Filter {
	level := d.cfg.CompressionLevel
	switch d.scheme {
	case SchemeTarGzip, SchemeTgz:
		return []filter.Filter{filter.Gzip{Level: level}}
	case SchemeTarZstd:
		return []filter.Filter{filter.Zstd{Level: level}}
	case SchemeTarLZ4:
		return []filter.Filter{filter.LZ4{Level: level}}
	case SchemeTarRAES:
		var opts []raes.Option
		if d.cfg.KDFIterations > 0 {
			opts = append(opts, raes.WithIterations(d.cfg.KDFIterations))
		}
		if d.cfg.MaxSize > 0 {
			opts = append(opts, raes.WithMaxSize(d.cfg.MaxSize))
		}
		return []filter.Filter{raes.New(mp.String(), d.cfg.Keys.Provider(mp), opts...)}
	default:
		return nil
	}
}
