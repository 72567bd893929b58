// Package medialib is the device media library: a place exported videos and
// raw clips are saved to, grouped in named albums.
package medialib

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultAlbum = "StudioLapse"

var ErrPermissionDenied = errors.New("media library access denied")

type Asset struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
}

type Album struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

type Library interface {
	RequestPermission(ctx context.Context) (bool, error)
	CreateAsset(ctx context.Context, localPath string) (Asset, error)
	// GetAlbum returns nil without error when no album has that name.
	GetAlbum(ctx context.Context, name string) (*Album, error)
	CreateAlbum(ctx context.Context, name string, asset Asset) (*Album, error)
	AddAssetsToAlbum(ctx context.Context, assets []Asset, album *Album) error
}

// DirLibrary stores assets under <root>/assets and albums as directories of
// links under <root>/albums.
type DirLibrary struct {
	root    string
	granted bool
	logger  *slog.Logger
}

func NewDirLibrary(root string, granted bool, logger *slog.Logger) *DirLibrary {
	return &DirLibrary{root: root, granted: granted, logger: logger}
}

func (l *DirLibrary) Root() string {
	return l.root
}

// RequestPermission reports whether the library may be written. Access is
// refused when revoked in configuration or when the root is not a writable
// directory.
func (l *DirLibrary) RequestPermission(ctx context.Context) (bool, error) {
	if !l.granted {
		return false, nil
	}
	if err := os.MkdirAll(l.root, 0755); err != nil {
		return false, nil
	}
	f, err := os.CreateTemp(l.root, ".perm-*")
	if err != nil {
		return false, nil
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true, nil
}

func (l *DirLibrary) CreateAsset(ctx context.Context, localPath string) (Asset, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return Asset{}, fmt.Errorf("stat source: %w", err)
	}
	if info.IsDir() {
		return Asset{}, fmt.Errorf("source is a directory: %s", localPath)
	}

	dir := filepath.Join(l.root, "assets")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Asset{}, fmt.Errorf("create assets dir: %w", err)
	}

	id := uuid.New().String()
	filename := filepath.Base(localPath)
	dst := filepath.Join(dir, id+"_"+filename)
	if err := copyFile(localPath, dst); err != nil {
		return Asset{}, fmt.Errorf("copy asset: %w", err)
	}

	return Asset{ID: id, Path: dst, Filename: filename, CreatedAt: time.Now()}, nil
}

func (l *DirLibrary) GetAlbum(ctx context.Context, name string) (*Album, error) {
	path, err := l.albumPath(name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat album: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("album path is not a directory: %s", name)
	}
	return &Album{Name: name, Path: path}, nil
}

func (l *DirLibrary) CreateAlbum(ctx context.Context, name string, asset Asset) (*Album, error) {
	path, err := l.albumPath(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("create album: %w", err)
	}
	album := &Album{Name: name, Path: path}
	if err := l.AddAssetsToAlbum(ctx, []Asset{asset}, album); err != nil {
		return nil, err
	}
	if l.logger != nil {
		l.logger.Info("album created", "album", name)
	}
	return album, nil
}

func (l *DirLibrary) AddAssetsToAlbum(ctx context.Context, assets []Asset, album *Album) error {
	if album == nil {
		return errors.New("album is required")
	}
	for _, a := range assets {
		dst := filepath.Join(album.Path, filepath.Base(a.Path))
		if _, err := os.Stat(dst); err == nil {
			continue
		}
		if err := os.Link(a.Path, dst); err != nil {
			if err := copyFile(a.Path, dst); err != nil {
				return fmt.Errorf("add %s to album: %w", a.Filename, err)
			}
		}
	}
	return nil
}

func (l *DirLibrary) albumPath(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid album name %q", name)
	}
	return filepath.Join(l.root, "albums", name), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// SaveToAlbum creates an asset from path and files it under album, creating
// the album on first use.
func SaveToAlbum(ctx context.Context, lib Library, path, album string) (Asset, error) {
	asset, err := lib.CreateAsset(ctx, path)
	if err != nil {
		return Asset{}, err
	}

	existing, err := lib.GetAlbum(ctx, album)
	if err != nil {
		return asset, err
	}
	if existing != nil {
		if err := lib.AddAssetsToAlbum(ctx, []Asset{asset}, existing); err != nil {
			return asset, err
		}
		return asset, nil
	}

	if _, err := lib.CreateAlbum(ctx, album, asset); err != nil {
		return asset, err
	}
	return asset, nil
}
