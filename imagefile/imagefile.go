// Package imagefile finds photos on disk and prepares them for upload.
package imagefile

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fwojciec/phototag"
	_ "golang.org/x/image/webp" // register WebP decoder
	"golang.org/x/sync/errgroup"
)

// DefaultMaxSize is the largest file accepted when Options.MaxSize is zero.
const DefaultMaxSize = 20 << 20

// DefaultFormats are the image formats accepted when Options.Formats is empty.
var DefaultFormats = []string{"jpeg", "png", "gif", "webp"}

var contentTypes = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
}

// Options controls which files are accepted.
type Options struct {
	MaxSize     int64    // bytes; zero means DefaultMaxSize
	Formats     []string // decoder names; empty means DefaultFormats
	Concurrency int      // OpenAll workers; zero or less means 4
}

func (o Options) maxSize() int64 {
	if o.MaxSize <= 0 {
		return DefaultMaxSize
	}
	return o.MaxSize
}

func (o Options) formats() []string {
	if len(o.Formats) == 0 {
		return DefaultFormats
	}
	return o.Formats
}

// Glob expands doublestar patterns and returns the matching regular files,
// deduplicated and sorted. Relative patterns are resolved against root;
// absolute ones are used as-is. Patterns may use ** for recursion.
func Glob(root string, patterns []string) ([]string, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("imagefile: invalid glob pattern %q: %w", p, phototag.ErrValidation)
		}
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("imagefile: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("imagefile: %s is not a directory: %w", root, phototag.ErrValidation)
	}

	seen := make(map[string]struct{})
	var matches []string
	for _, p := range patterns {
		// Walk from the pattern's literal prefix so that absolute and
		// parent-relative patterns reach outside root.
		base, pattern := doublestar.SplitPattern(p)
		dir := filepath.FromSlash(base)
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(root, dir)
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		err := doublestar.GlobWalk(os.DirFS(dir), pattern, func(path string, d iofs.DirEntry) error {
			if d.IsDir() {
				return nil
			}
			full := filepath.Join(dir, filepath.FromSlash(path))
			if _, ok := seen[full]; ok {
				return nil
			}
			seen[full] = struct{}{}
			matches = append(matches, full)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("imagefile: match %q: %w", p, err)
		}
	}
	slices.Sort(matches)
	return matches, nil
}

// Open checks that path is an acceptable image and returns an UploadFile
// that reopens it lazily when the upload body is written.
func Open(path string, opts Options) (phototag.UploadFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return phototag.UploadFile{}, fmt.Errorf("imagefile: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return phototag.UploadFile{}, fmt.Errorf("imagefile: %w", err)
	}
	if !info.Mode().IsRegular() {
		return phototag.UploadFile{}, fmt.Errorf("imagefile: %s is not a regular file: %w", path, phototag.ErrValidation)
	}
	if info.Size() > opts.maxSize() {
		return phototag.UploadFile{}, fmt.Errorf("imagefile: %s is %d bytes, limit is %d: %w",
			path, info.Size(), opts.maxSize(), phototag.ErrValidation)
	}

	_, format, err := image.DecodeConfig(f)
	if err != nil {
		return phototag.UploadFile{}, fmt.Errorf("imagefile: %s is not a supported image: %w", path, phototag.ErrValidation)
	}
	if !slices.Contains(opts.formats(), format) {
		return phototag.UploadFile{}, fmt.Errorf("imagefile: %s has format %s, which is not allowed: %w",
			path, format, phototag.ErrValidation)
	}

	return phototag.UploadFile{
		Name:        filepath.Base(path),
		ContentType: contentTypes[format],
		Size:        info.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// OpenAll opens every path with Open, at most opts.Concurrency at a time.
// Results keep the order of paths. The first failure cancels the rest.
func OpenAll(ctx context.Context, paths []string, opts Options) ([]phototag.UploadFile, error) {
	limit := opts.Concurrency
	if limit <= 0 {
		limit = 4
	}

	files := make([]phototag.UploadFile, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := Open(path, opts)
			if err != nil {
				return err
			}
			files[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}
