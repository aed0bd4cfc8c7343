// Package artifact stores fitted objects and data files on the local
// filesystem. Writes go to a temporary file in the destination directory and
// are renamed into place, so a reader never observes a partial artifact.
// Blobs whose path ends in ".xz" are xz-compressed; Load detects compression
// from the stream header.
package artifact

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/YuminosukeSato/mlpipe/core/model"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

// CompressedSuffix marks artifact paths that are written xz-compressed.
const CompressedSuffix = ".xz"

var xzMagic = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}

// WriteAtomic creates the parent directory of path, calls fn with a writer
// on a temporary file next to path, then renames the file to path. On any
// failure the temporary file is removed and path is left untouched.
func WriteAtomic(path string, fn func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.NewArtifactSaveError(path, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.NewArtifactSaveError(path, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err = fn(tmp); err != nil {
		return errors.NewArtifactSaveError(path, err)
	}
	if err = tmp.Sync(); err != nil {
		return errors.NewArtifactSaveError(path, err)
	}
	if err = tmp.Close(); err != nil {
		return errors.NewArtifactSaveError(path, err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return errors.NewArtifactSaveError(path, err)
	}
	return nil
}

// WriteFile atomically writes data to path.
func WriteFile(path string, data []byte) error {
	return WriteAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// CopyFile atomically writes a byte-for-byte copy of src to dst.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.NewArtifactLoadError(src, err)
	}
	defer in.Close()
	return WriteAtomic(dst, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

// Compressed reports whether path names an xz-compressed artifact.
func Compressed(path string) bool {
	return strings.HasSuffix(path, CompressedSuffix)
}

// Save gob-encodes v into path.
func Save(path string, v interface{}) error {
	return WriteAtomic(path, func(w io.Writer) error {
		return encode(w, Compressed(path), func(w io.Writer) error {
			return model.SaveModelToWriter(v, w)
		})
	})
}

// Load decodes the artifact at path into v, which must be a pointer.
func Load(path string, v interface{}) error {
	return decode(path, func(r io.Reader) error {
		return model.LoadModelFromReader(v, r)
	})
}

// SaveEstimator persists est behind the Estimator interface.
func SaveEstimator(path string, est model.Estimator) error {
	return WriteAtomic(path, func(w io.Writer) error {
		return encode(w, Compressed(path), func(w io.Writer) error {
			return model.EncodeEstimator(est, w)
		})
	})
}

// LoadEstimator restores an estimator written by SaveEstimator.
func LoadEstimator(path string) (model.Estimator, error) {
	var est model.Estimator
	err := decode(path, func(r io.Reader) error {
		var derr error
		est, derr = model.DecodeEstimator(r)
		return derr
	})
	if err != nil {
		return nil, err
	}
	return est, nil
}

func encode(w io.Writer, compress bool, fn func(io.Writer) error) error {
	if !compress {
		return fn(w)
	}
	zw, err := xz.NewWriter(w)
	if err != nil {
		return errors.Wrap(err, "create xz writer")
	}
	if err := fn(zw); err != nil {
		_ = zw.Close()
		return err
	}
	return zw.Close()
}

func decode(path string, fn func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.NewArtifactLoadError(path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var r io.Reader = br
	if head, _ := br.Peek(len(xzMagic)); bytes.Equal(head, xzMagic) {
		zr, err := xz.NewReader(br)
		if err != nil {
			return errors.NewArtifactLoadError(path, err)
		}
		r = zr
	}
	if err := fn(r); err != nil {
		return errors.NewArtifactLoadError(path, err)
	}
	return nil
}
