package filesystem

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/karrick/godirwalk"
)

// Filesystem confines file access to the private directory of one world.
type Filesystem struct {
	root string
}

// New creates a new Filesystem instance rooted at the given directory.
func New(root string) *Filesystem {
	return &Filesystem{root: filepath.Clean(root)}
}

// Path returns the root path for the Filesystem instance.
func (fs *Filesystem) Path() string {
	return fs.root
}

// Readfile copies the contents of a file into the writer.
func (fs *Filesystem) Readfile(p string, w io.Writer) error {
	f, _, err := fs.File(p)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return errors.WithStackIf(err)
}

// File returns an open handle for the file at the path as well as its stat
// information.
func (fs *Filesystem) File(p string) (*os.File, Stat, error) {
	cleaned, err := fs.SafePath(p)
	if err != nil {
		return nil, Stat{}, errors.WithStackIf(err)
	}
	st, err := fs.unsafeStat(cleaned)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, Stat{}, newFilesystemError(ErrNotExist, err)
		}
		return nil, Stat{}, errors.WithStackIf(err)
	}
	if st.IsDir() {
		return nil, Stat{}, errors.WithStack(&Error{code: ErrCodeIsDirectory, path: p, resolved: cleaned})
	}
	f, err := os.Open(cleaned)
	if err != nil {
		return nil, Stat{}, errors.WithStackIf(err)
	}
	return f, st, nil
}

// Touch opens the file with the given flags, creating it and any missing
// parent directories first.
func (fs *Filesystem) Touch(p string, flag int) (*os.File, error) {
	cleaned, err := fs.SafePath(p)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cleaned), 0o755); err != nil {
		return nil, errors.Wrap(err, "server/filesystem: touch: failed to create directory tree")
	}
	f, err := os.OpenFile(cleaned, flag, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "server/filesystem: touch: failed to open file handle")
	}
	return f, nil
}

// Writefile replaces the contents of the file with whatever the reader
// yields, creating the file if needed.
func (fs *Filesystem) Writefile(p string, r io.Reader) error {
	cleaned, err := fs.SafePath(p)
	if err != nil {
		return err
	}
	if st, err := os.Stat(cleaned); err == nil && st.IsDir() {
		return errors.WithStack(&Error{code: ErrCodeIsDirectory, path: p, resolved: cleaned})
	}
	f, err := fs.Touch(cleaned, os.O_RDWR|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, r)
	return errors.WithStackIf(err)
}

// CreateDirectory creates the directory and any missing parents.
func (fs *Filesystem) CreateDirectory(p string) error {
	cleaned, err := fs.SafePath(p)
	if err != nil {
		return err
	}
	return errors.WithStack(os.MkdirAll(cleaned, 0o755))
}

// Delete removes a file or directory tree. The root itself cannot be
// removed this way, and removing something missing is not an error.
func (fs *Filesystem) Delete(p string) error {
	resolved := fs.unsafeFilePath(p)
	if !fs.unsafeIsInDataDirectory(resolved) {
		return NewBadPathResolution(p, resolved)
	}
	if resolved == fs.root {
		return newFilesystemError(ErrCodeIsRoot, nil)
	}
	// Symlinks are removed as links; SafePath would resolve them to their
	// target, which must not be deleted.
	if st, err := os.Lstat(resolved); err == nil && st.Mode()&os.ModeSymlink != 0 {
		return errors.WithStack(os.Remove(resolved))
	}
	cleaned, err := fs.SafePath(p)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(cleaned); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.WithStack(err)
	}
	return nil
}

// ListDirectory returns the contents of a directory, directories first and
// then files, each group sorted by name.
func (fs *Filesystem) ListDirectory(p string) ([]Stat, error) {
	cleaned, err := fs.SafePath(p)
	if err != nil {
		return nil, err
	}
	dirents, err := godirwalk.ReadDirents(cleaned, nil)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, newFilesystemError(ErrNotExist, err)
		}
		return nil, errors.WithStack(err)
	}
	out := make([]Stat, 0, len(dirents))
	for _, d := range dirents {
		st, err := fs.unsafeStat(filepath.Join(cleaned, d.Name()))
		if err != nil {
			log.WithField("path", d.Name()).WithField("error", err).Debug("skipping unreadable directory entry")
			continue
		}
		out = append(out, st)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsDir() != out[j].IsDir() {
			return out[i].IsDir()
		}
		return strings.ToLower(out[i].Name()) < strings.ToLower(out[j].Name())
	})
	return out, nil
}

// CopyFrom copies the tree at src into the root. Files that already exist in
// the root are left alone, which keeps world data intact when the template
// of a version is applied again before every start. Symlinks in the source
// are skipped.
func (fs *Filesystem) CopyFrom(src string) error {
	if err := os.MkdirAll(fs.root, 0o755); err != nil {
		return errors.WithStack(err)
	}
	src = filepath.Clean(src)
	err := godirwalk.Walk(src, &godirwalk.Options{
		Unsorted: true,
		Callback: func(p string, e *godirwalk.Dirent) error {
			rel, err := filepath.Rel(src, p)
			if err != nil || rel == "." {
				return err
			}
			if e.IsSymlink() {
				return godirwalk.SkipThis
			}
			dst, err := fs.SafePath(rel)
			if err != nil {
				return err
			}
			if e.IsDir() {
				return os.MkdirAll(dst, 0o755)
			}
			if _, err := os.Lstat(dst); err == nil {
				return nil
			}
			return copyFile(p, dst)
		},
	})
	return errors.Wrap(err, "server/filesystem: copy: failed to copy template")
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	st, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, st.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
