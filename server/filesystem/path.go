package filesystem

import (
	"os"
	"path/filepath"
	"strings"

	"emperror.dev/errors"
)

// SafePath resolves a path relative to the world root and guarantees that it,
// and any symlink it points through, stays inside the root. The returned path
// is absolute. Paths that do not exist yet are validated against their
// closest existing parent.
func (fs *Filesystem) SafePath(p string) (string, error) {
	r := fs.unsafeFilePath(p)

	ep, err := filepath.EvalSymlinks(r)
	if err == nil {
		if fs.unsafeIsInDataDirectory(ep) {
			return ep, nil
		}
		return "", NewBadPathResolution(p, ep)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", errors.Wrap(err, "server/filesystem: failed to evaluate symlink")
	}

	for dir := filepath.Dir(r); fs.unsafeIsInDataDirectory(dir); dir = filepath.Dir(dir) {
		resolved, err := filepath.EvalSymlinks(dir)
		if err != nil {
			continue
		}
		if !fs.unsafeIsInDataDirectory(resolved) {
			return "", NewBadPathResolution(p, resolved)
		}
		return r, nil
	}
	return "", NewBadPathResolution(p, r)
}

// unsafeFilePath joins the path onto the root and cleans it. The result may
// still point outside the root.
func (fs *Filesystem) unsafeFilePath(p string) string {
	return filepath.Clean(filepath.Join(fs.root, strings.TrimPrefix(p, fs.root)))
}

// unsafeIsInDataDirectory checks the path against the root both as
// configured and with its own symlinks resolved.
func (fs *Filesystem) unsafeIsInDataDirectory(p string) bool {
	if hasPathPrefix(p, fs.root) {
		return true
	}
	if root, err := filepath.EvalSymlinks(fs.root); err == nil && root != fs.root {
		return hasPathPrefix(p, root)
	}
	return false
}

func hasPathPrefix(p, root string) bool {
	return strings.HasPrefix(strings.TrimSuffix(p, "/")+"/", strings.TrimSuffix(root, "/")+"/")
}
