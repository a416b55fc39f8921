// Package realpath canonicalizes a path against a filesystem, replacing every
// symbolic link with its target until no links, "." or ".." segments, or
// redundant separators remain.
//
// A walk is synchronous and keeps no state between calls. Two per-call
// caches avoid repeated filesystem work when the walk restarts after a link
// is spliced in:
//
//   - known-hard: path prefixes already proven not to be symlinks
//   - link targets: raw readlink text keyed by (device, inode), so a link
//     reached through several path aliases is read once
//
// Symlink cycles are not counted here. They end when the platform's own
// loop detection makes Access fail with ELOOP.
package realpath

import (
	"errors"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/pathcanon/pathcanon/internal/fault"
	"github.com/pathcanon/pathcanon/internal/normalize"
	"github.com/pathcanon/pathcanon/internal/resolve"
)

var errRelativeRoot = errors.New("working directory is not absolute")

var discardLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

type Walker struct {
	Resolver *resolve.Resolver
	FS       FS
	Log      logrus.FieldLogger
}

func New(resolver *resolve.Resolver, fsys FS) *Walker {
	return &Walker{Resolver: resolver, FS: fsys}
}

// NewNative returns a walker over the host filesystem and environment.
func NewNative() *Walker {
	return New(resolve.New(normalize.Native(), resolve.OSEnv{}), OSFS{})
}

// Stats counts the work done by a single walk.
type Stats struct {
	Lstats        int `json:"lstats"`
	Accesses      int `json:"accesses"`
	Readlinks     int `json:"readlinks"`
	KnownHardHits int `json:"known_hard_hits"`
	LinkCacheHits int `json:"link_cache_hits"`
	Splices       int `json:"splices"`
	KnownHard     int `json:"known_hard"`
	CachedLinks   int `json:"cached_links"`
}

// Link records one symlink substitution.
type Link struct {
	Path   string `json:"path"`
	Target string `json:"target"`
	Cached bool   `json:"cached"`
}

type Result struct {
	Path  string
	Stats Stats
	Links []Link
}

// Realpath returns the canonical absolute form of path.
func (w *Walker) Realpath(path string) (string, error) {
	res, err := w.Walk(path)
	if err != nil {
		return "", err
	}
	return res.Path, nil
}

// Walk canonicalizes path and reports what it took to do so.
func (w *Walker) Walk(path string) (*Result, error) {
	wk := &walk{
		w:         w,
		log:       w.logger().WithField("input", path),
		knownHard: make(map[string]struct{}),
		links:     make(map[fileID]string),
		res:       &Result{},
	}

	p, err := w.Resolver.Resolve(path)
	if err != nil {
		return nil, err
	}
	if !p.Absolute {
		return nil, fault.Invalid("realpath", p.Path, errRelativeRoot)
	}

	for {
		next, done, err := wk.scan(p)
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
		p = next
	}

	wk.res.Path = p.Path
	wk.res.Stats.KnownHard = len(wk.knownHard)
	wk.res.Stats.CachedLinks = len(wk.links)
	wk.log.WithFields(logrus.Fields{
		"result":  p.Path,
		"splices": wk.res.Stats.Splices,
	}).Debug("realpath done")
	return wk.res, nil
}

func (w *Walker) logger() logrus.FieldLogger {
	if w.Log == nil {
		return discardLogger
	}
	return w.Log
}

type walk struct {
	w         *Walker
	log       logrus.FieldLogger
	knownHard map[string]struct{}
	links     map[fileID]string
	res       *Result
}

// scan walks p from its root. It stops at the first symlink and returns the
// path with that link substituted, or done when p holds no links.
//
// Within one pass the path is never modified, so the accumulated prefix is
// always p.Path[:pos] and the prefix before the current segment is the
// previous value of pos.
func (wk *walk) scan(p resolve.Result) (resolve.Result, bool, error) {
	g := wk.w.Resolver.Grammar
	path := p.Path
	pos := p.RootLen()

	if err := wk.checkRoot(path[:pos]); err != nil {
		return resolve.Result{}, false, err
	}

	for pos < len(path) {
		end := g.IndexSeparator(path, pos)
		if end < 0 {
			end = len(path)
		}
		previous := path[:pos]
		base := path[:end]
		pos = min(end+1, len(path))

		if _, ok := wk.knownHard[base]; ok {
			wk.res.Stats.KnownHardHits++
			continue
		}

		info, err := wk.lstat(base)
		if err != nil {
			return resolve.Result{}, false, err
		}
		if !info.Symlink {
			wk.knownHard[base] = struct{}{}
			continue
		}

		target, cached, err := wk.readLink(base, info)
		if err != nil {
			return resolve.Result{}, false, err
		}

		link, err := wk.w.Resolver.Resolve(previous, target)
		if err != nil {
			return resolve.Result{}, false, err
		}
		next, err := wk.w.Resolver.Resolve(link.Path, path[pos:])
		if err != nil {
			return resolve.Result{}, false, err
		}

		wk.res.Stats.Splices++
		wk.res.Links = append(wk.res.Links, Link{Path: base, Target: target, Cached: cached})
		wk.log.WithFields(logrus.Fields{
			"link":   base,
			"target": target,
			"cached": cached,
			"next":   next.Path,
		}).Debug("symlink spliced")
		return next, false, nil
	}
	return p, true, nil
}

// checkRoot confirms the root exists once per walk. Roots are never
// symlinks, but device and UNC roots may be missing.
func (wk *walk) checkRoot(root string) error {
	if _, ok := wk.knownHard[root]; ok {
		wk.res.Stats.KnownHardHits++
		return nil
	}
	if _, err := wk.lstat(root); err != nil {
		return err
	}
	wk.knownHard[root] = struct{}{}
	return nil
}

func (wk *walk) lstat(path string) (Info, error) {
	wk.res.Stats.Lstats++
	info, err := wk.w.FS.Lstat(path)
	if err != nil {
		return Info{}, fault.FS("lstat", path, err)
	}
	wk.log.WithFields(logrus.Fields{"path": path, "symlink": info.Symlink}).Debug("lstat")
	return info, nil
}

// readLink returns the target of the symlink at path, reading it from the
// filesystem only the first time its identity is seen.
func (wk *walk) readLink(path string, info Info) (string, bool, error) {
	id := fileID{dev: info.Dev, ino: info.Ino}
	if info.HasIdentity {
		if target, ok := wk.links[id]; ok {
			wk.res.Stats.LinkCacheHits++
			return target, true, nil
		}
	}

	// Access follows the link, so a cycle surfaces here as ELOOP.
	wk.res.Stats.Accesses++
	if err := wk.w.FS.Access(path); err != nil {
		return "", false, fault.FS("access", path, err)
	}

	wk.res.Stats.Readlinks++
	target, err := wk.w.FS.Readlink(path)
	if err != nil {
		return "", false, fault.FS("readlink", path, err)
	}

	if info.HasIdentity {
		wk.links[id] = target
	}
	return target, false, nil
}
