// Package memfs is an in-memory filesystem with symlinks and hard links. It
// implements realpath.FS and resolve.Env, counts every call and can inject
// failures, which makes walker behaviour observable in tests.
package memfs

import (
	"fmt"
	"strings"
	"sync"
	"syscall"

	"github.com/pathcanon/pathcanon/internal/normalize"
	"github.com/pathcanon/pathcanon/internal/realpath"
	"github.com/pathcanon/pathcanon/internal/resolve"
)

// MaxSymlinkHops mirrors the Linux limit on links followed in one lookup.
const MaxSymlinkHops = 40

const (
	OpLstat    = "lstat"
	OpAccess   = "access"
	OpReadlink = "readlink"
	OpGetwd    = "getwd"
	OpGetenv   = "getenv"
)

type kind int

const (
	kindDir kind = iota
	kindFile
	kindSymlink
)

type node struct {
	ino    uint64
	kind   kind
	target string
}

type injected struct {
	at  int
	err error
}

type FS struct {
	mu       sync.Mutex
	grammar  normalize.Grammar
	resolver *resolve.Resolver
	nodes    map[string]*node
	nextIno  uint64
	cwd      string
	env      map[string]string
	calls    map[string]int
	faults   map[string]injected
}

var (
	_ realpath.FS = (*FS)(nil)
	_ resolve.Env = (*FS)(nil)
)

// New returns an empty filesystem. Under the POSIX grammar the root "/"
// exists; Windows roots are added with AddRoot.
func New(g normalize.Grammar) *FS {
	f := &FS{
		grammar: g,
		nodes:   make(map[string]*node),
		env:     make(map[string]string),
		calls:   make(map[string]int),
		faults:  make(map[string]injected),
	}
	f.resolver = resolve.New(g, lockedEnv{f})
	if !g.Devices {
		f.cwd = "/"
		f.nodes["/"] = f.newNode(kindDir, "")
	}
	return f
}

// AddRoot creates a root directory such as `C:\` or `\\host\share\`.
func (f *FS) AddRoot(root string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[root] = f.newNode(kindDir, "")
	if f.cwd == "" {
		f.cwd = root
	}
}

// MkdirAll creates path and any missing parents.
func (f *FS) MkdirAll(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.create(path, kindDir, "", true)
	return err
}

func (f *FS) WriteFile(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.create(path, kindFile, "", false)
	return err
}

// Symlink creates a link at path whose raw text is target.
func (f *FS) Symlink(target, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.create(path, kindSymlink, target, false)
	return err
}

// Link makes newPath another name for the entry at oldPath, sharing its
// inode. Linking a symlink links the symlink itself.
func (f *FS) Link(oldPath, newPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, n, err := f.lookup(oldPath, false)
	if err != nil {
		return err
	}
	if n.kind == kindDir {
		return fmt.Errorf("link %s: %w", key, syscall.EPERM)
	}
	parent, name, err := f.parentOf(newPath)
	if err != nil {
		return err
	}
	child := join(parent, name, f.grammar.Separator)
	if _, exists := f.nodes[child]; exists {
		return fmt.Errorf("link %s: %w", child, syscall.EEXIST)
	}
	f.nodes[child] = n
	return nil
}

func (f *FS) Chdir(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cwd = path
}

func (f *FS) Setenv(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.env[key] = value
}

// FailOn makes the n-th call (1-based, counted from now) to op return err.
func (f *FS) FailOn(op string, n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[op] = injected{at: f.calls[op] + n, err: err}
}

// Calls returns how many times op has been invoked.
func (f *FS) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *FS) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = make(map[string]int)
}

func (f *FS) Lstat(path string) (realpath.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpLstat); err != nil {
		return realpath.Info{}, err
	}
	_, n, err := f.lookup(path, false)
	if err != nil {
		return realpath.Info{}, err
	}
	return realpath.Info{Dev: 1, Ino: n.ino, Symlink: n.kind == kindSymlink, HasIdentity: true}, nil
}

func (f *FS) Access(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpAccess); err != nil {
		return err
	}
	_, _, err := f.lookup(path, true)
	return err
}

func (f *FS) Readlink(path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpReadlink); err != nil {
		return "", err
	}
	_, n, err := f.lookup(path, false)
	if err != nil {
		return "", err
	}
	if n.kind != kindSymlink {
		return "", syscall.EINVAL
	}
	return n.target, nil
}

func (f *FS) Getwd() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpGetwd); err != nil {
		return "", err
	}
	return f.cwd, nil
}

func (f *FS) Getenv(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpGetenv); err != nil {
		return "", false
	}
	v, ok := f.env[key]
	return v, ok
}

func (f *FS) record(op string) error {
	f.calls[op]++
	if inj, ok := f.faults[op]; ok && inj.at == f.calls[op] {
		delete(f.faults, op)
		return inj.err
	}
	return nil
}

func (f *FS) newNode(k kind, target string) *node {
	f.nextIno++
	return &node{ino: f.nextIno, kind: k, target: target}
}

// lookup finds the entry for path the way a kernel would: every
// intermediate symlink is followed, the final one only when follow is set.
// Link targets are resolved lexically against the directory holding the
// link. The returned key is the link-free path of the entry.
func (f *FS) lookup(path string, follow bool) (string, *node, error) {
	p, err := f.resolver.Resolve(path)
	if err != nil {
		return "", nil, err
	}
	hops := 0

restart:
	for {
		if !p.Absolute {
			return "", nil, syscall.ENOENT
		}
		rootLen := p.RootLen()
		cur := p.Path[:rootLen]
		n, ok := f.nodes[cur]
		if !ok {
			return "", nil, syscall.ENOENT
		}

		rest := p.Path[rootLen:]
		var comps []string
		if rest != "" {
			comps = strings.Split(rest, string(f.grammar.Separator))
		}

		for i, c := range comps {
			if n.kind != kindDir {
				return "", nil, syscall.ENOTDIR
			}
			next := join(cur, c, f.grammar.Separator)
			child, ok := f.nodes[next]
			if !ok {
				return "", nil, syscall.ENOENT
			}
			last := i == len(comps)-1
			if child.kind == kindSymlink && (!last || follow) {
				hops++
				if hops > MaxSymlinkHops {
					return "", nil, syscall.ELOOP
				}
				remaining := strings.Join(comps[i+1:], string(f.grammar.Separator))
				p, err = f.resolver.Resolve(cur, child.target, remaining)
				if err != nil {
					return "", nil, err
				}
				continue restart
			}
			cur, n = next, child
		}
		return cur, n, nil
	}
}

func (f *FS) create(path string, k kind, target string, parents bool) (*node, error) {
	p, err := f.resolver.Resolve(path)
	if err != nil {
		return nil, err
	}
	rootLen := p.RootLen()
	cur := p.Path[:rootLen]
	n, ok := f.nodes[cur]
	if !ok {
		return nil, fmt.Errorf("create %s: root %q: %w", path, cur, syscall.ENOENT)
	}
	rest := p.Path[rootLen:]
	if rest == "" {
		if k == kindDir {
			return n, nil
		}
		return nil, fmt.Errorf("create %s: %w", path, syscall.EEXIST)
	}

	comps := strings.Split(rest, string(f.grammar.Separator))
	for i, c := range comps {
		if n.kind != kindDir {
			return nil, fmt.Errorf("create %s: %w", path, syscall.ENOTDIR)
		}
		next := join(cur, c, f.grammar.Separator)
		child, exists := f.nodes[next]
		last := i == len(comps)-1
		switch {
		case last && exists:
			if k == kindDir && child.kind == kindDir {
				return child, nil
			}
			return nil, fmt.Errorf("create %s: %w", path, syscall.EEXIST)
		case last:
			child = f.newNode(k, target)
			f.nodes[next] = child
		case !exists && parents:
			child = f.newNode(kindDir, "")
			f.nodes[next] = child
		case !exists:
			return nil, fmt.Errorf("create %s: %w", path, syscall.ENOENT)
		}
		cur, n = next, child
	}
	return n, nil
}

func (f *FS) parentOf(path string) (string, string, error) {
	p, err := f.resolver.Resolve(path)
	if err != nil {
		return "", "", err
	}
	rootLen := p.RootLen()
	if len(p.Path) <= rootLen {
		return "", "", fmt.Errorf("parent of %s: %w", path, syscall.EINVAL)
	}
	idx := strings.LastIndexByte(p.Path, f.grammar.Separator)
	parent := p.Path[:rootLen]
	if idx >= rootLen {
		parent = p.Path[:idx]
	}
	if n, ok := f.nodes[parent]; !ok || n.kind != kindDir {
		return "", "", fmt.Errorf("parent of %s: %w", path, syscall.ENOENT)
	}
	return parent, p.Path[idx+1:], nil
}

func join(dir, name string, sep byte) string {
	if strings.HasSuffix(dir, string(sep)) {
		return dir + name
	}
	return dir + string(sep) + name
}

// lockedEnv reads cwd and env while the FS lock is already held, without
// counting calls.
type lockedEnv struct {
	f *FS
}

func (e lockedEnv) Getwd() (string, error) {
	return e.f.cwd, nil
}

func (e lockedEnv) Getenv(key string) (string, bool) {
	v, ok := e.f.env[key]
	return v, ok
}
