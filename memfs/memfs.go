// Copyright 2014 Google Inc. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package memfs is an in-memory FileSystem, generalizing the teacher's
// memfs (a flat map[string]*memfile guarded by one mutex, with no
// directory-tree structure beyond path string prefixes) to the
// specification's FileSystem contract: context-aware methods, a lazy
// DirIterator, and a dead-property store per resource. Recommended for
// tests and Class-1/2 compliance smoke tests only, same caveat as the
// teacher's version: every byte lives in memory with no eviction.
package memfs

import (
	"context"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	dav "github.com/nmathewson/davengine"
)

type entry struct {
	isDir   bool
	path    string
	created time.Time
	data    []byte
	props   map[dav.PropName]string
}

// MemFS is an in-memory FileSystem.
type MemFS struct {
	mu    sync.Mutex
	files map[string]*entry
}

var _ dav.FileSystem = (*MemFS)(nil)

// New returns an empty in-memory FileSystem, already containing the root
// collection "/".
func New() *MemFS {
	fs := &MemFS{files: make(map[string]*entry)}
	fs.files["/"] = &entry{isDir: true, path: "/", created: time.Now(), props: map[dav.PropName]string{}}
	return fs
}

func clean(name string) string {
	if name == "" {
		return "/"
	}
	return path.Clean("/" + name)
}

func (fs *MemFS) lookup(name string) (*entry, error) {
	e, ok := fs.files[clean(name)]
	if !ok {
		return nil, dav.ErrorNotFound
	}
	return e, nil
}

func (fs *MemFS) meta(e *entry) dav.Metadata {
	return dav.Metadata{
		Size:     int64(len(e.data)),
		Created:  e.created,
		Modified: e.created,
		IsDir:    e.isDir,
	}
}

func (fs *MemFS) Metadata(ctx context.Context, name string) (dav.Metadata, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	e, err := fs.lookup(name)
	if err != nil {
		return dav.Metadata{}, err
	}
	return fs.meta(e), nil
}

// SymlinkMetadata is identical to Metadata: memfs has no symlinks.
func (fs *MemFS) SymlinkMetadata(ctx context.Context, name string) (dav.Metadata, error) {
	return fs.Metadata(ctx, name)
}

type dirIterator struct {
	entries []dav.DirEntry
	i       int
}

func (it *dirIterator) Next(ctx context.Context) (dav.DirEntry, error) {
	if it.i >= len(it.entries) {
		return dav.DirEntry{}, io.EOF
	}
	e := it.entries[it.i]
	it.i++
	return e, nil
}

func (it *dirIterator) Close() error { return nil }

func (fs *MemFS) ReadDir(ctx context.Context, name string) (dav.DirIterator, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	dir, err := fs.lookup(name)
	if err != nil {
		return nil, err
	}
	if !dir.isDir {
		return nil, dav.ErrorIsNotDir
	}
	prefix := dir.path
	if prefix != "/" {
		prefix += "/"
	}

	var names []string
	for p := range fs.files {
		if p == dir.path || !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if strings.Contains(rest, "/") {
			continue // not a direct child
		}
		names = append(names, p)
	}
	sort.Strings(names)

	entries := make([]dav.DirEntry, 0, len(names))
	for _, p := range names {
		e := fs.files[p]
		entries = append(entries, dav.DirEntry{Name: path.Base(p), Meta: fs.meta(e)})
	}
	return &dirIterator{entries: entries}, nil
}

type handle struct {
	fs  *MemFS
	e   *entry
	pos int64
}

func (fs *MemFS) Open(ctx context.Context, name string, opts dav.OpenOptions) (dav.FileHandle, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	cn := clean(name)
	e, err := fs.lookup(cn)
	if err != nil {
		if !opts.Create {
			return nil, err
		}
		parent, perr := fs.lookup(path.Dir(cn))
		if perr != nil || !parent.isDir {
			return nil, dav.ErrorMissingParent
		}
		e = &entry{path: cn, created: time.Now(), props: map[dav.PropName]string{}}
		fs.files[cn] = e
	} else if opts.CreateNew {
		return nil, dav.ErrorConflict
	}
	if e.isDir {
		return nil, dav.ErrorIsDir
	}
	if opts.Truncate {
		e.data = nil
	}
	h := &handle{fs: fs, e: e}
	if opts.Append {
		h.pos = int64(len(e.data))
	}
	return h, nil
}

func (h *handle) Read(p []byte) (int, error) {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	if h.pos >= int64(len(h.e.data)) {
		return 0, io.EOF
	}
	n := copy(p, h.e.data[h.pos:])
	h.pos += int64(n)
	return n, nil
}

func (h *handle) Write(p []byte) (int, error) {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	end := h.pos + int64(len(p))
	if end > int64(len(h.e.data)) {
		grown := make([]byte, end)
		copy(grown, h.e.data)
		h.e.data = grown
	}
	copy(h.e.data[h.pos:end], p)
	h.pos = end
	return len(p), nil
}

func (h *handle) Seek(offset int64, whence int) (int64, error) {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	np := h.pos
	switch whence {
	case io.SeekStart:
		np = offset
	case io.SeekCurrent:
		np += offset
	case io.SeekEnd:
		np = int64(len(h.e.data)) + offset
	}
	if np < 0 {
		return h.pos, dav.StatusError(400)
	}
	h.pos = np
	return np, nil
}

func (h *handle) Close() error { return nil }

func (h *handle) Metadata(ctx context.Context) (dav.Metadata, error) {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	return dav.Metadata{Size: int64(len(h.e.data)), Created: h.e.created, Modified: h.e.created}, nil
}

func (fs *MemFS) CreateDir(ctx context.Context, name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	cn := clean(name)
	if _, err := fs.lookup(cn); err == nil {
		return dav.ErrorConflict
	}
	parent, err := fs.lookup(path.Dir(cn))
	if err != nil || !parent.isDir {
		return dav.ErrorMissingParent
	}
	fs.files[cn] = &entry{isDir: true, path: cn, created: time.Now(), props: map[dav.PropName]string{}}
	return nil
}

func (fs *MemFS) RemoveFile(ctx context.Context, name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	cn := clean(name)
	e, err := fs.lookup(cn)
	if err != nil {
		return err
	}
	if e.isDir {
		return dav.ErrorIsDir
	}
	delete(fs.files, cn)
	return nil
}

// RemoveDir removes a single collection entry. The root package's
// removeTree walk empties a non-empty collection before calling this, so
// RemoveDir refuses one that still has children rather than recursing
// itself.
func (fs *MemFS) RemoveDir(ctx context.Context, name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	cn := clean(name)
	e, err := fs.lookup(cn)
	if err != nil {
		return err
	}
	if !e.isDir {
		return dav.ErrorIsNotDir
	}
	prefix := cn
	if prefix != "/" {
		prefix += "/"
	}
	for p := range fs.files {
		if p != cn && strings.HasPrefix(p, prefix) {
			return dav.ErrorConflict
		}
	}
	delete(fs.files, cn)
	return nil
}

func (fs *MemFS) Rename(ctx context.Context, oldName, newName string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	on, nn := clean(oldName), clean(newName)
	e, err := fs.lookup(on)
	if err != nil {
		return err
	}
	if _, err := fs.lookup(nn); err == nil {
		return dav.ErrorConflict
	}
	if _, err := fs.lookup(path.Dir(nn)); err != nil {
		return dav.ErrorMissingParent
	}
	e.path = nn
	fs.files[nn] = e
	delete(fs.files, on)
	return nil
}

func (fs *MemFS) Copy(ctx context.Context, src, dst string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	sn, dn := clean(src), clean(dst)
	e, err := fs.lookup(sn)
	if err != nil {
		return err
	}
	if _, err := fs.lookup(path.Dir(dn)); err != nil {
		return dav.ErrorMissingParent
	}
	cp := &entry{isDir: e.isDir, path: dn, created: time.Now(), props: map[dav.PropName]string{}}
	if !e.isDir {
		cp.data = append([]byte(nil), e.data...)
	}
	for k, v := range e.props {
		cp.props[k] = v
	}
	fs.files[dn] = cp
	return nil
}

func (fs *MemFS) HaveProps(ctx context.Context, name string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	e, err := fs.lookup(name)
	return err == nil && len(e.props) > 0
}

func (fs *MemFS) PatchProps(ctx context.Context, name string, ops []dav.PropPatchOp) ([]dav.PropPatchResult, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	e, err := fs.lookup(name)
	if err != nil {
		return nil, err
	}
	results := make([]dav.PropPatchResult, 0, len(ops))
	for _, op := range ops {
		if op.Remove {
			delete(e.props, op.Prop.Name)
		} else {
			e.props[op.Prop.Name] = op.Prop.Value
		}
		results = append(results, dav.PropPatchResult{Name: op.Prop.Name})
	}
	return results, nil
}

func (fs *MemFS) GetProps(ctx context.Context, name string, withContent bool) ([]dav.DeadProperty, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	e, err := fs.lookup(name)
	if err != nil {
		return nil, err
	}
	out := make([]dav.DeadProperty, 0, len(e.props))
	for k, v := range e.props {
		dp := dav.DeadProperty{Name: k}
		if withContent {
			dp.Value = v
		}
		out = append(out, dp)
	}
	return out, nil
}

func (fs *MemFS) GetProp(ctx context.Context, name string, prop dav.PropName) (dav.DeadProperty, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	e, err := fs.lookup(name)
	if err != nil {
		return dav.DeadProperty{}, false, err
	}
	v, ok := e.props[prop]
	if !ok {
		return dav.DeadProperty{}, false, nil
	}
	return dav.DeadProperty{Name: prop, Value: v}, true, nil
}

func (fs *MemFS) Quota(ctx context.Context) (int64, *int64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var used int64
	for _, e := range fs.files {
		used += int64(len(e.data))
	}
	return used, nil, nil
}
