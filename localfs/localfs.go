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

// Package localfs is a disk-backed FileSystem, a near 1:1 mapping onto
// os/io/fs grounded on dav-server-rs's localfs.rs: every method shells
// out to the matching stdlib call under a base directory, and is
// stateless enough that a new LocalFS can be created per request.
package localfs

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	dav "github.com/nmathewson/davengine"
)

// LocalFS serves files rooted at a base directory. Public controls the
// mode new files and directories are created with: 0644/0755 when true
// (world-readable), 0600/0700 otherwise, same split as the teacher's
// LocalFs::new(base, public).
type LocalFS struct {
	base   string
	public bool
}

var _ dav.FileSystem = (*LocalFS)(nil)

// New returns a LocalFS rooted at base.
func New(base string, public bool) *LocalFS {
	return &LocalFS{base: filepath.Clean(base), public: public}
}

func (l *LocalFS) realPath(name string) string {
	clean := filepath.Clean("/" + strings.TrimPrefix(name, "/"))
	return filepath.Join(l.base, clean)
}

func (l *LocalFS) dirMode() os.FileMode {
	if l.public {
		return 0755
	}
	return 0700
}

func (l *LocalFS) fileMode() os.FileMode {
	if l.public {
		return 0644
	}
	return 0600
}

func toMetadata(fi os.FileInfo) dav.Metadata {
	m := dav.Metadata{
		Size:       fi.Size(),
		Modified:   fi.ModTime(),
		Created:    fi.ModTime(),
		IsDir:      fi.IsDir(),
		IsSymlink:  fi.Mode()&os.ModeSymlink != 0,
		Executable: !fi.IsDir() && fi.Mode()&0100 != 0,
	}
	m.ETagSource = etagSource(fi)
	return m
}

func (l *LocalFS) Metadata(ctx context.Context, name string) (dav.Metadata, error) {
	fi, err := os.Stat(l.realPath(name))
	if err != nil {
		return dav.Metadata{}, wrapErr(err)
	}
	return toMetadata(fi), nil
}

func (l *LocalFS) SymlinkMetadata(ctx context.Context, name string) (dav.Metadata, error) {
	fi, err := os.Lstat(l.realPath(name))
	if err != nil {
		return dav.Metadata{}, wrapErr(err)
	}
	return toMetadata(fi), nil
}

type dirIterator struct {
	entries []os.DirEntry
	i       int
}

func (it *dirIterator) Next(ctx context.Context) (dav.DirEntry, error) {
	if it.i >= len(it.entries) {
		return dav.DirEntry{}, io.EOF
	}
	de := it.entries[it.i]
	it.i++
	fi, err := de.Info()
	if err != nil {
		return dav.DirEntry{}, wrapErr(err)
	}
	return dav.DirEntry{Name: de.Name(), Meta: toMetadata(fi)}, nil
}

func (it *dirIterator) Close() error { return nil }

func (l *LocalFS) ReadDir(ctx context.Context, name string) (dav.DirIterator, error) {
	entries, err := os.ReadDir(l.realPath(name))
	if err != nil {
		return nil, wrapErr(err)
	}
	return &dirIterator{entries: entries}, nil
}

type handle struct {
	f *os.File
}

func (l *LocalFS) Open(ctx context.Context, name string, opts dav.OpenOptions) (dav.FileHandle, error) {
	flag := 0
	switch {
	case opts.Read && opts.Write:
		flag = os.O_RDWR
	case opts.Write:
		flag = os.O_WRONLY
	default:
		flag = os.O_RDONLY
	}
	if opts.Append {
		flag |= os.O_APPEND
	}
	if opts.Truncate {
		flag |= os.O_TRUNC
	}
	if opts.CreateNew {
		flag |= os.O_CREATE | os.O_EXCL
	} else if opts.Create {
		flag |= os.O_CREATE
	}

	f, err := os.OpenFile(l.realPath(name), flag, l.fileMode())
	if err != nil {
		return nil, wrapErr(err)
	}
	return &handle{f: f}, nil
}

func (h *handle) Read(p []byte) (int, error)  { return h.f.Read(p) }
func (h *handle) Write(p []byte) (int, error) { return h.f.Write(p) }
func (h *handle) Seek(offset int64, whence int) (int64, error) {
	return h.f.Seek(offset, whence)
}
func (h *handle) Close() error { return h.f.Close() }

func (h *handle) Metadata(ctx context.Context) (dav.Metadata, error) {
	fi, err := h.f.Stat()
	if err != nil {
		return dav.Metadata{}, wrapErr(err)
	}
	return toMetadata(fi), nil
}

func (l *LocalFS) CreateDir(ctx context.Context, name string) error {
	return wrapErr(os.Mkdir(l.realPath(name), l.dirMode()))
}

func (l *LocalFS) RemoveFile(ctx context.Context, name string) error {
	return wrapErr(os.Remove(l.realPath(name)))
}

func (l *LocalFS) RemoveDir(ctx context.Context, name string) error {
	return wrapErr(os.Remove(l.realPath(name)))
}

func (l *LocalFS) Rename(ctx context.Context, oldName, newName string) error {
	return wrapErr(os.Rename(l.realPath(oldName), l.realPath(newName)))
}

func (l *LocalFS) Copy(ctx context.Context, src, dst string) error {
	fi, err := os.Stat(l.realPath(src))
	if err != nil {
		return wrapErr(err)
	}
	if fi.IsDir() {
		return wrapErr(os.Mkdir(l.realPath(dst), l.dirMode()))
	}
	in, err := os.Open(l.realPath(src))
	if err != nil {
		return wrapErr(err)
	}
	defer in.Close()
	out, err := os.OpenFile(l.realPath(dst), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, l.fileMode())
	if err != nil {
		return wrapErr(err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return wrapErr(err)
	}
	return nil
}

// HaveProps, PatchProps, GetProps and GetProp implement the dead property
// store as a sidecar file per resource (name + ".davprops"), a plain
// analogue of the extended-attribute store localfs.rs uses on platforms
// that support xattrs; see DESIGN.md for why this engine uses a sidecar
// file instead of xattrs (portability across the stdlib's build targets).
func (l *LocalFS) HaveProps(ctx context.Context, name string) bool {
	_, err := os.Stat(l.propsPath(name))
	return err == nil
}

func (l *LocalFS) propsPath(name string) string {
	return l.realPath(name) + ".davprops"
}

func (l *LocalFS) PatchProps(ctx context.Context, name string, ops []dav.PropPatchOp) ([]dav.PropPatchResult, error) {
	props, _ := readProps(l.propsPath(name))
	if props == nil {
		props = map[dav.PropName]string{}
	}
	results := make([]dav.PropPatchResult, 0, len(ops))
	for _, op := range ops {
		if op.Remove {
			delete(props, op.Prop.Name)
		} else {
			props[op.Prop.Name] = op.Prop.Value
		}
		results = append(results, dav.PropPatchResult{Name: op.Prop.Name})
	}
	if err := writeProps(l.propsPath(name), props); err != nil {
		return nil, err
	}
	return results, nil
}

func (l *LocalFS) GetProps(ctx context.Context, name string, withContent bool) ([]dav.DeadProperty, error) {
	props, err := readProps(l.propsPath(name))
	if err != nil {
		return nil, nil
	}
	out := make([]dav.DeadProperty, 0, len(props))
	for k, v := range props {
		dp := dav.DeadProperty{Name: k}
		if withContent {
			dp.Value = v
		}
		out = append(out, dp)
	}
	return out, nil
}

func (l *LocalFS) GetProp(ctx context.Context, name string, prop dav.PropName) (dav.DeadProperty, bool, error) {
	props, err := readProps(l.propsPath(name))
	if err != nil {
		return dav.DeadProperty{}, false, nil
	}
	v, ok := props[prop]
	if !ok {
		return dav.DeadProperty{}, false, nil
	}
	return dav.DeadProperty{Name: prop, Value: v}, true, nil
}

func (l *LocalFS) Quota(ctx context.Context) (int64, *int64, error) {
	var used int64
	err := filepath.Walk(l.base, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			used += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, nil, wrapErr(err)
	}
	return used, nil, nil
}

func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case os.IsNotExist(err):
		return dav.ErrorNotFound.WithCause(err)
	case os.IsPermission(err):
		return dav.ErrorForbidden.WithCause(err)
	case os.IsExist(err):
		return dav.ErrorConflict.WithCause(err)
	default:
		return err
	}
}
