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

package davengine

import (
	"context"
	"io"
	"time"
)

// Metadata describes a resource's backend-reported state, the basis for
// every live property and for ETag derivation.
type Metadata struct {
	Size                              int64
	Created, Modified, StatusChanged  time.Time
	IsDir, IsSymlink, Executable       bool
	// ETagSource is an opaque, backend-chosen string folded into the
	// derived ETag in addition to size/mtime (an inode hash on backends
	// that have one, empty otherwise). See DESIGN.md for the platform
	// note this preserves from the source implementation.
	ETagSource string
}

// OpenOptions mirror the backend contract's open flags (§6).
type OpenOptions struct {
	Read, Write, Append, Truncate, Create, CreateNew bool
}

// FileHandle is an open reference to a file for reading or writing.
type FileHandle interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer
	Metadata(ctx context.Context) (Metadata, error)
}

// PropName identifies a property by namespace and local name.
type PropName struct {
	Space, Local string
}

func (p PropName) String() string {
	if p.Space == "" {
		return p.Local
	}
	return p.Space + ":" + p.Local
}

// DeadProperty is an opaque name/value/XML triple a backend stores
// verbatim against a resource.
type DeadProperty struct {
	Name  PropName
	Value string // innerXML, preserved verbatim
}

// PropPatchOp is one PROPPATCH instruction: set or remove a single
// property, in document order.
type PropPatchOp struct {
	Remove bool
	Prop   DeadProperty
}

// PropPatchResult reports the outcome of one patched property.
type PropPatchResult struct {
	Name PropName
	Err  error // nil on success
}

// DirEntry is one entry yielded while enumerating a collection.
type DirEntry struct {
	Name string
	Meta Metadata
}

// DirIterator is a lazy stream of directory entries, so PROPFIND can
// begin flushing <response> elements before an entire collection has
// been read (the streaming-backpressure contract of §4.4/§9).
type DirIterator interface {
	// Next returns the next entry, or io.EOF when exhausted.
	Next(ctx context.Context) (DirEntry, error)
	Close() error
}

// FileSystem is the abstract backend the engine mutates. Every method
// takes a context for cancellation; no method takes a per-request
// credentials value. Implementations: memfs (in-memory, for tests
// and Class-1/2 compliance smoke tests) and localfs (disk-backed).
type FileSystem interface {
	Metadata(ctx context.Context, name string) (Metadata, error)
	SymlinkMetadata(ctx context.Context, name string) (Metadata, error)
	ReadDir(ctx context.Context, name string) (DirIterator, error)
	Open(ctx context.Context, name string, opts OpenOptions) (FileHandle, error)

	CreateDir(ctx context.Context, name string) error
	RemoveFile(ctx context.Context, name string) error
	RemoveDir(ctx context.Context, name string) error
	Rename(ctx context.Context, oldName, newName string) error
	Copy(ctx context.Context, src, dst string) error

	HaveProps(ctx context.Context, name string) bool
	PatchProps(ctx context.Context, name string, ops []PropPatchOp) ([]PropPatchResult, error)
	GetProps(ctx context.Context, name string, withContent bool) ([]DeadProperty, error)
	GetProp(ctx context.Context, name string, prop PropName) (DeadProperty, bool, error)

	Quota(ctx context.Context) (used int64, total *int64, err error)
}
