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

package memfs

import (
	"context"
	"io"
	"testing"

	dav "github.com/nmathewson/davengine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDirAndFile(t *testing.T) {
	fs := New()
	ctx := context.Background()

	require.NoError(t, fs.CreateDir(ctx, "/a"))
	fh, err := fs.Open(ctx, "/a/b.txt", dav.OpenOptions{Write: true, Create: true})
	require.NoError(t, fh.Close())
	require.NoError(t, err)

	meta, err := fs.Metadata(ctx, "/a/b.txt")
	require.NoError(t, err)
	assert.False(t, meta.IsDir)
}

func TestOpenMissingWithoutCreateFails(t *testing.T) {
	fs := New()
	_, err := fs.Open(context.Background(), "/nope.txt", dav.OpenOptions{Read: true})
	assert.ErrorIs(t, err, dav.ErrorNotFound)
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	fs := New()
	ctx := context.Background()

	wh, err := fs.Open(ctx, "/f.txt", dav.OpenOptions{Write: true, Create: true})
	require.NoError(t, err)
	_, err = wh.Write([]byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, wh.Close())

	rh, err := fs.Open(ctx, "/f.txt", dav.OpenOptions{Read: true})
	require.NoError(t, err)
	buf, err := io.ReadAll(rh)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(buf))
}

func TestTruncateOnReopen(t *testing.T) {
	fs := New()
	ctx := context.Background()

	wh, _ := fs.Open(ctx, "/f.txt", dav.OpenOptions{Write: true, Create: true})
	wh.Write([]byte("stale"))
	wh.Close()

	wh2, err := fs.Open(ctx, "/f.txt", dav.OpenOptions{Write: true, Truncate: true})
	require.NoError(t, err)
	wh2.Close()

	meta, err := fs.Metadata(ctx, "/f.txt")
	require.NoError(t, err)
	assert.Zero(t, meta.Size)
}

func TestReadDirListsOnlyDirectChildren(t *testing.T) {
	fs := New()
	ctx := context.Background()

	require.NoError(t, fs.CreateDir(ctx, "/dir"))
	require.NoError(t, fs.CreateDir(ctx, "/dir/sub"))
	fh, _ := fs.Open(ctx, "/dir/file.txt", dav.OpenOptions{Write: true, Create: true})
	fh.Close()
	fh2, _ := fs.Open(ctx, "/dir/sub/nested.txt", dav.OpenOptions{Write: true, Create: true})
	fh2.Close()

	it, err := fs.ReadDir(ctx, "/dir")
	require.NoError(t, err)
	defer it.Close()

	var names []string
	for {
		ent, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, ent.Name)
	}
	assert.ElementsMatch(t, []string{"sub", "file.txt"}, names)
}

func TestRemoveDirRefusesNonEmpty(t *testing.T) {
	fs := New()
	ctx := context.Background()
	require.NoError(t, fs.CreateDir(ctx, "/dir"))
	fh, _ := fs.Open(ctx, "/dir/file.txt", dav.OpenOptions{Write: true, Create: true})
	fh.Close()

	err := fs.RemoveDir(ctx, "/dir")
	assert.Error(t, err)
}

func TestRenameMovesEntry(t *testing.T) {
	fs := New()
	ctx := context.Background()
	fh, _ := fs.Open(ctx, "/a.txt", dav.OpenOptions{Write: true, Create: true})
	fh.Write([]byte("data"))
	fh.Close()

	require.NoError(t, fs.Rename(ctx, "/a.txt", "/b.txt"))
	_, err := fs.Metadata(ctx, "/a.txt")
	assert.ErrorIs(t, err, dav.ErrorNotFound)
	meta, err := fs.Metadata(ctx, "/b.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 4, meta.Size)
}

func TestCopyDuplicatesDataAndProps(t *testing.T) {
	fs := New()
	ctx := context.Background()
	fh, _ := fs.Open(ctx, "/a.txt", dav.OpenOptions{Write: true, Create: true})
	fh.Write([]byte("data"))
	fh.Close()

	name := dav.PropName{Space: "urn:test", Local: "color"}
	_, err := fs.PatchProps(ctx, "/a.txt", []dav.PropPatchOp{{Prop: dav.DeadProperty{Name: name, Value: "red"}}})
	require.NoError(t, err)

	require.NoError(t, fs.Copy(ctx, "/a.txt", "/b.txt"))

	dp, ok, err := fs.GetProp(ctx, "/b.txt", name)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "red", dp.Value)

	// Mutating the destination's properties must not affect the source.
	_, err = fs.PatchProps(ctx, "/b.txt", []dav.PropPatchOp{{Remove: true, Prop: dav.DeadProperty{Name: name}}})
	require.NoError(t, err)
	_, ok, err = fs.GetProp(ctx, "/a.txt", name)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPatchAndGetProps(t *testing.T) {
	fs := New()
	ctx := context.Background()
	fh, _ := fs.Open(ctx, "/a.txt", dav.OpenOptions{Write: true, Create: true})
	fh.Close()

	assert.False(t, fs.HaveProps(ctx, "/a.txt"))

	name := dav.PropName{Space: "urn:test", Local: "label"}
	_, err := fs.PatchProps(ctx, "/a.txt", []dav.PropPatchOp{{Prop: dav.DeadProperty{Name: name, Value: "v1"}}})
	require.NoError(t, err)
	assert.True(t, fs.HaveProps(ctx, "/a.txt"))

	dps, err := fs.GetProps(ctx, "/a.txt", true)
	require.NoError(t, err)
	require.Len(t, dps, 1)
	assert.Equal(t, "v1", dps[0].Value)

	_, err = fs.PatchProps(ctx, "/a.txt", []dav.PropPatchOp{{Remove: true, Prop: dav.DeadProperty{Name: name}}})
	require.NoError(t, err)
	assert.False(t, fs.HaveProps(ctx, "/a.txt"))
}

func TestQuotaReflectsStoredBytes(t *testing.T) {
	fs := New()
	ctx := context.Background()
	fh, _ := fs.Open(ctx, "/a.txt", dav.OpenOptions{Write: true, Create: true})
	fh.Write([]byte("12345"))
	fh.Close()

	used, total, err := fs.Quota(ctx)
	require.NoError(t, err)
	assert.Nil(t, total)
	assert.EqualValues(t, 5, used)
}
