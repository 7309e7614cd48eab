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

package localfs

import (
	"context"
	"io"
	"testing"

	dav "github.com/nmathewson/davengine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrips(t *testing.T) {
	fs := New(t.TempDir(), false)
	ctx := context.Background()

	fh, err := fs.Open(ctx, "/a.txt", dav.OpenOptions{Write: true, Create: true})
	require.NoError(t, err)
	_, err = fh.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, fh.Close())

	rh, err := fs.Open(ctx, "/a.txt", dav.OpenOptions{Read: true})
	require.NoError(t, err)
	buf, err := io.ReadAll(rh)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(buf))
}

func TestMetadataNotFound(t *testing.T) {
	fs := New(t.TempDir(), false)
	_, err := fs.Metadata(context.Background(), "/missing.txt")
	assert.ErrorIs(t, err, dav.ErrorNotFound)
}

func TestCreateDirAndReadDir(t *testing.T) {
	fs := New(t.TempDir(), false)
	ctx := context.Background()

	require.NoError(t, fs.CreateDir(ctx, "/sub"))
	fh, err := fs.Open(ctx, "/sub/f.txt", dav.OpenOptions{Write: true, Create: true})
	require.NoError(t, err)
	fh.Close()

	it, err := fs.ReadDir(ctx, "/sub")
	require.NoError(t, err)
	defer it.Close()

	ent, err := it.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "f.txt", ent.Name)

	_, err = it.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestPatchGetAndRemoveProps(t *testing.T) {
	fs := New(t.TempDir(), false)
	ctx := context.Background()
	fh, _ := fs.Open(ctx, "/a.txt", dav.OpenOptions{Write: true, Create: true})
	fh.Close()

	assert.False(t, fs.HaveProps(ctx, "/a.txt"))

	name := dav.PropName{Space: "urn:test", Local: "color"}
	_, err := fs.PatchProps(ctx, "/a.txt", []dav.PropPatchOp{{Prop: dav.DeadProperty{Name: name, Value: "blue"}}})
	require.NoError(t, err)
	assert.True(t, fs.HaveProps(ctx, "/a.txt"))

	dp, ok, err := fs.GetProp(ctx, "/a.txt", name)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "blue", dp.Value)

	_, err = fs.PatchProps(ctx, "/a.txt", []dav.PropPatchOp{{Remove: true, Prop: dav.DeadProperty{Name: name}}})
	require.NoError(t, err)
	assert.False(t, fs.HaveProps(ctx, "/a.txt"))
}

func TestRenameAndCopy(t *testing.T) {
	fs := New(t.TempDir(), false)
	ctx := context.Background()
	fh, _ := fs.Open(ctx, "/a.txt", dav.OpenOptions{Write: true, Create: true})
	fh.Write([]byte("x"))
	fh.Close()

	require.NoError(t, fs.Copy(ctx, "/a.txt", "/b.txt"))
	metaB, err := fs.Metadata(ctx, "/b.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 1, metaB.Size)

	require.NoError(t, fs.Rename(ctx, "/a.txt", "/c.txt"))
	_, err = fs.Metadata(ctx, "/a.txt")
	assert.ErrorIs(t, err, dav.ErrorNotFound)
}
