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

// Package davengine_test exercises the engine end to end over an httptest
// server, the way a real WebDAV client would, rather than calling handler
// methods directly. It lives in an external package (not davengine) so it
// can import memfs and locksystem, both of which import davengine itself.
package davengine_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dav "github.com/nmathewson/davengine"
	"github.com/nmathewson/davengine/locksystem"
	"github.com/nmathewson/davengine/memfs"
)

func newTestServer() *httptest.Server {
	h := dav.New(memfs.New(), locksystem.New())
	return httptest.NewServer(h)
}

func do(t *testing.T, srv *httptest.Server, method, path string, body string, headers map[string]string) *http.Response {
	t.Helper()
	var r *http.Request
	var err error
	if body != "" {
		r, err = http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	} else {
		r, err = http.NewRequest(method, srv.URL+path, nil)
	}
	require.NoError(t, err)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(r)
	require.NoError(t, err)
	return resp
}

// 1: OPTIONS advertises class 1/2 compliance.
func TestOptionsAdvertisesClass2(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp := do(t, srv, http.MethodOptions, "/", "", nil)
	defer resp.Body.Close()

	assert.Equal(t, "1, 2", resp.Header.Get("DAV"))
	assert.Contains(t, resp.Header.Get("Allow"), "PROPFIND")
}

// 2: MKCOL, then PUT a file into the new collection, then GET it back.
func TestMkcolPutGetRoundTrips(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp := do(t, srv, "MKCOL", "/docs/", "", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, srv, http.MethodPut, "/docs/hello.txt", "hello world", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/docs/hello.txt", "", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	buf := make([]byte, 64)
	n, _ := resp.Body.Read(buf)
	assert.Equal(t, "hello world", string(buf[:n]))
}

// 3: PROPFIND on a freshly created file returns its live properties,
// including the Win32 extension properties (client-compatibility lie).
func TestPropfindReturnsLiveAndWin32Props(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp := do(t, srv, http.MethodPut, "/note.txt", "hi", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := `<?xml version="1.0"?>
<D:propfind xmlns:D="DAV:" xmlns:Z="urn:schemas-microsoft-com:">
  <D:prop>
    <D:getetag/>
    <D:resourcetype/>
    <Z:Win32FileAttributes/>
  </D:prop>
</D:propfind>`
	resp = do(t, srv, "PROPFIND", "/note.txt", body, map[string]string{
		"Depth":        "0",
		"Content-Type": "application/xml",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusMultiStatus, resp.StatusCode)

	buf := make([]byte, 4096)
	n, _ := resp.Body.Read(buf)
	text := string(buf[:n])
	assert.Contains(t, text, "getetag")
	assert.Contains(t, text, "Win32FileAttributes")
	assert.Contains(t, text, "200 OK")
}

// 4: LOCK a file, PUT into it with the returned lock token, then UNLOCK.
func TestLockPutUnlock(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp := do(t, srv, http.MethodPut, "/locked.txt", "v1", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	lockBody := `<?xml version="1.0"?>
<D:lockinfo xmlns:D="DAV:">
  <D:lockscope><D:exclusive/></D:lockscope>
  <D:locktype><D:write/></D:locktype>
  <D:owner><D:href>mailto:student@example.com</D:href></D:owner>
</D:lockinfo>`
	resp = do(t, srv, "LOCK", "/locked.txt", lockBody, map[string]string{
		"Content-Type": "application/xml",
		"Timeout":      "Second-60",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := resp.Header.Get("Lock-Token")
	resp.Body.Close()
	require.NotEmpty(t, token)

	resp = do(t, srv, http.MethodPut, "/locked.txt", "v2", map[string]string{
		"If": "(" + token + ")",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, srv, "UNLOCK", "/locked.txt", "", map[string]string{
		"Lock-Token": token,
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

// 5: MOVE a file to a new path.
func TestMoveRelocatesResource(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp := do(t, srv, http.MethodPut, "/a.txt", "content", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, srv, "MOVE", "/a.txt", "", map[string]string{
		"Destination": srv.URL + "/b.txt",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/a.txt", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/b.txt", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// MOVE/COPY must reject a destination inside the source collection, since
// materializing it would recurse into itself forever.
func TestMoveIntoOwnSubtreeIsForbidden(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp := do(t, srv, "MKCOL", "/col/", "", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, srv, "MOVE", "/col/", "", map[string]string{
		"Destination": srv.URL + "/col/sub/",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

// 6a: DELETE with Depth:0 on a non-empty collection removes only the
// collection entry itself, leaving its children behind.
func TestDeleteDepthZeroIsNotRecursive(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp := do(t, srv, "MKCOL", "/col2/", "", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = do(t, srv, http.MethodPut, "/col2/child.txt", "x", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, srv, http.MethodDelete, "/col2/", "", map[string]string{"Depth": "0"})
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/col2/child.txt", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// 6b: DELETE without Depth (defaults to infinity) removes the collection
// and everything under it.
func TestDeleteDefaultDepthIsRecursive(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp := do(t, srv, "MKCOL", "/col3/", "", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = do(t, srv, http.MethodPut, "/col3/child.txt", "x", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, srv, http.MethodDelete, "/col3/", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/col3/child.txt", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// PROPPATCH must reject an attempt to write a derived live property
// (getetag) with 403, and then write nothing else: displayname, which on
// its own would go to dead storage, is reported as 424 Failed Dependency.
func TestProppatchRejectsLivePropertyAndFailsTheRest(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp := do(t, srv, http.MethodPut, "/p.txt", "x", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := `<?xml version="1.0"?>
<D:propertyupdate xmlns:D="DAV:">
  <D:set>
    <D:prop>
      <D:getetag>bogus</D:getetag>
      <D:displayname>My File</D:displayname>
    </D:prop>
  </D:set>
</D:propertyupdate>`
	resp = do(t, srv, "PROPPATCH", "/p.txt", body, map[string]string{"Content-Type": "application/xml"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusMultiStatus, resp.StatusCode)

	buf := make([]byte, 4096)
	n, _ := resp.Body.Read(buf)
	text := string(buf[:n])
	assert.Contains(t, text, "403 Forbidden")
	assert.Contains(t, text, "424 Failed Dependency")
}

// A weak ETag in If-Match must never satisfy a strong-validator match.
func TestIfMatchRejectsWeakEtag(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp := do(t, srv, http.MethodPut, "/w.txt", "v1", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/w.txt", "", map[string]string{
		"If-Match": `W/"anything"`,
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
}
