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

package locksystem

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dav "github.com/nmathewson/davengine"
)

// fakeMaxTimeout mirrors fakels.rs's tm_limit: a generous but bounded
// grant, never the indefinite lock a real LockSystem would refuse to hand
// out.
const fakeMaxTimeout = 120 * time.Second

// FakeLS is a LockSystem that accepts every lock request, records
// nothing, and never reports a conflict. It exists for Windows/macOS
// WebDAV clients that refuse to mount read-write without Class 2
// (LOCK/UNLOCK) advertisement, but don't actually depend on locking being
// enforced, grounded on original_source/src/fakels.rs.
type FakeLS struct{}

var _ dav.LockSystem = FakeLS{}

// NewFakeLS returns a LockSystem that always grants, refreshes and
// releases locks without tracking any state.
func NewFakeLS() FakeLS { return FakeLS{} }

func fakeLimit(d time.Duration) time.Duration {
	if d <= 0 || d > fakeMaxTimeout {
		return fakeMaxTimeout
	}
	return d
}

// fakeToken packs the deep/shared flags into the token itself, the way
// fakels.rs does, since refresh has nowhere else to recover them from a
// system that stores no lock records.
func fakeToken(deep, shared bool) string {
	d, s := "0", "E"
	if deep {
		d = "I"
	}
	if shared {
		s = "S"
	}
	return "opaquetoken:" + uuid.NewString() + "/" + d + "/" + s
}

func (FakeLS) Lock(path string, opts dav.LockOptions) (dav.DavLock, error) {
	now := time.Now()
	dur := fakeLimit(opts.Timeout)
	return dav.DavLock{
		Token:     fakeToken(opts.Deep, opts.Shared),
		Path:      path,
		Principal: opts.Principal,
		OwnerXML:  opts.OwnerXML,
		Shared:    opts.Shared,
		Deep:      opts.Deep,
		Created:   now,
		Expiry:    now.Add(dur),
	}, nil
}

func (FakeLS) Unlock(path, token string) error { return nil }

func (FakeLS) Refresh(token string, timeout time.Duration, infinite bool) (dav.DavLock, error) {
	parts := strings.Split(token, "/")
	deep := len(parts) > 1 && parts[1] == "I"
	shared := len(parts) > 2 && parts[2] == "S"

	now := time.Now()
	expiry := now.Add(fakeLimit(timeout))
	if infinite {
		expiry = time.Time{}
	}
	return dav.DavLock{
		Token:   token,
		Shared:  shared,
		Deep:    deep,
		Created: now,
		Expiry:  expiry,
	}, nil
}

func (FakeLS) Check(path string, tokens []string, deep bool, principal string, ignorePrincipal bool) error {
	return nil
}

func (FakeLS) Discover(path string, includeDescendants bool) []dav.DavLock { return nil }

func (FakeLS) Delete(path string) {}
