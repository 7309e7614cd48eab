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

import "time"

// DavLock is a lock record as exposed to lockdiscovery/supportedlock
// rendering and to the LOCK/UNLOCK handlers.
type DavLock struct {
	Token     string
	Path      string
	Principal string // opaque identity, may be empty
	OwnerXML  string // verbatim <owner> element content, may be empty
	Shared    bool
	Deep      bool // false = shallow (depth 0), true = infinite
	Created   time.Time
	Expiry    time.Time // zero means never expires
}

// Expired reports whether the lock's timeout has elapsed.
func (l DavLock) Expired(now time.Time) bool {
	return !l.Expiry.IsZero() && now.After(l.Expiry)
}

// LockOptions parameterize LockSystem.Lock.
type LockOptions struct {
	Principal string
	OwnerXML  string
	Timeout   time.Duration // 0 means "use the engine's default"
	Shared    bool
	Deep      bool
}

// LockSystem is the abstract lock backend the engine consults for every
// write operation. It is synchronous by contract (§5): the engine never
// holds its own mutex across a call into the FileSystem while holding a
// pending LockSystem operation, and LockSystem implementations must not
// block on unrelated I/O.
//
// A "fake" LockSystem that accepts every lock, records nothing, and
// passes every check is admissible — required to satisfy macOS/Windows
// clients that demand Class-2 advertisement without actually wanting
// enforcement; see locksystem.NewFakeLS.
type LockSystem interface {
	// Lock creates a new lock rooted at path. Conflicts (§4.5) are
	// reported as ErrorLocked.
	Lock(path string, opts LockOptions) (DavLock, error)
	// Unlock removes the named token. It is an error to unlock a token
	// that is not held at path.
	Unlock(path, token string) error
	// Refresh replaces the timeout of an existing lock, returning its
	// updated record. The token's path and shared/deep flags are
	// unchanged by a refresh. Unlike lock creation, an infinite request
	// at refresh time is honored as a true never-expiring lock rather
	// than clamped to the engine's maximum duration.
	Refresh(token string, timeout time.Duration, infinite bool) (DavLock, error)
	// Check reports whether the submitted tokens are sufficient to
	// perform a write at path (optionally deep), consulting principal
	// only when ignorePrincipal is false.
	Check(path string, tokens []string, deep bool, principal string, ignorePrincipal bool) error
	// Discover returns every active lock covering path (ancestors with
	// a deep lock, the node itself, and, if the caller wants it,
	// descendants — callers needing only "what covers this exact
	// path" pass includeDescendants=false).
	Discover(path string, includeDescendants bool) []DavLock
	// Delete removes every lock rooted at or under path (called after
	// a successful DELETE).
	Delete(path string)
}
