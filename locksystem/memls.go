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

// Package locksystem implements the engine's lock engine (C5): a
// path-keyed collection of exclusive/shared, shallow/deep locks with
// refresh, timeout, discovery, and conflict detection against arbitrary
// sub- and super-paths.
//
// The conflict-checking algorithm is grounded on dav-server-rs's
// memls.rs, which scans a flat map of locks under one mutex rather than
// maintaining an explicit tree (tree.rs's KeyMap); the teacher's
// lockmaster took the same flat-map shape. This package keeps that
// shape and generalizes the conflict rule to the shared/exclusive and
// shallow/deep matrix the specification requires — the teacher only
// ever created exclusive locks.
package locksystem

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	dav "github.com/nmathewson/davengine"
	"github.com/nmathewson/davengine/davpath"
)

// Clamps from §4.5: refresh/creation timeouts are bounded per scope
// class, and an Infinite request is clamped to the maximum rather than
// honored outright.
const (
	MaxExclusiveDuration = 600 * time.Second
	MaxSharedDuration    = 86400 * time.Second
)

type entry struct {
	dav.DavLock
}

// MemLS is an in-memory LockSystem. It is the engine's reference
// implementation and is suitable for production use by any backend
// that does not need locks to survive a process restart.
type MemLS struct {
	mu      sync.Mutex
	byToken map[string]*entry
}

var _ dav.LockSystem = (*MemLS)(nil)

// New returns a new, empty in-memory LockSystem.
func New() *MemLS {
	return &MemLS{byToken: make(map[string]*entry)}
}

func clampDuration(d time.Duration, shared bool) time.Duration {
	max := MaxExclusiveDuration
	if shared {
		max = MaxSharedDuration
	}
	if d <= 0 || d > max {
		return max
	}
	return d
}

// reapLocked removes expired locks. Callers must hold m.mu.
func (m *MemLS) reapLocked(now time.Time) {
	for tok, e := range m.byToken {
		if e.Expired(now) {
			delete(m.byToken, tok)
		}
	}
}

// overlaps reports whether the paths a (depth da) and b (depth db)
// overlap: either covers the other given its depth.
func overlaps(a string, da bool, b string, db bool) bool {
	aDepth := -1
	if !da {
		aDepth = 0
	}
	bDepth := -1
	if !db {
		bDepth = 0
	}
	if _, ok := davpath.Included(b, a, aDepth); ok {
		return true
	}
	if _, ok := davpath.Included(a, b, bDepth); ok {
		return true
	}
	return false
}

func (m *MemLS) Lock(path string, opts dav.LockOptions) (dav.DavLock, error) {
	path = clean(path)
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.reapLocked(now)

	for _, e := range m.byToken {
		if !overlaps(path, opts.Deep, e.Path, e.Deep) {
			continue
		}
		if e.Shared && opts.Shared {
			continue
		}
		return dav.DavLock{}, dav.ErrorLocked
	}

	dur := clampDuration(opts.Timeout, opts.Shared)
	l := dav.DavLock{
		Token:     "opaquetoken:" + uuid.NewString(),
		Path:      path,
		Principal: opts.Principal,
		OwnerXML:  opts.OwnerXML,
		Shared:    opts.Shared,
		Deep:      opts.Deep,
		Created:   now,
		Expiry:    now.Add(dur),
	}
	m.byToken[l.Token] = &entry{l}
	return l, nil
}

func (m *MemLS) Unlock(path, token string) error {
	path = clean(path)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reapLocked(time.Now())

	e, ok := m.byToken[token]
	if !ok || e.Path != path {
		return fmt.Errorf("davengine/locksystem: no such lock %q at %q", token, path)
	}
	delete(m.byToken, token)
	return nil
}

func (m *MemLS) Refresh(token string, timeout time.Duration, infinite bool) (dav.DavLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.reapLocked(now)

	e, ok := m.byToken[token]
	if !ok {
		return dav.DavLock{}, fmt.Errorf("davengine/locksystem: no such lock %q", token)
	}
	if infinite {
		e.Expiry = time.Time{}
	} else {
		e.Expiry = now.Add(clampDuration(timeout, e.Shared))
	}
	return e.DavLock, nil
}

func (m *MemLS) Check(path string, tokens []string, deep bool, principal string, ignorePrincipal bool) error {
	path = clean(path)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reapLocked(time.Now())

	held := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		held[t] = true
	}

	for _, e := range m.byToken {
		if !overlaps(path, deep, e.Path, e.Deep) {
			continue
		}
		if e.Shared {
			continue
		}
		if !held[e.Token] {
			return dav.ErrorLocked
		}
		if !ignorePrincipal && e.Principal != "" && e.Principal != principal {
			return dav.ErrorLocked
		}
	}
	return nil
}

func (m *MemLS) Discover(path string, includeDescendants bool) []dav.DavLock {
	path = clean(path)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reapLocked(time.Now())

	var out []dav.DavLock
	for _, e := range m.byToken {
		selfOrAncestor := func() bool {
			ancestorDepth := -1
			if !e.Deep {
				ancestorDepth = 0
			}
			_, ok := davpath.Included(path, e.Path, ancestorDepth)
			return ok
		}()
		if selfOrAncestor {
			out = append(out, e.DavLock)
			continue
		}
		if includeDescendants {
			if _, ok := davpath.Included(e.Path, path, -1); ok {
				out = append(out, e.DavLock)
			}
		}
	}
	return out
}

func (m *MemLS) Delete(path string) {
	path = clean(path)
	m.mu.Lock()
	defer m.mu.Unlock()
	for tok, e := range m.byToken {
		if _, ok := davpath.Included(e.Path, path, -1); ok {
			delete(m.byToken, tok)
		}
	}
}

func clean(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}
