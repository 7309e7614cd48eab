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
	"net/http"
	"strings"

	"github.com/nmathewson/davengine/cond"
	"github.com/nmathewson/davengine/davheader"
	"github.com/nmathewson/davengine/davpath"
	"github.com/nmathewson/davengine/davxml"
)

func stripAngles(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '<' && s[len(s)-1] == '>' {
		return s[1 : len(s)-1]
	}
	return s
}

// handleLock implements LOCK (RFC 4918 §9.10), generalizing the
// teacher's doLock (exclusive-only, always-create) into both lock
// creation and lock-refresh forms, and lock-null resource creation when
// the target does not yet exist.
func (s *WebDAV) handleLock(w http.ResponseWriter, r *http.Request, p davpath.Path, depth davheader.Depth, ifTag *cond.IfTag) error {
	data, err := s.readLimitedBody(r)
	if err != nil {
		return err
	}
	req, err := davxml.ParseLock(data)
	if err != nil {
		return ErrorBadLock.WithCause(err)
	}

	timeouts, _ := davheader.ParseTimeout(r.Header.Get("Timeout"))
	var timeout davheader.Timeout
	if len(timeouts) > 0 {
		timeout = timeouts[0]
	}

	if req.Refresh {
		if ifTag == nil {
			return ErrorBadLock
		}
		token, ok := ifTag.GetSingleState()
		if !ok {
			return ErrorBadLock
		}
		l, err := s.ls.Refresh(token, timeout.Duration, timeout.Infinite)
		if err != nil {
			return ErrorLocked.WithCause(err)
		}
		return s.sendLockDiscovery(w, l.Token, p, false)
	}

	if _, err := s.fs.Metadata(r.Context(), p.Parent().String()); err != nil {
		return ErrorMissingParent.WithCause(err)
	}

	_, existErr := s.fs.Metadata(r.Context(), p.String())
	created := existErr != nil

	l, err := s.ls.Lock(p.String(), LockOptions{
		OwnerXML: req.OwnerXML,
		Timeout:  timeout.Duration,
		Shared:   req.Shared,
		Deep:     depth != davheader.Depth0,
	})
	if err != nil {
		return err
	}

	if created {
		fh, err := s.fs.Open(r.Context(), p.String(), OpenOptions{Write: true, Create: true})
		if err != nil {
			s.ls.Unlock(p.String(), l.Token)
			return wrapFsErr(err)
		}
		fh.Close()
	}

	w.Header().Set("Lock-Token", "<"+l.Token+">")
	return s.sendLockDiscovery(w, l.Token, p, created)
}

func (s *WebDAV) sendLockDiscovery(w http.ResponseWriter, token string, p davpath.Path, created bool) error {
	if created {
		w.WriteHeader(http.StatusCreated)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	return davxml.SendProp(w, davxml.Prop{
		Name:  davxml.PropName{Space: davNS, Local: "lockdiscovery"},
		Inner: s.lockDiscoveryXML(p.String()),
	})
}

// handleUnlock implements UNLOCK (RFC 4918 §9.11).
func (s *WebDAV) handleUnlock(w http.ResponseWriter, r *http.Request, p davpath.Path) error {
	token := stripAngles(r.Header.Get("Lock-Token"))
	if token == "" {
		return ErrorBadLock
	}
	if err := s.ls.Unlock(p.String(), token); err != nil {
		return ErrorBadLock.WithCause(err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
