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
	"net/http"

	"github.com/nmathewson/davengine/cond"
	"github.com/nmathewson/davengine/davheader"
	"github.com/nmathewson/davengine/davpath"
	"github.com/nmathewson/davengine/davxml"
)

// handleCopyMove implements both COPY (RFC 4918 §9.8) and MOVE (§9.9),
// generalizing the teacher's handleCopyOrMove (a single CopyTo call) into
// an explicit per-entry tree walk so partial failures under a collection
// source aggregate into a 207 body (§4.6) instead of aborting the whole
// operation, matching DELETE's aggregation contract.
func (s *WebDAV) handleCopyMove(w http.ResponseWriter, r *http.Request, src davpath.Path, ifTag *cond.IfTag, move bool, depth davheader.Depth) error {
	if move {
		if err := s.checkWrite(src, ifTag, true); err != nil {
			return err
		}
	}

	dhdr := r.Header.Get("Destination")
	if dhdr == "" {
		return ErrorBadDest
	}
	dst, err := davpath.DecodeDestination(dhdr, r.Host, s.cfg.Prefix)
	if err != nil {
		return ErrorBadDest.WithCause(err)
	}
	if dst.Equal(src) {
		return ErrorSameFile
	}
	// A destination inside the source collection would have CreateDir(dst)
	// materialize a fresh child that ReadDir(src) then enumerates and
	// recurses into, recursing forever. Reject it up front, the same
	// guard the original's walk applies at every level (source == topdest).
	if _, ok := davpath.Included(dst.String(), src.String(), -1); ok {
		return ErrorForbidden
	}
	if err := s.checkWrite(dst, ifTag, true); err != nil {
		return err
	}

	overwrite := davheader.ParseOverwrite(r.Header.Get("Overwrite"))
	_, dstErr := s.fs.Metadata(r.Context(), dst.String())
	dstExists := dstErr == nil
	if dstExists && !overwrite {
		return ErrorDestExists
	}

	srcMeta, err := s.fs.Metadata(r.Context(), src.String())
	if err != nil {
		return wrapFsErr(err)
	}

	// MOVE is always effectively depth-infinity (RFC 4918 §9.9.3); COPY
	// on a collection defaults to infinity unless Depth: 0 was given.
	deep := move || depth != davheader.Depth0

	var failures []removeFailure
	if !srcMeta.IsDir || !deep {
		failures = s.copyOrMoveOne(r.Context(), src, dst, move)
	} else {
		failures = s.copyOrMoveTree(r.Context(), src, dst, move)
	}

	if move {
		s.ls.Delete(src.String())
	}

	if len(failures) == 0 {
		if dstExists {
			w.WriteHeader(http.StatusNoContent)
		} else {
			w.WriteHeader(http.StatusCreated)
		}
		return nil
	}

	mw := davxml.NewMultiStatusWriter(w, nil)
	for _, f := range failures {
		if err := mw.WriteResponse(davxml.Response{Href: f.path.Href(), Status: statusLine(f.err)}); err != nil {
			return err
		}
	}
	return mw.Close()
}

func (s *WebDAV) copyOrMoveOne(ctx context.Context, src, dst davpath.Path, move bool) []removeFailure {
	var err error
	if move {
		err = s.fs.Rename(ctx, src.String(), dst.String())
	} else {
		err = s.fs.Copy(ctx, src.String(), dst.String())
	}
	if err != nil {
		return []removeFailure{{src, wrapFsErr(err)}}
	}
	return nil
}

// copyOrMoveTree walks src by plain recursive calls on the calling
// goroutine, mirroring each entry under dst and continuing past
// individual failures (the "skip and continue" contract).
func (s *WebDAV) copyOrMoveTree(ctx context.Context, src, dst davpath.Path, move bool) []removeFailure {
	if err := s.fs.CreateDir(ctx, dst.String()); err != nil {
		if !isConflictExists(err) {
			return []removeFailure{{src, wrapFsErr(err)}}
		}
	}

	it, err := s.fs.ReadDir(ctx, src.String())
	if err != nil {
		return []removeFailure{{src, wrapFsErr(err)}}
	}
	defer it.Close()

	var failures []removeFailure
	for {
		ent, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			failures = append(failures, removeFailure{src, wrapFsErr(err)})
			break
		}
		if s.skipName(ent.Name) {
			continue
		}
		childSrc := src.Push(ent.Name)
		childDst := dst.Push(ent.Name)
		if ent.Meta.IsDir {
			childSrc = childSrc.AddSlash()
			childDst = childDst.AddSlash()
			failures = append(failures, s.copyOrMoveTree(ctx, childSrc, childDst, move)...)
		} else {
			failures = append(failures, s.copyOrMoveOne(ctx, childSrc, childDst, move)...)
		}
	}

	if move && len(failures) == 0 {
		if err := s.fs.RemoveDir(ctx, src.String()); err != nil {
			failures = append(failures, removeFailure{src, wrapFsErr(err)})
		}
	}
	return failures
}

func isConflictExists(err error) bool {
	e := wrapFsErr(err)
	ee, ok := e.(Error)
	return ok && ee.code == ErrorConflict.code
}
