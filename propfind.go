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

	"github.com/nmathewson/davengine/davheader"
	"github.com/nmathewson/davengine/davpath"
	"github.com/nmathewson/davengine/davxml"
)

func wrapFsErr(err error) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(Error); ok {
		return e
	}
	return ioErrorStatus(err)
}

func (s *WebDAV) readLimitedBody(r *http.Request) ([]byte, error) {
	limit := s.cfg.MaxBufferedBody
	if limit <= 0 {
		limit = 1 << 20
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, ErrorXMLRead.WithCause(err)
	}
	if int64(len(data)) > limit {
		return nil, ErrorTooLarge
	}
	return data, nil
}

// handlePropfind implements the PROPFIND method (RFC 4918 §9.1),
// generalizing the teacher's doPropfind (a single LookupSubtree call
// materializing the whole result set) into a streaming walk: each
// resource's <response> is written and flushed as soon as it is
// computed, never holding more than one entry's property set at a time
// (the backpressure contract of §4.4/§9).
func (s *WebDAV) handlePropfind(w http.ResponseWriter, r *http.Request, p davpath.Path, depth davheader.Depth) error {
	data, err := s.readLimitedBody(r)
	if err != nil {
		return err
	}
	req, err := davxml.ParsePropFind(data)
	if err != nil {
		return ErrorBadPropfind.WithCause(err)
	}

	meta, err := s.fs.Metadata(r.Context(), p.String())
	if err != nil {
		return wrapFsErr(err)
	}

	mw := davxml.NewMultiStatusWriter(w, nil)

	initialDepth := -1
	switch depth {
	case davheader.Depth0:
		initialDepth = 0
	case davheader.Depth1:
		initialDepth = 1
	}

	err = s.walkPropfind(r.Context(), mw, p, meta, req, initialDepth)
	if cerr := mw.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *WebDAV) walkPropfind(ctx context.Context, mw *davxml.MultiStatusWriter, p davpath.Path, meta Metadata, req davxml.PropFindRequest, depthLeft int) error {
	resp, err := s.buildPropResponse(ctx, p, meta, req)
	if err != nil {
		return err
	}
	if err := mw.WriteResponse(resp); err != nil {
		return err
	}
	if !meta.IsDir || depthLeft == 0 {
		return nil
	}

	it, err := s.fs.ReadDir(ctx, p.String())
	if err != nil {
		return wrapFsErr(err)
	}
	defer it.Close()

	childDepth := depthLeft
	if childDepth > 0 {
		childDepth--
	}
	for {
		ent, err := it.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return wrapFsErr(err)
		}
		if s.skipName(ent.Name) {
			continue
		}
		child := p.Push(ent.Name)
		if ent.Meta.IsDir {
			child = child.AddSlash()
		}
		if err := s.walkPropfind(ctx, mw, child, ent.Meta, req, childDepth); err != nil {
			return err
		}
	}
}

func (s *WebDAV) skipName(name string) bool {
	if s.cfg.HideDotFiles && len(name) > 0 && name[0] == '.' {
		return true
	}
	return false
}

func (s *WebDAV) buildPropResponse(ctx context.Context, p davpath.Path, meta Metadata, req davxml.PropFindRequest) (davxml.Response, error) {
	resp := davxml.Response{Href: p.Href()}

	if req.PropName {
		names := s.listAllPropNames(ctx, p, meta)
		props := make([]davxml.Prop, len(names))
		for i, n := range names {
			props[i] = davxml.Prop{Name: toXMLName(n)}
		}
		resp.PropStats = []davxml.PropStat{{Status: "HTTP/1.1 200 OK", Props: props}}
		return resp, nil
	}

	var names []PropName
	switch {
	case req.AllProp:
		names = s.allpropResponseNames(ctx, p)
		for _, n := range req.Include {
			names = append(names, PropName{Space: n.Space, Local: n.Local})
		}
	default:
		for _, n := range req.Props {
			names = append(names, PropName{Space: n.Space, Local: n.Local})
		}
	}

	var found, missing []davxml.Prop
	for _, n := range names {
		if prop, ok := s.resolveProp(ctx, p, meta, n); ok {
			found = append(found, prop)
		} else {
			missing = append(missing, davxml.Prop{Name: toXMLName(n)})
		}
	}
	if len(found) > 0 {
		resp.PropStats = append(resp.PropStats, davxml.PropStat{Status: "HTTP/1.1 200 OK", Props: found})
	}
	if len(missing) > 0 {
		resp.PropStats = append(resp.PropStats, davxml.PropStat{Status: "HTTP/1.1 404 Not Found", Props: missing})
	}
	return resp, nil
}
