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
	"github.com/nmathewson/davengine/davpath"
	"github.com/nmathewson/davengine/davxml"
)

// win32Props are the Microsoft extension properties the engine accepts
// and silently no-ops on PROPPATCH (the "deliberate client-compatibility
// lie" the specification's open questions call for): returning a
// Forbidden/Conflict here breaks Windows Explorer's WebDAV mini-redirector,
// which PROPPATCHes these on every save.
var win32Props = map[string]bool{
	"Win32CreationTime":     true,
	"Win32LastAccessTime":   true,
	"Win32LastModifiedTime": true,
	"Win32FileAttributes":   true,
}

// deadStorageLiveProps are the two DAV live properties the specification
// carves out as writable despite living in the DAV namespace: a PROPPATCH
// targeting either one is redirected into the backend's dead-property
// store instead of being rejected, so a client-supplied displayname or
// getcontentlanguage sticks and is returned on the next GET of the
// property.
var deadStorageLiveProps = map[string]bool{
	"displayname":        true,
	"getcontentlanguage": true,
}

// rejectedLiveProps are every other DAV/Apache/Microsoft-namespace
// property PROPPATCH must refuse with 403: they are derived from backend
// state at read time and have no independent storage to write into.
var rejectedLiveProps = map[string]bool{
	"resourcetype":          true,
	"getcontentlength":      true,
	"getcontenttype":        true,
	"getetag":               true,
	"getlastmodified":       true,
	"creationdate":          true,
	"supportedlock":         true,
	"lockdiscovery":         true,
	"quota-available-bytes": true,
	"quota-used-bytes":      true,
	"executable":            true,
}

// isLiveNamespace reports whether space is one of the three namespaces
// the live-property policy applies to (DAV, Apache mod_dav, Microsoft).
func isLiveNamespace(space string) bool {
	return space == davNS || space == "" || space == apacheNS || space == msNS
}

// handleProppatch implements PROPPATCH (RFC 4918 §9.2), generalizing the
// teacher's single PatchProp(set, remove map) call into the ordered
// op-list contract of §4.4 (PropPatchOp), and special-casing the Win32
// properties per the open-question decision above.
func (s *WebDAV) handleProppatch(w http.ResponseWriter, r *http.Request, p davpath.Path, ifTag *cond.IfTag) error {
	if err := s.checkWrite(p, ifTag, false); err != nil {
		return err
	}
	data, err := s.readLimitedBody(r)
	if err != nil {
		return err
	}
	ops, err := davxml.ParsePropPatch(data)
	if err != nil {
		return ErrorBadProppatch.WithCause(err)
	}

	if _, err := s.fs.Metadata(r.Context(), p.String()); err != nil {
		return wrapFsErr(err)
	}

	var backendOps []PropPatchOp
	var winResults []PropPatchResult
	var forbidden []davxml.Prop
	for _, op := range ops {
		name := PropName{Space: op.Name.Space, Local: op.Name.Local}
		if isWin32Prop(name.Local) {
			winResults = append(winResults, PropPatchResult{Name: name})
			continue
		}
		// Most DAV/Apache/Microsoft live properties are derived from
		// backend state and cannot be independently set; displayname and
		// getcontentlanguage are the one exception, redirected into dead
		// storage same as any client-defined property (spec.md §4.4).
		if isLiveNamespace(name.Space) && rejectedLiveProps[name.Local] && !deadStorageLiveProps[name.Local] {
			forbidden = append(forbidden, davxml.Prop{Name: toXMLName(name)})
			continue
		}
		backendOps = append(backendOps, PropPatchOp{
			Remove: op.Remove,
			Prop: DeadProperty{
				Name:  name,
				Value: valueOrInner(op),
			},
		})
	}

	// The patch is all-or-nothing: when any property is refused, nothing
	// is written and every other property is reported as 424.
	if len(forbidden) > 0 {
		for _, op := range backendOps {
			winResults = append(winResults, PropPatchResult{Name: op.Prop.Name})
		}
		for i := range winResults {
			winResults[i].Err = StatusError(StatusFailedDependency)
		}
		backendOps = nil
	}

	var results []PropPatchResult
	if len(backendOps) > 0 {
		results, err = s.fs.PatchProps(r.Context(), p.String(), backendOps)
		if err != nil {
			return wrapFsErr(err)
		}
	}
	results = append(results, winResults...)

	resp := davxml.Response{Href: p.Href()}
	var ok, failed []davxml.Prop
	for _, res := range results {
		prop := davxml.Prop{Name: toXMLName(res.Name)}
		if res.Err != nil {
			failed = append(failed, prop)
		} else {
			ok = append(ok, prop)
		}
	}
	if len(ok) > 0 {
		resp.PropStats = append(resp.PropStats, davxml.PropStat{Status: "HTTP/1.1 200 OK", Props: ok})
	}
	if len(failed) > 0 {
		resp.PropStats = append(resp.PropStats, davxml.PropStat{Status: "HTTP/1.1 424 Failed Dependency", Props: failed})
	}
	if len(forbidden) > 0 {
		resp.PropStats = append(resp.PropStats, davxml.PropStat{Status: "HTTP/1.1 403 Forbidden", Props: forbidden})
	}

	mw := davxml.NewMultiStatusWriter(w, nil)
	if err := mw.WriteResponse(resp); err != nil {
		return err
	}
	return mw.Close()
}

func isWin32Prop(local string) bool {
	return win32Props[local] || strings.HasPrefix(local, "Win32")
}

func valueOrInner(op davxml.PropPatchOp) string {
	if op.Inner != "" {
		return op.Inner
	}
	return op.Value
}
