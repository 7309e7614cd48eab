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
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nmathewson/davengine/davpath"
	"github.com/nmathewson/davengine/davxml"
)

// davNS is the WebDAV core namespace, RFC 4918 §14. apacheNS and msNS are
// the two extension namespaces the live-property table also recognizes:
// Apache's mod_dav "executable" bit and Microsoft's Win32 metadata
// mod_dav's WebDAV mini-redirector on Windows asks for.
const (
	davNS    = "DAV:"
	apacheNS = "http://apache.org/dav/props/"
	msNS     = "urn:schemas-microsoft-com:"
)

// liveNames is the fixed set of DAV-namespace properties the engine
// computes from Metadata/LockSystem rather than delegating to the
// backend's dead property store, generalizing the teacher's four-entry
// fileStatProps table (getlastmodified/getetag/getcontentlength/
// creationdate) plus its ad hoc resourcetype/supportedlock/
// lockdiscovery/displayname switch to the complete live-property table
// of the specification. getcontentlanguage is deliberately absent: it
// has no natural source in Metadata and is resolved as a dead property
// when the backend has stored one (see handleProppatch).
var liveNames = []string{
	"resourcetype",
	"displayname",
	"getcontentlength",
	"getcontenttype",
	"getetag",
	"getlastmodified",
	"creationdate",
	"supportedlock",
	"lockdiscovery",
	"quota-available-bytes",
	"quota-used-bytes",
}

// allpropNames is allprop's fixed response set (RFC 4918 §14.2): the DAV
// namespace properties except the two quota properties, which the
// specification excludes from allprop's default set since they require
// a backend Quota() round trip not every client wants paid on a blanket
// PROPFIND.
var allpropNames = []string{
	"creationdate",
	"displayname",
	"getcontentlanguage",
	"getcontentlength",
	"getcontenttype",
	"getetag",
	"getlastmodified",
	"resourcetype",
	"supportedlock",
	"lockdiscovery",
}

func toXMLName(n PropName) davxml.PropName {
	return davxml.PropName{Space: n.Space, Local: n.Local}
}

// etagFor derives a resource's ETag from its metadata: size and
// modification time always, plus an opaque backend-chosen ETagSource
// (an inode hash on backends that have one). This is the "differs per
// platform, strong within one backend instance" guarantee the
// specification asks for, not a cryptographic digest of content.
func etagFor(m Metadata) string {
	if m.ETagSource != "" {
		return fmt.Sprintf(`"%x-%x-%s"`, m.Size, m.Modified.UnixNano(), m.ETagSource)
	}
	return fmt.Sprintf(`"%x-%x"`, m.Size, m.Modified.UnixNano())
}

// resolveLiveProp computes a single live property, reporting ok=false
// when the property does not apply to this resource (e.g. getcontenttype
// on a collection), the namespace isn't one of DAV/Apache/Microsoft, or
// the requested name within one of those namespaces has no live
// derivation (getcontentlanguage) — in every ok=false case the caller
// falls through to the dead-property store.
func (s *WebDAV) resolveLiveProp(ctx context.Context, p davpath.Path, meta Metadata) func(name PropName) (davxml.Prop, bool) {
	return func(name PropName) (davxml.Prop, bool) {
		switch name.Space {
		case apacheNS:
			return s.resolveApacheProp(meta, name.Local)
		case msNS:
			return s.resolveWin32Prop(p, meta, name.Local)
		case davNS, "":
		default:
			return davxml.Prop{}, false
		}
		local := name.Local
		xname := davxml.PropName{Space: davNS, Local: local}
		return s.resolveDAVProp(ctx, p, meta, local, xname)
	}
}

func (s *WebDAV) resolveDAVProp(ctx context.Context, p davpath.Path, meta Metadata, local string, name davxml.PropName) (davxml.Prop, bool) {
	switch local {
	case "resourcetype":
		inner := ""
		if meta.IsDir {
			inner = `<collection xmlns="DAV:"/>`
		}
		if s.extraResourceType != nil {
			inner += s.extraResourceType(ctx, p, meta)
		}
		return davxml.Prop{Name: name, Inner: inner}, true
	case "displayname":
		if dp, ok, err := s.fs.GetProp(ctx, p.String(), PropName{Space: davNS, Local: local}); err == nil && ok {
			return davxml.Prop{Name: name, Value: dp.Value}, true
		}
		return davxml.Prop{Name: name, Value: p.Base()}, true
	case "getcontentlength":
		if meta.IsDir {
			return davxml.Prop{}, false
		}
		return davxml.Prop{Name: name, Value: strconv.FormatInt(meta.Size, 10)}, true
	case "getcontenttype":
		if meta.IsDir {
			return davxml.Prop{}, false
		}
		return davxml.Prop{Name: name, Value: davpath.GuessContentType(p.Base())}, true
	case "getetag":
		return davxml.Prop{Name: name, Value: etagFor(meta)}, true
	case "getlastmodified":
		return davxml.Prop{Name: name, Value: meta.Modified.UTC().Format(http.TimeFormat)}, true
	case "creationdate":
		t := meta.Created
		if t.IsZero() {
			t = meta.Modified
		}
		return davxml.Prop{Name: name, Value: t.UTC().Format(time.RFC3339)}, true
	case "supportedlock":
		return davxml.Prop{Name: name, Inner: supportedLockXML}, true
	case "lockdiscovery":
		return davxml.Prop{Name: name, Inner: s.lockDiscoveryXML(p.String())}, true
	case "quota-available-bytes":
		used, total, err := s.fs.Quota(ctx)
		if err != nil || total == nil {
			return davxml.Prop{}, false
		}
		avail := *total - used
		if avail < 0 {
			avail = 0
		}
		return davxml.Prop{Name: name, Value: strconv.FormatInt(avail, 10)}, true
	case "quota-used-bytes":
		used, _, err := s.fs.Quota(ctx)
		if err != nil {
			return davxml.Prop{}, false
		}
		return davxml.Prop{Name: name, Value: strconv.FormatInt(used, 10)}, true
	}
	return davxml.Prop{}, false
}

// resolveApacheProp handles the mod_dav "executable" property (Apache
// namespace), spec.md §3/§4.4: "T"/"F" on files, absent on collections.
func (s *WebDAV) resolveApacheProp(meta Metadata, local string) (davxml.Prop, bool) {
	if local != "executable" || meta.IsDir {
		return davxml.Prop{}, false
	}
	v := "F"
	if meta.Executable {
		v = "T"
	}
	return davxml.Prop{Name: davxml.PropName{Space: apacheNS, Local: local}, Value: v}, true
}

// resolveWin32Prop derives the four Microsoft-namespace properties
// Windows Explorer's WebDAV mini-redirector expects (spec.md §3/table at
// §4.4): the three timestamps from Metadata (LastAccessTime has no
// dedicated field in Metadata, so Modified stands in for it, matching
// method_props.rs's own fallback-to-mtime behavior when an accessed()
// call fails), and Win32FileAttributes synthesized from IsDir/dotfile
// status (0x10 directory, 0x20 normal file, OR 0x02 hidden/dotfile).
func (s *WebDAV) resolveWin32Prop(p davpath.Path, meta Metadata, local string) (davxml.Prop, bool) {
	name := davxml.PropName{Space: msNS, Local: local}
	httpTime := func(t time.Time) string {
		if t.IsZero() {
			t = meta.Modified
		}
		return t.UTC().Format(http.TimeFormat)
	}
	switch local {
	case "Win32CreationTime":
		return davxml.Prop{Name: name, Value: httpTime(meta.Created)}, true
	case "Win32LastAccessTime":
		return davxml.Prop{Name: name, Value: httpTime(meta.Modified)}, true
	case "Win32LastModifiedTime":
		return davxml.Prop{Name: name, Value: httpTime(meta.Modified)}, true
	case "Win32FileAttributes":
		attrs := 0x20
		if meta.IsDir {
			attrs = 0x10
		}
		if strings.HasPrefix(p.Base(), ".") {
			attrs |= 0x02
		}
		return davxml.Prop{Name: name, Value: strconv.Itoa(attrs)}, true
	}
	return davxml.Prop{}, false
}

const supportedLockXML = `<lockentry xmlns="DAV:"><lockscope><exclusive/></lockscope><locktype><write/></locktype></lockentry>` +
	`<lockentry xmlns="DAV:"><lockscope><shared/></lockscope><locktype><write/></locktype></lockentry>`

func (s *WebDAV) lockDiscoveryXML(path string) string {
	locks := s.ls.Discover(path, false)
	var out string
	for _, l := range locks {
		scope := "<exclusive/>"
		if l.Shared {
			scope = "<shared/>"
		}
		depth := "0"
		if l.Deep {
			depth = "infinity"
		}
		timeout := "Infinite"
		if !l.Expiry.IsZero() {
			if d := time.Until(l.Expiry); d > 0 {
				timeout = fmt.Sprintf("Second-%d", int64(d.Seconds()))
			} else {
				timeout = "Second-0"
			}
		}
		owner := ""
		if l.OwnerXML != "" {
			owner = "<owner>" + l.OwnerXML + "</owner>"
		}
		out += fmt.Sprintf(
			`<activelock><lockscope>%s</lockscope><locktype><write/></locktype>`+
				`<depth>%s</depth>%s<timeout>%s</timeout>`+
				`<locktoken><href>%s</href></locktoken><lockroot><href>%s</href></lockroot></activelock>`,
			scope, depth, owner, timeout, l.Token, path)
	}
	return out
}

// resolveProp resolves one requested property against live properties
// first, then the backend's dead property store.
func (s *WebDAV) resolveProp(ctx context.Context, p davpath.Path, meta Metadata, name PropName) (davxml.Prop, bool) {
	if prop, ok := s.resolveLiveProp(ctx, p, meta)(name); ok {
		return prop, true
	}
	if !s.fs.HaveProps(ctx, p.String()) {
		return davxml.Prop{}, false
	}
	dp, ok, err := s.fs.GetProp(ctx, p.String(), name)
	if err != nil || !ok {
		return davxml.Prop{}, false
	}
	return davxml.Prop{Name: toXMLName(name), Inner: dp.Value}, true
}

// allpropResponseNames is allprop's name set: the fixed ten-property
// allpropNames list (quota properties excluded, per spec.md §4.2) plus
// every dead property the backend has stored — propname's "every
// applicable live property" enumeration is deliberately not reused here.
func (s *WebDAV) allpropResponseNames(ctx context.Context, p davpath.Path) []PropName {
	names := make([]PropName, 0, len(allpropNames))
	for _, n := range allpropNames {
		names = append(names, PropName{Space: davNS, Local: n})
	}
	if s.fs.HaveProps(ctx, p.String()) {
		dps, err := s.fs.GetProps(ctx, p.String(), false)
		if err == nil {
			for _, dp := range dps {
				names = append(names, dp.Name)
			}
		}
	}
	return names
}

// listAllPropNames returns the full set of property names applicable to
// this resource for propname: every DAV/Apache/Microsoft live property
// that applies, plus whatever the backend has stored as dead properties.
// allprop uses its own fixed allpropNames set instead (see handlePropfind).
func (s *WebDAV) listAllPropNames(ctx context.Context, p davpath.Path, meta Metadata) []PropName {
	resolve := s.resolveLiveProp(ctx, p, meta)
	names := make([]PropName, 0, len(liveNames))
	for _, n := range liveNames {
		if _, ok := resolve(PropName{Space: davNS, Local: n}); ok {
			names = append(names, PropName{Space: davNS, Local: n})
		}
	}
	if _, ok := resolve(PropName{Space: apacheNS, Local: "executable"}); ok {
		names = append(names, PropName{Space: apacheNS, Local: "executable"})
	}
	for _, n := range []string{"Win32CreationTime", "Win32LastAccessTime", "Win32LastModifiedTime", "Win32FileAttributes"} {
		if _, ok := resolve(PropName{Space: msNS, Local: n}); ok {
			names = append(names, PropName{Space: msNS, Local: n})
		}
	}
	if s.fs.HaveProps(ctx, p.String()) {
		dps, err := s.fs.GetProps(ctx, p.String(), false)
		if err == nil {
			for _, dp := range dps {
				names = append(names, dp.Name)
			}
		}
	}
	return names
}
