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
	"html/template"
	"io"
	"net/http"
	"sort"

	"github.com/nmathewson/davengine/davpath"
)

// serveDirectory answers GET/HEAD against a collection: either the
// configured index file, if present, or (when dconfig.AutoIndex is set)
// a synthesized directory listing, grounded on
// dav-server-rs/src/handle_gethead.rs's make_directory_listing.
func (s *WebDAV) serveDirectory(w http.ResponseWriter, r *http.Request, p davpath.Path, meta Metadata) error {
	if s.cfg.IndexFile != "" {
		idx := p.Push(s.cfg.IndexFile)
		if idxMeta, err := s.fs.Metadata(r.Context(), idx.String()); err == nil && !idxMeta.IsDir {
			fh, err := s.fs.Open(r.Context(), idx.String(), OpenOptions{Read: true})
			if err != nil {
				return wrapFsErr(err)
			}
			defer fh.Close()
			w.Header().Set("ETag", etagFor(idxMeta))
			http.ServeContent(w, r, idx.Base(), idxMeta.Modified, fh)
			return nil
		}
	}

	if !s.cfg.AutoIndex {
		return ErrorIsDir
	}

	entries, err := s.listDirEntries(r.Context(), p)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return dirListingTemplate.Execute(w, dirListingData{Path: p.String(), Entries: entries})
}

type dirListingEntry struct {
	Name    string
	IsDir   bool
	Size    int64
	ModTime string
}

type dirListingData struct {
	Path    string
	Entries []dirListingEntry
}

func (s *WebDAV) listDirEntries(ctx context.Context, p davpath.Path) ([]dirListingEntry, error) {
	it, err := s.fs.ReadDir(ctx, p.String())
	if err != nil {
		return nil, wrapFsErr(err)
	}
	defer it.Close()

	var out []dirListingEntry
	for {
		ent, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, wrapFsErr(err)
		}
		if s.skipName(ent.Name) {
			continue
		}
		out = append(out, dirListingEntry{
			Name:    ent.Name,
			IsDir:   ent.Meta.IsDir,
			Size:    ent.Meta.Size,
			ModTime: ent.Meta.Modified.UTC().Format(http.TimeFormat),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDir != out[j].IsDir {
			return out[i].IsDir
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

var dirListingTemplate = template.Must(template.New("dirindex").Parse(`<!DOCTYPE html>
<html><head><title>Index of {{.Path}}</title></head>
<body>
<h1>Index of {{.Path}}</h1>
<table>
<tr><th>Name</th><th>Size</th><th>Last modified</th></tr>
{{range .Entries}}<tr><td><a href="{{.Name}}{{if .IsDir}}/{{end}}">{{.Name}}{{if .IsDir}}/{{end}}</a></td><td>{{if not .IsDir}}{{.Size}}{{end}}</td><td>{{.ModTime}}</td></tr>
{{end}}</table>
</body></html>
`))
