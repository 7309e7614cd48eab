package caldav

// The REPORT response writer, built on the same davxml.MultiStatusWriter
// the core engine uses for PROPFIND, so a calendar-query/multiget
// response has the identical streaming, one-response-at-a-time shape.

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"

	dav "github.com/nmathewson/davengine"
	"github.com/nmathewson/davengine/davxml"
)

const calendarDataLocal = "calendar-data"

type reportWriter struct {
	mw *davxml.MultiStatusWriter
}

func multistatusWriter(w http.ResponseWriter) *reportWriter {
	return &reportWriter{mw: davxml.NewMultiStatusWriter(w, map[string]string{"C": calNS})}
}

func (rw *reportWriter) writeStatus(href string, code int) {
	rw.mw.WriteResponse(davxml.Response{Href: href, Status: statusLine(code)})
}

func (rw *reportWriter) writeCalendarData(href, data string, meta dav.Metadata) {
	rw.mw.WriteResponse(davxml.Response{
		Href: href,
		PropStats: []davxml.PropStat{{
			Status: statusLine(http.StatusOK),
			Props: []davxml.Prop{
				{Name: davxml.PropName{Space: calNS, Local: calendarDataLocal}, Value: data},
				{Name: davxml.PropName{Space: "DAV:", Local: "getetag"}, Value: etagOf(data, meta)},
			},
		}},
	})
}

func (rw *reportWriter) close() {
	rw.mw.Close()
}

func statusLine(code int) string {
	return fmt.Sprintf("HTTP/1.1 %d %s", code, http.StatusText(code))
}

func etagOf(data string, meta dav.Metadata) string {
	sum := sha1.Sum([]byte(data))
	return `"` + hex.EncodeToString(sum[:8]) + `"`
}
