// Package caldav layers CalDAV (RFC 4791) onto the core WebDAV engine:
// calendar-collection resourcetype, MKCALENDAR, and the calendar-query,
// calendar-multiget and free-busy-query REPORT bodies. Grounded on
// dav-server-rs's handle_caldav.rs for the REPORT dispatch shape and on
// emersion/go-webdav's carddav.Handler (this pack's literal retrieval of
// it, other_examples/…carddav.go) for the wrap-a-webdav.Handler pattern
// this package mirrors for its calendar sibling.
package caldav

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"strings"
	"time"

	dav "github.com/nmathewson/davengine"
	"github.com/nmathewson/davengine/davpath"

	ical "github.com/emersion/go-ical"
)

const calNS = "urn:ietf:params:xml:ns:caldav"

var markerProp = dav.PropName{Space: calNS, Local: "calendar-marker"}
var componentSetProp = dav.PropName{Space: calNS, Local: "supported-calendar-component-set"}

// Handler serves CalDAV over a core davengine.WebDAV, adding the REPORT
// and MKCALENDAR methods RFC 4791 defines on top of plain WebDAV.
type Handler struct {
	fs   dav.FileSystem
	ls   dav.LockSystem
	core *dav.WebDAV
}

// NewHandler builds a CalDAV handler. opts are forwarded to the
// underlying davengine.WebDAV, with WithExtraResourceType already bound
// to advertise <C:calendar/> on collections MKCALENDAR created.
func NewHandler(fs dav.FileSystem, ls dav.LockSystem, opts ...dav.Option) *Handler {
	h := &Handler{fs: fs, ls: ls}
	opts = append(opts, dav.WithExtraResourceType(h.extraResourceType))
	h.core = dav.New(fs, ls, opts...)
	return h
}

func (h *Handler) extraResourceType(ctx context.Context, p davpath.Path, meta dav.Metadata) string {
	if !meta.IsDir {
		return ""
	}
	if _, ok, _ := h.fs.GetProp(ctx, p.String(), markerProp); ok {
		return `<calendar xmlns="` + calNS + `"/>`
	}
	return ""
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "REPORT":
		h.handleReport(w, r)
	case "MKCALENDAR":
		h.handleMkcalendar(w, r)
	default:
		h.core.ServeHTTP(w, r)
		if r.Method == http.MethodOptions {
			addDAVClass(w, "calendar-access")
		}
	}
}

func addDAVClass(w http.ResponseWriter, class string) {
	existing := w.Header().Get("DAV")
	if existing == "" {
		w.Header().Set("DAV", class)
	} else {
		w.Header().Set("DAV", existing+", "+class)
	}
}

// handleMkcalendar implements MKCALENDAR: creates the collection via the
// same CreateDir contract plain MKCOL uses, then stamps the fixed
// identification properties via PatchProps, grounded on
// handle_caldav.rs's mkcalendar handling.
func (h *Handler) handleMkcalendar(w http.ResponseWriter, r *http.Request) {
	p, err := davpath.Parse("", r.URL.EscapedPath())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.fs.CreateDir(r.Context(), p.String()); err != nil {
		writeFsErr(w, err)
		return
	}
	_, err = h.fs.PatchProps(r.Context(), p.String(), []dav.PropPatchOp{
		{Prop: dav.DeadProperty{Name: markerProp, Value: "1"}},
		{Prop: dav.DeadProperty{Name: componentSetProp, Value: "VEVENT,VTODO"}},
	})
	if err != nil {
		writeFsErr(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func writeFsErr(w http.ResponseWriter, err error) {
	if e, ok := err.(dav.Error); ok {
		http.Error(w, e.Error(), e.HTTPCode())
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

// --- REPORT body parsing -----------------------------------------------

type reportRoot struct {
	XMLName   xml.Name
	Hrefs     []string    `xml:"href"`
	Filter    *compFilter `xml:"filter>comp-filter"`
	TimeRange *timeRange  `xml:"time-range"`
}

type compFilter struct {
	Name       string      `xml:"name,attr"`
	CompFilter *compFilter `xml:"comp-filter"`
	TimeRange  *timeRange  `xml:"time-range"`
}

type timeRange struct {
	Start string `xml:"start,attr"`
	End   string `xml:"end,attr"`
}

// innermost walks a comp-filter chain down to its deepest entry, the
// actual component type the query targets (VCALENDAR > VEVENT, say).
func (f *compFilter) innermost() (name string, tr *timeRange) {
	cur := f
	for cur != nil {
		name = cur.Name
		if cur.TimeRange != nil {
			tr = cur.TimeRange
		}
		if cur.CompFilter == nil {
			break
		}
		cur = cur.CompFilter
	}
	return name, tr
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var root reportRoot
	if err := xml.Unmarshal(data, &root); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p, err := davpath.Parse("", r.URL.EscapedPath())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch root.XMLName.Local {
	case "calendar-multiget":
		h.handleMultiget(w, r, root.Hrefs)
	case "free-busy-query":
		h.handleFreeBusy(w, r, p, root.TimeRange)
	default: // calendar-query
		compName, tr := "", (*timeRange)(nil)
		if root.Filter != nil {
			compName, tr = root.Filter.innermost()
		}
		h.handleCalendarQuery(w, r, p, compName, tr)
	}
}

func (h *Handler) handleMultiget(w http.ResponseWriter, r *http.Request, hrefs []string) {
	mw := multistatusWriter(w)
	defer mw.close()
	for _, href := range hrefs {
		p, err := davpath.Parse("", href)
		if err != nil {
			mw.writeStatus(href, http.StatusBadRequest)
			continue
		}
		data, meta, err := h.readCalendarObject(r.Context(), p)
		if err != nil {
			mw.writeStatus(p.Href(), statusOf(err))
			continue
		}
		mw.writeCalendarData(p.Href(), string(data), meta)
	}
}

func (h *Handler) handleCalendarQuery(w http.ResponseWriter, r *http.Request, p davpath.Path, compName string, tr *timeRange) {
	meta, err := h.fs.Metadata(r.Context(), p.String())
	if err != nil {
		writeFsErr(w, err)
		return
	}

	var candidates []davpath.Path
	if meta.IsDir {
		it, err := h.fs.ReadDir(r.Context(), p.String())
		if err != nil {
			writeFsErr(w, err)
			return
		}
		defer it.Close()
		for {
			ent, err := it.Next(r.Context())
			if err == io.EOF {
				break
			}
			if err != nil {
				break
			}
			if ent.Meta.IsDir {
				continue
			}
			candidates = append(candidates, p.Push(ent.Name))
		}
	} else {
		candidates = []davpath.Path{p}
	}

	mw := multistatusWriter(w)
	defer mw.close()
	for _, cp := range candidates {
		data, cmeta, err := h.readCalendarObject(r.Context(), cp)
		if err != nil {
			continue
		}
		if !matchesFilter(data, compName, tr) {
			continue
		}
		mw.writeCalendarData(cp.Href(), string(data), cmeta)
	}
}

func (h *Handler) readCalendarObject(ctx context.Context, p davpath.Path) ([]byte, dav.Metadata, error) {
	meta, err := h.fs.Metadata(ctx, p.String())
	if err != nil {
		return nil, dav.Metadata{}, err
	}
	fh, err := h.fs.Open(ctx, p.String(), dav.OpenOptions{Read: true})
	if err != nil {
		return nil, dav.Metadata{}, err
	}
	defer fh.Close()
	data, err := io.ReadAll(fh)
	if err != nil {
		return nil, dav.Metadata{}, err
	}
	return data, meta, nil
}

// matchesFilter reports whether an iCalendar object contains a component
// named compName (empty matches anything) overlapping tr, if given.
// Parse failures are treated as a non-match rather than an error: a
// REPORT must keep walking the rest of the collection.
func matchesFilter(data []byte, compName string, tr *timeRange) bool {
	if compName == "" && tr == nil {
		return true
	}
	cal, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return false
	}
	for _, child := range cal.Children {
		if compName != "" && !strings.EqualFold(child.Name, compName) {
			continue
		}
		if tr == nil {
			return true
		}
		start, end, ok := componentRange(child)
		if !ok {
			continue
		}
		qStart, qEnd, ok := tr.parse()
		if !ok {
			return true
		}
		if start.Before(qEnd) && end.After(qStart) {
			return true
		}
	}
	return false
}

func componentRange(c *ical.Component) (start, end time.Time, ok bool) {
	sp := c.Props.Get("DTSTART")
	if sp == nil {
		return time.Time{}, time.Time{}, false
	}
	start, ok = parseICalTime(sp.Value)
	if !ok {
		return
	}
	end = start
	if ep := c.Props.Get("DTEND"); ep != nil {
		if t, ok2 := parseICalTime(ep.Value); ok2 {
			end = t
		}
	}
	return start, end, true
}

var icalTimeLayouts = []string{"20060102T150405Z", "20060102T150405", "20060102"}

func parseICalTime(v string) (time.Time, bool) {
	for _, layout := range icalTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (tr *timeRange) parse() (start, end time.Time, ok bool) {
	start, ok1 := parseICalTime(tr.Start)
	end, ok2 := parseICalTime(tr.End)
	return start, end, ok1 && ok2
}

// handleFreeBusy implements free-busy-query (RFC 4791 §7.10): a
// mechanical scan of DTSTART/DTEND pairs across the collection, folded
// into a single synthetic VFREEBUSY component. This is deliberately not
// a scheduling engine (conflict resolution, attendee availability) —
// that is the free-busy analysis the top-level Non-goal excludes.
func (h *Handler) handleFreeBusy(w http.ResponseWriter, r *http.Request, p davpath.Path, tr *timeRange) {
	it, err := h.fs.ReadDir(r.Context(), p.String())
	if err != nil {
		writeFsErr(w, err)
		return
	}
	defer it.Close()

	var qStart, qEnd time.Time
	if tr != nil {
		qStart, qEnd, _ = tr.parse()
	}

	vfb := ical.NewComponent("VFREEBUSY")
	for {
		ent, err := it.Next(r.Context())
		if err == io.EOF {
			break
		}
		if err != nil || ent.Meta.IsDir {
			continue
		}
		data, _, err := h.readCalendarObject(r.Context(), p.Push(ent.Name))
		if err != nil {
			continue
		}
		cal, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
		if err != nil {
			continue
		}
		for _, child := range cal.Children {
			if child.Name != "VEVENT" {
				continue
			}
			start, end, ok := componentRange(child)
			if !ok {
				continue
			}
			if !qStart.IsZero() && (end.Before(qStart) || start.After(qEnd)) {
				continue
			}
			fb := ical.NewProp("FREEBUSY")
			fb.Value = start.UTC().Format("20060102T150405Z") + "/" + end.UTC().Format("20060102T150405Z")
			vfb.Props.Add(fb)
		}
	}

	cal := ical.NewCalendar()
	cal.Props.SetText("VERSION", "2.0")
	cal.Props.SetText("PRODID", "-//davengine//CalDAV//EN")
	cal.Children = append(cal.Children, vfb)

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func statusOf(err error) int {
	if e, ok := err.(dav.Error); ok {
		return e.HTTPCode()
	}
	return http.StatusNotFound
}
