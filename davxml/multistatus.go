package davxml

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"

	"github.com/beevik/etree"
)

// Prop is one property value to render inside a <propstat>/<prop>. A
// structured value (resourcetype, lockdiscovery, supportedlock, ...) sets
// Inner to raw child markup; a simple value sets Value instead.
type Prop struct {
	Name  PropName
	Value string
	Inner string
}

// PropStat groups properties sharing one outcome status (RFC 4918 §14.22).
type PropStat struct {
	Status string // e.g. "HTTP/1.1 200 OK"
	Props  []Prop
}

// Response is one <response> element: either a direct Status (used by
// DELETE/COPY/MOVE's per-entry failure aggregation) or one or more
// PropStats (used by PROPFIND/PROPPATCH).
type Response struct {
	Href      string
	Status    string
	PropStats []PropStat
}

// MultiStatusWriter streams a 207 Multi-Status body one <response> element
// at a time, so the engine never needs to hold an entire collection's
// property set in memory before flushing the first entry (the streaming
// backpressure contract of the property engine).
//
// Grounded on the teacher's MultiStatus.Send (encoding/xml,
// marshal-then-write-once) generalized to etree so each response can be
// built and flushed independently; extraNS lets an extension (caldav,
// carddav) register additional namespace prefixes on the envelope.
type MultiStatusWriter struct {
	w       io.Writer
	extraNS map[string]string
	opened  bool
	closed  bool
}

// NewMultiStatusWriter writes the 207 status line immediately and returns
// a writer that opens the multistatus element on the first call to
// WriteResponse (or on Close, if no response was written).
func NewMultiStatusWriter(w http.ResponseWriter, extraNS map[string]string) *MultiStatusWriter {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(207)
	return &MultiStatusWriter{w: w, extraNS: extraNS}
}

func (m *MultiStatusWriter) open() error {
	if m.opened {
		return nil
	}
	m.opened = true
	if _, err := io.WriteString(m.w, xml.Header); err != nil {
		return err
	}
	attrs := `xmlns="DAV:"`
	for prefix, ns := range m.extraNS {
		attrs += fmt.Sprintf(` xmlns:%s=%q`, prefix, ns)
	}
	_, err := fmt.Fprintf(m.w, "<multistatus %s>\n", attrs)
	return err
}

// WriteResponse serializes and flushes a single <response> element.
func (m *MultiStatusWriter) WriteResponse(r Response) error {
	if err := m.open(); err != nil {
		return err
	}
	el := buildResponseElement(r)
	doc := etree.NewDocument()
	doc.SetRoot(el)
	doc.Indent(2)
	if _, err := doc.WriteTo(m.w); err != nil {
		return err
	}
	_, err := io.WriteString(m.w, "\n")
	return err
}

// Close writes the closing tag, first opening the element if no response
// was ever written, so the body is always a complete (possibly empty)
// multistatus document. The writer does no single-entry short-circuit: a
// caller that wants a plain non-207 status must send it instead of
// creating a MultiStatusWriter.
func (m *MultiStatusWriter) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	if err := m.open(); err != nil {
		return err
	}
	_, err := io.WriteString(m.w, "</multistatus>\n")
	return err
}

func buildResponseElement(r Response) *etree.Element {
	el := etree.NewElement("response")
	el.CreateElement("href").SetText(r.Href)

	if r.Status != "" {
		el.CreateElement("status").SetText(r.Status)
	}
	for _, ps := range r.PropStats {
		psEl := el.CreateElement("propstat")
		propEl := psEl.CreateElement("prop")
		for _, p := range ps.Props {
			pe := propEl.CreateElement(p.Name.Local)
			if p.Name.Space != "" {
				pe.CreateAttr("xmlns", p.Name.Space)
			}
			if p.Inner != "" {
				appendInnerXML(pe, p.Inner)
			} else {
				pe.SetText(p.Value)
			}
		}
		psEl.CreateElement("status").SetText(ps.Status)
	}
	return el
}

// appendInnerXML parses raw child markup (as stored by a backend dead
// property, or synthesized by a live-property accessor) and reparents its
// children onto dst.
func appendInnerXML(dst *etree.Element, raw string) {
	frag := etree.NewDocument()
	if err := frag.ReadFromString("<x>" + raw + "</x>"); err != nil {
		dst.SetText(raw)
		return
	}
	root := frag.Root()
	if root == nil {
		return
	}
	for _, child := range root.Child {
		root.RemoveChild(child)
		switch c := child.(type) {
		case *etree.Element:
			dst.AddChild(c)
		case *etree.CharData:
			dst.AddChild(c)
		}
	}
}

// SendProp writes a single-property response body, the shape used by the
// LOCK handler to echo the created lockdiscovery value (RFC 4918 §9.10.1).
func SendProp(w http.ResponseWriter, p Prop) error {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	propEl := etree.NewElement("prop")
	propEl.CreateAttr("xmlns", "DAV:")
	pe := propEl.CreateElement(p.Name.Local)
	if p.Inner != "" {
		appendInnerXML(pe, p.Inner)
	} else {
		pe.SetText(p.Value)
	}
	doc := etree.NewDocument()
	doc.SetRoot(propEl)
	doc.Indent(2)
	_, err := io.WriteString(w, xml.Header)
	if err != nil {
		return err
	}
	_, err = doc.WriteTo(w)
	return err
}
