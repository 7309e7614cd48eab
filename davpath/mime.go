package davpath

import "mime"

// mimeByExt wraps the standard library's extension-based MIME lookup so
// GuessContentType has a single place to special-case extensions the
// stdlib table misses on minimal container images (notably .ics/.vcf,
// which matter for the CalDAV/CardDAV extensions).
func mimeByExt(ext string) string {
	switch ext {
	case ".ics":
		return "text/calendar"
	case ".vcf":
		return "text/vcard"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return ""
}
