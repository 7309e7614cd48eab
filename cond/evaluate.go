package cond

import (
	"net/http"
	"time"

	"github.com/nmathewson/davengine/davheader"
)

// Resource is what Evaluate needs to know about the entity a request
// targets: its current strong validators, used to test both the plain
// HTTP preconditions and (via Env) the WebDAV If: header.
type Resource struct {
	ETag     string // empty if the resource does not exist
	Modified time.Time
	Exists   bool
}

// Outcome is the verdict Evaluate reaches.
type Outcome int

const (
	// Proceed means every precondition (plain HTTP and If:) passed.
	Proceed Outcome = iota
	// NotModified means GET/HEAD should short-circuit with 304.
	NotModified
	// PreconditionFailed means the request must be rejected with 412.
	PreconditionFailed
)

// Evaluate combines the plain HTTP conditional-request headers
// (If-Match, If-None-Match, If-Modified-Since, If-Unmodified-Since) with
// the WebDAV If: header (already parsed into ifTag) against res,
// grounded on dav-server-rs's conditional.rs for evaluation order: the
// strong validators (If-Match/If-Unmodified-Since) are checked first,
// then If-None-Match/If-Modified-Since, then the If: header/lock-token
// grammar last.
func Evaluate(h http.Header, ifTag *IfTag, env Env, resource string, res Resource) Outcome {
	if v := h.Get("If-Match"); v != "" {
		tags, any, err := davheader.ParseETagList(v)
		if err == nil && !any {
			if !res.Exists || !matchesAny(tags, res.ETag) {
				return PreconditionFailed
			}
		}
	}

	if v := h.Get("If-Unmodified-Since"); v != "" {
		if t, err := http.ParseTime(v); err == nil {
			if !res.Exists || res.Modified.After(t) {
				return PreconditionFailed
			}
		}
	}

	noneMatched := false
	if v := h.Get("If-None-Match"); v != "" {
		tags, any, err := davheader.ParseETagList(v)
		if err == nil {
			if any {
				noneMatched = res.Exists
			} else {
				noneMatched = res.Exists && matchesAny(tags, res.ETag)
			}
			if noneMatched {
				return NotModified
			}
		}
	} else if v := h.Get("If-Modified-Since"); v != "" {
		if t, err := http.ParseTime(v); err == nil && res.Exists {
			if !res.Modified.After(t) {
				return NotModified
			}
		}
	}

	if ifTag != nil && !ifTag.Eval(env, resource) {
		return PreconditionFailed
	}
	return Proceed
}

// matchesAny reports whether any of tags strongly matches the resource's
// current ETag. The resource's own ETag is always a strong validator (the
// engine never derives a weak one), so a weak tag in the header never
// matches it, per davheader.ETag.StrongMatch.
func matchesAny(tags []davheader.ETag, current string) bool {
	resourceTag := davheader.ETag{Value: current}
	for _, t := range tags {
		if t.StrongMatch(resourceTag) {
			return true
		}
	}
	return false
}
