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
	"errors"
	"fmt"
	"io/fs"
	"net/http"

	pkgerrors "github.com/pkg/errors"
)

// http://www.webdav.org/specs/rfc4918.html#status.code.extensions.to.http11
const (
	StatusMulti               = 207
	StatusUnprocessableEntity = 422
	StatusLocked              = 423
	StatusFailedDependency    = 424
	StatusInsufficientStorage = 507
	StatusLoopDetected        = 508
)

var extStatusText = map[int]string{
	StatusMulti:               "Multi-Status",
	StatusUnprocessableEntity: "Unprocessable Entity",
	StatusLocked:              "Locked",
	StatusFailedDependency:    "Failed Dependency",
	StatusInsufficientStorage: "Insufficient Storage",
	StatusLoopDetected:        "Loop Detected",
}

// Error is the engine's uniform error type: every recoverable failure is
// an Error carrying the HTTP status that should be written, an
// identifying tag, and an optional wrapped cause. Aggregating handlers
// (DELETE/COPY/MOVE) pass every per-entry failure through wrapFsErr,
// which turns it into an Error, and continue past it; no kind of
// per-entry error aborts the walk.
type Error struct {
	code  int
	tag   string
	close bool // true for StatusClose: force Connection: close
	cause error
}

func newError(code int, tag string) Error {
	return Error{code: code, tag: tag}
}

// Errors covering the taxonomy of §7: path, XML, method, and protocol
// failures that the engine itself decides without consulting a backend.
var (
	ErrorInvalidPath     = newError(http.StatusBadRequest, "InvalidPath")
	ErrorIllegalPath     = newError(http.StatusBadGateway, "IllegalPath")
	ErrorForbiddenPath   = newError(http.StatusForbidden, "ForbiddenPath")
	ErrorXMLRead         = newError(http.StatusBadRequest, "XmlReadError")
	ErrorXMLParse        = newError(http.StatusBadRequest, "XmlParseError")
	ErrorUnknownMethod   = newError(http.StatusNotImplemented, "UnknownDavMethod")
	ErrorUTF8            = newError(http.StatusUnsupportedMediaType, "Utf8Error")
	ErrorBadDepth        = newError(http.StatusBadRequest, "BadDepth")
	ErrorBadDest         = newError(http.StatusBadRequest, "BadDest")
	ErrorBadHost         = newError(http.StatusBadGateway, "BadHost")
	ErrorBadPropfind     = newError(http.StatusBadRequest, "BadPropfind")
	ErrorBadProppatch    = newError(http.StatusBadRequest, "BadProppatch")
	ErrorBadLock         = newError(http.StatusBadRequest, "BadLock")
	ErrorBadRange        = newError(http.StatusRequestedRangeNotSatisfiable, "BadRange")
	ErrorMissingParent   = newError(http.StatusConflict, "MissingParent")
	ErrorConflict        = newError(http.StatusConflict, "Conflict")
	ErrorNotFound        = newError(http.StatusNotFound, "NotFound")
	ErrorNotAllowed      = newError(http.StatusMethodNotAllowed, "NotAllowed")
	ErrorIsDir           = newError(http.StatusMethodNotAllowed, "IsDir")
	ErrorIsNotDir        = newError(http.StatusMethodNotAllowed, "IsNotDir")
	ErrorUnsupportedType = newError(http.StatusUnsupportedMediaType, "UnsupportedType")
	ErrorDestExists      = newError(http.StatusPreconditionFailed, "DestExists")
	ErrorSameFile        = newError(http.StatusForbidden, "SameFile")
	ErrorLocked              = newError(StatusLocked, "Locked")
	ErrorTooLarge            = newError(http.StatusRequestEntityTooLarge, "TooLarge")
	ErrorForbidden           = newError(http.StatusForbidden, "Forbidden")
	ErrorNotImplemented      = newError(http.StatusNotImplemented, "NotImplemented")
	ErrorInsufficientStorage = newError(StatusInsufficientStorage, "InsufficientStorage")
	ErrorLoopDetected        = newError(StatusLoopDetected, "LoopDetected")
	ErrorPathTooLong         = newError(http.StatusRequestURITooLong, "PathTooLong")
	ErrorRemote              = newError(http.StatusBadGateway, "IsRemote")
	ErrorGeneralFailure      = newError(http.StatusInternalServerError, "GeneralFailure")
)

// WithCause chains a cause onto an Error, preserving its status and tag.
// The cause is wrapped with github.com/pkg/errors so a logged cause
// carries a stack trace back to where the failure actually happened,
// not just where WithCause was called; it's retrievable via
// errors.Cause/errors.Unwrap for logging, but never exposed in the HTTP
// response body.
func (e Error) WithCause(cause error) Error {
	if cause != nil {
		if _, hasStack := cause.(interface{ StackTrace() pkgerrors.StackTrace }); !hasStack {
			cause = pkgerrors.WithStack(cause)
		}
	}
	e.cause = cause
	return e
}

// AsClose marks the error as requiring Connection: close on the
// response (the StatusClose variant of §7).
func (e Error) AsClose() Error {
	e.close = true
	return e
}

// HTTPCode returns the HTTP status code to write for this error.
func (e Error) HTTPCode() int { return e.code }

// ShouldClose reports whether the response must force Connection: close.
func (e Error) ShouldClose() bool { return e.close }

// HTTPStatus returns the HTTP status text, including the WebDAV
// extensions to HTTP/1.1 status codes.
func (e Error) HTTPStatus() string {
	if t, ok := extStatusText[e.code]; ok {
		return t
	}
	return http.StatusText(e.code)
}

func (e Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%d %s: %s (%s)", e.code, e.HTTPStatus(), e.tag, e.cause)
	}
	return fmt.Sprintf("%d %s: %s", e.code, e.HTTPStatus(), e.tag)
}

// Unwrap exposes the chained cause so errors.Is/errors.As and
// github.com/pkg/errors.Cause can see through an Error.
func (e Error) Unwrap() error { return e.cause }

// Is reports whether target is an Error with the same status and tag, so
// errors.Is(err, ErrorNotFound) holds for an Error carrying a cause.
func (e Error) Is(target error) bool {
	t, ok := target.(Error)
	return ok && t.code == e.code && t.tag == e.tag
}

// StatusError builds a direct Error carrying an already-decided status,
// the Status(code) variant of §7.
func StatusError(code int) Error {
	return newError(code, http.StatusText(code))
}

// ioErrorStatus maps a generic I/O failure to an HTTP status, per the
// IoError(kind) table of §7: NotFound->404, PermissionDenied->403,
// AlreadyExists->409, TimedOut->504, else 502.
func ioErrorStatus(err error) Error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrorNotFound.WithCause(err)
	case errors.Is(err, fs.ErrPermission):
		return ErrorForbidden.WithCause(err)
	case errors.Is(err, fs.ErrExist):
		return ErrorConflict.WithCause(err)
	case errors.Is(err, errTimedOut):
		return newError(http.StatusGatewayTimeout, "TimedOut").WithCause(err)
	default:
		return ErrorRemote.WithCause(err)
	}
}

var errTimedOut = errors.New("davengine: operation timed out")
