// Command davserver is a thin example wiring the engine to net/http: it
// picks a backend (in-memory or disk), builds a lock system, and serves
// plain WebDAV, or CalDAV/CardDAV when the corresponding flag is set.
package main

import (
	"flag"
	"net/http"
	"os"
	"time"

	dav "github.com/nmathewson/davengine"
	"github.com/nmathewson/davengine/caldav"
	"github.com/nmathewson/davengine/carddav"
	"github.com/nmathewson/davengine/davlog"
	"github.com/nmathewson/davengine/dconfig"
	"github.com/nmathewson/davengine/localfs"
	"github.com/nmathewson/davengine/locksystem"
	"github.com/nmathewson/davengine/memfs"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	dir := flag.String("dir", "", "serve files from this directory (in-memory backend if empty)")
	prefix := flag.String("prefix", "", "URL mount prefix")
	autoIndex := flag.Bool("autoindex", false, "synthesize directory listings")
	mode := flag.String("mode", "webdav", "protocol surface: webdav, caldav or carddav")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger := davlog.New(os.Stderr, *debug)

	var fs dav.FileSystem
	if *dir != "" {
		fs = localfs.New(*dir, false)
	} else {
		fs = memfs.New()
	}
	ls := locksystem.New()

	cfgOpts := []dconfig.Option{dconfig.WithPrefix(*prefix)}
	if *autoIndex {
		cfgOpts = append(cfgOpts, dconfig.WithAutoIndex(""))
	}
	opts := []dav.Option{
		dav.WithLogger(logger),
		dav.WithConfig(dconfig.New(cfgOpts...)),
	}

	var handler http.Handler
	switch *mode {
	case "caldav":
		handler = caldav.NewHandler(fs, ls, opts...)
	case "carddav":
		handler = carddav.NewHandler(fs, ls, opts...)
	default:
		handler = dav.New(fs, ls, opts...)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info().Str("addr", *addr).Str("mode", *mode).Msg("starting davserver")
	if err := srv.ListenAndServe(); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}
