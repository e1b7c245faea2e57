package server

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"github.com/wierd-stuff-inc/scribes/internal/config"
	"github.com/wierd-stuff-inc/scribes/internal/html"
	"github.com/wierd-stuff-inc/scribes/internal/logging"
)

const shutdownTimeout = 5 * time.Second

// PageLister reports the pages that have been rendered.
type PageLister interface {
	Pages() ([]string, error)
}

type Options struct {
	Addr        string
	OutputDir   string
	Pages       PageLister
	Compression config.CompressionConfig
	Log         logging.Logger
}

// Server serves the generated tree.
type Server struct {
	addr    string
	output  string
	pages   PageLister
	log     logging.Logger
	handler http.Handler
}

func New(opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = logging.Nop()
	}
	s := &Server{
		addr:   opts.Addr,
		output: opts.OutputDir,
		pages:  opts.Pages,
		log:    log,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("GET /js/{path...}", s.static("js"))
	mux.Handle("GET /css/{path...}", s.static("css"))
	mux.Handle("GET /page/{path...}", s.static("pages"))
	s.handler = newRequestLogger(newCompressionHandler(mux, opts.Compression), log)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info("shutting down", "addr", s.addr)
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var names []string
	if s.pages != nil {
		var err error
		if names, err = s.pages.Pages(); err != nil {
			s.log.Error("cannot list pages", "error", err)
			http.Error(w, "cannot list pages", http.StatusInternalServerError)
			return
		}
	}
	body := html.NewHTMLElement("body")
	nav := body.AppendNew("nav", html.Class("book-toc"))
	nav.AppendNew("h1").AppendText("Table of contents.")
	ul := nav.AppendNew("ul")
	for _, name := range names {
		ul.AppendNew("li").AppendNew("a", html.Href("/page/"+name+".html")).AppendText(name)
	}
	doc := html.BuildDocument(body, html.HeadData{Title: "Table of contents"})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(doc.Bytes())
}

// static serves regular files below <output>/dir. Directories are not listed.
func (s *Server) static(dir string) http.Handler {
	root := os.DirFS(filepath.Join(s.output, dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Clean(r.PathValue("path"))
		if !fs.ValidPath(name) || name == "." {
			http.NotFound(w, r)
			return
		}
		info, err := fs.Stat(root, name)
		if err != nil || !info.Mode().IsRegular() {
			http.NotFound(w, r)
			return
		}
		f, err := root.Open(name)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer f.Close()
		content, ok := f.(io.ReadSeeker)
		if !ok {
			http.Error(w, "cannot read file", http.StatusInternalServerError)
			return
		}
		// ServeFile would redirect .../index.html to the directory
		http.ServeContent(w, r, name, info.ModTime(), content)
	})
}

// newCompressionHandler wraps h with gzip compression unless it is disabled.
func newCompressionHandler(h http.Handler, cfg config.CompressionConfig) http.Handler {
	if !cfg.Enabled || cfg.Level == "none" {
		return h
	}
	var level int
	switch cfg.Level {
	case "fastest":
		level = gzip.BestSpeed
	case "best":
		level = gzip.BestCompression
	default:
		level = gzip.DefaultCompression
	}
	wrapper, err := gzhttp.NewWrapper(
		gzhttp.MinSize(cfg.MinSize),
		gzhttp.CompressionLevel(level),
	)
	if err != nil {
		return h
	}
	return wrapper(h)
}

// responseCapture records the status code written by the wrapped handler.
type responseCapture struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rc *responseCapture) WriteHeader(code int) {
	rc.status = code
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	if rc.status == 0 {
		rc.status = http.StatusOK
	}
	n, err := rc.ResponseWriter.Write(b)
	rc.bytes += n
	return n, err
}

func newRequestLogger(h http.Handler, log logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rc := &responseCapture{ResponseWriter: w}
		h.ServeHTTP(rc, r)
		if rc.status == 0 {
			rc.status = http.StatusOK
		}
		log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rc.status,
			"bytes", rc.bytes,
			"duration", time.Since(start),
		)
	})
}
