package server

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

const indexFile = "index.html"

// serveStatic serves a file from Root, rewriting HTML and CSS bodies.
func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request) {
	upath := r.URL.Path
	if !strings.HasPrefix(upath, "/") {
		upath = "/" + upath
	}

	if strings.HasSuffix(upath, "/") {
		upath += indexFile
	}

	name := filepath.Join(s.opts.Root, filepath.FromSlash(path.Clean(upath)))

	f, err := os.Open(name)
	if err != nil {
		s.fileError(w, r, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.fileError(w, r, err)
		return
	}

	if info.IsDir() {
		target := r.URL.Path + "/"
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}

		http.Redirect(w, r, target, http.StatusMovedPermanently)

		return
	}

	ctype, err := contentType(name, f)
	if err != nil {
		s.fileError(w, r, err)
		return
	}

	var rewrite func([]byte) []byte

	switch {
	case strings.HasPrefix(ctype, "text/html"):
		rewrite = s.rewriter.HTML
	case strings.HasPrefix(ctype, "text/css"):
		rewrite = s.rewriter.CSS
	default:
		w.Header().Set("Content-Type", ctype)
		http.ServeContent(w, r, name, info.ModTime(), f)

		return
	}

	body, err := io.ReadAll(f)
	if err != nil {
		s.fileError(w, r, err)
		return
	}

	body = rewrite(body)

	h := w.Header()
	h.Set("Content-Type", ctype)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	h.Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))
	h.Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	if r.Method != http.MethodHead {
		_, _ = w.Write(body)
	}
}

func (s *Server) fileError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		http.NotFound(w, r)
	case errors.Is(err, fs.ErrPermission):
		http.Error(w, "403 forbidden", http.StatusForbidden)
	default:
		s.opts.Logger.Error("serving file",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		http.Error(w, "500 internal server error", http.StatusInternalServerError)
	}
}

// contentType resolves the MIME type from the extension, sniffing the
// first 512 bytes when the extension is unknown.
func contentType(name string, f io.ReadSeeker) (string, error) {
	if ctype := mime.TypeByExtension(filepath.Ext(name)); ctype != "" {
		return ctype, nil
	}

	var buf [512]byte

	n, err := io.ReadFull(f, buf[:])
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	return http.DetectContentType(buf[:n]), nil
}
