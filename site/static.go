package site

import (
	"bytes"
	"embed"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"
)

//go:embed public
var embedded embed.FS

// public is the embedded document root.
var public = mustSub(embedded, "public")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// hidden files exist only to be served by other routes.
var hidden = map[string]bool{
	"300-latexhax.html": true,
	"404.html":          true,
	"410.html":          true,
	"500.html":          true,
}

// Page is an embedded document.
type Page struct {
	Name        string
	ContentType string
	Body        []byte
}

// lookup returns the embedded page called name. Reading a directory fails,
// so directories are never pages.
func lookup(name string) (Page, error) {
	body, err := fs.ReadFile(public, name)
	if err != nil {
		return Page{}, err
	}
	ctype := mime.TypeByExtension(path.Ext(name))
	if ctype == "" {
		ctype = http.DetectContentType(body)
	}
	return Page{Name: name, ContentType: ctype, Body: body}, nil
}

func mustLookup(name string) Page {
	p, err := lookup(name)
	if err != nil {
		panic(err)
	}
	return p
}

// errorPages maps the statuses that get a friendly body to their page.
func errorPages() map[int]Page {
	return map[int]Page{
		http.StatusNotFound:            mustLookup("404.html"),
		http.StatusGone:                mustLookup("410.html"),
		http.StatusInternalServerError: mustLookup("500.html"),
	}
}

// serveStatic serves embedded files. Missing files get an empty 404 that
// ErrorPages fills in.
func serveStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/")
	switch {
	case name == "":
		name = "index.html"
	case hidden[name]:
		w.WriteHeader(http.StatusNotFound)
		return
	}

	p, err := lookup(name)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	// HEAD has no body for ETag to hash, so tag the page here.
	w.Header().Set("Content-Type", p.ContentType)
	w.Header().Set("ETag", strongETag(p.Body))
	http.ServeContent(w, r, p.Name, time.Time{}, bytes.NewReader(p.Body))
}

// latexhax serves the disambiguation page for the retired LaTeX hax
// collection.
func latexhax(w http.ResponseWriter, _ *http.Request) {
	p := mustLookup("300-latexhax.html")
	w.Header().Set("Content-Type", p.ContentType)
	w.WriteHeader(http.StatusMultipleChoices)
	_, _ = w.Write(p.Body)
}
