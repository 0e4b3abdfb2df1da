package site

import (
	"net/http"
	"regexp"
)

const latexbokPDF = "https://github.com/urdh/latexbok/releases/download/edition-2/latexbok-a4.pdf"

// rule answers every request whose path matches re. A rule without a target
// answers 410 Gone; otherwise it redirects permanently to target, expanded
// with the submatches of re.
type rule struct {
	re     *regexp.Regexp
	target string
}

func gone(pattern string) rule {
	return rule{re: regexp.MustCompile("^" + pattern + "$")}
}

func moved(pattern, target string) rule {
	return rule{re: regexp.MustCompile("^" + pattern + "$"), target: target}
}

func project(name string) rule {
	return moved("/"+name+"/(.*)", "https://projects.sigurdhsson.org/"+name+"/$1")
}

// rules are the addresses the site has retired, tried in order.
var rules = []rule{
	gone("/archives/.*"),
	gone("/portfolio/.*"),
	gone("/autobrew"),
	gone("/chslacite"),
	gone("/posts/I-X/.*"),
	moved(`/atom\.xml`, "https://blog.sigurdhsson.org/atom.xml"),
	moved(`/2012/11/([^/.]+)`, "https://blog.sigurdhsson.org/2012/11/$1"),
	moved(`/2014/04/([^/.]+)`, "https://blog.sigurdhsson.org/2014/04/$1"),
	moved(`/2014/09/([^/.]+)`, "https://blog.sigurdhsson.org/2014/09/$1"),
	project("skrapport"),
	project("dotfiles"),
	project("skmath"),
	project("latexbok"),
	project("skdoc"),
	project("chscite"),
	project("streck"),
	moved("/webboken/v2/(.*)", "https://webboken.github.io/$1"),
	moved(`/media/projects/latexbok/latexbok\.pdf`, latexbokPDF),
	moved(`/latexbok/media/latexbok\.pdf`, latexbokPDF),
	moved("/latexhax", "/latexhax.html"),
	moved("/latexhax/", "/latexhax.html"),
	moved(`/latexhax/index\.html`, "/latexhax.html"),
	moved(`/projects/latexhax\.html`, "/latexhax.html"),
}

// match returns the status and location for p, or zero if no rule applies.
func match(p string) (int, string) {
	for _, r := range rules {
		m := r.re.FindStringSubmatchIndex(p)
		if m == nil {
			continue
		}
		if r.target == "" {
			return http.StatusGone, ""
		}
		return http.StatusPermanentRedirect, string(r.re.ExpandString(nil, r.target, p, m))
	}
	return 0, ""
}

// fallback answers retired addresses and hands everything else to next.
func fallback(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status, location := match(r.URL.Path)
		switch status {
		case 0:
			next.ServeHTTP(w, r)
		case http.StatusGone:
			w.WriteHeader(status)
		default:
			w.Header().Set("Location", location)
			w.WriteHeader(status)
		}
	})
}
