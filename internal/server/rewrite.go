package server

import (
	"regexp"
	"strings"
)

// ReloadScript is inserted into every HTML page. It long-polls WaitPath and
// reloads the page once the server answers 200; any other outcome (timeout,
// restart, network error) re-arms the poll after a second.
const ReloadScript = `<script type="text/javascript">
(function () {
  function wait() {
    fetch("` + WaitPath + `", {cache: "no-store"}).then(function (resp) {
      if (resp.status === 200) {
        window.location.reload();
      } else {
        setTimeout(wait, 1000);
      }
    }, function () {
      setTimeout(wait, 1000);
    });
  }
  wait();
})();
</script>
`

// DefaultFontHosts are the font CDNs whose @import rules are stripped from
// stylesheets, so pages render offline without waiting on the network.
var DefaultFontHosts = []string{"fonts.googleapis.com"}

var headClose = regexp.MustCompile(`(?i)</head\s*>`)

// Rewriter applies the HTML and CSS body rewrites.
type Rewriter struct {
	fontImport *regexp.Regexp
}

// NewRewriter returns a Rewriter stripping @import rules that reference any
// of fontHosts. An empty list disables CSS rewriting.
func NewRewriter(fontHosts []string) *Rewriter {
	quoted := make([]string, 0, len(fontHosts))

	for _, h := range fontHosts {
		if h = strings.TrimSpace(h); h != "" {
			quoted = append(quoted, regexp.QuoteMeta(h))
		}
	}

	rw := &Rewriter{}
	if len(quoted) > 0 {
		// Matches both @import url(...) and @import "..." forms. The URL is
		// consumed as a unit since css2 URLs carry ';' in their query.
		hosts := `(?:` + strings.Join(quoted, "|") + `)`
		rw.fontImport = regexp.MustCompile(`(?i)@import\s+(?:` +
			`url\(\s*['"]?[^)]*` + hosts + `[^)]*\)` +
			`|"[^"]*` + hosts + `[^"]*"` +
			`|'[^']*` + hosts + `[^']*'` +
			`)[^;]*;`)
	}

	return rw
}

// HTML inserts ReloadScript immediately before the first closing head tag.
// Bodies without a head element are returned unchanged.
func (rw *Rewriter) HTML(body []byte) []byte {
	loc := headClose.FindIndex(body)
	if loc == nil {
		return body
	}

	out := make([]byte, 0, len(body)+len(ReloadScript))
	out = append(out, body[:loc[0]]...)
	out = append(out, ReloadScript...)
	out = append(out, body[loc[0]:]...)

	return out
}

// CSS removes every font @import rule.
func (rw *Rewriter) CSS(body []byte) []byte {
	if rw.fontImport == nil {
		return body
	}

	return rw.fontImport.ReplaceAll(body, nil)
}
