package build

import (
	"path"
	"strings"

	"github.com/orreryhq/orrery/internal/widget"
)

// rewriteMarkup replaces references to a widget's own script and style with
// their absolute, content-addressed URLs, making the markup self-hosting
// once served. Two reference forms are rewritten:
//
//   - the placeholders "{{script}}" and "{{style}}"
//   - the entry point basename as a whole quoted attribute value, with or
//     without a leading "./" (e.g. src="./widget.js" or src='widget.js')
//
// Quoting the basename match keeps the rewrite from touching visible text
// or unrelated URLs that merely end in the same basename, such as a CDN
// script that happens to be called widget.js.
//
// The markup artifact is hashed after this rewrite, so its hash depends on
// the final referenced URLs.
func rewriteMarkup(markup []byte, entrypoints map[widget.Kind]string, urls map[widget.Kind]string) []byte {
	s := string(markup)
	for _, kind := range []widget.Kind{widget.KindScript, widget.KindStyle} {
		url, ok := urls[kind]
		if !ok {
			continue
		}
		s = strings.ReplaceAll(s, "{{"+string(kind)+"}}", url)
		if base := path.Base(entrypoints[kind]); base != "" && base != "." {
			for _, q := range []string{`"`, `'`} {
				s = strings.ReplaceAll(s, q+"./"+base+q, q+url+q)
				s = strings.ReplaceAll(s, q+base+q, q+url+q)
			}
		}
	}
	return []byte(s)
}
