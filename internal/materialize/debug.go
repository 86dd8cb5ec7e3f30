package materialize

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// DebugValidateHTML runs a full HTML5 tree-builder pass over body. The
// tree builder repairs malformed markup rather than rejecting it, so
// this only surfaces reader-level failures. It runs on --verbose
// builds only, never on the critical path for materializing a page.
func DebugValidateHTML(body []byte) error {
	node, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("debug html validation: %w", err)
	}
	doc := goquery.NewDocumentFromNode(node)
	if doc.Find("html").Length() == 0 {
		return fmt.Errorf("debug html validation: no html element after tree repair")
	}
	return nil
}
