package pipeline

import "github.com/microcosm-cc/bluemonday"

// inboundHTMLPolicy sanitizes an inbound message's body.html between
// attachment processing and routing. It is never applied to outbound
// compose, which must round-trip whatever html an application enqueued.
// A bluemonday.Policy is safe for concurrent Sanitize calls once built, so
// one instance is shared across every inbound record.
var inboundHTMLPolicy = newInboundHTMLPolicy()

func newInboundHTMLPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"p", "br", "b", "strong", "i", "em", "u", "ul", "ol", "li",
		"blockquote", "h1", "h2", "h3", "h4", "h5", "h6", "span", "div",
		"a", "img", "table", "thead", "tbody", "tr", "td", "th", "pre", "code",
	)
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("src").OnElements("img")
	p.AllowAttrs("alt", "title").OnElements("img", "a")
	p.AllowStandardURLs()
	p.RequireNoFollowOnLinks(true)
	return p
}

func sanitizeInboundHTML(html string) string {
	return inboundHTMLPolicy.Sanitize(html)
}
