package llm

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/roach88/jobtrail/internal/enrich"
)

// MaxBodyRunes bounds the message body sent to the model.
const MaxBodyRunes = 6000

const systemPrompt = `You classify job-application emails for a personal tracker.
Answer with a single JSON object and nothing else.`

// BuildPrompt returns the system and user messages for one row.
func BuildPrompt(in enrich.Input) (system, user string) {
	var b strings.Builder

	b.WriteString("Extract the following fields from the email below.\n\n")
	for _, f := range in.Fields {
		fmt.Fprintf(&b, "- %s: %s\n", f.Name, f.Description)
	}
	if len(in.NextActions) > 0 {
		fmt.Fprintf(&b, "\nnext_action is required and must be exactly one of: %s.\n", strings.Join(in.NextActions, ", "))
	}
	b.WriteString("Use null for anything the email does not say.\n\n")

	fmt.Fprintf(&b, "From: %s\n", in.Intrinsic.From)
	fmt.Fprintf(&b, "Subject: %s\n", in.Intrinsic.Subject)
	fmt.Fprintf(&b, "Company: %s\n", in.Intrinsic.Company)
	fmt.Fprintf(&b, "Received (UTC): %s\n", in.Intrinsic.ReceivedUTC)
	b.WriteString("\n")
	b.WriteString(BodyText(in.Intrinsic.Body))

	return systemPrompt, b.String()
}

// BodyText converts an email body to plain text: HTML is reduced to its
// visible text, whitespace is collapsed, and the result is clipped to
// MaxBodyRunes.
func BodyText(body string) string {
	text := body
	if looksLikeHTML(body) {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(body)); err == nil {
			doc.Find("script, style, head").Remove()
			doc.Find("br").ReplaceWithHtml("\n")
			doc.Find("p, div, li, tr, h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
				s.AppendHtml("\n")
			})
			text = doc.Text()
		}
	}

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			kept = append(kept, line)
		}
	}
	text = strings.Join(kept, "\n")

	if r := []rune(text); len(r) > MaxBodyRunes {
		text = string(r[:MaxBodyRunes]) + "…"
	}
	return text
}

func looksLikeHTML(s string) bool {
	lower := strings.ToLower(s)
	for _, tag := range []string{"<html", "<body", "<div", "<p>", "<p ", "<br", "<table", "</"} {
		if strings.Contains(lower, tag) {
			return true
		}
	}
	return false
}
