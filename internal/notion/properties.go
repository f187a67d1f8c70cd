package notion

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxTextRunes is the Notion limit for one rich text content object.
const MaxTextRunes = 2000

// EncodeProperties converts string values into Notion property values using
// the database's property types. Empty values clear the property. Values that
// cannot be represented in their type (an unparsable date or number) clear it
// as well, so one malformed cell does not reject the whole page.
func EncodeProperties(values map[string]string, types map[string]string) (map[string]any, error) {
	out := make(map[string]any, len(values))
	for name, v := range values {
		typ, ok := types[name]
		if !ok {
			return nil, fmt.Errorf("property %q is not in the database schema", name)
		}
		enc, err := encodeValue(typ, strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		out[name] = enc
	}
	return out, nil
}

func encodeValue(typ, v string) (any, error) {
	switch typ {
	case "title":
		return map[string]any{"title": textObjects(v)}, nil
	case "rich_text":
		return map[string]any{"rich_text": textObjects(v)}, nil
	case "select":
		if v == "" {
			return map[string]any{"select": nil}, nil
		}
		// Select option names may not contain commas.
		return map[string]any{"select": map[string]any{"name": strings.ReplaceAll(v, ",", " ")}}, nil
	case "date":
		start, ok := normalizeDate(v)
		if !ok {
			return map[string]any{"date": nil}, nil
		}
		return map[string]any{"date": map[string]any{"start": start}}, nil
	case "number":
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return map[string]any{"number": nil}, nil
		}
		return map[string]any{"number": f}, nil
	default:
		return nil, fmt.Errorf("unsupported property type %q", typ)
	}
}

func textObjects(v string) []any {
	if v == "" {
		return []any{}
	}
	if r := []rune(v); len(r) > MaxTextRunes {
		v = string(r[:MaxTextRunes])
	}
	return []any{map[string]any{"type": "text", "text": map[string]any{"content": v}}}
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// normalizeDate accepts ISO-8601 timestamps and dates. Timestamps are sent in
// UTC; plain dates stay dates.
func normalizeDate(v string) (string, bool) {
	if v == "" {
		return "", false
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, v)
		if err != nil {
			continue
		}
		if layout == "2006-01-02" {
			return t.Format(layout), true
		}
		return t.UTC().Format(time.RFC3339), true
	}
	return "", false
}

// plainText extracts the concatenated plain text of a rich_text or title
// property value.
func plainText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var prop struct {
		Type     string `json:"type"`
		RichText []struct {
			PlainText string `json:"plain_text"`
		} `json:"rich_text"`
		Title []struct {
			PlainText string `json:"plain_text"`
		} `json:"title"`
	}
	if err := json.Unmarshal(raw, &prop); err != nil {
		return ""
	}
	parts := prop.RichText
	if prop.Type == "title" {
		parts = prop.Title
	}
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.PlainText)
	}
	return b.String()
}
