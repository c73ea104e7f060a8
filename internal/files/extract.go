package files

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

const (
	csvMaxRows  = 20
	maxRawBytes = 64 * 1024 // per-file raw text cap before truncation note
)

// Extract renders the artifact's binary content as text, following
// media-type rules. It never returns an error: extraction failures for one
// file are reported as an in-band placeholder, not a request failure.
func Extract(mediaType string, data []byte) string {
	text, err := extract(mediaType, data)
	if err != nil {
		return fmt.Sprintf("[File content could not be processed: %v]", err)
	}
	return norm.NFC.String(text)
}

func extract(mediaType string, data []byte) (string, error) {
	base := mediaType
	if idx := strings.Index(base, ";"); idx >= 0 {
		base = base[:idx]
	}
	base = strings.TrimSpace(strings.ToLower(base))

	switch {
	case base == "text/plain", base == "text/markdown", strings.HasPrefix(base, "text/x-"):
		return truncateRaw(string(data)), nil
	case base == "text/csv":
		return extractCSV(data)
	case base == "application/json":
		return extractJSON(data)
	case base == "text/html":
		return extractHTML(data)
	case base == "application/xml", base == "text/xml":
		return extractXML(data)
	default:
		return "", fmt.Errorf("unsupported media type %q", mediaType)
	}
}

func truncateRaw(s string) string {
	if len(s) <= maxRawBytes {
		return s
	}
	return s[:maxRawBytes] + "\n… (truncated)"
}

func extractCSV(data []byte) (string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return "", fmt.Errorf("malformed csv: %w", err)
	}
	if len(rows) == 0 {
		return "", nil
	}
	var b strings.Builder
	b.WriteString(strings.Join(rows[0], ","))
	b.WriteString("\n")
	shown := rows[1:]
	truncated := false
	if len(shown) > csvMaxRows {
		truncated = true
		shown = shown[:csvMaxRows]
	}
	for _, row := range shown {
		b.WriteString(strings.Join(row, ","))
		b.WriteString("\n")
	}
	if truncated {
		fmt.Fprintf(&b, "… and %d more rows\n", len(rows)-1-csvMaxRows)
	}
	return b.String(), nil
}

func extractJSON(data []byte) (string, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return "", fmt.Errorf("malformed json: %w", err)
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if obj, ok := v.(map[string]any); ok {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("Top-level keys:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %s\n", k, jsonTypeName(obj[k]))
		}
		b.WriteString("\n")
	}
	b.Write(pretty)
	return b.String(), nil
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	default:
		return "unknown"
	}
}

func extractHTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("malformed html: %w", err)
	}
	var b strings.Builder
	doc.Find("h1, h2, h3, h4, p, li, td").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		if goquery.NodeName(s) == "h1" || goquery.NodeName(s) == "h2" || goquery.NodeName(s) == "h3" || goquery.NodeName(s) == "h4" {
			b.WriteString("## ")
		}
		b.WriteString(text)
		b.WriteString("\n")
	})
	if b.Len() == 0 {
		return strings.TrimSpace(doc.Text()), nil
	}
	return b.String(), nil
}

func extractXML(data []byte) (string, error) {
	// goquery's underlying html parser tolerates XML well enough to pull
	// text content out of structural markup, a minimal structural
	// extraction rather than a strict XML-schema-aware parse.
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("malformed xml: %w", err)
	}
	text := strings.TrimSpace(doc.Text())
	if text == "" {
		return "", fmt.Errorf("no extractable text content")
	}
	return text, nil
}
