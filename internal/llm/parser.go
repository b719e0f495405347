package llm

import (
	"fmt"
	"strconv"
	"strings"
)

// cleanMarkdownWrapper strips a surrounding fenced code block, with or
// without a language tag, from model output.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}

	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return content
	}
	// Drop the opening fence line (``` or ```action etc.)
	lines = lines[1:]
	// Drop the closing fence if present
	for i := len(lines) - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			continue
		}
		if trimmed == "```" {
			lines = lines[:i]
		}
		break
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// parseFieldTable parses the single-action output format: one "key: value"
// line per field. Keys are case-insensitive and surrounding whitespace is
// tolerated; lines without a colon are skipped. The verb field is mandatory.
func parseFieldTable(content string) (map[string]string, error) {
	content = cleanMarkdownWrapper(content)

	fields := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}

		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		// First occurrence wins; models sometimes repeat themselves
		if _, exists := fields[key]; !exists {
			fields[key] = value
		}
	}

	if fields["verb"] == "" {
		return nil, fmt.Errorf("no verb field in response")
	}
	return fields, nil
}

// parseRowTable parses the bulk output format: a pipe-separated header line
// naming the columns, followed by one row per extracted action. The header
// must declare a verb column. Rows violating the declared column count are
// rejected and omitted from the result.
func parseRowTable(content string) ([]map[string]string, error) {
	content = cleanMarkdownWrapper(content)

	var header []string
	var rows []map[string]string

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		// Tolerate markdown-style leading/trailing pipes and rule lines
		line = strings.Trim(line, "|")
		if strings.Trim(line, "-| ") == "" {
			continue
		}

		cols := strings.Split(line, "|")
		for i := range cols {
			cols[i] = strings.TrimSpace(cols[i])
		}

		if header == nil {
			header = make([]string, len(cols))
			hasVerb := false
			for i, col := range cols {
				header[i] = strings.ToLower(col)
				if header[i] == "verb" {
					hasVerb = true
				}
			}
			if !hasVerb {
				return nil, fmt.Errorf("row table header missing verb column")
			}
			continue
		}

		if len(cols) != len(header) {
			continue
		}

		row := make(map[string]string, len(header))
		for i, col := range cols {
			if col == "" || col == "-" {
				continue
			}
			row[header[i]] = col
		}
		if row["verb"] == "" {
			continue
		}
		rows = append(rows, row)
	}

	if header == nil {
		return nil, fmt.Errorf("no row table header in response")
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no valid rows in response")
	}
	return rows, nil
}

// parseConfidence reads a confidence field tolerantly, accepting plain
// floats and percentages, clamped to [0, 1]. The fallback is used when the
// field is absent or unreadable.
func parseConfidence(raw string, fallback float64) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	if strings.HasSuffix(raw, "%") {
		if v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(raw, "%")), 64); err == nil {
			return clampConfidence(v / 100.0)
		}
		return fallback
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	// Models occasionally emit percentages without the sign
	if v > 1 && v <= 100 {
		v /= 100.0
	}
	return clampConfidence(v)
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
