package meta

import (
	"strings"

	"github.com/flemzord/mcphub/internal/proxy"
)

// filterServer keeps records belonging to the named server. Empty server
// keeps everything.
func filterServer(records []proxy.Record, server string) []proxy.Record {
	if server == "" {
		return records
	}
	var out []proxy.Record
	for _, rec := range records {
		if rec.Server == server {
			out = append(out, rec)
		}
	}
	return out
}

// filterKeywords keeps records whose lowercased name, description, or
// schema contains ANY of the keywords (OR semantics). An empty keyword list
// keeps everything.
func filterKeywords(records []proxy.Record, keywords []string) []proxy.Record {
	if len(keywords) == 0 {
		return records
	}

	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lowered = append(lowered, k)
		}
	}
	if len(lowered) == 0 {
		return records
	}

	var out []proxy.Record
	for _, rec := range records {
		haystack := strings.ToLower(rec.Name + " " + rec.Description + " " + string(rec.InputSchema))
		for _, k := range lowered {
			if strings.Contains(haystack, k) {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}
