package proxy

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func TestQualify(t *testing.T) {
	t.Parallel()

	if got := Qualify("bash", "read_file"); got != "bash__read_file" {
		t.Errorf("Qualify = %q, want bash__read_file", got)
	}
}

func TestSplitQualified(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		input      string
		wantServer string
		wantRaw    string
		wantErr    bool
	}{
		{name: "simple", input: "bash__read_file", wantServer: "bash", wantRaw: "read_file"},
		{
			// Raw tool names may themselves contain the separator; the
			// split is on the first occurrence only.
			name:       "separator in raw name",
			input:      "x__a__b",
			wantServer: "x",
			wantRaw:    "a__b",
		},
		{name: "no separator", input: "plain", wantErr: true},
		{name: "empty server", input: "__tool", wantErr: true},
		{name: "empty raw", input: "server__", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server, raw, err := SplitQualified(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if server != tt.wantServer || raw != tt.wantRaw {
				t.Errorf("SplitQualified(%q) = (%q, %q), want (%q, %q)",
					tt.input, server, raw, tt.wantServer, tt.wantRaw)
			}
		})
	}
}

func TestAdd_DuplicateRejected(t *testing.T) {
	t.Parallel()

	p := New(nil)
	rec := Record{Name: "a__foo", Server: "a", Raw: "foo"}
	if err := p.Add(rec); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	if err := p.Add(rec); err == nil {
		t.Fatal("second Add should fail")
	}
	if p.Len() != 1 {
		t.Errorf("Len = %d, want 1", p.Len())
	}
}

func TestRecords_Sorted(t *testing.T) {
	t.Parallel()

	p := New(nil)
	for _, name := range []string{"b__z", "a__y", "b__a"} {
		server, raw, _ := SplitQualified(name)
		if err := p.Add(Record{Name: name, Server: server, Raw: raw}); err != nil {
			t.Fatal(err)
		}
	}

	records := p.Records()
	want := []string{"a__y", "b__a", "b__z"}
	if len(records) != len(want) {
		t.Fatalf("got %d records, want %d", len(records), len(want))
	}
	for i, rec := range records {
		if rec.Name != want[i] {
			t.Errorf("records[%d] = %q, want %q", i, rec.Name, want[i])
		}
	}
}

func TestCallTool_InBandErrors(t *testing.T) {
	t.Parallel()

	p := New(nil)
	if err := p.Add(Record{Name: "a__foo", Server: "a", Raw: "foo"}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		tool    string
		wantSub string
	}{
		{name: "malformed name", tool: "plain", wantSub: "malformed"},
		{name: "unknown backend", tool: "nope__tool", wantSub: "unavailable"},
		{name: "known record but no session", tool: "a__foo", wantSub: "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res := p.CallTool(context.Background(), tt.tool, nil)
			if res == nil {
				t.Fatal("expected a result")
			}
			if !res.IsError {
				t.Fatal("expected in-band error result")
			}
			if text := resultText(res); !strings.Contains(text, tt.wantSub) {
				t.Errorf("error text %q should contain %q", text, tt.wantSub)
			}
		})
	}
}

func TestEvict(t *testing.T) {
	t.Parallel()

	p := New(nil)
	for _, rec := range []Record{
		{Name: "a__one", Server: "a", Raw: "one"},
		{Name: "a__two", Server: "a", Raw: "two"},
		{Name: "b__one", Server: "b", Raw: "one"},
	} {
		if err := p.Add(rec); err != nil {
			t.Fatal(err)
		}
	}

	p.Evict("a")

	if p.Len() != 1 {
		t.Fatalf("Len = %d, want 1 after eviction", p.Len())
	}
	if _, ok := p.Record("b__one"); !ok {
		t.Error("b__one should survive eviction of a")
	}
	if _, ok := p.Record("a__one"); ok {
		t.Error("a__one should be gone")
	}
}

func TestRecord_SchemaRoundTrip(t *testing.T) {
	t.Parallel()

	schema := json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}}}`)
	p := New(nil)
	if err := p.Add(Record{Name: "fs__read", Server: "fs", Raw: "read", InputSchema: schema}); err != nil {
		t.Fatal(err)
	}

	rec, ok := p.Record("fs__read")
	if !ok {
		t.Fatal("record not found")
	}
	if string(rec.InputSchema) != string(schema) {
		t.Errorf("InputSchema = %s, want %s", rec.InputSchema, schema)
	}
}

// resultText extracts the first text part of a call result.
func resultText(res *mcp.CallToolResult) string {
	for _, part := range res.Content {
		if tc, ok := part.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}
