package meta

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/flemzord/mcphub/internal/proxy"
)

func TestParseNames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		reply   string
		want    []string
		wantErr bool
	}{
		{
			name:  "bare array",
			reply: `["a__foo","b__bar"]`,
			want:  []string{"a__foo", "b__bar"},
		},
		{
			name:  "fenced",
			reply: "```json\n[\"a__foo\"]\n```",
			want:  []string{"a__foo"},
		},
		{
			name:  "surrounding prose",
			reply: `The relevant tools are: ["a__foo"] — hope that helps.`,
			want:  []string{"a__foo"},
		},
		{
			name:  "empty array",
			reply: `[]`,
			want:  nil,
		},
		{
			name:    "no array",
			reply:   "I cannot help with that.",
			wantErr: true,
		},
		{
			name:    "array of objects",
			reply:   `[{"name":"a__foo"}]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseNames(tt.reply)
			if tt.wantErr {
				if !errors.Is(err, ErrUnparsableReply) {
					t.Fatalf("want ErrUnparsableReply, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("parseNames = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	prompt := buildPrompt("find cats", []proxy.Record{
		{Name: "a__foo", Description: "[a] cat finder"},
	})
	for _, want := range []string{"a__foo", "cat finder", "find cats", "JSON array"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt should contain %q", want)
		}
	}
}
