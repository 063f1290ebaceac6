// Package bindings emits one typed Python stub per federated tool, plus
// index modules per backend and a top-level index, from the live catalog.
// Generation runs once after discovery and is deterministic: the same
// catalog produces byte-equal output.
package bindings

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"text/template"

	"github.com/flemzord/mcphub/internal/proxy"
)

// Generator writes the binding tree under Dir (the workspace generated/
// directory).
type Generator struct {
	// Dir is the output root; the tree lands in Dir/servers/.
	Dir string

	// ProxyPort is baked into the runtime helper's default endpoint.
	ProxyPort int
}

var (
	runtimeTmpl = template.Must(template.New("runtime").Parse(runtimePy))

	stubTmpl = template.Must(template.New("stub").Parse(`"""{{.Description}}"""
from typing import Any{{if .Fields}}, Required, TypedDict{{end}}

from servers._runtime import invoke

{{if .Fields}}
class {{.ArgsClass}}(TypedDict, total=False):
{{- range .Fields}}
    {{.Name}}: "{{.Annotation}}"
{{- end}}

{{end}}
def {{.Func}}(args{{if .Fields}}: "{{.ArgsClass}} | None"{{end}} = None, **kwargs: Any) -> Any:
    """{{.Description}}"""
    payload: dict[str, Any] = dict(args or {})
    payload.update(kwargs)
    return invoke("{{.Qualified}}", payload)
`))

	serverIndexTmpl = template.Must(template.New("serverIndex").Parse(`"""Tools of the {{.Server}} backend."""
{{range .Stubs}}from .{{.Module}} import {{.Func}} as {{.Func}}
{{end}}`))

	topIndexTmpl = template.Must(template.New("topIndex").Parse(`"""Generated tool bindings, one namespace per backend."""
{{range .Servers}}from . import {{.}} as {{.}}
{{end}}`))
)

// stubData feeds the per-tool template.
type stubData struct {
	Qualified   string
	Description string
	Func        string
	Module      string
	ArgsClass   string
	Fields      []field
}

// Generate rewrites the binding tree from the catalog. The previous tree is
// removed first so evicted tools leave no stale stubs behind.
func (g *Generator) Generate(records []proxy.Record) error {
	serversDir := filepath.Join(g.Dir, "servers")
	if err := os.RemoveAll(serversDir); err != nil {
		return fmt.Errorf("bindings: clearing %s: %w", serversDir, err)
	}
	if err := os.MkdirAll(serversDir, 0o755); err != nil {
		return fmt.Errorf("bindings: %w", err)
	}

	if err := g.render(runtimeTmpl, filepath.Join(serversDir, "_runtime.py"), struct{ ProxyPort int }{g.ProxyPort}); err != nil {
		return err
	}

	byServer := make(map[string][]stubData)
	for _, rec := range records {
		module := sanitizeIdent(rec.Raw)
		stub := stubData{
			Qualified:   rec.Name,
			Description: rec.Description,
			Func:        module,
			Module:      module,
			ArgsClass:   camelCase(rec.Raw) + "Args",
			Fields:      schemaFields(rec.InputSchema),
		}
		byServer[sanitizeIdent(rec.Server)] = append(byServer[sanitizeIdent(rec.Server)], stub)
	}

	servers := make([]string, 0, len(byServer))
	for server := range byServer {
		servers = append(servers, server)
	}
	slices.Sort(servers)

	for _, server := range servers {
		stubs := byServer[server]
		slices.SortFunc(stubs, func(a, b stubData) int {
			switch {
			case a.Module < b.Module:
				return -1
			case a.Module > b.Module:
				return 1
			default:
				return 0
			}
		})

		dir := filepath.Join(serversDir, server)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("bindings: %w", err)
		}
		for _, stub := range stubs {
			if err := g.render(stubTmpl, filepath.Join(dir, stub.Module+".py"), stub); err != nil {
				return err
			}
		}
		err := g.render(serverIndexTmpl, filepath.Join(dir, "__init__.py"), struct {
			Server string
			Stubs  []stubData
		}{server, stubs})
		if err != nil {
			return err
		}
	}

	return g.render(topIndexTmpl, filepath.Join(serversDir, "__init__.py"), struct{ Servers []string }{servers})
}

func (g *Generator) render(tmpl *template.Template, path string, data any) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("bindings: rendering %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("bindings: writing %s: %w", path, err)
	}
	return nil
}
