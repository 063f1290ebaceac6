package bindings

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// pythonKeywords are reserved words that cannot be used as identifiers.
var pythonKeywords = map[string]struct{}{
	"False": {}, "None": {}, "True": {}, "and": {}, "as": {}, "assert": {},
	"async": {}, "await": {}, "break": {}, "class": {}, "continue": {},
	"def": {}, "del": {}, "elif": {}, "else": {}, "except": {}, "finally": {},
	"for": {}, "from": {}, "global": {}, "if": {}, "import": {}, "in": {},
	"is": {}, "lambda": {}, "nonlocal": {}, "not": {}, "or": {}, "pass": {},
	"raise": {}, "return": {}, "try": {}, "while": {}, "with": {}, "yield": {},
}

// sanitizeIdent turns an arbitrary name into a valid Python identifier:
// non-alphanumerics become underscores, a leading digit is prefixed, and
// keywords get a trailing underscore.
func sanitizeIdent(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	s := b.String()
	if s == "" {
		s = "_"
	}
	if unicode.IsDigit(rune(s[0])) {
		s = "_" + s
	}
	if _, kw := pythonKeywords[s]; kw {
		s += "_"
	}
	return s
}

// camelCase converts a snake-ish identifier into CamelCase for class names.
func camelCase(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	if b.Len() == 0 {
		return "X"
	}
	s := b.String()
	if unicode.IsDigit(rune(s[0])) {
		s = "X" + s
	}
	return s
}

// schemaObject is the subset of JSON Schema the type mapper understands.
type schemaObject struct {
	Type       json.RawMessage            `json:"type"`
	Properties map[string]json.RawMessage `json:"properties"`
	Required   []string                   `json:"required"`
	Items      json.RawMessage            `json:"items"`
}

// pyType maps a JSON Schema fragment to a Python annotation. Anything the
// mapper does not understand becomes Any.
func pyType(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "Any"
	}
	var obj schemaObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "Any"
	}

	var typ string
	if err := json.Unmarshal(obj.Type, &typ); err != nil {
		// A type list or absent type is opaque.
		return "Any"
	}

	switch typ {
	case "string":
		return "str"
	case "number":
		return "float"
	case "integer":
		return "int"
	case "boolean":
		return "bool"
	case "null":
		return "None"
	case "array":
		return fmt.Sprintf("list[%s]", pyType(obj.Items))
	case "object":
		return "dict[str, Any]"
	default:
		return "Any"
	}
}

// field is one generated TypedDict entry.
type field struct {
	Name       string
	Annotation string
}

// schemaFields derives sorted TypedDict fields from an object schema.
// Required properties are wrapped in typing.Required; everything else is
// optional by virtue of total=False.
func schemaFields(raw json.RawMessage) []field {
	if len(raw) == 0 {
		return nil
	}
	var obj schemaObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}

	required := make(map[string]struct{}, len(obj.Required))
	for _, r := range obj.Required {
		required[r] = struct{}{}
	}

	names := make([]string, 0, len(obj.Properties))
	for name := range obj.Properties {
		names = append(names, name)
	}
	slices.Sort(names)

	fields := make([]field, 0, len(names))
	for _, name := range names {
		ann := pyType(obj.Properties[name])
		if _, req := required[name]; req {
			ann = fmt.Sprintf("Required[%s]", ann)
		}
		fields = append(fields, field{Name: sanitizeIdent(name), Annotation: ann})
	}
	return fields
}
