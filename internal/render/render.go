// Package render merges a flat variable map into a plain-text document
// template. It is deliberately small; the issuance core treats it as a black
// box that either returns bytes or a *Error.
//
// Placeholders are {{name}}. A repeating section is delimited by
// {{#repeat}} and {{/repeat}}; inside it, {{name#}} resolves to the variable
// "name#1", "name#2", ... for each block, and {{#}} to the block index.
package render

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	placeholderRE = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]*#?)\s*\}\}`)
	repeatRE      = regexp.MustCompile(`(?s)\{\{#repeat\}\}\n?(.*?)\{\{/repeat\}\}\n?`)
)

// Error reports why rendering failed.
type Error struct {
	DocumentType string
	Missing      []string
	Reason       string
}

func (e *Error) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("render %s: missing variables %s", e.DocumentType, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("render %s: %s", e.DocumentType, e.Reason)
}

// Engine renders registered templates by document type.
type Engine struct {
	templates map[string]string
}

// New returns an engine preloaded with the built-in templates. Extra entries
// replace built-ins of the same type.
func New(overrides map[string]string) *Engine {
	t := make(map[string]string, len(builtins)+len(overrides))
	for k, v := range builtins {
		t[k] = v
	}
	for k, v := range overrides {
		t[k] = v
	}
	return &Engine{templates: t}
}

// Render is deterministic: the same inputs produce the same bytes.
func (e *Engine) Render(ctx context.Context, documentType string, vars map[string]string, repeatCount int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tmpl, ok := e.templates[documentType]
	if !ok {
		return nil, &Error{DocumentType: documentType, Reason: "no template registered"}
	}
	if repeatCount < 0 {
		return nil, &Error{DocumentType: documentType, Reason: "negative repeat count"}
	}

	missing := map[string]struct{}{}
	// Repeat sections are expanded first so that the second pass only sees
	// document-level placeholders.
	expanded := repeatRE.ReplaceAllStringFunc(tmpl, func(section string) string {
		body := repeatRE.FindStringSubmatch(section)[1]
		var b strings.Builder
		for i := 1; i <= repeatCount; i++ {
			b.WriteString(fill(body, vars, i, missing))
		}
		return b.String()
	})
	out := fill(expanded, vars, 0, missing)

	if len(missing) > 0 {
		keys := make([]string, 0, len(missing))
		for k := range missing {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return nil, &Error{DocumentType: documentType, Missing: keys}
	}
	return []byte(normalize(out)), nil
}

// fill substitutes placeholders. index is the 1-based block number inside a
// repeat section, 0 outside.
func fill(text string, vars map[string]string, index int, missing map[string]struct{}) string {
	return placeholderRE.ReplaceAllStringFunc(text, func(m string) string {
		key := placeholderRE.FindStringSubmatch(m)[1]
		if key == "#" && index > 0 {
			return strconv.Itoa(index)
		}
		if strings.HasSuffix(key, "#") {
			if index == 0 {
				// block placeholder outside a repeat section
				missing[key] = struct{}{}
				return ""
			}
			key += strconv.Itoa(index)
		}
		if v, ok := vars[key]; ok {
			return v
		}
		missing[key] = struct{}{}
		return ""
	})
}

func normalize(in string) string {
	lines := strings.Split(strings.ReplaceAll(in, "\r\n", "\n"), "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t")
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n") + "\n"
}
