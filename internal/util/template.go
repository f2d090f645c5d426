package util

import (
	"fmt"
	"strings"
	"text/template"
	"unicode"
	"unicode/utf8"
)

// promptFuncs are the helpers available inside instruction templates.
var promptFuncs = template.FuncMap{
	"default": func(fallback, val any) any {
		if val == nil || val == "" {
			return fallback
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"trim":  strings.TrimSpace,
	"title": func(s string) string {
		r, size := utf8.DecodeRuneInString(s)
		if size == 0 {
			return s
		}
		return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
	},
	"join": func(sep string, items []any) string {
		parts := make([]string, 0, len(items))
		for _, it := range items {
			parts = append(parts, fmt.Sprint(it))
		}
		return strings.Join(parts, sep)
	},
	// truncate cuts s to at most n bytes without splitting a rune, keeping
	// prompts of chained steps bounded.
	"truncate": func(n int, s string) string {
		if n < 0 || len(s) <= n {
			return s
		}
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
		return s[:n]
	},
}

// RenderTemplate executes text as a prompt template against state. Text
// without "{{" is returned as is, so plain instructions never fail to parse.
func RenderTemplate(text string, state map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := template.New("instruction").Funcs(promptFuncs).Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse instruction template: %w", err)
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, state); err != nil {
		return "", fmt.Errorf("render instruction template: %w", err)
	}
	return b.String(), nil
}
