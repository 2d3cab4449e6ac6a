package util

import (
	"bytes"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"text/template"
)

var funcs = template.FuncMap{
	"default": func(def, val any) any {
		if val == nil || val == "" {
			return def
		}
		return val
	},
	"join":  join,
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	// goFloat renders a float64 literal that stays float64 under :=.
	"goFloat": func(v float64) string {
		return "float64(" + strconv.FormatFloat(v, 'g', -1, 64) + ")"
	},
	"quote": strconv.Quote,
}

// RenderTemplate renders prompts and fragment sources with text/template.
// Missing keys render as zero values. Text without template markers is
// returned unchanged.
func RenderTemplate(text string, state map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	tmpl, err := template.New("render").Option("missingkey=zero").Funcs(funcs).Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, state); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func join(sep string, items any) string {
	v := reflect.ValueOf(items)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return fmt.Sprint(items)
	}
	parts := make([]string, v.Len())
	for i := range parts {
		parts[i] = fmt.Sprint(v.Index(i).Interface())
	}
	return strings.Join(parts, sep)
}
