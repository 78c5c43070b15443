package funcs

import (
	"strings"
	"text/template"
	"time"
)

var TemplateFuncs = template.FuncMap{
	"now":        time.Now,
	"formatTime": formatTime,
	"upper":      strings.ToUpper,
	"titleCase":  titleCase,
}

func formatTime(format string, t time.Time) string {
	return t.Format(format)
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}

	return strings.Join(words, " ")
}
