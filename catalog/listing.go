package catalog

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	mib = 1024 * 1024
	gib = 1024 * mib
)

// FormatSize renders a byte count the way the catalog shows it: one decimal
// GB from 1 GiB upwards, whole MB below.
func FormatSize(bytes int64) string {
	if bytes >= gib {
		return fmt.Sprintf("%.1fGB", float64(bytes)/gib)
	}
	return fmt.Sprintf("%.0fMB", float64(bytes)/mib)
}

// FormatDate renders a catalog timestamp as a date, passing through anything it can't parse.
func FormatDate(s string) string {
	if s == "" || s == "-" {
		return "-"
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

var bulletRe = regexp.MustCompile(`^[-*+•>]\s+`)

// ParseList extracts one model name per non-empty line of `flm list --quiet`
// output, skipping header-like lines.
func ParseList(stdout string) []string {
	var names []string
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = bulletRe.ReplaceAllString(line, "")
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		name := fields[0]
		if name == "NAME" || strings.HasPrefix(name, "---") || strings.HasPrefix(name, "Model") {
			continue
		}
		names = append(names, name)
	}
	return names
}

// Fallback builds the minimal record for a name missing from the catalog.
func Fallback(name string) Model {
	size := "-"
	if i := strings.LastIndex(name, ":"); i >= 0 && i < len(name)-1 {
		size = name[i+1:]
	}
	return Model{Name: name, Size: size, Modified: "-"}
}

// Merge resolves each listed name against the catalog, keeping listing order.
func Merge(names []string, meta map[string]Model) []Model {
	models := make([]Model, 0, len(names))
	for _, name := range names {
		if m, ok := meta[name]; ok {
			models = append(models, m)
			continue
		}
		models = append(models, Fallback(name))
	}
	return models
}

// Find returns the model with the given name.
func Find(models []Model, name string) (Model, bool) {
	for _, m := range models {
		if m.Name == name {
			return m, true
		}
	}
	return Model{}, false
}
