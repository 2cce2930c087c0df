package models

import (
	"fmt"
	"strings"
)

// Render produces unified-diff text for the edit. It is computed on demand
// rather than stored, since most confirmations are never displayed.
func (d *FileDiff) Render() string {
	if d == nil {
		return ""
	}
	oldLabel, newLabel := "a/"+d.Path, "b/"+d.Path
	if d.IsNew {
		oldLabel = "/dev/null"
	}
	if d.IsDeletion {
		newLabel = "/dev/null"
	}

	oldLines := splitLines(d.OldContent)
	newLines := splitLines(d.NewContent)

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n", oldLabel)
	fmt.Fprintf(&sb, "+++ %s\n", newLabel)
	fmt.Fprintf(&sb, "@@ -1,%d +1,%d @@\n", len(oldLines), len(newLines))
	for _, line := range oldLines {
		sb.WriteString("-" + line + "\n")
	}
	for _, line := range newLines {
		sb.WriteString("+" + line + "\n")
	}
	return sb.String()
}

func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}
