/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package publisher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/waigani/diffparser"
)

// fileChange is one file section of a unified diff. An empty from means the
// file is created; an empty to means it is deleted.
type fileChange struct {
	from, to string
	hunks    []hunk
}

// hunk pairs a parsed hunk with the line counts its "@@" header declares.
type hunk struct {
	*diffparser.DiffHunk
	origLines, newLines int
}

// fileHeader is what one file section's headers say about it.
type fileHeader struct {
	from, to string
	sizes    [][2]int
}

var hunkHeader = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// parsePatch splits a unified diff into per-file changes.
func parsePatch(patch string) ([]fileChange, error) {
	patch, headers, err := scanPatch(strings.ReplaceAll(patch, "\r\n", "\n"))
	if err != nil {
		return nil, err
	}
	if len(headers) == 0 {
		return nil, errors.New("patch contains no file changes")
	}

	diff, err := diffparser.Parse(patch)
	if err != nil {
		return nil, fmt.Errorf("parsing diff: %w", err)
	}
	if len(diff.Files) != len(headers) {
		return nil, fmt.Errorf("patch has %d file headers but %d file sections", len(headers), len(diff.Files))
	}

	changes := make([]fileChange, 0, len(diff.Files))
	for i, f := range diff.Files {
		h := headers[i]
		if len(f.Hunks) != len(h.sizes) {
			return nil, fmt.Errorf("file section %d has %d hunks but %d were parsed", i+1, len(h.sizes), len(f.Hunks))
		}
		fc := fileChange{from: h.from, to: h.to}
		for j, dh := range f.Hunks {
			fc.hunks = append(fc.hunks, hunk{DiffHunk: dh, origLines: h.sizes[j][0], newLines: h.sizes[j][1]})
		}

		for _, name := range []string{fc.from, fc.to} {
			if name != "" && !filepath.IsLocal(name) {
				return nil, fmt.Errorf("patch touches path %q outside the repository", name)
			}
		}
		if fc.from == "" && fc.to == "" {
			return nil, fmt.Errorf("file section %d names no file", i+1)
		}
		changes = append(changes, fc)
	}
	return changes, nil
}

// scanPatch walks the patch once, reading each file section's names and the
// declared size of every hunk. Hunk bodies are consumed by those sizes, so
// body lines are never mistaken for headers. It returns the patch in git
// form: plain unified diffs get a synthesized "diff --git" line per file,
// "\ No newline" markers are dropped and blank context lines get their
// leading space back.
func scanPatch(patch string) (string, []fileHeader, error) {
	lines := strings.Split(patch, "\n")
	out := make([]string, 0, len(lines))

	var (
		headers           []fileHeader
		cur               *fileHeader
		origLeft, newLeft int
	)
	for i := 0; i < len(lines); i++ {
		l := lines[i]
		if strings.HasPrefix(l, `\ `) {
			continue
		}

		if origLeft > 0 || newLeft > 0 {
			if l == "" {
				l = " "
			}
			switch l[0] {
			case ' ':
				origLeft--
				newLeft--
			case '-':
				origLeft--
			case '+':
				newLeft--
			default:
				return "", nil, fmt.Errorf("unexpected line %q inside hunk", l)
			}
			if origLeft < 0 || newLeft < 0 {
				return "", nil, fmt.Errorf("hunk is longer than its header declares at %q", l)
			}
			out = append(out, l)
			continue
		}

		switch {
		case strings.HasPrefix(l, "diff "):
			rest := strings.TrimPrefix(strings.TrimPrefix(l, "diff --git "), "diff ")
			j := strings.LastIndex(rest, " b/")
			if !strings.HasPrefix(rest, "a/") || j < 0 {
				return "", nil, fmt.Errorf("malformed diff header %q", l)
			}
			headers = append(headers, fileHeader{from: rest[2:j], to: rest[j+3:]})
			cur = &headers[len(headers)-1]

		case strings.HasPrefix(l, "--- ") && i+1 < len(lines) && strings.HasPrefix(lines[i+1], "+++ ") &&
			(cur == nil || len(cur.sizes) > 0):
			// A plain unified diff starts each file with ---/+++ only.
			from := plainName(strings.TrimPrefix(l, "--- "), "a/")
			to := plainName(strings.TrimPrefix(lines[i+1], "+++ "), "b/")
			name := from
			if name == "" {
				name = to
			}
			headers = append(headers, fileHeader{from: from, to: to})
			cur = &headers[len(headers)-1]
			out = append(out,
				fmt.Sprintf("diff --git a/%s b/%s", name, name),
				"--- "+prefixed(from, "a/"),
				"+++ "+prefixed(to, "b/"))
			i++
			continue

		case strings.HasPrefix(l, "@@ "):
			m := hunkHeader.FindStringSubmatch(l)
			switch {
			case cur == nil:
				return "", nil, errors.New("hunk appears before any file header")
			case m == nil:
				return "", nil, fmt.Errorf("malformed hunk header %q", l)
			}
			origLeft, newLeft = hunkLength(m[2]), hunkLength(m[4])
			cur.sizes = append(cur.sizes, [2]int{origLeft, newLeft})

		case cur == nil:
		case strings.HasPrefix(l, "rename from "):
			cur.from = strings.TrimPrefix(l, "rename from ")
		case strings.HasPrefix(l, "rename to "):
			cur.to = strings.TrimPrefix(l, "rename to ")
		case strings.HasPrefix(l, "new file mode"), l == "--- /dev/null":
			cur.from = ""
		case strings.HasPrefix(l, "deleted file mode"), l == "+++ /dev/null":
			cur.to = ""
		}
		out = append(out, l)
	}
	if origLeft > 0 || newLeft > 0 {
		return "", nil, errors.New("patch ends inside a hunk")
	}
	return strings.Join(out, "\n"), headers, nil
}

// hunkLength reads an optional "@@" range length, which defaults to 1.
func hunkLength(s string) int {
	if s == "" {
		return 1
	}
	n, _ := strconv.Atoi(s)
	return n
}

// plainName strips the diff prefix and any timestamp from a ---/+++ name.
func plainName(name, prefix string) string {
	if i := strings.IndexByte(name, '\t'); i >= 0 {
		name = name[:i]
	}
	if name == "/dev/null" {
		return ""
	}
	return strings.TrimPrefix(name, prefix)
}

func prefixed(name, prefix string) string {
	if name == "" {
		return "/dev/null"
	}
	return prefix + name
}

// apply writes the change into the working tree rooted at root.
func (fc fileChange) apply(root string) error {
	if fc.to == "" {
		return nil
	}

	var orig string
	if fc.from != "" {
		b, err := os.ReadFile(filepath.Join(root, fc.from))
		if err != nil {
			return fmt.Errorf("reading %s: %w", fc.from, err)
		}
		orig = string(b)
	}

	updated, err := applyHunks(orig, fc.hunks)
	if err != nil {
		name := fc.to
		if fc.from != "" {
			name = fc.from
		}
		return fmt.Errorf("applying patch to %s: %w", name, err)
	}

	dst := filepath.Join(root, fc.to)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", fc.to, err)
	}
	if err := os.WriteFile(dst, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", fc.to, err)
	}
	return nil
}

// applyHunks applies hunks to orig, requiring every context and removed line
// to match exactly. A hunk whose parsed lines do not add up to its declared
// size is rejected. The trailing newline state of orig is kept; new files
// end with a newline.
func applyHunks(orig string, hunks []hunk) (string, error) {
	var lines []string
	trailing := true
	if orig != "" {
		lines = strings.Split(orig, "\n")
		trailing = lines[len(lines)-1] == ""
		if trailing {
			lines = lines[:len(lines)-1]
		}
	}

	out := make([]string, 0, len(lines))
	cursor := 0
	for _, h := range hunks {
		consumed, produced := 0, 0
		for _, l := range h.WholeRange.Lines {
			if l.Mode != diffparser.ADDED {
				consumed++
			}
			if l.Mode != diffparser.REMOVED {
				produced++
			}
		}
		if consumed != h.origLines || produced != h.newLines {
			return "", fmt.Errorf("hunk at line %d declares %d original and %d new lines but %d and %d were read",
				h.OrigRange.Start, h.origLines, h.newLines, consumed, produced)
		}
		// A hunk that only adds lines is positioned after its start line.
		start := h.OrigRange.Start - 1
		if consumed == 0 {
			start = h.OrigRange.Start
		}
		if start < cursor || start > len(lines) {
			return "", fmt.Errorf("hunk at line %d is out of range", h.OrigRange.Start)
		}

		out = append(out, lines[cursor:start]...)
		cursor = start
		for _, l := range h.WholeRange.Lines {
			switch l.Mode {
			case diffparser.ADDED:
				out = append(out, l.Content)
			case diffparser.REMOVED, diffparser.UNCHANGED:
				if cursor >= len(lines) || lines[cursor] != l.Content {
					return "", fmt.Errorf("context mismatch at line %d", cursor+1)
				}
				if l.Mode == diffparser.UNCHANGED {
					out = append(out, lines[cursor])
				}
				cursor++
			}
		}
	}
	out = append(out, lines[cursor:]...)

	if len(out) == 0 {
		return "", nil
	}
	updated := strings.Join(out, "\n")
	if trailing {
		updated += "\n"
	}
	return updated, nil
}
