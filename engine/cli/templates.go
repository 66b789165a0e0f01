package cli

import "strings"

// Indentation prefixes every line of a command's examples block.
const Indentation = `  `

// LongDesc turns an indented raw string literal into a command's long description: surrounding
// blank lines are dropped and every line loses its leading whitespace.
func LongDesc(s string) string {
	return reflow(s, "")
}

// Examples formats a command's examples block like LongDesc, but indents every line by
// Indentation.
func Examples(s string) string {
	return reflow(s, Indentation)
}

func reflow(s, prefix string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			lines[i] = ""

			continue
		}
		lines[i] = prefix + line
	}

	return strings.Join(lines, "\n")
}
