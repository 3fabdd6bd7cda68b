package provision

import "strings"

// Managed block markers. Text between them belongs to bootstrap and is
// replaced on every run; everything else in the file is left alone.
const (
	blockBegin = "# >>> bootstrap >>>"
	blockEnd   = "# <<< bootstrap <<<"
)

// upsertBlock returns content with its managed block replaced by body, or
// with a new block appended when there is none.
func upsertBlock(content, body string) string {
	block := blockBegin + "\n" + strings.TrimRight(body, "\n") + "\n" + blockEnd + "\n"

	start := strings.Index(content, blockBegin)
	if start >= 0 {
		if rel := strings.Index(content[start:], blockEnd); rel >= 0 {
			end := start + rel + len(blockEnd)
			if end < len(content) && content[end] == '\n' {
				end++
			}
			return content[:start] + block + content[end:]
		}
	}

	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if content != "" {
		content += "\n"
	}
	return content + block
}
