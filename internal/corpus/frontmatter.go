package corpus

import (
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/regdoc-agent/backend/pkg/logger"
)

const frontmatterDelimiter = "---"

// SplitFrontmatter separates a leading `---` delimited metadata block from
// the document body. A malformed block is logged and treated as absent;
// frontmatter problems must never fail ingestion of the document itself.
func SplitFrontmatter(content, sourceFile string) (Metadata, string) {
	empty := Metadata{Extra: make(map[string]string)}

	if !strings.HasPrefix(content, frontmatterDelimiter+"\n") {
		if content == frontmatterDelimiter {
			// A file that is nothing but the opening delimiter has no
			// closing delimiter and no body to recover.
			logger.Warn("Unterminated frontmatter block, treating as body",
				zap.String("source_file", sourceFile),
			)
		}
		return empty, content
	}

	rest := content[len(frontmatterDelimiter)+1:]
	end := strings.Index(rest, "\n"+frontmatterDelimiter)
	if end < 0 {
		logger.Warn("Unterminated frontmatter block, treating as body",
			zap.String("source_file", sourceFile),
		)
		return empty, content
	}

	block := rest[:end]
	body := rest[end+len("\n"+frontmatterDelimiter):]
	body = strings.TrimPrefix(body, "\n")

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(block), &raw); err != nil {
		logger.Warn("Failed to parse frontmatter, using empty metadata",
			zap.String("source_file", sourceFile),
			zap.Error(err),
		)
		return empty, body
	}

	return FromMap(raw), body
}
