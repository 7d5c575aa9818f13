package corpus

import (
	"regexp"
	"strings"
)

// Section is a heading-delimited span of the document body. Offsets are
// byte positions into the body, with End exclusive.
type Section struct {
	Title string
	Level int
	Start int
	End   int
	Text  string
}

// headingRe matches markdown headings like "## Methodology".
var headingRe = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*$`)

// ExtractSections scans the body line by line for heading markers. Text
// before the first heading becomes an implicit "Introduction" section at
// level 0. Sections whose text is empty or whitespace-only are dropped.
func ExtractSections(body string) []Section {
	type openSection struct {
		title string
		level int
		start int
	}

	current := openSection{title: "Introduction", level: 0, start: 0}
	var sections []Section

	closeSection := func(end int) {
		text := body[current.start:end]
		if strings.TrimSpace(text) == "" {
			return
		}
		sections = append(sections, Section{
			Title: current.title,
			Level: current.level,
			Start: current.start,
			End:   end,
			Text:  text,
		})
	}

	offset := 0
	for _, line := range strings.SplitAfter(body, "\n") {
		if m := headingRe.FindStringSubmatch(strings.TrimSuffix(line, "\n")); m != nil {
			closeSection(offset)
			current = openSection{
				title: m[2],
				level: len(m[1]),
				start: offset,
			}
		}
		offset += len(line)
	}
	closeSection(len(body))

	return sections
}
