package analytics

import (
	"regexp"
	"sort"
	"strings"
)

type sectionKind int

const (
	sectionStrengths sectionKind = iota
	sectionWeaknesses
	sectionTopics
	sectionRecommendations
)

// headingPattern matches a line that opens a section: optional markdown header,
// list number and bold markers (in either order) around the section name, then a
// colon with inline text, a closing bold marker, a dash, or the end of the line.
func headingPattern(name string) *regexp.Regexp {
	const (
		lead = `(?im)^[ \t]*(?:#{1,6}[ \t]*)?(?:(?:\*\*|__)[ \t]*)?(?:\d+[.)][ \t]*)?(?:\*\*|__)?[ \t]*(?:(?:student|key)[ \t]+)?`
		tail = `(?:[ \t]*\([^)\n]*\))?` +
			`(?:[ \t]*(?:\*\*|__)?[ \t]*:[ \t]*(?:\*\*|__)?[ \t]*(.*)` +
			`|[ \t]*(?:\*\*|__)[ \t]*[-–—]?[ \t]*(.*)` +
			`|[ \t]+[-–—][ \t]*(.*)` +
			`|[ \t\r]*)$`
	)
	return regexp.MustCompile(lead + name + tail)
}

var (
	headings = map[sectionKind]*regexp.Regexp{
		sectionStrengths:       headingPattern(`strengths?`),
		sectionWeaknesses:      headingPattern(`weakness(?:es)?`),
		sectionTopics:          headingPattern(`common[ \t]+topics?`),
		sectionRecommendations: headingPattern(`recommendations?`),
	}

	numberedItem = regexp.MustCompile(`(?m)^[ \t]*\d+[.)][ \t]+(.+)$`)
	bulletItem   = regexp.MustCompile(`(?m)^[ \t]*[-•*+][ \t]+(.+)$`)
	emphasis     = strings.NewReplacer("**", "", "__", "")
)

type heading struct {
	kind   sectionKind
	start  int
	bodyAt int
	inline string
}

// ExtractSections pulls the four analysis lists out of free-form model output.
// Each section is taken from the text between its heading and the next section
// heading: numbered items first, then bullet items, then the text following the
// heading on the same line. A section that cannot be found yields an empty list.
func ExtractSections(text string) Sections {
	found := make([]heading, 0, len(headings))
	for kind, re := range headings {
		m := re.FindStringSubmatchIndex(text)
		if m == nil {
			continue
		}
		h := heading{kind: kind, start: m[0], bodyAt: m[1]}
		for g := 2; g+1 < len(m); g += 2 {
			if m[g] >= 0 && m[g+1] > m[g] {
				h.inline = text[m[g]:m[g+1]]
				break
			}
		}
		found = append(found, h)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].start < found[j].start })

	lists := map[sectionKind][]string{}
	for i, h := range found {
		end := len(text)
		for _, next := range found[i+1:] {
			if next.start > h.bodyAt {
				end = next.start
				break
			}
		}
		body := ""
		if h.bodyAt < end {
			body = text[h.bodyAt:end]
		}
		lists[h.kind] = sectionItems(body, h.inline)
	}

	return Sections{
		Strengths:       nonNil(lists[sectionStrengths]),
		Weaknesses:      nonNil(lists[sectionWeaknesses]),
		CommonTopics:    nonNil(lists[sectionTopics]),
		Recommendations: nonNil(lists[sectionRecommendations]),
	}
}

func sectionItems(body, inline string) []string {
	if items := matchItems(numberedItem, body); len(items) > 0 {
		return items
	}
	if items := matchItems(bulletItem, body); len(items) > 0 {
		return items
	}
	if s := clean(inline); s != "" {
		return []string{s}
	}
	return nil
}

func matchItems(re *regexp.Regexp, body string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(body, -1) {
		if s := clean(m[1]); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func clean(s string) string {
	return strings.TrimSpace(emphasis.Replace(s))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
