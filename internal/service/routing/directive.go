package routing

import (
	"regexp"
	"sort"
	"strings"
)

// Kind is the closed set of actions a directive can name.
type Kind int

const (
	ExtractImages Kind = iota
	ReviewDesign
	ReviewDesignFrame
	ToneReview
	ActivePRs
	MoreInfo
	FollowUp
	ContinueConversation
)

var kindNames = map[Kind]string{
	ExtractImages:        "extract_images_from_figma",
	ReviewDesign:         "review_design",
	ReviewDesignFrame:    "review_design_frame",
	ToneReview:           "tone_text_copy_review",
	ActivePRs:            "my_active_prs",
	MoreInfo:             "more_info_needed",
	FollowUp:             "follow_up",
	ContinueConversation: "continue_conversation",
}

// String returns the tag name of k.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// TakesArgument reports whether the tag wraps a URL.
func (k Kind) TakesArgument() bool {
	switch k {
	case ExtractImages, ReviewDesign, ReviewDesignFrame, ToneReview:
		return true
	}
	return false
}

// Tag is one recognised occurrence in a directive. Start and End are byte
// offsets of the whole tag in the raw text.
type Tag struct {
	Kind  Kind
	Arg   string
	Start int
	End   int
}

// Directive is the parsed router output.
type Directive struct {
	Raw  string
	Tags []Tag
}

type tagPattern struct {
	kind Kind
	re   *regexp.Regexp
}

// RE2 has no back-references, so each tag gets its own expression.
var tagPatterns = buildPatterns()

func buildPatterns() []tagPattern {
	kinds := []Kind{ExtractImages, ReviewDesign, ReviewDesignFrame, ToneReview, ActivePRs, MoreInfo, FollowUp, ContinueConversation}
	patterns := make([]tagPattern, 0, len(kinds))
	for _, k := range kinds {
		name := regexp.QuoteMeta(k.String())
		var expr string
		if k.TakesArgument() {
			expr = `(?s)<` + name + `>(.*?)</` + name + `>`
		} else {
			expr = `<` + name + `\s*/>|<` + name + `>\s*</` + name + `>`
		}
		patterns = append(patterns, tagPattern{kind: k, re: regexp.MustCompile(expr)})
	}
	return patterns
}

// ParseDirective extracts every recognised tag, ordered by position. Argument
// tags with a blank argument are not recognised. Parsing never fails: text
// without tags yields a directive with no Tags.
func ParseDirective(raw string) Directive {
	d := Directive{Raw: raw}
	for _, p := range tagPatterns {
		for _, loc := range p.re.FindAllStringSubmatchIndex(raw, -1) {
			tag := Tag{Kind: p.kind, Start: loc[0], End: loc[1]}
			if p.kind.TakesArgument() {
				tag.Arg = strings.TrimSpace(raw[loc[2]:loc[3]])
				if tag.Arg == "" {
					continue
				}
			}
			d.Tags = append(d.Tags, tag)
		}
	}
	sort.SliceStable(d.Tags, func(i, j int) bool { return d.Tags[i].Start < d.Tags[j].Start })
	return d
}

// All returns the tags of the given kinds in directive order.
func (d Directive) All(kinds ...Kind) []Tag {
	var out []Tag
	for _, tag := range d.Tags {
		for _, k := range kinds {
			if tag.Kind == k {
				out = append(out, tag)
				break
			}
		}
	}
	return out
}

// Has reports whether any tag of the given kinds is present.
func (d Directive) Has(kinds ...Kind) bool {
	return len(d.All(kinds...)) > 0
}

// Blank reports whether the raw directive is empty or whitespace.
func (d Directive) Blank() bool {
	return strings.TrimSpace(d.Raw) == ""
}
