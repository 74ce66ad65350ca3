package extract

import (
	"fmt"
	"strings"

	"github.com/scrypster/luminaries/internal/llm"
	"github.com/scrypster/luminaries/pkg/types"
)

// PersonContext is what the extractor knows about the person up front.
type PersonContext struct {
	Name          string
	Aliases       []string
	Description   string
	Occupations   []string
	Organizations []string
}

// ContextOf builds the extraction context of p.
func ContextOf(p *types.Person) PersonContext {
	return PersonContext{
		Name:          p.Name,
		Aliases:       p.Aliases,
		Description:   p.Description,
		Occupations:   p.Occupations,
		Organizations: p.Organizations,
	}
}

func (pc PersonContext) header() string {
	var b strings.Builder
	fmt.Fprintf(&b, "PERSON: %s\n", pc.Name)
	if len(pc.Aliases) > 0 {
		fmt.Fprintf(&b, "ALSO KNOWN AS: %s\n", strings.Join(pc.Aliases, "; "))
	}
	if pc.Description != "" {
		fmt.Fprintf(&b, "DESCRIPTION: %s\n", pc.Description)
	}
	if len(pc.Occupations) > 0 {
		fmt.Fprintf(&b, "OCCUPATIONS: %s\n", strings.Join(pc.Occupations, "; "))
	}
	if len(pc.Organizations) > 0 {
		fmt.Fprintf(&b, "KNOWN ORGANIZATIONS: %s\n", strings.Join(pc.Organizations, "; "))
	}
	return b.String()
}

var timelineSchema = llm.Schema{
	Name: "timeline",
	Example: `{
  "events": [
    {"organization":"Acme Labs","role":"Research Scientist","start":"2019-03","end":"present","confidence":0.9},
    {"organization":"Example University","role":"PhD Student","start":"2014","end":"2019","confidence":0.8}
  ]
}`,
}

var coursesSchema = llm.Schema{
	Name: "courses",
	Example: `{
  "courses": [
    {"title":"Introduction to Deep Learning","institution":"Example University","year":2021,"url":""}
  ]
}`,
}

// TimelinePrompt asks for the person's career events found in window.
func TimelinePrompt(pc PersonContext, window string) string {
	return fmt.Sprintf(`TASK: Extract the career timeline of ONE person from the sources below.
OUTPUT: ONLY valid JSON. NO markdown. NO prose.

%s
RULES:
1. Only facts the sources state explicitly. NO guessing, NO inference from context.
2. Only positions held by THIS person, not by people they worked with.
3. One event per (organization, role). Skip events with no organization or no role.
4. Translate organization and role names to Chinese when the translation is standard and unambiguous; otherwise keep the original.
5. Dates: "YYYY", "YYYY-MM" or "YYYY-MM-DD". Use "present" for a role the sources say is current. Use "" when a date is not stated.
6. confidence is 0.0-1.0: how directly the sources state the event.
7. At most %d events, most recent first.

SOURCES:
%s
`, pc.header(), MaxResults, window)
}

// CoursesPrompt asks for courses the person taught or published.
func CoursesPrompt(pc PersonContext, window string) string {
	return fmt.Sprintf(`TASK: Extract courses taught, created or published by ONE person from the sources below.
OUTPUT: ONLY valid JSON. NO markdown. NO prose.

%s
RULES:
1. Only courses the sources explicitly attribute to THIS person as instructor or author.
2. NOT courses the person attended.
3. year is the year the course was offered or published, or 0 when not stated.
4. url only when the sources give one, else "".
5. At most %d courses, most recent first.
6. An empty "courses" array is a valid answer.

SOURCES:
%s
`, pc.header(), MaxResults, window)
}
