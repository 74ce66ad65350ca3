// Package extract derives a career timeline and a course list from the
// stored content of a person with one structured text-generation request
// each. A response that fails schema validation is discarded whole.
package extract

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/scrypster/luminaries/internal/llm"
	"github.com/scrypster/luminaries/internal/logging"
	"github.com/scrypster/luminaries/pkg/types"
)

// MaxResults caps events and courses kept from one response.
const MaxResults = 10

type timelineResponse struct {
	Events []timelineEntry `json:"events" validate:"max=50,dive"`
}

type timelineEntry struct {
	Organization string  `json:"organization" validate:"required,max=200"`
	Role         string  `json:"role" validate:"required,max=200"`
	Start        string  `json:"start" validate:"max=10"`
	End          string  `json:"end" validate:"max=10"`
	Confidence   float64 `json:"confidence" validate:"gte=0,lte=1"`
}

type coursesResponse struct {
	Courses []courseEntry `json:"courses" validate:"max=50,dive"`
}

type courseEntry struct {
	Title       string `json:"title" validate:"required,max=300"`
	Institution string `json:"institution" validate:"max=200"`
	Year        int    `json:"year" validate:"omitempty,min=1900,max=2100"`
	URL         string `json:"url" validate:"omitempty,url"`
}

// Extractor runs timeline and course extraction.
type Extractor struct {
	gen    llm.StructuredGenerator
	window Window
}

// New creates an extractor. A zero window uses the default bounds.
func New(gen llm.StructuredGenerator, window Window) *Extractor {
	return &Extractor{gen: gen, window: window.withDefaults()}
}

// ExtractTimeline returns at most MaxResults events, most recent first.
// Dates are normalized: a bare year becomes Jan 1 for a start and Dec 31
// for an end, "present" leaves the end nil, and a missing date sets the
// matching Unknown flag. An empty corpus yields no events and no request.
func (x *Extractor) ExtractTimeline(ctx context.Context, pc PersonContext, corpus []CorpusText) ([]types.CareerEvent, error) {
	window := x.window.Build(corpus)
	if window == "" {
		return nil, nil
	}

	var resp timelineResponse
	if err := x.gen.GenerateStructured(ctx, TimelinePrompt(pc, window), timelineSchema, &resp); err != nil {
		return nil, err
	}

	events := make([]types.CareerEvent, 0, len(resp.Events))
	for i, e := range resp.Events {
		start, startUnknown, err := parseDate(e.Start, false)
		if err != nil {
			return nil, schemaErr("timeline", fmt.Sprintf("events[%d].start: %v", i, err))
		}
		end, endUnknown, err := parseDate(e.End, true)
		if err != nil {
			return nil, schemaErr("timeline", fmt.Sprintf("events[%d].end: %v", i, err))
		}
		if start != nil && end != nil && end.Before(*start) {
			return nil, schemaErr("timeline", fmt.Sprintf("events[%d]: end before start", i))
		}
		events = append(events, types.CareerEvent{
			Organization: strings.TrimSpace(e.Organization),
			Role:         strings.TrimSpace(e.Role),
			StartDate:    start,
			EndDate:      end,
			StartUnknown: startUnknown,
			EndUnknown:   endUnknown,
			Confidence:   e.Confidence,
			Source:       types.ProvenanceLLM,
		})
	}

	sortEvents(events)
	if len(events) > MaxResults {
		events = events[:MaxResults]
	}
	logging.Ctx(ctx).Debug().Int("events", len(events)).Int("returned", len(resp.Events)).Msg("timeline extracted")
	return events, nil
}

// ExtractCourses returns at most MaxResults courses, most recent first.
func (x *Extractor) ExtractCourses(ctx context.Context, pc PersonContext, corpus []CorpusText) ([]types.Course, error) {
	window := x.window.Build(corpus)
	if window == "" {
		return nil, nil
	}

	var resp coursesResponse
	if err := x.gen.GenerateStructured(ctx, CoursesPrompt(pc, window), coursesSchema, &resp); err != nil {
		return nil, err
	}

	courses := make([]types.Course, 0, len(resp.Courses))
	for _, c := range resp.Courses {
		courses = append(courses, types.Course{
			Title:       strings.TrimSpace(c.Title),
			Institution: strings.TrimSpace(c.Institution),
			Year:        c.Year,
			URL:         c.URL,
			Source:      types.ProvenanceLLM,
		})
	}
	sort.SliceStable(courses, func(i, j int) bool { return courses[i].Year > courses[j].Year })
	if len(courses) > MaxResults {
		courses = courses[:MaxResults]
	}
	return courses, nil
}

// sortEvents orders by start date descending; ongoing roles win ties and
// events without a start date go last.
func sortEvents(events []types.CareerEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := &events[i], &events[j]
		if (a.StartDate == nil) != (b.StartDate == nil) {
			return a.StartDate != nil
		}
		if a.StartDate != nil && !a.StartDate.Equal(*b.StartDate) {
			return a.StartDate.After(*b.StartDate)
		}
		return a.Ongoing() && !b.Ongoing()
	})
}

// parseDate reads "", "present", "YYYY", "YYYY-MM" or "YYYY-MM-DD".
// For an end date a bare year or month resolves to its last day.
func parseDate(s string, isEnd bool) (t *time.Time, unknown bool, err error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "unknown", "null":
		return nil, true, nil
	case "present", "current", "now", "至今", "现在":
		if !isEnd {
			return nil, false, fmt.Errorf("%q is not a start date", s)
		}
		return nil, false, nil
	}

	parts := strings.Split(s, "-")
	year, err := strconv.Atoi(parts[0])
	if err != nil || year < 1900 || year > 2100 || len(parts) > 3 {
		return nil, false, fmt.Errorf("invalid date %q", s)
	}
	month, day := 1, 1
	if isEnd {
		month = 12
	}
	if len(parts) >= 2 {
		if month, err = strconv.Atoi(parts[1]); err != nil || month < 1 || month > 12 {
			return nil, false, fmt.Errorf("invalid month in %q", s)
		}
	}

	var d time.Time
	switch {
	case len(parts) == 3:
		if day, err = strconv.Atoi(parts[2]); err != nil || day < 1 || day > 31 {
			return nil, false, fmt.Errorf("invalid day in %q", s)
		}
		d = time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		if d.Day() != day {
			return nil, false, fmt.Errorf("invalid day in %q", s)
		}
	case isEnd:
		// Day 0 of the next month is the last day of this one.
		d = time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC)
	default:
		d = time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	}
	return &d, false, nil
}

func schemaErr(schema, reason string) error {
	return &llm.SchemaError{Schema: schema, Reason: reason}
}
