package console

import (
	"encoding/json"
	"slices"
	"time"
)

// Status is the mutable status object scripts use to request a redirect
// or set a response code.
type Status struct {
	Code     int    `json:"code"`
	Redirect bool   `json:"redirect"`
	Location string `json:"location"`
	Message  string `json:"message"`
}

// CacheControl is the cache directive object exposed to scripts.
type CacheControl struct {
	NeverCache     bool `json:"neverCache"`
	IsPublic       bool `json:"isPublic"`
	MaxAge         int  `json:"maxAge"`
	MustRevalidate bool `json:"mustRevalidate"`
}

// DumpRecord is a descriptive snapshot of one repository object.
type DumpRecord struct {
	NodeRef string `json:"nodeRef"`
	JSON    string `json:"json"`
}

// Result is the outcome of a run.
type Result struct {
	PrintOutput      []string
	RenderedTemplate string
	TemplateRendered bool
	DumpOutput       []DumpRecord
	ScriptOffset     int
	SpaceRef         string
	SpacePath        string

	WebscriptTime time.Duration
	ScriptTime    time.Duration
	TemplateTime  time.Duration

	// StatusResponseSent is set when the script requested a redirect and
	// the template was skipped.
	StatusResponseSent bool

	// Transport-only fields. They are not serialized.
	Status       *Status
	CacheControl *CacheControl
}

type wireResult struct {
	PrintOutput          []string     `json:"printOutput"`
	RenderedTemplate     *string      `json:"renderedTemplate,omitempty"`
	DumpOutput           []DumpRecord `json:"dumpOutput,omitempty"`
	ScriptOffset         int          `json:"scriptOffset"`
	SpaceRef             string       `json:"spaceRef"`
	SpacePath            string       `json:"spacePath"`
	WebscriptPerformance int64        `json:"webscriptPerformanceMs"`
	ScriptPerformance    int64        `json:"scriptPerformanceMs"`
	TemplatePerformance  *int64       `json:"templatePerformanceMs,omitempty"`
	StatusResponseSent   bool         `json:"statusResponseSent,omitempty"`
}

// MarshalJSON encodes the success response body.
func (r *Result) MarshalJSON() ([]byte, error) {
	w := wireResult{
		PrintOutput:          r.PrintOutput,
		DumpOutput:           r.DumpOutput,
		ScriptOffset:         r.ScriptOffset,
		SpaceRef:             r.SpaceRef,
		SpacePath:            r.SpacePath,
		WebscriptPerformance: r.WebscriptTime.Milliseconds(),
		ScriptPerformance:    r.ScriptTime.Milliseconds(),
		StatusResponseSent:   r.StatusResponseSent,
	}
	if w.PrintOutput == nil {
		w.PrintOutput = []string{}
	}
	if r.TemplateRendered {
		rendered := r.RenderedTemplate
		ms := r.TemplateTime.Milliseconds()
		w.RenderedTemplate = &rendered
		w.TemplatePerformance = &ms
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a body produced by MarshalJSON.
func (r *Result) UnmarshalJSON(data []byte) error {
	var w wireResult
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = Result{
		PrintOutput:        w.PrintOutput,
		DumpOutput:         w.DumpOutput,
		ScriptOffset:       w.ScriptOffset,
		SpaceRef:           w.SpaceRef,
		SpacePath:          w.SpacePath,
		WebscriptTime:      time.Duration(w.WebscriptPerformance) * time.Millisecond,
		ScriptTime:         time.Duration(w.ScriptPerformance) * time.Millisecond,
		StatusResponseSent: w.StatusResponseSent,
	}
	if w.RenderedTemplate != nil {
		r.RenderedTemplate = *w.RenderedTemplate
		r.TemplateRendered = true
	}
	if w.TemplatePerformance != nil {
		r.TemplateTime = time.Duration(*w.TemplatePerformance) * time.Millisecond
	}
	return nil
}

// Base returns a copy of r without transport-only fields, suitable for
// publishing to another connection.
func (r *Result) Base() *Result {
	if r == nil {
		return nil
	}
	c := *r
	c.PrintOutput = slices.Clone(r.PrintOutput)
	c.DumpOutput = slices.Clone(r.DumpOutput)
	c.Status = nil
	c.CacheControl = nil
	return &c
}
