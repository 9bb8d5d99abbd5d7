package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dunamismax/imageoptimizer/internal/transform"
)

const (
	JobStatusCreated    = "created"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"
)

// JobSpec describes the single transform a job runs. Fields that do not
// apply to Operation are ignored.
type JobSpec struct {
	Operation           transform.Op          `json:"operation"`
	Quality             *int                  `json:"quality,omitempty"`
	Width               int                   `json:"width,omitempty"`
	Height              int                   `json:"height,omitempty"`
	MaintainAspectRatio *bool                 `json:"maintainAspectRatio,omitempty"`
	TargetFormat        string                `json:"targetFormat,omitempty"`
	Ranges              []transform.PageRange `json:"ranges,omitempty"`
}

// Fit maps the aspect lock to a resize mode. An unset lock keeps the aspect
// ratio.
func (s JobSpec) Fit() transform.Fit {
	if s.MaintainAspectRatio == nil {
		return transform.FitContain
	}
	return transform.FitFromAspectLock(*s.MaintainAspectRatio)
}

// QualityOrDefault is the requested quality, or transform.DefaultQuality
// when the spec leaves it unset.
func (s JobSpec) QualityOrDefault() int {
	if s.Quality == nil {
		return transform.DefaultQuality
	}
	return *s.Quality
}

// InputCount reports how many input files the operation takes: the exact
// count, or the minimum when variadic is true.
func (s JobSpec) InputCount() (n int, variadic bool) {
	if s.Operation == transform.OpMergePDFs {
		return 2, true
	}
	return 1, false
}

// InputFormat is the family of files the operation accepts.
func (s JobSpec) InputFormat() string {
	switch s.Operation {
	case transform.OpCompressPDF, transform.OpMergePDFs, transform.OpSplitPDF:
		return "pdf"
	default:
		return "image"
	}
}

func (s JobSpec) Validate() error {
	if _, ok := transform.ParseOp(string(s.Operation)); !ok {
		return fmt.Errorf("unknown operation %q", s.Operation)
	}

	switch s.Operation {
	case transform.OpResizeImage:
		if s.Width < 1 || s.Height < 1 {
			return fmt.Errorf("width and height must be >= 1, got %dx%d", s.Width, s.Height)
		}
	case transform.OpConvertImage:
		if _, err := transform.ParseConvertTarget(s.TargetFormat); err != nil {
			return err
		}
	case transform.OpSplitPDF:
		if len(s.Ranges) == 0 {
			return errors.New("ranges must contain at least one page range")
		}
	}
	return nil
}

type CreateJobRequest struct {
	Spec       JobSpec `json:"spec"`
	Inputs     int     `json:"inputs"`
	WebhookURL string  `json:"webhook_url,omitempty"`
}

func (r CreateJobRequest) Validate() error {
	if err := r.Spec.Validate(); err != nil {
		return fmt.Errorf("spec: %w", err)
	}

	want, variadic := r.Spec.InputCount()
	switch {
	case variadic && r.Inputs < want:
		return fmt.Errorf("%s needs at least %d inputs, got %d", r.Spec.Operation, want, r.Inputs)
	case !variadic && r.Inputs != want:
		return fmt.Errorf("%s needs exactly %d input, got %d", r.Spec.Operation, want, r.Inputs)
	}

	if raw := strings.TrimSpace(r.WebhookURL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("webhook_url must be an absolute http(s) URL")
		}
	}
	return nil
}

// JobOutput is one file written by a finished job.
type JobOutput struct {
	ObjectKey string `json:"object_key"`
	MIMEType  string `json:"mime_type"`
	Bytes     int    `json:"bytes"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Pages     int    `json:"pages,omitempty"`
}

type Job struct {
	ID         string
	Status     string
	Spec       JobSpec
	InputKeys  []string
	Outputs    []JobOutput
	Skipped    []int
	Error      string
	WebhookURL string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Terminal reports whether the job will not change status again.
func (j Job) Terminal() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}

// InputKey is the object key a job input is uploaded to.
func InputKey(jobID string, n int) string {
	return fmt.Sprintf("inputs/%s/%d", jobID, n)
}

// OutputKey is the object key of the n-th output of a job.
func OutputKey(jobID string, n int, ext string) string {
	return fmt.Sprintf("outputs/%s/%d.%s", jobID, n, ext)
}
