package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dunamismax/imageoptimizer/internal/transform"
)

func TestCreateJobRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateJobRequest
		wantErr bool
	}{
		{
			name: "compress image",
			req:  CreateJobRequest{Spec: JobSpec{Operation: transform.OpCompressImage, Quality: intPtr(70)}, Inputs: 1},
		},
		{
			name: "resize with webhook",
			req: CreateJobRequest{
				Spec:       JobSpec{Operation: transform.OpResizeImage, Width: 100, Height: 50},
				Inputs:     1,
				WebhookURL: "https://hooks.example.com/jobs",
			},
		},
		{
			name: "merge three",
			req:  CreateJobRequest{Spec: JobSpec{Operation: transform.OpMergePDFs}, Inputs: 3},
		},
		{
			name:    "empty",
			req:     CreateJobRequest{},
			wantErr: true,
		},
		{
			name:    "unknown operation",
			req:     CreateJobRequest{Spec: JobSpec{Operation: "watermark"}, Inputs: 1},
			wantErr: true,
		},
		{
			name:    "resize without size",
			req:     CreateJobRequest{Spec: JobSpec{Operation: transform.OpResizeImage}, Inputs: 1},
			wantErr: true,
		},
		{
			name:    "convert to unknown format",
			req:     CreateJobRequest{Spec: JobSpec{Operation: transform.OpConvertImage, TargetFormat: "bmp"}, Inputs: 1},
			wantErr: true,
		},
		{
			name:    "split without ranges",
			req:     CreateJobRequest{Spec: JobSpec{Operation: transform.OpSplitPDF}, Inputs: 1},
			wantErr: true,
		},
		{
			name:    "merge single input",
			req:     CreateJobRequest{Spec: JobSpec{Operation: transform.OpMergePDFs}, Inputs: 1},
			wantErr: true,
		},
		{
			name:    "compress two inputs",
			req:     CreateJobRequest{Spec: JobSpec{Operation: transform.OpCompressPDF}, Inputs: 2},
			wantErr: true,
		},
		{
			name: "relative webhook",
			req: CreateJobRequest{
				Spec:       JobSpec{Operation: transform.OpCompressPDF},
				Inputs:     1,
				WebhookURL: "/callback",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestJobSpecFit(t *testing.T) {
	yes, no := true, false
	assert.Equal(t, transform.FitContain, JobSpec{}.Fit())
	assert.Equal(t, transform.FitContain, JobSpec{MaintainAspectRatio: &yes}.Fit())
	assert.Equal(t, transform.FitFill, JobSpec{MaintainAspectRatio: &no}.Fit())
}

func TestObjectKeys(t *testing.T) {
	assert.Equal(t, "inputs/j1/0", InputKey("j1", 0))
	assert.Equal(t, "outputs/j1/2.jpg", OutputKey("j1", 2, "jpg"))
}

func TestJobTerminal(t *testing.T) {
	assert.False(t, Job{Status: JobStatusQueued}.Terminal())
	assert.True(t, Job{Status: JobStatusFailed}.Terminal())
	assert.True(t, Job{Status: JobStatusSucceeded}.Terminal())
}

func TestJobSpecQualityOrDefault(t *testing.T) {
	assert.Equal(t, transform.DefaultQuality, JobSpec{Operation: transform.OpCompressImage}.QualityOrDefault())
	assert.Equal(t, 35, JobSpec{Operation: transform.OpCompressImage, Quality: intPtr(35)}.QualityOrDefault())
	assert.Equal(t, 0, JobSpec{Quality: intPtr(0)}.QualityOrDefault(), "explicit values are passed through for clamping")
}

func intPtr(v int) *int {
	return &v
}
