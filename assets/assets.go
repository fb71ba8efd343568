// Package assets generates visual assets for conversations through the
// generate_asset tool. Generation is delegated to an image service; small
// jobs return immediately while large batches start an async workflow whose
// completion arrives later on the run's event stream.
package assets

import (
	"fmt"
	"strings"

	"github.com/gamebyte/switchboard/types"
)

// GenerateToolName is the tool agents invoke to create visual assets.
const GenerateToolName = "generate_asset"

// Valid parameter values.
var (
	ValidAspectRatios = []string{"1:1", "16:9", "9:16", "4:3", "3:4", "3:2", "2:3"}
	ValidPersonPolicy = []string{"ALLOW_ADULT", "DONT_ALLOW"}
	ValidMIMETypes    = []string{"image/jpeg", "image/png"}
)

// GenerateRequest are the arguments of a generate_asset invocation.
type GenerateRequest struct {
	Prompt           string `json:"prompt"`
	AspectRatio      string `json:"aspect_ratio,omitempty"`
	NumberOfImages   int    `json:"number_of_images,omitempty"`
	PersonGeneration string `json:"person_generation,omitempty"`
	OutputMIMEType   string `json:"output_mime_type,omitempty"`
}

// withDefaults fills unset fields with their documented defaults.
func (r GenerateRequest) withDefaults() GenerateRequest {
	if r.AspectRatio == "" {
		r.AspectRatio = "1:1"
	}
	if r.NumberOfImages == 0 {
		r.NumberOfImages = 1
	}
	if r.PersonGeneration == "" {
		r.PersonGeneration = "ALLOW_ADULT"
	}
	if r.OutputMIMEType == "" {
		r.OutputMIMEType = "image/jpeg"
	}
	return r
}

// Validate checks the request against the tool's parameter constraints.
func (r GenerateRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return types.NewError(types.ErrInvalidArgument, "prompt cannot be empty")
	}
	if !contains(ValidAspectRatios, r.AspectRatio) {
		return types.Errorf(types.ErrInvalidArgument,
			"invalid aspect ratio %q, must be one of: %s", r.AspectRatio, strings.Join(ValidAspectRatios, ", "))
	}
	if r.NumberOfImages < 1 || r.NumberOfImages > 8 {
		return types.NewError(types.ErrInvalidArgument, "number of images must be between 1 and 8")
	}
	if !contains(ValidPersonPolicy, r.PersonGeneration) {
		return types.Errorf(types.ErrInvalidArgument,
			"invalid person generation policy %q, must be one of: %s", r.PersonGeneration, strings.Join(ValidPersonPolicy, ", "))
	}
	if !contains(ValidMIMETypes, r.OutputMIMEType) {
		return types.Errorf(types.ErrInvalidArgument,
			"invalid output format %q, must be one of: %s", r.OutputMIMEType, strings.Join(ValidMIMETypes, ", "))
	}
	return nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// AssetFile describes one generated file.
type AssetFile struct {
	Filename    string `json:"filename"`
	Size        string `json:"size"`
	Format      string `json:"format"`
	AspectRatio string `json:"aspect_ratio"`
}

// Result is the closed set of generation outcomes. Exactly one of the three
// variants implements it; consumers switch on the concrete type.
type Result interface {
	isResult()
	// Summary renders the human-readable tool output line.
	Summary() string
}

// ImmediateResult reports assets already generated and saved.
type ImmediateResult struct {
	Files []AssetFile `json:"files"`
}

func (ImmediateResult) isResult() {}

// Summary mirrors the tool output shown to the agent.
func (r ImmediateResult) Summary() string {
	if len(r.Files) == 1 {
		f := r.Files[0]
		return fmt.Sprintf(
			"Successfully generated visual asset. Asset saved as: %s. Size: %s, Format: %s, Aspect Ratio: %s.",
			f.Filename, f.Size, f.Format, f.AspectRatio)
	}
	parts := make([]string, 0, len(r.Files))
	for _, f := range r.Files {
		parts = append(parts, fmt.Sprintf("%s (%s)", f.Filename, f.Size))
	}
	return fmt.Sprintf("Successfully generated %d visual assets. Assets saved as: %s.",
		len(r.Files), strings.Join(parts, ", "))
}

// AsyncWorkflowStarted reports a long-running generation job; its completion
// is delivered later on the run's event stream.
type AsyncWorkflowStarted struct {
	WorkflowID string `json:"workflow_id"`
	Expected   int    `json:"expected"`
}

func (AsyncWorkflowStarted) isResult() {}

func (r AsyncWorkflowStarted) Summary() string {
	return fmt.Sprintf("Started asset generation workflow %s for %d image(s); results will stream in when ready.",
		r.WorkflowID, r.Expected)
}

// Failed reports a generation failure.
type Failed struct {
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

func (Failed) isResult() {}

func (r Failed) Summary() string {
	return "Visual asset generation failed: " + r.Reason
}
