package assets

import (
	"encoding/json"

	"github.com/gamebyte/switchboard/coordinator"
	"github.com/gamebyte/switchboard/types"
)

// GenerateDefinition returns the generate_asset tool schema.
func GenerateDefinition() coordinator.ToolDefinition {
	return coordinator.ToolDefinition{
		Name:        GenerateToolName,
		Description: "Generate high-quality images and visual assets from detailed text descriptions. Creates realistic and artistic images with advanced AI capabilities.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"prompt": map[string]any{
					"type":        "string",
					"description": "Detailed text prompt describing the image to generate. Be specific about style, colors, composition, lighting, and other visual elements.",
				},
				"aspect_ratio": map[string]any{
					"type":        "string",
					"enum":        ValidAspectRatios,
					"description": "Image aspect ratio. Default: '1:1'",
					"default":     "1:1",
				},
				"number_of_images": map[string]any{
					"type":        "integer",
					"minimum":     1,
					"maximum":     8,
					"description": "Number of images to generate (1-8). Default: 1",
					"default":     1,
				},
				"person_generation": map[string]any{
					"type":        "string",
					"enum":        ValidPersonPolicy,
					"description": "Policy for person generation. Default: 'ALLOW_ADULT'",
					"default":     "ALLOW_ADULT",
				},
				"output_mime_type": map[string]any{
					"type":        "string",
					"enum":        ValidMIMETypes,
					"description": "Output format. Default: 'image/jpeg'",
					"default":     "image/jpeg",
				},
			},
			"required": []string{"prompt"},
		},
	}
}

// ParseGenerateCall converts raw generate_asset arguments into a validated
// request with defaults applied.
func ParseGenerateCall(raw json.RawMessage) (GenerateRequest, error) {
	var req GenerateRequest
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			return GenerateRequest{}, types.NewError(types.ErrInvalidArgument, "malformed generate_asset arguments").WithCause(err)
		}
	}
	req = req.withDefaults()
	if err := req.Validate(); err != nil {
		return GenerateRequest{}, err
	}
	return req, nil
}
