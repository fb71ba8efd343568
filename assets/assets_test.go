package assets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gamebyte/switchboard/types"
)

func TestParseGenerateCall(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    GenerateRequest
		wantErr bool
	}{
		{
			name: "defaults applied",
			raw:  `{"prompt":"a sunset over mountains"}`,
			want: GenerateRequest{
				Prompt:           "a sunset over mountains",
				AspectRatio:      "1:1",
				NumberOfImages:   1,
				PersonGeneration: "ALLOW_ADULT",
				OutputMIMEType:   "image/jpeg",
			},
		},
		{
			name: "explicit values kept",
			raw:  `{"prompt":"pixel art knight","aspect_ratio":"16:9","number_of_images":4,"person_generation":"DONT_ALLOW","output_mime_type":"image/png"}`,
			want: GenerateRequest{
				Prompt:           "pixel art knight",
				AspectRatio:      "16:9",
				NumberOfImages:   4,
				PersonGeneration: "DONT_ALLOW",
				OutputMIMEType:   "image/png",
			},
		},
		{name: "empty prompt", raw: `{"prompt":"   "}`, wantErr: true},
		{name: "bad aspect ratio", raw: `{"prompt":"x","aspect_ratio":"21:9"}`, wantErr: true},
		{name: "too many images", raw: `{"prompt":"x","number_of_images":9}`, wantErr: true},
		{name: "negative images", raw: `{"prompt":"x","number_of_images":-1}`, wantErr: true},
		{name: "bad person policy", raw: `{"prompt":"x","person_generation":"ALLOW_ALL"}`, wantErr: true},
		{name: "bad mime type", raw: `{"prompt":"x","output_mime_type":"image/webp"}`, wantErr: true},
		{name: "malformed json", raw: `{"prompt"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseGenerateCall(json.RawMessage(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, types.ErrInvalidArgument, types.GetErrorCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResultSummaries(t *testing.T) {
	single := ImmediateResult{Files: []AssetFile{
		{Filename: "generated_asset_ab12cd34_1.jpg", Size: "1024x1024", Format: "image/jpeg", AspectRatio: "1:1"},
	}}
	assert.Contains(t, single.Summary(), "generated_asset_ab12cd34_1.jpg")
	assert.Contains(t, single.Summary(), "1024x1024")

	multi := ImmediateResult{Files: []AssetFile{
		{Filename: "a.png", Size: "512x512"},
		{Filename: "b.png", Size: "512x512"},
	}}
	assert.Contains(t, multi.Summary(), "2 visual assets")
	assert.Contains(t, multi.Summary(), "a.png (512x512)")

	async := AsyncWorkflowStarted{WorkflowID: "wf-7", Expected: 8}
	assert.Contains(t, async.Summary(), "wf-7")

	failed := Failed{Reason: "quota exhausted"}
	assert.Contains(t, failed.Summary(), "quota exhausted")
}

func TestGenerateImmediate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/assets/generate", r.URL.Path)
		var req GenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ALLOW_ADULT", req.PersonGeneration)

		json.NewEncoder(w).Encode(map[string]any{
			"files": []AssetFile{
				{Filename: "out.jpg", Size: "1024x1024", Format: "image/jpeg", AspectRatio: "1:1"},
			},
		})
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	g := NewGenerator(cfg, zap.NewNop())

	res, err := g.Generate(context.Background(), GenerateRequest{Prompt: "a castle"})
	require.NoError(t, err)

	imm, ok := res.(ImmediateResult)
	require.True(t, ok)
	require.Len(t, imm.Files, 1)
	assert.Equal(t, "out.jpg", imm.Files[0].Filename)
}

func TestGenerateAsync(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]any{"workflow_id": "wf-42"})
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	g := NewGenerator(cfg, zap.NewNop())

	res, err := g.Generate(context.Background(), GenerateRequest{Prompt: "a saga", NumberOfImages: 8})
	require.NoError(t, err)

	async, ok := res.(AsyncWorkflowStarted)
	require.True(t, ok)
	assert.Equal(t, "wf-42", async.WorkflowID)
	assert.Equal(t, 8, async.Expected)
}

func TestGenerateServiceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"message": "model overloaded"}})
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	g := NewGenerator(cfg, zap.NewNop())

	res, err := g.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	require.NoError(t, err, "service failures surface as the Failed variant, not an error")

	failed, ok := res.(Failed)
	require.True(t, ok)
	assert.Equal(t, "model overloaded", failed.Reason)
}

func TestGenerateInvalidRequestIsAnError(t *testing.T) {
	g := NewGenerator(DefaultConfig(), zap.NewNop())
	_, err := g.Generate(context.Background(), GenerateRequest{Prompt: ""})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidArgument, types.GetErrorCode(err))
}

func TestGenerateUnreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseURL = "http://127.0.0.1:1"
	g := NewGenerator(cfg, zap.NewNop())

	res, err := g.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	require.NoError(t, err)
	_, ok := res.(Failed)
	assert.True(t, ok)
}
