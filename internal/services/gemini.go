package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
)

// GeminiProvider is the secondary content provider.
type GeminiProvider struct {
	client *genai.Client
	model  *genai.GenerativeModel
	name   string
}

func NewGeminiProvider(ctx context.Context, apiKey, modelName string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	model := client.GenerativeModel(modelName)
	model.SetTopP(0.95)

	return &GeminiProvider{client: client, model: model, name: secondaryProviderName}, nil
}

func (p *GeminiProvider) Close() {
	p.client.Close()
}

func (p *GeminiProvider) Name() string { return p.name }

func (p *GeminiProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	// Per-call settings go on a copy so concurrent calls never share them.
	model := *p.model
	model.SetTemperature(req.Temperature)
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}
	if req.System != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(req.System))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", &ProviderError{Provider: p.name, Kind: classifyGeminiError(ctx, err), Err: err}
	}

	rawText := strings.TrimSpace(extractText(resp))
	if rawText == "" {
		reason := "no candidates"
		if len(resp.Candidates) > 0 {
			reason = resp.Candidates[0].FinishReason.String()
		}
		return "", &ProviderError{
			Provider: p.name,
			Kind:     KindUpstream,
			Err:      fmt.Errorf("empty response (finish reason %s)", reason),
		}
	}
	return rawText, nil
}

func classifyGeminiError(ctx context.Context, err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return KindUpstream
	}

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		if code := apiErr.HTTPCode(); code > 0 {
			return classifyStatus(code)
		}
		if st := apiErr.GRPCStatus(); st != nil {
			switch st.Code() {
			case codes.Unauthenticated, codes.PermissionDenied:
				return KindAuth
			case codes.ResourceExhausted:
				return KindQuota
			case codes.DeadlineExceeded:
				return KindTimeout
			}
		}
	}
	return KindUpstream
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
