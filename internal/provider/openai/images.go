package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
)

const imageDownloadTimeout = 60 * time.Second

// GenerateImage renders one image for the given prompt and returns the PNG
// bytes. Models that answer with a hosted URL instead of inline data are
// downloaded transparently.
func (c *Client) GenerateImage(ctx context.Context, model, prompt, size string) ([]byte, error) {
	params := openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  openai.ImageModel(model),
	}
	if size != "" {
		params.Size = openai.ImageGenerateParamsSize(size)
	}

	resp, err := c.client.Images.Generate(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("image generation: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("image generation: empty response for model %s", model)
	}

	img := resp.Data[0]
	if img.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(img.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("decode image data: %w", err)
		}
		return data, nil
	}
	if img.URL != "" {
		return downloadImage(ctx, img.URL)
	}
	return nil, fmt.Errorf("image generation: response carries neither data nor URL")
}

func downloadImage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	client := &http.Client{Timeout: imageDownloadTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download image: HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
