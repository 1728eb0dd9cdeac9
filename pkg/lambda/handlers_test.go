package lambda

import (
	"context"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image/png"
	"testing"

	"github.com/aws/aws-lambda-go/events"
)

func TestRenderFrame(t *testing.T) {
	body, err := json.Marshal(map[string]any{
		"job":     "test",
		"index":   0,
		"center":  "-0.5,0",
		"zoom":    1,
		"width":   48,
		"height":  32,
		"maxIter": 100,
		"palette": "classic",
		"samples": 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := RenderFrame(context.Background(), events.APIGatewayProxyRequest{Body: string(body)})
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d body = %s", resp.StatusCode, resp.Body)
	}

	var result RenderFrameResponse
	if err := json.Unmarshal([]byte(resp.Body), &result); err != nil {
		t.Fatal(err)
	}
	raw, err := base64.StdEncoding.DecodeString(result.Image)
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 48 || img.Bounds().Dy() != 32 {
		t.Fatalf("image bounds = %v", img.Bounds())
	}
}

func TestRenderFrameRejectsGarbage(t *testing.T) {
	resp, err := RenderFrame(context.Background(), events.APIGatewayProxyRequest{Body: "not json"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 400 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
