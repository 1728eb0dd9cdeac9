// Package lambda renders single frames behind an API Gateway endpoint,
// for offloading expensive deep-zoom frames to burst capacity.
package lambda

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image/png"
	"log"

	"github.com/aws/aws-lambda-go/events"

	"mandelzoom/pkg/farm"
	"mandelzoom/pkg/orbit"
	"mandelzoom/pkg/render"
)

// RenderFrameResponse echoes the frame metadata with the encoded image.
type RenderFrameResponse struct {
	Frame farm.Frame `json:"frame"`
	Image string     `json:"image"`
}

// RenderFrame handles one frame request. The request body is a farm
// frame; the response carries the PNG base64-encoded.
func RenderFrame(ctx context.Context, req events.APIGatewayProxyRequest) (*events.APIGatewayProxyResponse, error) {
	var frame farm.Frame
	if err := json.Unmarshal([]byte(req.Body), &frame); err != nil {
		log.Println("[lambda] error unmarshalling frame: ", err)
		return clientError(err)
	}
	log.Println("[lambda] received:", &frame)

	rreq, err := frame.Request()
	if err != nil {
		log.Println("[lambda] bad frame: ", err)
		return clientError(err)
	}

	// lambda has no GPU; the software backend is the whole chain
	cpu := render.NewCPU(&orbit.Provider{})
	res, err := cpu.Render(ctx, rreq)
	if err != nil {
		log.Println("[lambda] render failed: ", err)
		return nil, err
	}

	buffer := new(bytes.Buffer)
	if err := png.Encode(buffer, res.Pix); err != nil {
		log.Println("[lambda] unable to encode image: ", err)
		return nil, err
	}

	body, err := json.Marshal(RenderFrameResponse{
		Frame: frame,
		Image: base64.StdEncoding.EncodeToString(buffer.Bytes()),
	})
	if err != nil {
		log.Println("[lambda] error marshaling result: ", err)
		return nil, err
	}

	return &events.APIGatewayProxyResponse{
		Headers:    map[string]string{"Content-Type": "application/json"},
		StatusCode: 200,
		Body:       string(body),
	}, nil
}

func clientError(err error) (*events.APIGatewayProxyResponse, error) {
	body, _ := json.Marshal(map[string]string{"error": err.Error()})
	return &events.APIGatewayProxyResponse{
		Headers:    map[string]string{"Content-Type": "application/json"},
		StatusCode: 400,
		Body:       string(body),
	}, nil
}
