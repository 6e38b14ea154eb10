package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// VisionInvoker extracts text with Google Cloud Vision and writes the same
// artifact format as the command-line tool.
type VisionInvoker struct {
	client  *vision.ImageAnnotatorClient
	Timeout time.Duration
	Log     zerolog.Logger
}

// NewVisionInvoker creates a Vision client. credentialsFile may be empty to use
// application default credentials.
func NewVisionInvoker(ctx context.Context, credentialsFile string, timeout time.Duration, log zerolog.Logger) (*VisionInvoker, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create vision client: %w", err)
	}
	return &VisionInvoker{client: client, Timeout: timeout, Log: log}, nil
}

// Invoke sends the image to Vision and writes the detected lines to artifactPath.
func (v *VisionInvoker) Invoke(ctx context.Context, imagePath, artifactPath string) error {
	const op = "vision"
	content, err := os.ReadFile(imagePath)
	if err != nil {
		return newError(op, fmt.Errorf("%w: %w", ErrExecutionFailed, err), "read image")
	}
	timeout := v.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: content},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	}
	resp, err := v.client.BatchAnnotateImages(callCtx, req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return newError(op, ErrTimeout, err.Error())
		}
		return newError(op, fmt.Errorf("%w: %w", ErrExecutionFailed, err), "")
	}
	if len(resp.GetResponses()) == 0 {
		return newError(op, ErrExecutionFailed, "empty vision response")
	}
	r := resp.GetResponses()[0]
	if r.GetError() != nil {
		return newError(op, ErrExecutionFailed, r.GetError().GetMessage())
	}

	lines := SplitLines(r.GetFullTextAnnotation().GetText())
	v.Log.Debug().Int("lines", len(lines)).Msg("vision extraction finished")
	if err := WriteArtifact(artifactPath, lines); err != nil {
		return newError(op, fmt.Errorf("%w: %w", ErrExecutionFailed, err), "")
	}
	return nil
}

// Close releases the Vision client.
func (v *VisionInvoker) Close() error {
	if v == nil || v.client == nil {
		return nil
	}
	return v.client.Close()
}
