// Package converter adapts the document-to-text engine. The conversion itself
// is a black box; this package only fetches the file and hands it over.
package converter

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"code.sajari.com/docconv"
	"go.uber.org/zap"

	"github.com/unboundlabs/unbound/internal/core"
)

type DocconvConverter struct {
	client         *http.Client
	useReadability bool
	log            *zap.Logger
}

var _ core.Converter = (*DocconvConverter)(nil)

func NewDocconvConverter(log *zap.Logger) *DocconvConverter {
	return &DocconvConverter{
		client: &http.Client{Timeout: 2 * time.Minute},
		log:    log,
	}
}

// Convert downloads the file behind fileURL and extracts its text. The MIME
// type comes from the response header, falling back to the URL extension when
// the server reports a generic type.
func (c *DocconvConverter) Convert(ctx context.Context, fileURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request for %s: %w", fileURL, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", fileURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: unexpected status %d", fileURL, resp.StatusCode)
	}

	mimeType := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = docconv.MimeTypeByExtension(fileURL)
	}

	c.log.Info("converting file",
		zap.String("url", fileURL), zap.String("mime_type", mimeType))

	res, err := docconv.Convert(resp.Body, mimeType, c.useReadability)
	if err != nil {
		return "", fmt.Errorf("convert %s (%s): %w", fileURL, mimeType, err)
	}
	return res.Body, nil
}
