package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/nongbuhae/cropdoc/internal/errors"
	"github.com/nongbuhae/cropdoc/internal/logger"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPClassifier calls a model serving endpoint that accepts a multipart
// form with "crop" and "image" fields.
type HTTPClassifier struct {
	url    string
	client *http.Client
	log    logger.Logger
}

type httpPrediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type httpResponse struct {
	Predictions []httpPrediction `json:"predictions"`
}

// NewHTTP creates an HTTPClassifier posting to url.
func NewHTTP(url string, timeout time.Duration) (*HTTPClassifier, error) {
	if url == "" {
		return nil, errors.Newf("classifier URL is required").
			Component("classifier").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPClassifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		log:    logger.Global().Module("classifier").With(logger.String("backend", "http")),
	}, nil
}

// Classify posts img and returns the two best predictions of the response.
func (c *HTTPClassifier) Classify(ctx context.Context, img Image, crop string) (Prediction, error) {
	body, contentType, err := encodeForm(img, crop)
	if err != nil {
		return Prediction{}, failed(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return Prediction{}, failed(err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return Prediction{}, failed(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return Prediction{}, failed(fmt.Errorf("classifier returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(preview))))
	}

	var parsed httpResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Prediction{}, failed(fmt.Errorf("invalid classifier response: %w", err))
	}

	candidates := make([]scored, 0, len(parsed.Predictions))
	for _, p := range parsed.Predictions {
		name := strings.TrimSpace(p.Label)
		if name == "" {
			continue
		}
		candidates = append(candidates, scored{label: name, score: p.Confidence})
	}
	pred, err := topTwo(candidates)
	if err != nil {
		return Prediction{}, err
	}

	c.log.Debug("image classified",
		logger.String("crop", crop),
		logger.String("primary", pred.Primary.DiseaseName),
		logger.Int("primary_confidence", pred.Primary.Confidence),
		logger.Duration("elapsed", time.Since(start)))
	return pred, nil
}

func encodeForm(img Image, crop string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("crop", crop); err != nil {
		return nil, "", err
	}

	filename := img.Filename
	if filename == "" {
		filename = "image"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	h.Set("Content-Type", img.ContentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// Close is a no-op
func (c *HTTPClassifier) Close() error {
	return nil
}
