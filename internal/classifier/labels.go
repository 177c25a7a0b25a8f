package classifier

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// label is one output class of a local model. Lines of a label file are
// either "disease" or "crop,disease"; crop-qualified labels only compete
// for photos of that crop.
type label struct {
	crop    string
	disease string
}

func parseLabels(r io.Reader) ([]label, error) {
	var labels []label
	scanner := bufio.NewScanner(r)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		crop, disease, found := strings.Cut(line, ",")
		if !found {
			labels = append(labels, label{disease: line})
			continue
		}
		// Output indexes follow label order, so a bad line cannot be skipped.
		disease = strings.TrimSpace(disease)
		if disease == "" {
			return nil, fmt.Errorf("label on line %d has no disease name", lineNo)
		}
		labels = append(labels, label{crop: strings.TrimSpace(crop), disease: disease})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	if len(labels) < 2 {
		return nil, fmt.Errorf("label file must contain at least two labels, got %d", len(labels))
	}
	return labels, nil
}

// candidatesFor pairs scores with the labels eligible for crop.
func candidatesFor(labels []label, scores []float32, crop string) []scored {
	out := make([]scored, 0, len(labels))
	for i, l := range labels {
		if i >= len(scores) {
			break
		}
		if l.crop != "" && !strings.EqualFold(l.crop, crop) {
			continue
		}
		out = append(out, scored{label: l.disease, score: float64(scores[i])})
	}
	return out
}
