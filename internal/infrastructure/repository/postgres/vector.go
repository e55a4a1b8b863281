package postgres

import (
	"fmt"
	"strconv"
	"strings"
)

// VectorLiteral renders an embedding as a pgvector input literal,
// e.g. [0.12,-0.5,1]. Passed as a text parameter and cast with ::vector.
func VectorLiteral(embedding []float32) string {
	var b strings.Builder
	b.Grow(len(embedding)*10 + 2)
	b.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// ParseVector reads a pgvector text representation back into a slice.
func ParseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("malformed vector literal %q", s)
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return nil, nil
	}
	parts := strings.Split(body, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("parse vector component %q: %w", p, err)
		}
		out = append(out, float32(v))
	}
	return out, nil
}
