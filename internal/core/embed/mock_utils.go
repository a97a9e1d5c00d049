package embed

import (
	"context"
)

type MockEmbedderClient struct {
	Response []float32
	ByText   map[string][]float32
	Err      error
	Calls    int
}

func (m *MockEmbedderClient) Embed(ctx context.Context, text string) ([]float32, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	if vec, ok := m.ByText[text]; ok {
		return vec, nil
	}
	return m.Response, nil
}
