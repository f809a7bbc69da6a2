package ai

import (
	"context"
	"encoding/binary"
)

// StubClient заглушка, которая не делает реальных запросов
type StubClient struct{}

var _ Client = (*StubClient)(nil)

func NewStubClient() *StubClient { return &StubClient{} }

// Synthesize возвращает полсекунды слышимого тона, чтобы плееру было что играть.
func (c *StubClient) Synthesize(_ context.Context, _ string, _ string) ([]byte, error) {
	const (
		sampleRate = 24000
		samples    = sampleRate / 2
		halfPeriod = 27 // ~440 Гц
		amplitude  = 8000
	)

	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(amplitude)
		if (i/halfPeriod)%2 == 1 {
			v = -amplitude
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}

	return pcm, nil
}

func (c *StubClient) GenerateText(_ context.Context, _ string, _ Clip) (string, error) {
	return "запрос получен", nil
}
