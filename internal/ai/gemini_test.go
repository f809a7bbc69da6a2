package ai

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestClassifyQuotaByCode(t *testing.T) {
	t.Parallel()

	err := classify(genai.APIError{Code: 429, Message: "quota exceeded for model"})

	require.ErrorIs(t, err, ErrQuota)
	assert.Contains(t, err.Error(), "quota exceeded for model")
}

func TestClassifyQuotaByStatus(t *testing.T) {
	t.Parallel()

	err := classify(genai.APIError{Code: 400, Status: "RESOURCE_EXHAUSTED", Message: "slow down"})

	require.ErrorIs(t, err, ErrQuota)
}

func TestClassifyQuotaByMarker(t *testing.T) {
	t.Parallel()

	err := classify(errors.New("rpc error: RESOURCE_EXHAUSTED: try again later"))

	require.ErrorIs(t, err, ErrQuota)
}

func TestClassifyPassthrough(t *testing.T) {
	t.Parallel()

	original := errors.New("connection reset by peer")

	err := classify(original)

	require.Equal(t, original, err)
	assert.NotErrorIs(t, err, ErrQuota)
}

func TestFirstInlineDataSkipsTextParts(t *testing.T) {
	t.Parallel()

	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
		nil,
		{Content: &genai.Content{Parts: []*genai.Part{{Text: "not audio"}}}},
		{Content: &genai.Content{Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: "audio/L16", Data: []byte{1, 2, 3}}},
		}}},
	}}

	assert.Equal(t, []byte{1, 2, 3}, firstInlineData(resp))
	assert.Equal(t, "not audio", firstText(resp))
}

func TestFirstInlineDataEmptyResponse(t *testing.T) {
	t.Parallel()

	resp := &genai.GenerateContentResponse{}

	assert.Nil(t, firstInlineData(resp))
	assert.Empty(t, firstText(resp))
}

func TestStubSynthesizeDeterministic(t *testing.T) {
	t.Parallel()

	stub := NewStubClient()

	first, err := stub.Synthesize(context.Background(), "любой текст", "kore")
	require.NoError(t, err)
	second, err := stub.Synthesize(context.Background(), "другой текст", "puck")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 24000)
	assert.EqualValues(t, 8000, int16(binary.LittleEndian.Uint16(first[:2])))
}
