package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/scanvault/internal/apperr"
	"github.com/starford/scanvault/internal/models"
)

type sample struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

type checked struct {
	Name string `json:"name"`
}

func (c *checked) Validate() error {
	if c.Name == "" {
		return errors.New("name required")
	}
	return nil
}

func TestDecode(t *testing.T) {
	t.Run("bare object", func(t *testing.T) {
		got, raw, err := Decode[sample](`{"name":"test","value":42}`)
		require.NoError(t, err)
		assert.Equal(t, sample{Name: "test", Value: 42}, got)
		assert.Equal(t, `{"name":"test","value":42}`, raw)
	})

	t.Run("surrounded by prose", func(t *testing.T) {
		text := "Sure! Here is the result:\n{\"name\":\"wrapped\",\"value\":5}\nLet me know if you need more."
		got, raw, err := Decode[sample](text)
		require.NoError(t, err)
		assert.Equal(t, "wrapped", got.Name)
		assert.True(t, strings.HasPrefix(raw, "{"))
		assert.True(t, strings.HasSuffix(raw, "}"))
	})

	t.Run("markdown fence", func(t *testing.T) {
		text := "```json\n{\"name\":\"fenced\",\"value\":7}\n```"
		got, raw, err := Decode[sample](text)
		require.NoError(t, err)
		assert.Equal(t, 7, got.Value)
		assert.Equal(t, "{\"name\":\"fenced\",\"value\":7}", raw)
	})

	t.Run("braces inside strings", func(t *testing.T) {
		text := `prefix {"name":"a } tricky { \"quoted\" }","value":1} suffix {"name":"second"}`
		got, raw, err := Decode[sample](text)
		require.NoError(t, err)
		assert.Equal(t, `a } tricky { "quoted" }`, got.Name)
		assert.Equal(t, `{"name":"a } tricky { \"quoted\" }","value":1}`, raw)
	})

	t.Run("nested objects", func(t *testing.T) {
		got, raw, err := Decode[map[string]any](`x {"outer":{"inner":{"v":1}}} y`)
		require.NoError(t, err)
		assert.Contains(t, got, "outer")
		assert.Equal(t, `{"outer":{"inner":{"v":1}}}`, raw)
	})

	t.Run("not json", func(t *testing.T) {
		_, _, err := Decode[sample]("not json at all")
		assert.True(t, errors.Is(err, apperr.ErrInvalidJSON), "err = %v", err)
	})

	t.Run("empty", func(t *testing.T) {
		_, _, err := Decode[sample]("")
		assert.ErrorIs(t, err, apperr.ErrInvalidJSON)
	})

	t.Run("unbalanced", func(t *testing.T) {
		_, _, err := Decode[sample](`{"name":"cut off", "value": {`)
		assert.ErrorIs(t, err, apperr.ErrInvalidJSON)
	})

	t.Run("type mismatch", func(t *testing.T) {
		_, raw, err := Decode[sample](`{"name":"x","value":"not a number"}`)
		assert.ErrorIs(t, err, apperr.ErrInvalidJSON)
		assert.Empty(t, raw)
	})

	t.Run("validator rejects", func(t *testing.T) {
		_, _, err := Decode[checked](`{"name":""}`)
		assert.ErrorIs(t, err, apperr.ErrInvalidJSON)

		got, _, err := Decode[checked](`{"name":"ok"}`)
		require.NoError(t, err)
		assert.Equal(t, "ok", got.Name)
	})
}

func TestDecode_Payloads(t *testing.T) {
	text := `The transcription follows.
{"transcript":"Met with {Ana} about Project Atlas","confidence":0.92,"warnings":["smudge"]}`
	tp, raw, err := Decode[models.TranscriptionPayload](text)
	require.NoError(t, err)
	assert.Equal(t, "Met with {Ana} about Project Atlas", tp.Transcript)
	require.NotNil(t, tp.Confidence)
	assert.InDelta(t, 0.92, *tp.Confidence, 1e-9)
	assert.Equal(t, []string{"smudge"}, tp.Warnings)
	assert.True(t, strings.HasPrefix(raw, "{") && strings.HasSuffix(raw, "}"))

	_, _, err = Decode[models.TranscriptionPayload](`{"transcript":"x","confidence":3}`)
	assert.ErrorIs(t, err, apperr.ErrInvalidJSON)

	_, _, err = Decode[models.TranscriptionPayload](`{}`)
	assert.ErrorIs(t, err, apperr.ErrInvalidJSON)

	_, _, err = Decode[models.TranscriptionPayload](`Here: {"text":"hello world","score":0.9}`)
	assert.ErrorIs(t, err, apperr.ErrInvalidJSON)

	_, _, err = Decode[models.StructurePayload](`{"markdown":"","classification":{"folder":"01_daily"}}`)
	assert.ErrorIs(t, err, apperr.ErrInvalidJSON)
}

func TestCandidate(t *testing.T) {
	raw, err := Candidate("a {\"k\":\"\\\\\"} b")
	require.NoError(t, err)
	assert.Equal(t, "{\"k\":\"\\\\\"}", raw)

	_, err = Candidate("no braces")
	assert.ErrorIs(t, err, apperr.ErrInvalidJSON)
}
