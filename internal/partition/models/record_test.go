package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "voterstore/pkg/domain-errors"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.FixedZone("IST", 5*3600+1800))

func TestNewRecord(t *testing.T) {
	t.Run("rejects empty id", func(t *testing.T) {
		_, err := NewRecord("", nil, now)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("stamps UTC microsecond time", func(t *testing.T) {
		rec, err := NewRecord("v1", map[string]any{"mobile": "9000000001"}, now)
		require.NoError(t, err)
		assert.Equal(t, "9000000001", rec.Mobile)
		assert.Equal(t, time.UTC, rec.UpdatedAt.Location())
		assert.Equal(t, 123456000, rec.UpdatedAt.Nanosecond())
	})
}

func TestMerge(t *testing.T) {
	base := func() *Record {
		return &Record{
			ID:   "v1",
			Name: "Asha",
			Ward: "3",
			Raw:  map[string]any{"मतदाता क्रमांक": "17", "keep": true},
		}
	}

	t.Run("shallow merge keeps untouched fields", func(t *testing.T) {
		rec := base()
		require.NoError(t, rec.Merge(map[string]any{"booth": "12", "village": "Rampur"}, now))
		assert.Equal(t, "Asha", rec.Name)
		assert.Equal(t, "3", rec.Ward)
		assert.Equal(t, "12", rec.Booth)
		assert.Equal(t, "Rampur", rec.Village)
	})

	t.Run("null clears a canonical field", func(t *testing.T) {
		rec := base()
		require.NoError(t, rec.Merge(map[string]any{"ward": nil}, now))
		assert.Empty(t, rec.Ward)
	})

	t.Run("numbers become strings", func(t *testing.T) {
		rec := base()
		require.NoError(t, rec.Merge(map[string]any{"mobile": float64(9000000001), "booth": 7}, now))
		assert.Equal(t, "9000000001", rec.Mobile)
		assert.Equal(t, "7", rec.Booth)
	})

	t.Run("json numbers become strings", func(t *testing.T) {
		rec := base()
		require.NoError(t, rec.Merge(map[string]any{"externalId": json.Number("12345")}, now))
		assert.Equal(t, "12345", rec.ExternalID)
	})

	t.Run("raw object merges key by key", func(t *testing.T) {
		rec := base()
		require.NoError(t, rec.Merge(map[string]any{"raw": map[string]any{"मतदाता क्रमांक": "18"}}, now))
		assert.Equal(t, "18", rec.Raw["मतदाता क्रमांक"])
		assert.Equal(t, true, rec.Raw["keep"])
	})

	t.Run("unknown keys land in raw", func(t *testing.T) {
		rec := base()
		require.NoError(t, rec.Merge(map[string]any{"caste": "x"}, now))
		assert.Equal(t, "x", rec.Raw["caste"])
	})

	t.Run("id and updatedAt are ignored", func(t *testing.T) {
		rec := base()
		require.NoError(t, rec.Merge(map[string]any{"id": "v2", "updatedAt": "2001-01-01T00:00:00Z"}, now))
		assert.Equal(t, "v1", rec.ID)
		assert.True(t, rec.UpdatedAt.Equal(now.Truncate(time.Microsecond)))
		assert.NotContains(t, rec.Raw, "id")
	})

	t.Run("invalid canonical value leaves record untouched", func(t *testing.T) {
		rec := base()
		err := rec.Merge(map[string]any{"booth": "9", "name": []any{"a"}}, now)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		assert.Equal(t, base(), rec)
	})

	t.Run("non-object raw is rejected", func(t *testing.T) {
		rec := base()
		err := rec.Merge(map[string]any{"raw": "flat"}, now)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestCloneIsolatesRaw(t *testing.T) {
	rec := &Record{ID: "v1", Raw: map[string]any{"k": "v"}}
	c := rec.Clone()
	c.Raw["k"] = "changed"
	assert.Equal(t, "v", rec.Raw["k"])
}
