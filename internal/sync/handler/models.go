package handler

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"voterstore/internal/partition/models"
	dErrors "voterstore/pkg/domain-errors"
)

// Timestamp accepts RFC 3339 strings or Unix milliseconds, the two forms
// field apps send.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseTimestamp(s)
		if err != nil {
			return err
		}
		t.Time = parsed
		return nil
	}
	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "updatedAt must be RFC 3339 or Unix milliseconds")
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

// ParseTimestamp parses RFC 3339 (with optional fractional seconds) or a
// Unix millisecond count.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeBadRequest, "timestamp must be RFC 3339 or Unix milliseconds")
	}
	return t.UTC(), nil
}

// ChangeRequest is one element of a bulk upsert body.
type ChangeRequest struct {
	ID        string         `json:"id"`
	Op        string         `json:"op"`
	Payload   map[string]any `json:"payload"`
	UpdatedAt Timestamp      `json:"updatedAt"`
}

// BulkUpsertRequest is the body of POST /records/bulk-upsert. Changes are
// kept raw so one malformed element fails alone instead of the whole batch.
type BulkUpsertRequest struct {
	PartitionID string            `json:"partitionId"`
	Changes     []json.RawMessage `json:"changes"`
}

// ToChanges converts the wire form to domain changes in order. An element
// that does not decode becomes a Malformed change carrying whatever id could
// be recovered from it.
func (r *BulkUpsertRequest) ToChanges() []models.SyncChange {
	out := make([]models.SyncChange, len(r.Changes))
	for i, raw := range r.Changes {
		var c ChangeRequest
		if err := decodeChange(raw, &c); err != nil {
			out[i] = models.SyncChange{ID: changeID(raw), Malformed: true}
			continue
		}
		out[i] = models.SyncChange{
			ID:        c.ID,
			Op:        models.Op(c.Op),
			Payload:   c.Payload,
			UpdatedAt: c.UpdatedAt.Time,
		}
	}
	return out
}

// decodeChange keeps payload numbers as json.Number so long numeric ids
// survive intact.
func decodeChange(raw json.RawMessage, dst *ChangeRequest) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(dst)
}

func changeID(raw json.RawMessage) string {
	var head struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(raw, &head); err != nil || len(head.ID) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(head.ID, &id); err == nil {
		return id
	}
	if bytes.Equal(head.ID, []byte("null")) {
		return ""
	}
	return string(head.ID)
}

// ExportResponse is the body of GET /records.
type ExportResponse struct {
	Items       []*models.Record `json:"items"`
	HasMore     bool             `json:"hasMore"`
	ServerTime  time.Time        `json:"serverTime"`
	Page        int              `json:"page"`
	Count       int              `json:"count"`
	Total       int              `json:"total"`
	PartitionID string           `json:"partitionId"`
}

// BulkUpsertResponse is the body of POST /records/bulk-upsert.
type BulkUpsertResponse struct {
	SuccessIDs  []string              `json:"successIds"`
	Failed      []models.FailedChange `json:"failed"`
	DroppedIDs  []string              `json:"droppedIds"`
	PartitionID string                `json:"partitionId"`
}
