package models

import (
	"fmt"
	"maps"
	"strconv"
	"time"

	dErrors "voterstore/pkg/domain-errors"
)

// Canonical payload keys. Anything else in a payload lands in Record.Raw.
const (
	FieldName       = "name"
	FieldExternalID = "externalId"
	FieldMobile     = "mobile"
	FieldWard       = "ward"
	FieldBooth      = "booth"
	FieldVillage    = "village"
	FieldRaw        = "raw"

	fieldID        = "id"
	fieldUpdatedAt = "updatedAt"
)

// Record is one voter entry scoped to exactly one partition.
//
// Invariants:
//   - ID is non-empty and unique within its partition
//   - UpdatedAt is stamped with the server's request time on every mutation
//   - Raw keeps original-source keys verbatim (they may be non-ASCII)
type Record struct {
	ID         string         `json:"id"`
	Name       string         `json:"name,omitempty"`
	ExternalID string         `json:"externalId,omitempty"`
	Mobile     string         `json:"mobile,omitempty"`
	Ward       string         `json:"ward,omitempty"`
	Booth      string         `json:"booth,omitempty"`
	Village    string         `json:"village,omitempty"`
	Raw        map[string]any `json:"raw,omitempty"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// NewRecord builds a record from a sync payload.
func NewRecord(id string, payload map[string]any, now time.Time) (*Record, error) {
	if id == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "record id cannot be empty")
	}
	r := &Record{ID: id}
	if err := r.Merge(payload, now); err != nil {
		return nil, err
	}
	return r, nil
}

// Merge applies payload as a shallow field-level merge and stamps UpdatedAt
// (microsecond precision, matching what Postgres stores).
// Canonical keys set their field (null clears it), a "raw" object is merged
// key by key into Raw, and any other key is stored in Raw as-is. "id" and
// "updatedAt" are ignored so a payload can never re-key or back-date a record.
// On error the record is left untouched.
func (r *Record) Merge(payload map[string]any, now time.Time) error {
	next := r.Clone()
	for key, value := range payload {
		switch key {
		case fieldID, fieldUpdatedAt:
			continue
		case FieldName, FieldExternalID, FieldMobile, FieldWard, FieldBooth, FieldVillage:
			s, err := canonicalString(key, value)
			if err != nil {
				return err
			}
			next.setCanonical(key, s)
		case FieldRaw:
			bag, ok := value.(map[string]any)
			if !ok {
				if value == nil {
					continue
				}
				return dErrors.New(dErrors.CodeValidation, "raw must be an object")
			}
			for k, v := range bag {
				next.setRaw(k, v)
			}
		default:
			next.setRaw(key, value)
		}
	}
	next.UpdatedAt = now.UTC().Truncate(time.Microsecond)
	*r = *next
	return nil
}

// Clone returns a copy whose Raw map can be mutated independently.
func (r *Record) Clone() *Record {
	c := *r
	if r.Raw != nil {
		c.Raw = maps.Clone(r.Raw)
	}
	return &c
}

func (r *Record) setCanonical(key, value string) {
	switch key {
	case FieldName:
		r.Name = value
	case FieldExternalID:
		r.ExternalID = value
	case FieldMobile:
		r.Mobile = value
	case FieldWard:
		r.Ward = value
	case FieldBooth:
		r.Booth = value
	case FieldVillage:
		r.Village = value
	}
}

func (r *Record) setRaw(key string, value any) {
	if r.Raw == nil {
		r.Raw = make(map[string]any)
	}
	r.Raw[key] = value
}

func canonicalString(key string, value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s must be a string", key))
	}
}
