package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// itemJSON is the wire shape of an Item.
// Fields are ordered to minimize memory padding.
type itemJSON struct {
	StartTime   *time.Time      `json:"startTime,omitempty"`
	EndTime     *time.Time      `json:"endTime,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Type        Kind            `json:"type"`
	Status      Status          `json:"status"`
	Duration    json.RawMessage `json:"duration,omitempty"`
	Subtasks    []int           `json:"subtasks,omitempty"`
	ID          int             `json:"id,omitempty"`
	Epic        int             `json:"epic,omitempty"`
}

// MarshalJSON encodes the item with RFC 3339 times and an ISO-8601 duration.
func (i *Item) MarshalJSON() ([]byte, error) {
	out := itemJSON{
		ID:          i.ID,
		Type:        i.Kind,
		Name:        i.Name,
		Description: i.Description,
		Status:      i.Status,
		Epic:        i.EpicID,
		Subtasks:    i.Subtasks,
	}
	if i.HasStart() {
		start := i.Start
		out.StartTime = &start
	}
	if end, ok := i.EndTime(); ok {
		out.EndTime = &end
	}
	if i.Duration != 0 || i.HasStart() {
		d, err := json.Marshal(FormatISODuration(i.Duration))
		if err != nil {
			return nil, err
		}
		out.Duration = d
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes an item. The duration may be an ISO-8601 string or
// a number of minutes. type and status are case-insensitive. endTime is
// derived and ignored on input.
func (i *Item) UnmarshalJSON(data []byte) error {
	var in itemJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	d, err := decodeDuration(in.Duration)
	if err != nil {
		return err
	}
	if in.Type != "" {
		if in.Type, err = ParseKind(string(in.Type)); err != nil {
			return err
		}
	}
	if in.Status != "" {
		if in.Status, err = ParseStatus(string(in.Status)); err != nil {
			return err
		}
	}
	*i = Item{
		ID:          in.ID,
		Kind:        in.Type,
		Name:        in.Name,
		Description: in.Description,
		Status:      in.Status,
		EpicID:      in.Epic,
		Subtasks:    in.Subtasks,
		Duration:    d,
	}
	if in.StartTime != nil {
		i.Start = *in.StartTime
	}
	return nil
}

func decodeDuration(raw json.RawMessage) (time.Duration, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		return ParseISODuration(s)
	}
	var minutes int64
	if err := json.Unmarshal(raw, &minutes); err != nil {
		return 0, fmt.Errorf("duration: %w", ErrInvalidArgument)
	}
	return time.Duration(minutes) * time.Minute, nil
}
