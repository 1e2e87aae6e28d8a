package api

import (
	"bytes"
	"encoding/json"

	"example.com/rosters/internal/domain"
)

// ActivityView is the public shape of one activity.
type ActivityView struct {
	Description     string   `json:"description"`
	Schedule        string   `json:"schedule"`
	MaxParticipants int      `json:"max_participants"`
	Participants    []string `json:"participants"`
}

// ActivityDetailView adds the name for single-activity lookups.
type ActivityDetailView struct {
	Name string `json:"name"`
	ActivityView
	SpotsLeft int `json:"spots_left"`
}

type indexEntry struct {
	name string
	view ActivityView
}

// ActivityIndex encodes as a JSON object keyed by activity name, keeping catalog order.
type ActivityIndex []indexEntry

// MarshalJSON implements json.Marshaler.
func (idx ActivityIndex) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entry := range idx {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(entry.name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(entry.view)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func toActivityIndex(activities []domain.Activity) ActivityIndex {
	idx := make(ActivityIndex, 0, len(activities))
	for _, a := range activities {
		idx = append(idx, indexEntry{name: a.Name.String(), view: toView(a)})
	}
	return idx
}

func toView(a domain.Activity) ActivityView {
	participants := a.Participants
	if participants == nil {
		participants = []string{}
	}
	return ActivityView{
		Description:     a.Description,
		Schedule:        a.Schedule,
		MaxParticipants: a.MaxParticipants,
		Participants:    participants,
	}
}

func toActivityView(a domain.Activity) ActivityDetailView {
	return ActivityDetailView{
		Name:         a.Name.String(),
		ActivityView: toView(a),
		SpotsLeft:    a.SpotsLeft(),
	}
}
