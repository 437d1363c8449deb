package psu

import (
	"bytes"
	"encoding/json"
	"sort"

	"gopkg.in/yaml.v3"
)

// Unavailable fills both readings of a channel that could not be polled.
const Unavailable = "N/A"

// Entry is one channel's readings inside a Status.
type Entry struct {
	Channel Channel
	ChannelStatus
}

// Status is a snapshot of every channel, ordered by channel number. It
// serializes as a single object keyed by channel label.
type Status []Entry

// Get returns the readings for ch.
func (s Status) Get(ch Channel) (ChannelStatus, bool) {
	for _, e := range s {
		if e.Channel == ch {
			return e.ChannelStatus, true
		}
	}
	return ChannelStatus{}, false
}

func (s Status) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Channel.Label())
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.ChannelStatus)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw map[string]ChannelStatus
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(Status, 0, len(raw))
	for label, cs := range raw {
		ch, err := ParseChannel(label)
		if err != nil {
			return err
		}
		out = append(out, Entry{Channel: ch, ChannelStatus: cs})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })

	*s = out
	return nil
}

func (s Status) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range s {
		val := &yaml.Node{}
		if err := val.Encode(e.ChannelStatus); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Channel.Label()},
			val,
		)
	}
	return node, nil
}
