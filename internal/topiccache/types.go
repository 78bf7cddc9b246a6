// Package topiccache provides a concurrent discovery index that records which
// topics exist, which types are advertised on each topic and which participant
// advertises which (topic, type) pair.
package topiccache

import "cmp"

// TypeList is the ordered list of type names registered on a topic. Duplicates
// are kept: every registration is one entry.
type TypeList []string

// TopicToTypes maps a topic name to the types registered on it.
type TopicToTypes map[string]TypeList

// Clone returns a deep copy that shares no backing arrays with t.
func (t TopicToTypes) Clone() TopicToTypes {
	out := make(TopicToTypes, len(t))
	for topic, types := range t {
		out[topic] = append(TypeList(nil), types...)
	}
	return out
}

// Len returns the total number of registrations across all topics.
func (t TopicToTypes) Len() int {
	n := 0
	for _, types := range t {
		n += len(types)
	}
	return n
}

// Stats summarizes the size of an index.
type Stats struct {
	Topics        int `json:"topics" yaml:"topics"`
	Participants  int `json:"participants" yaml:"participants"`
	Registrations int `json:"registrations" yaml:"registrations"`
}

// Snapshot is a point-in-time copy of a whole index.
type Snapshot[P cmp.Ordered] struct {
	Topics       TopicToTypes       `json:"topics" yaml:"topics"`
	Participants map[P]TopicToTypes `json:"participants" yaml:"participants"`
}

// removeFirst removes the first occurrence of typ from list. The returned list
// aliases list.
func removeFirst(list TypeList, typ string) (TypeList, bool) {
	for i, t := range list {
		if t == typ {
			return append(list[:i], list[i+1:]...), true
		}
	}
	return list, false
}
