package topiccache

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// TopicCache keeps the global topic -> types map and the per-participant
// topic -> types maps in sync. A single mutex guards both maps, so no reader
// ever sees one half of a mutation applied without the other.
//
// Empty type lists, empty topic maps and empty participants are deleted as
// soon as they become empty; they are never retained.
type TopicCache[P cmp.Ordered] struct {
	mu                  sync.Mutex
	topicToTypes        TopicToTypes
	participantToTopics map[P]TopicToTypes
	logger              zerolog.Logger
}

// New creates an empty index. Registration traces are written to logger at
// debug level; pass zerolog.Nop() to disable them.
func New[P cmp.Ordered](logger zerolog.Logger) *TopicCache[P] {
	return &TopicCache[P]{
		topicToTypes:        make(TopicToTypes),
		participantToTopics: make(map[P]TopicToTypes),
		logger:              logger,
	}
}

// AddTopic records that participant advertises typ on topic. It always
// records a change and returns true.
func (c *TopicCache[P]) AddTopic(participant P, topic, typ string) bool {
	func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		c.topicToTypes[topic] = append(c.topicToTypes[topic], typ)

		topics, ok := c.participantToTopics[participant]
		if !ok {
			topics = make(TopicToTypes)
			c.participantToTopics[participant] = topics
		}
		topics[topic] = append(topics[topic], typ)
	}()

	if e := c.logger.Debug(); e.Enabled() {
		e.Str("participant", fmt.Sprint(participant)).
			Str("topic", topic).
			Str("type", typ).
			Msg("Adding topic")
	}
	return true
}

// RemoveTopic removes one registration of typ on topic. The global list and
// the participant's own list are updated independently: the result reports
// whether the global removal happened, and a missing local entry only
// produces a debug trace.
func (c *TopicCache[P]) RemoveTopic(participant P, topic, typ string) bool {
	var knownTopic, removedGlobal, removedLocal bool

	func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		types, ok := c.topicToTypes[topic]
		if !ok {
			return
		}
		knownTopic = true

		if types, removedGlobal = removeFirst(types, typ); removedGlobal {
			if len(types) == 0 {
				delete(c.topicToTypes, topic)
			} else {
				c.topicToTypes[topic] = types
			}
		}

		removedLocal = c.removeLocalLocked(participant, topic, typ)
	}()

	e := c.logger.Debug()
	if !e.Enabled() {
		return removedGlobal
	}
	switch {
	case !knownTopic:
		e.Str("topic", topic).
			Str("type", typ).
			Msg("Unexpected removal on unknown topic")
	case !removedLocal:
		e.Str("participant", fmt.Sprint(participant)).
			Str("topic", topic).
			Str("type", typ).
			Msg("Unable to remove topic, does not exist for participant")
	default:
		e.Discard()
	}
	return removedGlobal
}

func (c *TopicCache[P]) removeLocalLocked(participant P, topic, typ string) bool {
	topics, ok := c.participantToTopics[participant]
	if !ok {
		return false
	}
	types, ok := topics[topic]
	if !ok {
		return false
	}

	types, removed := removeFirst(types, typ)
	if !removed {
		return false
	}
	if len(types) == 0 {
		delete(topics, topic)
	} else {
		topics[topic] = types
	}
	if len(topics) == 0 {
		delete(c.participantToTopics, participant)
	}
	return true
}

// RemoveParticipant withdraws every registration held by participant from
// both maps in one critical section and returns how many were removed.
func (c *TopicCache[P]) RemoveParticipant(participant P) int {
	removed := 0

	func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		topics, ok := c.participantToTopics[participant]
		if !ok {
			return
		}
		for topic, types := range topics {
			global := c.topicToTypes[topic]
			for _, typ := range types {
				global, _ = removeFirst(global, typ)
				removed++
			}
			if len(global) == 0 {
				delete(c.topicToTypes, topic)
			} else {
				c.topicToTypes[topic] = global
			}
		}
		delete(c.participantToTopics, participant)
	}()

	if removed == 0 {
		return 0
	}
	if e := c.logger.Debug(); e.Enabled() {
		e.Str("participant", fmt.Sprint(participant)).
			Int("registrations", removed).
			Msg("Removed participant")
	}
	return removed
}

// CountParticipants sums the number of registrations of every name in names
// that is a known topic. Unknown names contribute zero. Repeated
// registrations count repeatedly.
func (c *TopicCache[P]) CountParticipants(names []string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for _, name := range names {
		count += len(c.topicToTypes[name])
	}
	return count
}

// CloneParticipantTopics returns an independent copy of the topics registered
// by participant, or false if it has none.
func (c *TopicCache[P]) CloneParticipantTopics(participant P) (TopicToTypes, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	topics, ok := c.participantToTopics[participant]
	if !ok {
		return nil, false
	}
	return topics.Clone(), true
}

// CloneTopicToTypes returns an independent copy of the global topic map.
func (c *TopicCache[P]) CloneTopicToTypes() TopicToTypes {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.topicToTypes.Clone()
}

// Snapshot returns independent copies of both maps taken under a single
// lock acquisition.
func (c *TopicCache[P]) Snapshot() Snapshot[P] {
	c.mu.Lock()
	defer c.mu.Unlock()

	participants := make(map[P]TopicToTypes, len(c.participantToTopics))
	for p, topics := range c.participantToTopics {
		participants[p] = topics.Clone()
	}
	return Snapshot[P]{
		Topics:       c.topicToTypes.Clone(),
		Participants: participants,
	}
}

// Participants returns the participants that currently hold registrations,
// in ascending order.
func (c *TopicCache[P]) Participants() []P {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]P, 0, len(c.participantToTopics))
	for p := range c.participantToTopics {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Stats returns the current size of the index.
func (c *TopicCache[P]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Topics:        len(c.topicToTypes),
		Participants:  len(c.participantToTopics),
		Registrations: c.topicToTypes.Len(),
	}
}

// String renders both maps for diagnostics. Participants and topics are
// sorted; callers must not parse the output.
func (c *TopicCache[P]) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("Participant Info:\n")

	participants := make([]P, 0, len(c.participantToTopics))
	for p := range c.participantToTopics {
		participants = append(participants, p)
	}
	slices.Sort(participants)

	for _, p := range participants {
		fmt.Fprintf(&sb, "%v\n  Topics:\n", p)
		topics := c.participantToTopics[p]
		for _, topic := range sortedKeys(topics) {
			fmt.Fprintf(&sb, "    %s: %s\n", topic, joinTypes(topics[topic]))
		}
	}

	sb.WriteString("Cumulative TopicToTypes:\n")
	for _, topic := range sortedKeys(c.topicToTypes) {
		fmt.Fprintf(&sb, "  %s : %s\n", topic, joinTypes(c.topicToTypes[topic]))
	}
	return sb.String()
}

func sortedKeys(m TopicToTypes) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// joinTypes keeps the trailing separator of the historical dump format.
func joinTypes(types TypeList) string {
	var sb strings.Builder
	for _, t := range types {
		sb.WriteString(t)
		sb.WriteByte(',')
	}
	return sb.String()
}
