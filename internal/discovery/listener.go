package discovery

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/watzon/topiccache/internal/metrics"
	"github.com/watzon/topiccache/internal/topiccache"
)

type cache = topiccache.TopicCache[ParticipantID]

// Listener applies discovery events to a writer index and a reader index.
// It is safe for concurrent use.
type Listener struct {
	writers  *cache
	readers  *cache
	prefixes []string
	logger   zerolog.Logger
}

// Stats reports the size of both indexes.
type Stats struct {
	Publishers  topiccache.Stats `json:"publishers" yaml:"publishers"`
	Subscribers topiccache.Stats `json:"subscribers" yaml:"subscribers"`
}

// Dump is a structured copy of both indexes.
type Dump struct {
	Publishers  topiccache.Snapshot[ParticipantID] `json:"publishers" yaml:"publishers"`
	Subscribers topiccache.Snapshot[ParticipantID] `json:"subscribers" yaml:"subscribers"`
}

// NewListener creates a listener that expands absolute topic names with
// prefixes when counting.
func NewListener(prefixes []string, logger zerolog.Logger) *Listener {
	l := &Listener{
		writers:  topiccache.New[ParticipantID](logger.With().Str("cache", "writer").Logger()),
		readers:  topiccache.New[ParticipantID](logger.With().Str("cache", "reader").Logger()),
		prefixes: append([]string(nil), prefixes...),
		logger:   logger,
	}
	l.refreshMetrics()
	return l
}

func (l *Listener) index(kind EndpointKind) (*cache, error) {
	switch kind {
	case KindPublisher:
		return l.writers, nil
	case KindSubscriber:
		return l.readers, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// Prefixes returns the namespace prefixes used when counting.
func (l *Listener) Prefixes() []string {
	return append([]string(nil), l.prefixes...)
}

// OnEndpointDiscovered records a newly advertised endpoint.
func (l *Listener) OnEndpointDiscovered(ep Endpoint) (bool, error) {
	if err := ep.Validate(); err != nil {
		return false, err
	}
	c, _ := l.index(ep.Kind)

	changed := c.AddTopic(ep.Participant, ep.Topic, ep.Type)
	metrics.RecordDiscoveryEvent(string(ep.Kind), "add", changed)
	l.refreshKind(ep.Kind, c)
	return changed, nil
}

// OnEndpointRemoved withdraws one registration of an endpoint. A false
// result means the index did not know the pair; it is informational only.
func (l *Listener) OnEndpointRemoved(ep Endpoint) (bool, error) {
	if err := ep.Validate(); err != nil {
		return false, err
	}
	c, _ := l.index(ep.Kind)

	changed := c.RemoveTopic(ep.Participant, ep.Topic, ep.Type)
	metrics.RecordDiscoveryEvent(string(ep.Kind), "remove", changed)
	l.refreshKind(ep.Kind, c)

	if !changed {
		l.logger.Debug().
			Str("participant", string(ep.Participant)).
			Str("kind", string(ep.Kind)).
			Str("topic", ep.Topic).
			Str("type", ep.Type).
			Msg("Endpoint removal did not change the index")
	}
	return changed, nil
}

// OnParticipantRemoved drops every endpoint of a participant from both
// indexes and returns how many registrations were withdrawn.
func (l *Listener) OnParticipantRemoved(p ParticipantID) int {
	writers := l.writers.RemoveParticipant(p)
	readers := l.readers.RemoveParticipant(p)
	metrics.RecordDiscoveryEvent(string(KindPublisher), "participant_removed", writers > 0)
	metrics.RecordDiscoveryEvent(string(KindSubscriber), "participant_removed", readers > 0)
	l.refreshMetrics()

	removed := writers + readers

	l.logger.Debug().
		Str("participant", string(p)).
		Int("registrations", removed).
		Msg("Participant removed")
	return removed
}

// CountPublishers counts publisher registrations on topic and its
// namespace-prefixed aliases.
func (l *Listener) CountPublishers(topic string) int {
	return l.writers.CountParticipants(ExpandTopicNames(topic, l.prefixes))
}

// CountSubscribers counts subscriber registrations on topic and its
// namespace-prefixed aliases.
func (l *Listener) CountSubscribers(topic string) int {
	return l.readers.CountParticipants(ExpandTopicNames(topic, l.prefixes))
}

// Count dispatches to CountPublishers or CountSubscribers.
func (l *Listener) Count(kind EndpointKind, topic string) (int, error) {
	c, err := l.index(kind)
	if err != nil {
		return 0, err
	}
	return c.CountParticipants(ExpandTopicNames(topic, l.prefixes)), nil
}

// TopicNamesAndTypes returns a snapshot of the global topic map of one kind.
func (l *Listener) TopicNamesAndTypes(kind EndpointKind) (topiccache.TopicToTypes, error) {
	c, err := l.index(kind)
	if err != nil {
		return nil, err
	}
	return c.CloneTopicToTypes(), nil
}

// ParticipantTopics returns a snapshot of one participant's topics of one
// kind, or false if it has none.
func (l *Listener) ParticipantTopics(kind EndpointKind, p ParticipantID) (topiccache.TopicToTypes, bool, error) {
	c, err := l.index(kind)
	if err != nil {
		return nil, false, err
	}
	topics, ok := c.CloneParticipantTopics(p)
	return topics, ok, nil
}

// Diagnostics renders both indexes as text.
func (l *Listener) Diagnostics() string {
	var sb strings.Builder
	sb.WriteString("Writer cache:\n")
	sb.WriteString(l.writers.String())
	sb.WriteString("Reader cache:\n")
	sb.WriteString(l.readers.String())
	return sb.String()
}

// Dump returns structured copies of both indexes.
func (l *Listener) Dump() Dump {
	return Dump{
		Publishers:  l.writers.Snapshot(),
		Subscribers: l.readers.Snapshot(),
	}
}

func (l *Listener) Stats() Stats {
	return Stats{
		Publishers:  l.writers.Stats(),
		Subscribers: l.readers.Stats(),
	}
}

func (l *Listener) refreshMetrics() {
	l.refreshKind(KindPublisher, l.writers)
	l.refreshKind(KindSubscriber, l.readers)
}

func (l *Listener) refreshKind(kind EndpointKind, c *cache) {
	s := c.Stats()
	metrics.UpdateIndexStats(string(kind), s.Topics, s.Participants, s.Registrations)
}
