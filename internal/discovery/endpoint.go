// Package discovery feeds discovery events into a pair of topic indexes, one
// for publishers and one for subscribers, and answers endpoint count queries.
package discovery

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidEndpoint = errors.New("invalid endpoint")
	ErrUnknownKind     = errors.New("unknown endpoint kind")
)

// ParticipantID identifies one discovery participant.
type ParticipantID string

// EndpointKind selects the index an endpoint is recorded in.
type EndpointKind string

const (
	KindPublisher  EndpointKind = "publisher"
	KindSubscriber EndpointKind = "subscriber"
)

// Kinds lists every endpoint kind in dump order.
var Kinds = []EndpointKind{KindPublisher, KindSubscriber}

// ParseKind accepts "publisher"/"subscriber" and their plural forms.
func ParseKind(s string) (EndpointKind, error) {
	switch s {
	case "publisher", "publishers", "writer", "writers":
		return KindPublisher, nil
	case "subscriber", "subscribers", "reader", "readers":
		return KindSubscriber, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Endpoint is one advertised (topic, type) pair of a participant.
type Endpoint struct {
	Participant ParticipantID `json:"participant"`
	Kind        EndpointKind  `json:"kind"`
	Topic       string        `json:"topic"`
	Type        string        `json:"type"`
}

// Validate rejects endpoints the index should never see.
func (e Endpoint) Validate() error {
	switch {
	case e.Participant == "":
		return fmt.Errorf("%w: participant is required", ErrInvalidEndpoint)
	case e.Kind != KindPublisher && e.Kind != KindSubscriber:
		return fmt.Errorf("%w: %w: %q", ErrInvalidEndpoint, ErrUnknownKind, e.Kind)
	case e.Topic == "":
		return fmt.Errorf("%w: topic is required", ErrInvalidEndpoint)
	case e.Type == "":
		return fmt.Errorf("%w: type is required", ErrInvalidEndpoint)
	}
	return nil
}
