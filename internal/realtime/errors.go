package realtime

import "errors"

var (
	ErrEndpointLimit        = errors.New("endpoint limit reached")
	ErrEndpointNotAnnounced = errors.New("endpoint was not announced on this connection")
	ErrConnectionLimit      = errors.New("connection limit reached")
	ErrParticipantConnected = errors.New("participant already connected")
	ErrBrokerClosed         = errors.New("broker closed")
)
