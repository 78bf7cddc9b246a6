// Package handlers implements the HTTP query API over the discovery indexes.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gobwas/glob"

	"github.com/watzon/topiccache/internal/discovery"
	"github.com/watzon/topiccache/internal/filter"
	"github.com/watzon/topiccache/internal/requestctx"
	"github.com/watzon/topiccache/internal/topiccache"
)

type HandlerFunc func(http.ResponseWriter, *http.Request)

type Handlers struct {
	listener *discovery.Listener
	filters  *filter.Engine
}

// New creates the query handlers. filters may be nil, in which case the
// where parameter is refused.
func New(listener *discovery.Listener, filters *filter.Engine) *Handlers {
	return &Handlers{listener: listener, filters: filters}
}

// CountResponse answers "how many endpoints of kind exist on topic".
type CountResponse struct {
	Topic      string                 `json:"topic" yaml:"topic"`
	Kind       discovery.EndpointKind `json:"kind" yaml:"kind"`
	Candidates []string               `json:"candidates" yaml:"candidates"`
	Count      int                    `json:"count" yaml:"count"`
}

type TopicsResponse struct {
	Kind   discovery.EndpointKind  `json:"kind"`
	Topics topiccache.TopicToTypes `json:"topics"`
}

type ParticipantResponse struct {
	Participant discovery.ParticipantID `json:"participant"`
	Kind        discovery.EndpointKind  `json:"kind"`
	Topics      topiccache.TopicToTypes `json:"topics"`
}

func (h *Handlers) kind(w http.ResponseWriter, r *http.Request) (discovery.EndpointKind, bool) {
	kind, err := discovery.ParseKind(r.PathValue("kind"))
	if err != nil {
		Error(w, http.StatusBadRequest, "INVALID_KIND", err.Error())
		return "", false
	}
	return kind, true
}

func (h *Handlers) Count(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}

	topic := r.URL.Query().Get("topic")
	if topic == "" {
		BadRequest(w, "topic is required")
		return
	}

	count, err := h.listener.Count(kind, topic)
	if err != nil {
		InternalError(w, err.Error())
		return
	}

	JSON(w, http.StatusOK, CountResponse{
		Topic:      topic,
		Kind:       kind,
		Candidates: discovery.ExpandTopicNames(topic, h.listener.Prefixes()),
		Count:      count,
	})
}

// Topics returns the topic map of one kind, optionally filtered by a glob
// over topic names ("/robot/*", "rt/**") and by a CEL predicate over
// topic, types and count.
func (h *Handlers) Topics(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}

	var matcher glob.Glob
	if pattern := r.URL.Query().Get("match"); pattern != "" {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			Error(w, http.StatusBadRequest, "INVALID_PATTERN", err.Error())
			return
		}
		matcher = g
	}

	topics, err := h.listener.TopicNamesAndTypes(kind)
	if err != nil {
		InternalError(w, err.Error())
		return
	}

	if matcher != nil {
		for topic := range topics {
			if !matcher.Match(topic) {
				delete(topics, topic)
			}
		}
	}

	if where := r.URL.Query().Get("where"); where != "" {
		if h.filters == nil {
			Error(w, http.StatusNotImplemented, "FILTER_UNAVAILABLE", "expression filters are disabled")
			return
		}
		if err := h.filters.Apply(where, topics); err != nil {
			if errors.Is(err, filter.ErrInvalidExpr) {
				ErrorWithDetails(w, http.StatusBadRequest, "INVALID_FILTER", err.Error(), map[string]string{"where": where})
				return
			}
			InternalError(w, err.Error())
			return
		}
	}

	JSON(w, http.StatusOK, TopicsResponse{Kind: kind, Topics: topics})
}

func (h *Handlers) Participant(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}

	id := discovery.ParticipantID(r.PathValue("id"))
	topics, found, err := h.listener.ParticipantTopics(kind, id)
	if err != nil {
		InternalError(w, err.Error())
		return
	}
	if !found {
		NotFound(w, "participant has no "+string(kind)+" endpoints")
		return
	}

	JSON(w, http.StatusOK, ParticipantResponse{
		Participant: id,
		Kind:        kind,
		Topics:      topics,
	})
}

// DebugCache renders both indexes as diagnostic text, or as YAML/JSON when
// format asks for it.
func (h *Handlers) DebugCache(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.URL.Query().Get("format"))

	switch format {
	case "", "text":
		Text(w, http.StatusOK, h.listener.Diagnostics())
	case "yaml", "yml":
		YAML(w, http.StatusOK, h.listener.Dump())
	case "json":
		JSON(w, http.StatusOK, h.listener.Dump())
	default:
		requestctx.Logger(r.Context()).Debug().Str("format", format).Msg("Unsupported dump format")
		BadRequest(w, "format must be text, yaml or json")
	}
}
