package topiccache

import (
	"bytes"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	chatter    = "/chatter"
	stringType = "std_msgs/String"
)

func newTestCache(t *testing.T) *TopicCache[string] {
	t.Helper()
	c := New[string](zerolog.Nop())
	t.Cleanup(func() { checkInvariants(t, c) })
	return c
}

func TestTopicCache_ChatterScenario(t *testing.T) {
	c := newTestCache(t)

	require.True(t, c.AddTopic("P1", chatter, stringType))
	require.Equal(t, 1, c.CountParticipants([]string{chatter}))

	require.True(t, c.AddTopic("P2", chatter, stringType))
	require.Equal(t, 2, c.CountParticipants([]string{chatter}))

	require.True(t, c.RemoveTopic("P1", chatter, stringType))
	require.Equal(t, 1, c.CountParticipants([]string{chatter}))
	_, found := c.CloneParticipantTopics("P1")
	require.False(t, found)

	require.True(t, c.RemoveTopic("P2", chatter, stringType))
	require.Equal(t, 0, c.CountParticipants([]string{chatter}))
	require.NotContains(t, c.CloneTopicToTypes(), chatter)
}

func TestTopicCache_AddRemoveRoundTrip(t *testing.T) {
	c := newTestCache(t)
	c.AddTopic("P1", "/a", "T1")
	c.AddTopic("P2", "/b", "T2")

	beforeGlobal := c.CloneTopicToTypes()
	beforeP1, _ := c.CloneParticipantTopics("P1")

	c.AddTopic("P1", "/c", "T3")
	c.AddTopic("P3", "/a", "T1")
	require.True(t, c.RemoveTopic("P3", "/a", "T1"))
	require.True(t, c.RemoveTopic("P1", "/c", "T3"))

	require.Equal(t, beforeGlobal, c.CloneTopicToTypes())
	afterP1, ok := c.CloneParticipantTopics("P1")
	require.True(t, ok)
	require.Equal(t, beforeP1, afterP1)
	_, ok = c.CloneParticipantTopics("P3")
	require.False(t, ok)
	require.Equal(t, []string{"P1", "P2"}, c.Participants())
}

func TestTopicCache_RemoveUnknownTopic(t *testing.T) {
	c := newTestCache(t)
	c.AddTopic("P1", "/a", "T1")
	before := c.CloneTopicToTypes()

	require.False(t, c.RemoveTopic("P1", "/never", "T1"))
	require.Equal(t, before, c.CloneTopicToTypes())

	topics, ok := c.CloneParticipantTopics("P1")
	require.True(t, ok)
	require.Equal(t, TopicToTypes{"/a": {"T1"}}, topics)
}

func TestTopicCache_RemoveUnknownType(t *testing.T) {
	c := newTestCache(t)
	c.AddTopic("P1", "/a", "T1")

	require.False(t, c.RemoveTopic("P1", "/a", "T2"))
	require.Equal(t, TopicToTypes{"/a": {"T1"}}, c.CloneTopicToTypes())
}

func TestTopicCache_RemoveFromForeignParticipant(t *testing.T) {
	c := New[string](zerolog.Nop())
	c.AddTopic("P1", "/a", "T1")

	// The global half succeeds even though P2 never registered the pair.
	require.True(t, c.RemoveTopic("P2", "/a", "T1"))
	require.Empty(t, c.CloneTopicToTypes())

	// P1's local view is untouched by the asymmetric removal.
	topics, ok := c.CloneParticipantTopics("P1")
	require.True(t, ok)
	require.Equal(t, TopicToTypes{"/a": {"T1"}}, topics)
}

func TestTopicCache_DuplicatesAreCounted(t *testing.T) {
	c := newTestCache(t)
	c.AddTopic("P1", "/a", "T1")
	c.AddTopic("P1", "/a", "T1")
	c.AddTopic("P1", "/a", "T2")

	require.Equal(t, 3, c.CountParticipants([]string{"/a"}))

	require.True(t, c.RemoveTopic("P1", "/a", "T1"))
	require.Equal(t, TopicToTypes{"/a": {"T1", "T2"}}, c.CloneTopicToTypes())

	topics, _ := c.CloneParticipantTopics("P1")
	require.Equal(t, TopicToTypes{"/a": {"T1", "T2"}}, topics)
}

func TestTopicCache_CountParticipantsSumsCandidates(t *testing.T) {
	c := newTestCache(t)
	c.AddTopic("P1", "/chatter", stringType)
	c.AddTopic("P2", "rt/chatter", stringType)
	c.AddTopic("P3", "rt/chatter", stringType)
	c.AddTopic("P4", "/other", stringType)

	tests := []struct {
		name     string
		names    []string
		expected int
	}{
		{"plain name", []string{"/chatter"}, 1},
		{"with prefixed alias", []string{"/chatter", "rt/chatter"}, 3},
		{"absent names contribute zero", []string{"/missing", "rq/chatter"}, 0},
		{"nil input", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, c.CountParticipants(tt.names))
		})
	}
}

func TestTopicCache_SnapshotIsolation(t *testing.T) {
	c := newTestCache(t)
	c.AddTopic("P1", "/a", "T1")

	global := c.CloneTopicToTypes()
	local, ok := c.CloneParticipantTopics("P1")
	require.True(t, ok)

	c.AddTopic("P1", "/a", "T2")
	c.AddTopic("P2", "/b", "T3")
	c.RemoveTopic("P1", "/a", "T1")

	require.Equal(t, TopicToTypes{"/a": {"T1"}}, global)
	require.Equal(t, TopicToTypes{"/a": {"T1"}}, local)

	// Mutating a snapshot must not reach the index.
	global["/a"][0] = "mutated"
	global["/z"] = TypeList{"X"}
	require.Equal(t, TopicToTypes{"/a": {"T2"}, "/b": {"T3"}}, c.CloneTopicToTypes())
}

func TestTopicCache_RemoveParticipant(t *testing.T) {
	c := newTestCache(t)
	c.AddTopic("P1", "/a", "T1")
	c.AddTopic("P1", "/a", "T1")
	c.AddTopic("P1", "/b", "T2")
	c.AddTopic("P2", "/a", "T1")

	require.Equal(t, 3, c.RemoveParticipant("P1"))
	require.Equal(t, TopicToTypes{"/a": {"T1"}}, c.CloneTopicToTypes())
	require.Equal(t, []string{"P2"}, c.Participants())
	require.Equal(t, 0, c.RemoveParticipant("P1"))
}

func TestTopicCache_Stats(t *testing.T) {
	c := newTestCache(t)
	require.Equal(t, Stats{}, c.Stats())

	c.AddTopic("P1", "/a", "T1")
	c.AddTopic("P1", "/b", "T2")
	c.AddTopic("P2", "/a", "T1")

	require.Equal(t, Stats{Topics: 2, Participants: 2, Registrations: 3}, c.Stats())
}

func TestTopicCache_String(t *testing.T) {
	c := newTestCache(t)
	c.AddTopic("P2", "/b", "T2")
	c.AddTopic("P1", "/a", "T1")
	c.AddTopic("P1", "/a", "T3")

	expected := strings.Join([]string{
		"Participant Info:",
		"P1",
		"  Topics:",
		"    /a: T1,T3,",
		"P2",
		"  Topics:",
		"    /b: T2,",
		"Cumulative TopicToTypes:",
		"  /a : T1,T3,",
		"  /b : T2,",
		"",
	}, "\n")
	require.Equal(t, expected, c.String())
}

func TestTopicCache_DiagnosticTrace(t *testing.T) {
	var buf bytes.Buffer
	c := New[string](zerolog.New(&buf).Level(zerolog.DebugLevel))

	c.AddTopic("P1", chatter, stringType)
	c.RemoveTopic("P1", "/unknown", stringType)
	c.RemoveTopic("P9", chatter, stringType)

	out := buf.String()
	require.Contains(t, out, `"message":"Adding topic"`)
	require.Contains(t, out, `"participant":"P1"`)
	require.Contains(t, out, `"message":"Unexpected removal on unknown topic"`)
	require.Contains(t, out, `"message":"Unable to remove topic, does not exist for participant"`)
}

var formatCalls atomic.Int32

// tracedID counts how often the index formats it for a log field.
type tracedID string

func (id tracedID) String() string {
	formatCalls.Add(1)
	return string(id)
}

func TestTopicCache_TraceSkippedWhenDebugDisabled(t *testing.T) {
	var buf bytes.Buffer
	formatCalls.Store(0)

	c := New[tracedID](zerolog.New(&buf).Level(zerolog.InfoLevel))
	c.AddTopic("P1", chatter, stringType)
	c.RemoveTopic("P2", chatter, stringType)
	c.AddTopic("P1", chatter, stringType)
	c.RemoveParticipant("P1")

	assert.Zero(t, formatCalls.Load())
	assert.Empty(t, buf.String())

	debug := New[tracedID](zerolog.New(&buf).Level(zerolog.DebugLevel))
	debug.AddTopic("P1", chatter, stringType)
	assert.Positive(t, formatCalls.Load())
	assert.Contains(t, buf.String(), `"participant":"P1"`)
}

func TestTopicCache_EmptyNamesAreLegalKeys(t *testing.T) {
	c := newTestCache(t)
	c.AddTopic("P1", "", "")
	require.Equal(t, 1, c.CountParticipants([]string{""}))
	require.True(t, c.RemoveTopic("P1", "", ""))
	require.Empty(t, c.CloneTopicToTypes())
	require.Empty(t, c.Participants())
}

func TestTopicCache_Snapshot(t *testing.T) {
	c := newTestCache(t)
	c.AddTopic("P1", "/a", "T1")
	c.AddTopic("P2", "/a", "T2")

	snap := c.Snapshot()
	c.RemoveParticipant("P1")

	require.Equal(t, TopicToTypes{"/a": {"T1", "T2"}}, snap.Topics)
	require.Equal(t, map[string]TopicToTypes{
		"P1": {"/a": {"T1"}},
		"P2": {"/a": {"T2"}},
	}, snap.Participants)

	snap.Participants["P2"]["/a"][0] = "mutated"
	topics, _ := c.CloneParticipantTopics("P2")
	require.Equal(t, TopicToTypes{"/a": {"T2"}}, topics)
}

func TestTopicToTypes_Clone(t *testing.T) {
	orig := TopicToTypes{"/a": {"T1", "T2"}}
	clone := orig.Clone()
	clone["/a"][0] = "X"
	require.Equal(t, "T1", orig["/a"][0])
	require.Equal(t, 2, orig.Len())
}
