package discovery

import "strings"

// ExpandTopicNames returns the names a topic may be registered under: the
// topic itself and, for absolute names, the topic behind every namespace
// prefix ("/chatter" -> "rt/chatter").
func ExpandTopicNames(topic string, prefixes []string) []string {
	names := []string{topic}
	if !strings.HasPrefix(topic, "/") {
		return names
	}
	for _, prefix := range prefixes {
		names = append(names, prefix+topic)
	}
	return names
}
