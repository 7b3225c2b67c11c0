package topics

import "strings"

// Join builds a topic from a prefix and further levels, skipping empty parts
// Pattern: {prefix}/{level}/{level}
func Join(prefix string, levels ...string) string {
	parts := make([]string, 0, len(levels)+1)
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	for _, l := range levels {
		if l = strings.Trim(l, "/"); l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, "/")
}

// Wildcards matches topic against an MQTT subscription filter and returns
// the levels that stood in for '+' wildcards, in order. A trailing '#'
// contributes the remaining levels joined by '/'.
func Wildcards(filter, topic string) ([]string, bool) {
	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")

	var matched []string
	for i, level := range f {
		if level == "#" {
			if i != len(f)-1 {
				return nil, false
			}
			return append(matched, strings.Join(t[min(i, len(t)):], "/")), true
		}
		if i >= len(t) {
			return nil, false
		}
		switch level {
		case "+":
			matched = append(matched, t[i])
		case t[i]:
		default:
			return nil, false
		}
	}
	if len(t) != len(f) {
		return nil, false
	}
	return matched, true
}

// Match reports whether topic matches an MQTT subscription filter
func Match(filter, topic string) bool {
	_, ok := Wildcards(filter, topic)
	return ok
}
