package notify

import (
	_ "embed"

	"gopkg.in/yaml.v3"
)

//go:embed messages.yaml
var messagesYAML []byte

type messageCatalog struct {
	Events  map[string]string `yaml:"events"`
	Reasons map[string]string `yaml:"reasons"`
}

var catalog messageCatalog

func init() {
	if err := yaml.Unmarshal(messagesYAML, &catalog); err != nil {
		// Embedded file, cannot fail in practice.
		panic("failed to unmarshal embedded messages.yaml: " + err.Error())
	}
}

// ReasonMessage returns the human-readable text for a denial or failure
// code. Unknown codes get a generic fallback so raw internals never leak
// to the caller.
func ReasonMessage(code string) string {
	if msg, ok := catalog.Reasons[code]; ok {
		return msg
	}
	return "Access could not be processed."
}

// EventMessage returns the human-readable text for a notification event.
func EventMessage(event string) string {
	if msg, ok := catalog.Events[event]; ok {
		return msg
	}
	return event
}
