package models

import "strings"

// MessagePlaceholder is replaced by the raw user message when a prompt
// template is rendered.
const MessagePlaceholder = "{message}"

// ModelDescriptor describes one model the gateway can talk to.
type ModelDescriptor struct {
	ID         string     `json:"id" yaml:"id"`
	Name       string     `json:"name" yaml:"name"`
	Path       string     `json:"path" yaml:"path"`
	Specialty  string     `json:"specialty" yaml:"specialty"`
	Template   string     `json:"template,omitempty" yaml:"template"`
	EchoMarker string     `json:"echo_marker,omitempty" yaml:"echo_marker"`
	Welcome    string     `json:"welcome,omitempty" yaml:"welcome"`
	Fallback   string     `json:"fallback,omitempty" yaml:"fallback"`
	Aliases    []string   `json:"aliases,omitempty" yaml:"aliases"`
	Parameters Parameters `json:"parameters" yaml:"parameters"`
}

// Prompt shapes a raw user message with the model's template. A descriptor
// without a template sends the message unchanged.
func (d ModelDescriptor) Prompt(message string) string {
	if d.Template == "" {
		return message
	}
	return strings.ReplaceAll(d.Template, MessagePlaceholder, message)
}

// WelcomeMessage returns the greeting shown when a conversation (re)starts.
func (d ModelDescriptor) WelcomeMessage() string {
	if d.Welcome != "" {
		return d.Welcome
	}
	return "Connected to " + d.Name + ". How can I help you today?"
}
