// ABOUTME: Keyword heuristics for detecting escalation intent
// ABOUTME: Matches customer requests and assistant limitation phrasing

package responder

import "strings"

// escalationKeywords match a customer asking for a person. Checked against
// every inbound customer message.
var escalationKeywords = []string{
	"speak to human",
	"talk to agent",
	"human agent",
	"human help",
	"live agent",
	"real person",
	"customer service",
	"representative",
	"escalate",
	"speak to someone",
	"talk to someone",
}

// limitationKeywords match an assistant admitting it cannot help.
var limitationKeywords = []string{
	"cannot help",
	"unable to assist",
	"beyond my capabilities",
	"need human assistance",
	"contact support",
	"speak with agent",
}

// CustomerRequestsHuman reports whether a customer message asks for a human
// agent. extra adds deployment-specific phrases from configuration.
func CustomerRequestsHuman(text string, extra []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range escalationKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	for _, kw := range extra {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// replySuggestsHandoff reports whether an assistant reply either mentions a
// human handoff or admits a limitation.
func replySuggestsHandoff(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range escalationKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	for _, kw := range limitationKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
