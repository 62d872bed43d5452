// Package twiml renders transport-formatted reply documents for the SMS
// webhook and splits long replies into carrier-safe segments.
package twiml

import (
	"encoding/xml"
	"strings"
)

// DefaultSegmentWidth is the per-message safe length. Replies longer than
// this are split at word boundaries into sequential segments.
const DefaultSegmentWidth = 300

// messagingResponse is the TwiML document returned to the SMS transport.
type messagingResponse struct {
	XMLName  xml.Name `xml:"Response"`
	Messages []string `xml:"Message"`
}

// Render produces a TwiML document containing the given message segments.
// An empty segment list yields a well-formed empty <Response/>, which the
// transport treats as "no reply".
func Render(segments ...string) string {
	doc := messagingResponse{Messages: segments}
	data, err := xml.Marshal(doc)
	if err != nil {
		// xml.Marshal on a struct of strings cannot realistically fail;
		// fall back to an empty document so the transport never sees garbage.
		return xml.Header + "<Response></Response>"
	}
	return xml.Header + string(data)
}

// RenderReply splits body into segments at the default width and renders the
// resulting document. An empty body renders an empty response.
func RenderReply(body string) string {
	if strings.TrimSpace(body) == "" {
		return Render()
	}
	return Render(Split(body, DefaultSegmentWidth)...)
}

// Split breaks text into segments of at most width characters without
// breaking words. A single word longer than width is kept whole in its own
// segment. Joining the segments with single spaces reproduces the original
// text modulo whitespace runs.
func Split(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if width <= 0 {
		width = DefaultSegmentWidth
	}

	var segments []string
	var current strings.Builder
	for _, word := range words {
		if current.Len() == 0 {
			current.WriteString(word)
			continue
		}
		if current.Len()+1+len(word) > width {
			segments = append(segments, current.String())
			current.Reset()
			current.WriteString(word)
			continue
		}
		current.WriteByte(' ')
		current.WriteString(word)
	}
	if current.Len() > 0 {
		segments = append(segments, current.String())
	}
	return segments
}

// PersonalizeAgent substitutes the {{AGENT_NAME}} placeholder in canned
// campaign message bodies.
func PersonalizeAgent(body, agentName string) string {
	return strings.ReplaceAll(body, "{{AGENT_NAME}}", agentName)
}

// PersonalizeName substitutes the {{NAME}} placeholder in canned campaign
// message bodies.
func PersonalizeName(body, name string) string {
	return strings.ReplaceAll(body, "{{NAME}}", name)
}
