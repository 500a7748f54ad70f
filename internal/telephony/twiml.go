// Package telephony covers the voice-provider surface: TwiML rendering for
// webhook responses and a REST client for placing and inspecting calls.
package telephony

import (
	"encoding/xml"
	"fmt"
)

// TwiML response document. Verbs render in struct order, so Say always
// precedes Gather or Hangup.
type Response struct {
	XMLName  xml.Name  `xml:"Response"`
	Say      *Say      `xml:"Say,omitempty"`
	Gather   *Gather   `xml:"Gather,omitempty"`
	Redirect *Redirect `xml:"Redirect,omitempty"`
	Hangup   *Hangup   `xml:"Hangup,omitempty"`
}

type Say struct {
	Voice    string `xml:"voice,attr,omitempty"`
	Language string `xml:"language,attr,omitempty"`
	// Text carries SSML; it is emitted verbatim, so it must already be
	// well-formed XML.
	Text string `xml:",innerxml"`
}

type Gather struct {
	Input         string `xml:"input,attr"`
	Language      string `xml:"language,attr,omitempty"`
	Action        string `xml:"action,attr"`
	Method        string `xml:"method,attr"`
	SpeechTimeout string `xml:"speechTimeout,attr,omitempty"`
	Say           *Say   `xml:"Say,omitempty"`
}

type Redirect struct {
	Method string `xml:"method,attr,omitempty"`
	URL    string `xml:",chardata"`
}

type Hangup struct{}

// VoiceConfig selects the TTS voice for rendered responses.
type VoiceConfig struct {
	Name     string
	Language string
}

// Prompt renders a document that speaks ssml and then gathers the caller's
// speech, posting the transcript to actionURL. A trailing Redirect catches
// gather timeouts: the provider falls through to it without posting, so the
// silent turn still reaches the handler, with an empty transcript.
func Prompt(ssml, actionURL string, voice VoiceConfig) *Response {
	return &Response{
		Gather: &Gather{
			Input:         "speech",
			Language:      voice.Language,
			Action:        actionURL,
			Method:        "POST",
			SpeechTimeout: "auto",
			Say:           &Say{Voice: voice.Name, Language: voice.Language, Text: ssml},
		},
		Redirect: &Redirect{Method: "POST", URL: actionURL},
	}
}

// Farewell renders a document that speaks ssml and hangs up.
func Farewell(ssml string, voice VoiceConfig) *Response {
	return &Response{
		Say:    &Say{Voice: voice.Name, Language: voice.Language, Text: ssml},
		Hangup: &Hangup{},
	}
}

// Render serializes the response with the XML declaration Twilio expects.
func (r *Response) Render() (string, error) {
	out, err := xml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to render twiml: %w", err)
	}
	return xml.Header + string(out), nil
}
