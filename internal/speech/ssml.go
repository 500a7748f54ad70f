// Package speech renders agent lines as SSML, mapping the dialogue intensity
// to voice prosody.
package speech

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// Prosody settings per intensity level. Higher intensity slows the rate and
// lowers the pitch slightly, keeping the voice firm without sounding robotic.
var (
	rateByIntensity = map[int]string{
		1: "95%",
		2: "92%",
		3: "90%",
	}
	pitchByIntensity = map[int]string{
		1: "+0%",
		2: "-2%",
		3: "-4%",
	}
)

// ToSSML wraps text in a prosody element for the given intensity. Intensities
// outside 1..3 are clamped. Text is XML-escaped so caller names and amounts
// cannot break the markup.
func ToSSML(text string, intensity int) string {
	if intensity < 1 {
		intensity = 1
	}
	if intensity > 3 {
		intensity = 3
	}

	var escaped strings.Builder
	if err := xml.EscapeText(&escaped, []byte(text)); err != nil {
		// EscapeText only fails on writer errors; strings.Builder never errors.
		escaped.Reset()
		escaped.WriteString(text)
	}

	return fmt.Sprintf(`<speak><prosody rate="%s" pitch="%s">%s</prosody></speak>`,
		rateByIntensity[intensity], pitchByIntensity[intensity], escaped.String())
}
