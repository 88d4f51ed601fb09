package source

import "strings"

// DefaultURL is the stream opened when no URL is configured: the University
// of Twente web SDR tuned to 4625 kHz.
const DefaultURL = "http://websdr.ewi.utwente.nl:8901/m.mp3?f=4625"

// Preset is a named, well-known stream.
type Preset struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

var presets = []Preset{
	{Name: "WebSDR Netherlands", URL: "http://websdr.ewi.utwente.nl:8901/?tune=4625usb"},
	{Name: "printf.cc Direct Stream", URL: "http://streams.printf.cc:8000/buzzer.ogg"},
	{Name: "printf.cc WebSDR", URL: "http://websdr.printf.cc:8901/?tune=4625usb"},
	{Name: "Local Test File", URL: "file://test_recording.wav"},
}

// Presets returns a copy of the built-in stream list.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// LookupPreset finds a preset by case-insensitive name.
func LookupPreset(name string) (Preset, bool) {
	for _, p := range presets {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Preset{}, false
}
