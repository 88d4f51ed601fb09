//go:build !portaudio

package source

import (
	"fmt"
	"net/url"
)

// registerDevice keeps device:// recognisable in builds without PortAudio so
// the error names the missing build tag instead of an unknown scheme.
func registerDevice(r *Registry) {
	r.Register("device", func(*url.URL, Config) (Source, error) {
		return nil, fmt.Errorf("%w: device (rebuild with -tags portaudio)", ErrUnsupportedScheme)
	})
}

// ListDevices reports that capture devices are unavailable in this build.
func ListDevices() ([]string, error) {
	return nil, fmt.Errorf("%w: device (rebuild with -tags portaudio)", ErrUnsupportedScheme)
}
