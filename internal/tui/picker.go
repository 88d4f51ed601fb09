package tui

import (
	"errors"
	"fmt"

	component "github.com/j-04/gocui-component"
	"github.com/jroimartin/gocui"

	"github.com/MrWong99/buzzer/internal/source"
)

var (
	errSelected = errors.New("tui: stream selected")

	// ErrCancelled is returned by [PickStream] when the user cancels.
	ErrCancelled = errors.New("tui: selection cancelled")
)

// configuredOption labels the configured URL in the picker.
const configuredOption = "Configured URL"

// streamOptions lists the picker entries: the configured URL first when
// set, then every preset.
func streamOptions(configured string, presets []source.Preset) []string {
	opts := make([]string, 0, len(presets)+1)
	if configured != "" {
		opts = append(opts, configuredOption)
	}
	for _, p := range presets {
		opts = append(opts, p.Name)
	}
	return opts
}

// resolveOption maps a picker entry back to a stream URL.
func resolveOption(opt, configured string) (string, error) {
	if opt == configuredOption && configured != "" {
		return configured, nil
	}
	p, ok := source.LookupPreset(opt)
	if !ok {
		return "", fmt.Errorf("tui: unknown stream %q", opt)
	}
	return p.URL, nil
}

// PickStream shows a form listing the presets and returns the chosen URL.
func PickStream(configured string) (string, error) {
	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		return "", fmt.Errorf("tui: %w", err)
	}
	defer g.Close()

	opts := streamOptions(configured, source.Presets())
	form := component.NewForm(g, "Select stream", 8, len(opts), 0, 0)
	sel := form.AddSelect("Stream:", 8, 40).AddOptions(opts...)

	var url string
	var pickErr error
	form.AddButton("Start", func(g *gocui.Gui, v *gocui.View) error {
		url, pickErr = resolveOption(sel.GetSelected(), configured)
		form.Close(g, v)
		return errSelected
	})
	form.AddButton("Cancel", func(g *gocui.Gui, v *gocui.View) error {
		form.Close(g, v)
		return ErrCancelled
	})
	form.Draw()

	switch err := g.MainLoop(); {
	case errors.Is(err, errSelected):
		return url, pickErr
	case errors.Is(err, ErrCancelled), errors.Is(err, gocui.ErrQuit):
		return "", ErrCancelled
	default:
		return "", fmt.Errorf("tui: %w", err)
	}
}
