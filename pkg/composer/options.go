package composer

import (
	"time"

	"github.com/atinylittleshell/quill/pkg/debounce"
	"github.com/atinylittleshell/quill/pkg/suggestion"
)

type Options struct {
	// SuggestionsEnabled is the initial state of the ctrl+t toggle.
	SuggestionsEnabled bool
	QuietPeriod        time.Duration
	Session            suggestion.Options

	PopupWidth int
	MinMargin  int

	Placeholder string
}

func NewOptions() Options {
	return Options{
		SuggestionsEnabled: true,
		QuietPeriod:        debounce.DefaultQuietPeriod,
		Session:            suggestion.DefaultOptions(),
		PopupWidth:         24,
		MinMargin:          1,
		Placeholder:        "Start writing...",
	}
}
