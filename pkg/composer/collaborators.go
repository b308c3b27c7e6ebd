package composer

import (
	"context"

	"github.com/atinylittleshell/quill/internal/connection"
	"github.com/atinylittleshell/quill/pkg/wire"
)

// Surface is the editing surface the suggestion loop reads from and writes
// to. Offsets are rune offsets.
type Surface interface {
	Text() string
	Caret() int
	SetText(string)
	SetCaret(int)
}

// Connector is the channel to the suggestion service.
type Connector interface {
	Connect(ctx context.Context) error
	Send(word string, id uint64) bool
	Subscribe(listener func(wire.Message))
	OnStateChange(observer func(connection.State))
	Disconnect()
}

// ActivityTracker is told about every edit.
type ActivityTracker interface {
	Touch()
}

// Analytics records what became of each popup. chosen is empty when the
// popup went away without a pick.
type Analytics interface {
	Record(word string, offered []string, chosen string)
}

type NoopTracker struct{}

func (NoopTracker) Touch() {}

type NoopAnalytics struct{}

func (NoopAnalytics) Record(string, []string, string) {}
