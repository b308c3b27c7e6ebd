package debounce

import (
	"sync"
	"time"
)

// Debounce returns a function that delays calling fn until d has elapsed
// since the last time the returned function was invoked.
func Debounce(d time.Duration, fn func()) func() {
	var mu sync.Mutex
	var timer *time.Timer

	return func() {
		mu.Lock()
		defer mu.Unlock()

		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(d, fn)
	}
}
