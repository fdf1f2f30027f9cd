// Package taskstat keeps process-wide counts of live tasks per
// category. Purely diagnostic; snapshots may be torn across counters
// under churn.
package taskstat

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
)

type Category int

const (
	Core Category = iota
	Event
	Disposal
	Mixer
	UdpRx
	UdpTx
	Signaling

	numCategories
)

var labels = [numCategories]string{
	Core:      "CORE_TASK_COUNT",
	Event:     "EVENT_TASK_COUNT",
	Disposal:  "DISPOSAL_TASK_COUNT",
	Mixer:     "MIXER_TASK_COUNT",
	UdpRx:     "UDP_RX_TASK_COUNT",
	UdpTx:     "UDP_TX_TASK_COUNT",
	Signaling: "WS_TASK_COUNT",
}

func (c Category) String() string { return labels[c] }

var counts [numCategories]atomic.Int64

// Token marks one live task of a category. Release it on every exit
// path, normally with defer right after Acquire.
type Token struct {
	category Category
	once     sync.Once
}

// Acquire increments the category's live-task count and returns the
// token that undoes it.
func Acquire(c Category) *Token {
	counts[c].Add(1)
	return &Token{category: c}
}

// Release decrements the counter. Safe to call more than once; only the
// first call counts.
func (t *Token) Release() {
	t.once.Do(func() {
		counts[t.category].Add(-1)
	})
}

// Live returns the current count for one category.
func Live(c Category) int64 {
	return counts[c].Load()
}

// Report renders all counters as a fixed-format multi-line snapshot.
func Report() string {
	out := "VOICELINK TASK STATS:\n"
	for c := Category(0); c < numCategories; c++ {
		out += fmt.Sprintf("\t%s: %d\n", labels[c], counts[c].Load())
	}
	return out
}

// Print writes the snapshot to stdout.
func Print() {
	fmt.Fprint(os.Stdout, Report())
}
