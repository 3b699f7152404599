package eventqueue

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/a2arun/agentnode/internal/a2atypes"
)

// TestMultiSubscriberPrefixOfSameTotalOrderProperty verifies that for any
// number of published events, every subscriber of the same queue observes
// a sequence that is a prefix of one shared total order (spec.md §7 P4:
// "for every pair of subscribers of the same task, the subsequences of
// events each observes are prefixes of the same total order").
func TestMultiSubscriberPrefixOfSameTotalOrderProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("every subscriber observes a prefix of one shared seq order", prop.ForAll(
		func(n int) bool {
			q := NewWithCapacity(1024, n+8)

			subA, ok := q.Subscribe(0)
			if !ok {
				return false
			}
			defer subA.Close()
			subB, ok := q.Subscribe(0)
			if !ok {
				return false
			}
			defer subB.Close()

			for i := 0; i < n; i++ {
				q.Publish(a2atypes.Event{Kind: a2atypes.EventStatusUpdate})
			}

			seqsA := drainSeqs(subA, n)
			seqsB := drainSeqs(subB, n)
			if len(seqsA) != n || len(seqsB) != n {
				return false
			}
			for i := 0; i < n; i++ {
				want := uint64(i + 1)
				if seqsA[i] != want || seqsB[i] != want {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 200),
	))

	properties.TestingRun(t)
}

func drainSeqs(sub *Subscription, n int) []uint64 {
	out := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				return out
			}
			out = append(out, ev.Seq)
		default:
			return out
		}
	}
	return out
}
