package queue_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"scoutq/internal/domain/model"
	"scoutq/internal/domain/queue"
	"scoutq/pkg/logger"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func wildRequest(id string, prio model.Priority, at time.Time) *model.ScoutRequest {
	return &model.ScoutRequest{
		Identity:   id,
		SpeciesID:  1,
		SeenType:   model.SeenWild,
		Source:     model.SourceIVList,
		Points:     []model.Point{{Lat: 40.0, Lon: -73.0}},
		Priority:   prio,
		EnqueuedAt: at,
	}
}

type stubInFlight map[string]bool

func (s stubInFlight) Outstanding(identity string) bool { return s[identity] }

func TestQueueOrdering(t *testing.T) {
	Convey("Given entries across tiers and subranks", t, func() {
		q := queue.New()
		ctx := context.Background()
		now := time.Now()

		So(q.Enqueue(ctx, wildRequest("rare", model.RarityPriority(3), now)), ShouldBeTrue)
		So(q.Enqueue(ctx, wildRequest("iv-0", model.VIPSpawnPriority(0), now)), ShouldBeTrue)
		So(q.Enqueue(ctx, wildRequest("cell-2", model.VIPCellPriority(2), now)), ShouldBeTrue)
		So(q.Enqueue(ctx, wildRequest("cell-0", model.VIPCellPriority(0), now)), ShouldBeTrue)

		Convey("Then dequeue drains in ascending key order", func() {
			var got []string
			for {
				req, ok := q.DequeueHighest(ctx)
				if !ok {
					break
				}
				got = append(got, req.Identity)
			}
			So(got, ShouldResemble, []string{"cell-0", "cell-2", "iv-0", "rare"})
			So(q.Len(), ShouldEqual, 0)
		})

		Convey("Then equal keys dequeue in enqueue order", func() {
			q2 := queue.New()
			first := wildRequest("first", model.RarityPriority(1), now)
			second := wildRequest("second", model.RarityPriority(1), now.Add(time.Millisecond))
			So(q2.Enqueue(ctx, second), ShouldBeTrue)
			So(q2.Enqueue(ctx, first), ShouldBeTrue)

			req, ok := q2.DequeueHighest(ctx)
			So(ok, ShouldBeTrue)
			So(req.Identity, ShouldEqual, "first")
		})
	})
}

func TestQueueDedup(t *testing.T) {
	Convey("Given a queue with an in-flight checker", t, func() {
		inFlight := stubInFlight{"dispatched-1": true}
		q := queue.New(queue.WithInFlightChecker(inFlight))
		ctx := context.Background()
		now := time.Now()

		Convey("When the same identity is enqueued twice", func() {
			So(q.Enqueue(ctx, wildRequest("a", model.VIPSpawnPriority(0), now)), ShouldBeTrue)
			So(q.Enqueue(ctx, wildRequest("a", model.VIPSpawnPriority(0), now)), ShouldBeFalse)

			Convey("Then only one entry exists", func() {
				So(q.Len(), ShouldEqual, 1)
				So(q.Stats().DedupedTotal, ShouldEqual, 1)
			})
		})

		Convey("When the identity is already dispatched", func() {
			ok := q.Enqueue(ctx, wildRequest("dispatched-1", model.VIPSpawnPriority(0), now))

			Convey("Then the enqueue is a no-op", func() {
				So(ok, ShouldBeFalse)
				So(q.Len(), ShouldEqual, 0)
			})
		})
	})
}

func TestQueueRemove(t *testing.T) {
	Convey("Given a queue with several entries", t, func() {
		q := queue.New()
		ctx := context.Background()
		now := time.Now()
		for i := 0; i < 5; i++ {
			So(q.Enqueue(ctx, wildRequest(fmt.Sprintf("e%d", i), model.VIPSpawnPriority(i), now)), ShouldBeTrue)
		}

		Convey("When removing a middle entry", func() {
			req, ok := q.Remove(ctx, "e2")

			Convey("Then it is gone and ordering survives", func() {
				So(ok, ShouldBeTrue)
				So(req.Identity, ShouldEqual, "e2")
				So(q.Len(), ShouldEqual, 4)

				first, ok := q.DequeueHighest(ctx)
				So(ok, ShouldBeTrue)
				So(first.Identity, ShouldEqual, "e0")
			})
		})

		Convey("When removing an unknown identity", func() {
			_, ok := q.Remove(ctx, "nope")
			So(ok, ShouldBeFalse)
		})
	})
}

func TestQueueReprioritize(t *testing.T) {
	Convey("Given queued entries under one revision", t, func() {
		q := queue.New()
		ctx := context.Background()
		now := time.Now()
		So(q.Enqueue(ctx, wildRequest("keep", model.VIPSpawnPriority(5), now)), ShouldBeTrue)
		So(q.Enqueue(ctx, wildRequest("drop", model.VIPSpawnPriority(0), now)), ShouldBeTrue)
		So(q.Enqueue(ctx, wildRequest("promote", model.RarityPriority(9), now)), ShouldBeTrue)

		Convey("When reprioritizing against new keys", func() {
			dropped := q.Reprioritize(ctx, func(req *model.ScoutRequest) (model.Priority, bool) {
				switch req.Identity {
				case "drop":
					return model.Priority{}, false
				case "promote":
					return model.VIPSpawnPriority(0), true
				default:
					return req.Priority, true
				}
			})

			Convey("Then dropped entries vanish and new keys order the rest", func() {
				So(dropped, ShouldEqual, 1)
				So(q.Len(), ShouldEqual, 2)

				first, ok := q.DequeueHighest(ctx)
				So(ok, ShouldBeTrue)
				So(first.Identity, ShouldEqual, "promote")
			})
		})
	})
}

func TestQueueClaim(t *testing.T) {
	Convey("Given a queue with an in-flight checker", t, func() {
		inFlight := stubInFlight{}
		q := queue.New(queue.WithInFlightChecker(inFlight))
		ctx := context.Background()
		now := time.Now()

		So(q.Enqueue(ctx, wildRequest("a", model.VIPSpawnPriority(0), now)), ShouldBeTrue)

		Convey("When the entry is claimed with a handoff registering it in flight", func() {
			var handed *model.ScoutRequest
			req, ok := q.Claim(ctx, func(r *model.ScoutRequest) {
				handed = r
				inFlight[r.Identity] = true
			})

			Convey("Then the handoff ran on the dequeued entry", func() {
				So(ok, ShouldBeTrue)
				So(req.Identity, ShouldEqual, "a")
				So(handed, ShouldEqual, req)
				So(q.Len(), ShouldEqual, 0)
			})

			Convey("Then a duplicate arriving after the claim is rejected", func() {
				So(q.Enqueue(ctx, wildRequest("a", model.VIPSpawnPriority(0), now)), ShouldBeFalse)
				So(q.Len(), ShouldEqual, 0)
			})
		})

		Convey("When claiming from an empty queue", func() {
			q2 := queue.New()
			_, ok := q2.Claim(ctx, func(*model.ScoutRequest) {})
			So(ok, ShouldBeFalse)
		})
	})
}

func TestQueuePruneExpired(t *testing.T) {
	Convey("Given entries with mixed despawn times", t, func() {
		q := queue.New()
		ctx := context.Background()
		now := time.Now()

		gone := wildRequest("gone", model.VIPSpawnPriority(0), now)
		gone.DespawnAt = now.Add(-time.Minute)
		alive := wildRequest("alive", model.VIPSpawnPriority(1), now)
		alive.DespawnAt = now.Add(time.Minute)
		So(q.Enqueue(ctx, gone), ShouldBeTrue)
		So(q.Enqueue(ctx, alive), ShouldBeTrue)

		Convey("When pruning", func() {
			removed := q.PruneExpired(ctx, now)

			Convey("Then only despawned entries are dropped", func() {
				So(removed, ShouldEqual, 1)
				So(q.Len(), ShouldEqual, 1)
				So(q.Stats().ExpiredTotal, ShouldEqual, 1)
			})
		})
	})
}

func TestQueuePreview(t *testing.T) {
	Convey("Given a populated queue", t, func() {
		q := queue.New()
		ctx := context.Background()
		now := time.Now()
		for i := 4; i >= 0; i-- {
			So(q.Enqueue(ctx, wildRequest(fmt.Sprintf("e%d", i), model.VIPSpawnPriority(i), now)), ShouldBeTrue)
		}

		Convey("When previewing three entries", func() {
			entries := q.Preview(ctx, 3)

			Convey("Then they come back ordered without mutating the queue", func() {
				So(len(entries), ShouldEqual, 3)
				So(entries[0].Identity, ShouldEqual, "e0")
				So(entries[1].Identity, ShouldEqual, "e1")
				So(entries[2].Identity, ShouldEqual, "e2")
				So(q.Len(), ShouldEqual, 5)

				first, ok := q.DequeueHighest(ctx)
				So(ok, ShouldBeTrue)
				So(first.Identity, ShouldEqual, "e0")
			})
		})
	})
}
