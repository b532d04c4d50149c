package classify_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"scoutq/internal/adapters/geofence"
	"scoutq/internal/config"
	"scoutq/internal/domain/classify"
	"scoutq/internal/domain/model"
	"scoutq/internal/domain/queue"
	"scoutq/internal/domain/rarity"
	"scoutq/pkg/logger"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

type fixedRevs struct {
	rev *config.Revision
}

func (f *fixedRevs) Revision() *config.Revision { return f.rev }

func revsFrom(mutate func(*config.Config)) *fixedRevs {
	cfg := config.New()
	cfg.Geofence.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}
	rev, err := config.NewRevision(cfg, 1)
	if err != nil {
		panic(err)
	}
	return &fixedRevs{rev: rev}
}

type recordingResolver struct {
	resolved []*model.SpawnEvent
	kicks    int
}

func (r *recordingResolver) Resolve(ctx context.Context, ev *model.SpawnEvent) bool {
	r.resolved = append(r.resolved, ev)
	return true
}

func (r *recordingResolver) Kick() { r.kicks++ }

type harness struct {
	classifier *classify.Classifier
	queue      *queue.PriorityQueue
	tracker    *rarity.Tracker
	resolver   *recordingResolver
	clock      time.Time
}

func newHarness(revs *fixedRevs) *harness {
	h := &harness{
		queue:    queue.New(),
		resolver: &recordingResolver{},
		clock:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	now := func() time.Time { return h.clock }
	h.tracker = rarity.New(revs, rarity.WithClock(now))
	areas := geofence.NewCache(nil, false, revs)
	h.classifier = classify.New(revs, areas, h.tracker, h.queue, h.resolver, classify.WithClock(now))
	return h
}

func wildEvent(id string, species int, form *int) *model.SpawnEvent {
	return &model.SpawnEvent{
		EncounterID: id,
		SpeciesID:   species,
		Form:        form,
		Lat:         40.7580,
		Lon:         -73.9855,
		SeenType:    model.SeenWild,
		DespawnAt:   time.Date(2026, 8, 1, 13, 0, 0, 0, time.UTC),
	}
}

func TestVIPListMatching(t *testing.T) {
	Convey("Given VIP lists with cell and iv entries", t, func() {
		revs := revsFrom(func(cfg *config.Config) {
			cfg.CellList = []string{"562"}
			cfg.IVList = []string{"3:0", "3", "25"}
		})
		h := newHarness(revs)
		ctx := context.Background()

		Convey("When a celllist species arrives as a wild spawn", func() {
			ok := h.classifier.Handle(ctx, wildEvent("e1", 562, nil))

			Convey("Then it queues at the cell sub-range", func() {
				So(ok, ShouldBeTrue)
				req, found := h.queue.DequeueHighest(ctx)
				So(found, ShouldBeTrue)
				So(req.Source, ShouldEqual, model.SourceCellList)
				So(req.Priority, ShouldResemble, model.VIPCellPriority(0))
				So(req.Identity, ShouldEqual, "e1")
				So(len(req.Points), ShouldEqual, 1)
				So(h.resolver.kicks, ShouldEqual, 1)
			})
		})

		Convey("When an ivlist species arrives", func() {
			ok := h.classifier.Handle(ctx, wildEvent("e2", 25, nil))

			Convey("Then it queues at the iv sub-range", func() {
				So(ok, ShouldBeTrue)
				req, _ := h.queue.DequeueHighest(ctx)
				So(req.Source, ShouldEqual, model.SourceIVList)
				So(req.Priority, ShouldResemble, model.VIPSpawnPriority(2))
			})
		})

		Convey("When a species has an explicit form matcher", func() {
			form := 0
			So(h.classifier.Handle(ctx, wildEvent("e3", 3, &form)), ShouldBeTrue)

			Convey("Then the explicit entry outranks the bare one", func() {
				req, _ := h.queue.DequeueHighest(ctx)
				So(req.Priority, ShouldResemble, model.VIPSpawnPriority(0))
			})
		})

		Convey("When an unlisted species arrives with auto rarity off", func() {
			ok := h.classifier.Handle(ctx, wildEvent("e4", 999, nil))

			Convey("Then it is discarded", func() {
				So(ok, ShouldBeFalse)
				So(h.queue.Len(), ShouldEqual, 0)
			})
		})
	})
}

func TestIVRouting(t *testing.T) {
	Convey("Given an event carrying a full IV triple", t, func() {
		h := newHarness(revsFrom(nil))
		ctx := context.Background()
		a, d, s := 15, 15, 14
		ev := wildEvent("e1", 25, nil)
		ev.Attack, ev.Defense, ev.Stamina = &a, &d, &s

		Convey("When handled", func() {
			h.classifier.Handle(ctx, ev)

			Convey("Then it routes to resolution, never the queue", func() {
				So(len(h.resolver.resolved), ShouldEqual, 1)
				So(h.queue.Len(), ShouldEqual, 0)
			})
		})
	})

	Convey("Given an unsupported seen type", t, func() {
		h := newHarness(revsFrom(nil))
		ev := wildEvent("e1", 25, nil)
		ev.SeenType = "lure"

		So(h.classifier.Handle(context.Background(), ev), ShouldBeFalse)
	})

	Convey("Given an already-despawned event", t, func() {
		h := newHarness(revsFrom(func(cfg *config.Config) {
			cfg.IVList = []string{"25"}
		}))
		ev := wildEvent("e1", 25, nil)
		ev.DespawnAt = h.clock.Add(-time.Minute)

		So(h.classifier.Handle(context.Background(), ev), ShouldBeFalse)
		So(h.queue.Len(), ShouldEqual, 0)
	})
}

func TestAutoRarityPath(t *testing.T) {
	Convey("Given auto rarity with tight thresholds", t, func() {
		revs := revsFrom(func(cfg *config.Config) {
			cfg.AutoRarity.Enabled = true
			cfg.AutoRarity.IVThreshold = 1
			cfg.AutoRarity.CellThreshold = 2
		})
		h := newHarness(revs)
		ctx := context.Background()
		despawn := h.clock.Add(time.Hour)

		feed := func(species, count int) {
			for i := 0; i < count; i++ {
				h.tracker.Observe(ctx, geofence.GlobalArea, &model.SpawnEvent{
					EncounterID: fmt.Sprintf("census-%d-%d", species, i),
					SpeciesID:   species,
					SeenType:    model.SeenWild,
					DespawnAt:   despawn,
				})
			}
		}

		Convey("When the area is still calibrating", func() {
			feed(200, 1)
			ok := h.classifier.Handle(ctx, wildEvent("e1", 200, nil))

			Convey("Then rank-based enqueues are suppressed", func() {
				So(ok, ShouldBeFalse)
				So(h.queue.Len(), ShouldEqual, 0)
			})
		})

		Convey("When calibration has elapsed and rankings exist", func() {
			feed(200, 1) // rarest -> rank 1
			feed(100, 5) // common -> rank 2
			h.clock = h.clock.Add(10 * time.Minute)
			h.tracker.Rebuild(ctx)

			Convey("Then a species within the threshold queues with a rarity tier", func() {
				So(h.classifier.Handle(ctx, wildEvent("e1", 200, nil)), ShouldBeTrue)
				req, _ := h.queue.DequeueHighest(ctx)
				So(req.Source, ShouldEqual, model.SourceRarity)
				So(req.Priority.Tier, ShouldEqual, model.RarityTierBase+1)
			})

			Convey("Then a species over the threshold is discarded", func() {
				So(h.classifier.Handle(ctx, wildEvent("e2", 100, nil)), ShouldBeFalse)
			})

			Convey("Then a species the census never saw is discarded", func() {
				So(h.classifier.Handle(ctx, wildEvent("e3", 999, nil)), ShouldBeFalse)
			})

			Convey("Then a nearby_cell event uses the cell threshold", func() {
				ev := wildEvent("e4", 100, nil)
				ev.SeenType = model.SeenNearbyCell
				So(h.classifier.Handle(ctx, ev), ShouldBeTrue)

				req, _ := h.queue.DequeueHighest(ctx)
				So(req.SeenType, ShouldEqual, model.SeenNearbyCell)
				So(len(req.Points), ShouldEqual, 9)
				So(req.CellToken, ShouldNotBeEmpty)
				So(req.Identity, ShouldStartWith, "cell:")
			})
		})
	})
}

func TestRekey(t *testing.T) {
	Convey("Given queued entries and a new revision", t, func() {
		revs := revsFrom(func(cfg *config.Config) {
			cfg.IVList = []string{"25", "3"}
		})
		h := newHarness(revs)
		ctx := context.Background()

		So(h.classifier.Handle(ctx, wildEvent("e1", 25, nil)), ShouldBeTrue)
		So(h.classifier.Handle(ctx, wildEvent("e2", 3, nil)), ShouldBeTrue)

		Convey("When the list order flips and a species vanishes", func() {
			next := revsFrom(func(cfg *config.Config) {
				cfg.IVList = []string{"3"}
			})
			dropped := h.queue.Reprioritize(ctx, h.classifier.Rekey(next.rev))

			Convey("Then unmatched entries drop and the rest re-rank", func() {
				So(dropped, ShouldEqual, 1)
				req, ok := h.queue.DequeueHighest(ctx)
				So(ok, ShouldBeTrue)
				So(req.Identity, ShouldEqual, "e2")
				So(req.Priority, ShouldResemble, model.VIPSpawnPriority(0))
			})
		})
	})
}
