package service_test

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	service "scoutq/internal/app"
	"scoutq/internal/config"
	"scoutq/internal/domain/model"
	"scoutq/pkg/logger"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

type blockingCaller struct {
	release chan struct{}
	calls   chan []model.Point
}

func newBlockingCaller() *blockingCaller {
	return &blockingCaller{
		release: make(chan struct{}),
		calls:   make(chan []model.Point, 16),
	}
}

func (b *blockingCaller) Scout(ctx context.Context, points []model.Point) error {
	b.calls <- points
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil
}

func testConfig() *config.Config {
	cfg := config.New()
	cfg.Geofence.Enabled = false
	cfg.IVList = []string{"25", "3"}
	cfg.Scout.Concurrency = 1
	cfg.Scout.SweepIntervalSeconds = 1
	return cfg
}

func wildEvent(id string, species int) *model.SpawnEvent {
	return &model.SpawnEvent{
		EncounterID: id,
		SpeciesID:   species,
		Lat:         40.7,
		Lon:         -73.9,
		SeenType:    model.SeenWild,
		DespawnAt:   time.Now().Add(30 * time.Minute),
	}
}

func TestServiceFlow(t *testing.T) {
	Convey("Given a started service with concurrency one", t, func() {
		caller := newBlockingCaller()
		svc, err := service.New(testConfig(), service.WithScoutCaller(caller))
		So(err, ShouldBeNil)

		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When two VIP spawns arrive", func() {
			So(svc.HandleSpawn(ctx, wildEvent("e1", 25)), ShouldBeTrue)
			So(svc.HandleSpawn(ctx, wildEvent("e2", 3)), ShouldBeTrue)

			// One dispatch goes out; the second waits on the slot.
			var first []model.Point
			select {
			case first = <-caller.calls:
			case <-time.After(2 * time.Second):
				t.Fatal("no scout call issued")
			}

			Convey("Then the concurrency bound holds until resolution", func() {
				So(len(first), ShouldEqual, 1)
				stats := svc.Stats(ctx)
				So(stats.Dispatch.Outstanding, ShouldEqual, 1)
				So(stats.Queue.Depth, ShouldEqual, 1)

				Convey("And resolving the first dispatch frees the slot", func() {
					close(caller.release)
					a, d, s := 15, 15, 15
					iv := wildEvent("e1", 25)
					iv.Attack, iv.Defense, iv.Stamina = &a, &d, &s
					So(svc.HandleSpawn(ctx, iv), ShouldBeTrue)

					select {
					case <-caller.calls:
					case <-time.After(2 * time.Second):
						t.Fatal("second scout call not issued")
					}
				})
			})
		})

		Convey("When a duplicate encounter arrives", func() {
			So(svc.HandleSpawn(ctx, wildEvent("e9", 25)), ShouldBeTrue)
			So(svc.HandleSpawn(ctx, wildEvent("e9", 25)), ShouldBeFalse)
		})
	})
}

func TestServiceReload(t *testing.T) {
	Convey("Given a service with a swappable loader", t, func() {
		cfg := testConfig()
		svc, err := service.New(cfg, service.WithScoutCaller(newBlockingCaller()))
		So(err, ShouldBeNil)
		ctx := context.Background()

		Convey("Then the config summary reflects the initial revision", func() {
			summary := svc.ConfigSummary(ctx)
			So(summary.Version, ShouldEqual, 1)
			So(summary.IVList, ShouldResemble, []string{"25", "3"})
			So(summary.Concurrency, ShouldEqual, 1)
		})

		Convey("When reloading from the environment-backed loader fails validation", func() {
			t.Setenv("SCOUTQ_SCOUT__CONCURRENCY", "0")
			_, err := svc.Reload(ctx)

			Convey("Then the previous revision stays authoritative", func() {
				So(err, ShouldNotBeNil)
				So(svc.ConfigSummary(ctx).Version, ShouldEqual, 1)
			})
		})

		Convey("When reloading with a changed concurrency", func() {
			t.Setenv("SCOUTQ_SCOUT__CONCURRENCY", "4")
			changed, err := svc.Reload(ctx)

			Convey("Then the revision advances and names the change", func() {
				So(err, ShouldBeNil)
				So(changed, ShouldContain, "scout.concurrency")
				So(svc.ConfigSummary(ctx).Version, ShouldEqual, 2)
				So(svc.ConfigSummary(ctx).Concurrency, ShouldEqual, 4)
			})
		})
	})
}
