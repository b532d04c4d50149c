package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsOptions(t *testing.T) {
	Convey("Given metrics options", t, func() {
		Convey("When creating option functions", func() {
			Convey("Then they should not be nil", func() {
				So(WithNamespace("custom"), ShouldNotBeNil)
				So(WithSubsystem("custom"), ShouldNotBeNil)
				So(WithHistogramBuckets([]float64{1, 2, 3}), ShouldNotBeNil)
				So(WithPrometheusRegistry(prometheus.NewRegistry()), ShouldNotBeNil)
			})
		})
	})
}

func TestManagerCreation(t *testing.T) {
	Convey("Given manager creation", t, func() {
		Convey("When creating with a custom registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
				So(manager.registry, ShouldEqual, registry)
			})
		})

		Convey("When creating with custom options", func() {
			manager := NewManager(
				WithNamespace("testns"),
				WithSubsystem("testsub"),
				WithHistogramBuckets([]float64{1, 10, 100}),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})
	})
}

func TestRecordingFunctions(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording events of every kind", func() {
			recorders := []func(){
				func() { RecordSpawnReceived("wild") },
				func() { RecordCensusReceived() },
				func() { RecordEventDiscarded("no_match") },
				func() { UpdateQueueDepth(5) },
				func() { RecordEnqueued("ivlist") },
				func() { RecordDeduped() },
				func() { RecordQueueExpired() },
				func() { UpdateOutstandingScouts(2) },
				func() { RecordScoutDispatched("wild") },
				func() { RecordScoutMatch("wild") },
				func() { RecordEarlyIV("nearby_stop") },
				func() { RecordScoutTimeout("nearby_cell") },
				func() { RecordScoutFailure() },
				func() { RecordScoutIssueLatency(12.5) },
				func() { UpdateRarityAreas(1) },
				func() { UpdateRarityActiveSpawns(10) },
				func() { UpdateRarityRecords(4) },
				func() { UpdateGeofenceAreas(3) },
				func() { RecordGeofenceRefresh() },
				func() { RecordGeofenceRefreshFailure() },
				func() { RecordConfigReload() },
				func() { RecordConfigReloadFailure() },
				func() { RecordHTTPRequest("webhook", "POST", "200") },
				func() { RecordHTTPRequestDuration("webhook", "POST", "200", 3.2) },
			}

			Convey("Then none of them panic", func() {
				for _, record := range recorders {
					So(record, ShouldNotPanic)
				}
			})
		})

		Convey("Then the registry gathers without error", func() {
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			So(families, ShouldNotBeEmpty)
		})
	})
}
