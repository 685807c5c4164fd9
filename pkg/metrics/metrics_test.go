package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then all collectors are registered on it", func() {
				So(manager, ShouldNotBeNil)
				manager.framesReceived.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)

				var found bool
				for _, f := range families {
					if f.GetName() == "test_unit_firehose_frames_received_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetName(), ShouldEqual, "env")
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When creating two managers on separate registries", func() {
			So(func() {
				NewManager(WithPrometheusRegistry(prometheus.NewRegistry()))
				NewManager(WithPrometheusRegistry(prometheus.NewRegistry()))
			}, ShouldNotPanic)
		})
	})
}

func TestGlobalRecorders(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording firehose activity", func() {
			before := testutil.ToFloat64(globalManager.framesByTag.WithLabelValues("#commit"))
			RecordFrameTag("#commit")
			RecordFrameTag("#commit")

			dropped := testutil.ToFloat64(globalManager.framesDropped)
			RecordFrameDropped()

			UpdateConnectionState(2)
			UpdateLastSeq(1234)

			Convey("Then counters and gauges move", func() {
				So(testutil.ToFloat64(globalManager.framesByTag.WithLabelValues("#commit")), ShouldEqual, before+2)
				So(testutil.ToFloat64(globalManager.framesDropped), ShouldEqual, dropped+1)
				So(testutil.ToFloat64(globalManager.connectionState), ShouldEqual, 2)
				So(testutil.ToFloat64(globalManager.lastSeq), ShouldEqual, 1234)
			})
		})

		Convey("When recording engagement and xrpc activity", func() {
			So(func() {
				RecordScoring(12, 3.5)
				RecordProfileBatch(25)
				RecordMalformedLikeURI()
				RecordXRPCRequest("app.bsky.actor.getProfiles", "200", 12)
				RecordSwallowedError("actor_likes")
				RecordDecodeError("car")
				RecordBlocks(4)
				RecordRecordDispatched("app.bsky.feed.post", 0.2)
				RecordQueueEnqueueError("queue_full")
			}, ShouldNotPanic)

			So(testutil.ToFloat64(globalManager.xrpcSwallowedErrors.WithLabelValues("actor_likes")), ShouldBeGreaterThanOrEqualTo, 1)
			So(testutil.ToFloat64(globalManager.decodeErrors.WithLabelValues("car")), ShouldBeGreaterThanOrEqualTo, 1)
		})

		Convey("Then the registry is exposed", func() {
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}

func TestConfigure(t *testing.T) {
	Convey("Given the global manager reconfigured with an instance label", t, func() {
		prevManager, prevRegistry := globalManager, customRegistry
		defer func() { globalManager, customRegistry = prevManager, prevRegistry }()

		Configure(WithConstLabels(map[string]string{"instance": "relay-a"}))
		RecordFrameDropped()

		Convey("Then the new registry serves labelled metrics", func() {
			So(GetRegistry(), ShouldNotEqual, prevRegistry)
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)

			var label string
			for _, f := range families {
				if f.GetName() == "blueskyer_firehose_frames_dropped_total" {
					label = f.GetMetric()[0].GetLabel()[0].GetValue()
				}
			}
			So(label, ShouldEqual, "relay-a")
		})
	})
}
