package scoring_test

import (
	"testing"

	"github.com/wojciechbednarz/habit-tracker/internal/domain/scoring"

	. "github.com/smartystreets/goconvey/convey"
)

func TestTieredPolicy(t *testing.T) {
	Convey("Given the default policy", t, func() {
		p := scoring.NewTieredPolicy()

		Convey("Then short streaks earn the base award", func() {
			So(p.Points(0), ShouldEqual, 10)
			So(p.Points(1), ShouldEqual, 10)
			So(p.Points(6), ShouldEqual, 10)
		})

		Convey("Then the 7-day tier doubles the award", func() {
			So(p.Points(7), ShouldEqual, 20)
			So(p.Points(29), ShouldEqual, 20)
		})

		Convey("Then the 30-day tier quintuples the award", func() {
			So(p.Points(30), ShouldEqual, 50)
			So(p.Points(99), ShouldEqual, 50)
		})

		Convey("Then the 100-day tier is tenfold", func() {
			So(p.Points(100), ShouldEqual, 100)
			So(p.Points(365), ShouldEqual, 100)
		})
	})

	Convey("Given a customized policy", t, func() {
		p := scoring.NewTieredPolicy(
			scoring.WithBasePoints(5),
			scoring.WithMultipliers(map[int]float64{3: 1.5, 10: 4.0}),
		)

		Convey("Then the custom base and tiers apply", func() {
			So(p.Points(1), ShouldEqual, 5)
			So(p.Points(3), ShouldEqual, 8) // 5 * 1.5 rounded
			So(p.Points(10), ShouldEqual, 20)
		})
	})

	Convey("Given a policy with invalid overrides", t, func() {
		p := scoring.NewTieredPolicy(
			scoring.WithBasePoints(-1),
			scoring.WithMultipliers(map[int]float64{7: -2.0, 0: 3.0}),
		)

		Convey("Then invalid entries are dropped and the base survives", func() {
			So(p.Points(1), ShouldEqual, 10)
			So(p.Points(100), ShouldEqual, 10)
		})
	})
}
