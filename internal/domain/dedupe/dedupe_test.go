package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wojciechbednarz/habit-tracker/internal/domain/dedupe"

	. "github.com/smartystreets/goconvey/convey"
)

func TestTTLLedger(t *testing.T) {
	Convey("Given a new TTL ledger", t, func() {
		ctx := context.Background()
		l := dedupe.NewTTLLedger()
		defer func() { _ = l.Close() }()

		Convey("When marking a fresh key", func() {
			fresh := l.MarkApplied(ctx, "k1")

			Convey("Then it is newly recorded", func() {
				So(fresh, ShouldBeTrue)
				So(l.HasApplied(ctx, "k1"), ShouldBeTrue)
				So(l.Size(), ShouldEqual, 1)
			})
		})

		Convey("When marking the same key twice", func() {
			So(l.MarkApplied(ctx, "k1"), ShouldBeTrue)
			So(l.MarkApplied(ctx, "k1"), ShouldBeFalse)
			So(l.Size(), ShouldEqual, 1)
		})

		Convey("When unmarking a key after a failed write", func() {
			So(l.MarkApplied(ctx, "k1"), ShouldBeTrue)
			l.Unmark(ctx, "k1")

			Convey("Then the key can be applied again", func() {
				So(l.HasApplied(ctx, "k1"), ShouldBeFalse)
				So(l.MarkApplied(ctx, "k1"), ShouldBeTrue)
			})
		})

		Convey("When unmarking a key that was never marked", func() {
			l.Unmark(ctx, "missing")
			So(l.Size(), ShouldEqual, 0)
		})
	})
}

func TestTTLLedgerExpiry(t *testing.T) {
	Convey("Given a ledger with a controllable clock", t, func() {
		ctx := context.Background()
		var offset atomic.Int64
		base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
		now := func() time.Time { return base.Add(time.Duration(offset.Load())) }

		l := dedupe.NewTTLLedger(
			dedupe.WithRetention(time.Hour),
			dedupe.WithClock(now),
		)
		defer func() { _ = l.Close() }()

		So(l.MarkApplied(ctx, "k1"), ShouldBeTrue)

		Convey("When the retention window has not elapsed", func() {
			offset.Store(int64(30 * time.Minute))

			Convey("Then the mark still suppresses duplicates", func() {
				So(l.HasApplied(ctx, "k1"), ShouldBeTrue)
				So(l.MarkApplied(ctx, "k1"), ShouldBeFalse)
			})
		})

		Convey("When the retention window has elapsed", func() {
			offset.Store(int64(2 * time.Hour))

			Convey("Then the mark has expired and the key is fresh again", func() {
				So(l.HasApplied(ctx, "k1"), ShouldBeFalse)
				So(l.MarkApplied(ctx, "k1"), ShouldBeTrue)
			})
		})
	})
}

func TestTTLLedgerConcurrency(t *testing.T) {
	Convey("Given many goroutines racing on the same key", t, func() {
		ctx := context.Background()
		l := dedupe.NewTTLLedger()
		defer func() { _ = l.Close() }()

		const goroutines = 32
		var fresh atomic.Int64
		var wg sync.WaitGroup
		wg.Add(goroutines)
		for i := 0; i < goroutines; i++ {
			go func() {
				defer wg.Done()
				if l.MarkApplied(ctx, "contended") {
					fresh.Add(1)
				}
			}()
		}
		wg.Wait()

		Convey("Then exactly one wins the mark", func() {
			So(fresh.Load(), ShouldEqual, 1)
		})
	})

	Convey("Given many goroutines marking distinct keys", t, func() {
		ctx := context.Background()
		l := dedupe.NewTTLLedger()
		defer func() { _ = l.Close() }()

		const keys = 100
		var wg sync.WaitGroup
		wg.Add(keys)
		for i := 0; i < keys; i++ {
			go func(i int) {
				defer wg.Done()
				l.MarkApplied(ctx, fmt.Sprintf("k-%d", i))
			}(i)
		}
		wg.Wait()

		Convey("Then every key is retained", func() {
			So(l.Size(), ShouldEqual, keys)
		})
	})
}
