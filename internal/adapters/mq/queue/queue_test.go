package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/wojciechbednarz/habit-tracker/internal/adapters/mq/queue"

	. "github.com/smartystreets/goconvey/convey"
)

func receive(t *testing.T, ch <-chan queue.Delivery) queue.Delivery {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a delivery")
		return queue.Delivery{}
	}
}

func TestInMemoryQueue(t *testing.T) {
	Convey("Given an in-memory at-least-once queue", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		q := queue.NewInMemoryQueue(queue.WithCapacity(8), queue.WithMaxAttempts(3))
		Reset(func() {
			cancel()
			_ = q.Close()
		})

		Convey("When an envelope is enqueued and dequeued", func() {
			So(q.Enqueue(ctx, []byte(`{"kind":"habit.completed"}`)), ShouldBeTrue)

			d := receive(t, q.Dequeue(ctx))

			Convey("Then the delivery carries the body on its first attempt", func() {
				So(string(d.Body), ShouldEqual, `{"kind":"habit.completed"}`)
				So(d.Attempt, ShouldEqual, 1)
				So(d.FirstEnqueued, ShouldNotBeZeroValue)
			})

			Convey("And an ack leaves nothing behind", func() {
				q.Ack(ctx, d)
				So(q.Len(ctx), ShouldEqual, 0)
				So(q.DeadLetters(ctx), ShouldBeEmpty)
			})
		})

		Convey("When a delivery is nacked within its attempt budget", func() {
			So(q.Enqueue(ctx, []byte("payload")), ShouldBeTrue)
			ch := q.Dequeue(ctx)

			first := receive(t, ch)
			q.Nack(ctx, first)
			second := receive(t, ch)

			Convey("Then it comes back with an incremented attempt", func() {
				So(second.Attempt, ShouldEqual, 2)
				So(string(second.Body), ShouldEqual, "payload")
				So(second.FirstEnqueued, ShouldEqual, first.FirstEnqueued)
			})
		})

		Convey("When a delivery exhausts its attempt budget", func() {
			So(q.Enqueue(ctx, []byte("poison")), ShouldBeTrue)
			ch := q.Dequeue(ctx)

			d := receive(t, ch)
			for d.Attempt < 3 {
				q.Nack(ctx, d)
				d = receive(t, ch)
			}
			q.Nack(ctx, d)

			Convey("Then it is parked on the dead-letter queue", func() {
				dead := q.DeadLetters(ctx)
				So(dead, ShouldHaveLength, 1)
				So(string(dead[0].Body), ShouldEqual, "poison")
				So(dead[0].Attempt, ShouldEqual, 3)
				So(q.Len(ctx), ShouldEqual, 0)
			})
		})

		Convey("When a delivery is dead-lettered directly", func() {
			So(q.Enqueue(ctx, []byte("malformed")), ShouldBeTrue)
			d := receive(t, q.Dequeue(ctx))
			q.DeadLetter(ctx, d)

			Convey("Then it skips the attempt budget entirely", func() {
				dead := q.DeadLetters(ctx)
				So(dead, ShouldHaveLength, 1)
				So(dead[0].Attempt, ShouldEqual, 1)
			})
		})

		Convey("When the queue is full", func() {
			for i := 0; i < 8; i++ {
				So(q.Enqueue(ctx, []byte("x")), ShouldBeTrue)
			}

			Convey("Then further enqueues are rejected", func() {
				So(q.Enqueue(ctx, []byte("overflow")), ShouldBeFalse)
				So(q.Len(ctx), ShouldEqual, 8)
			})
		})

		Convey("When the queue is closed", func() {
			So(q.Close(), ShouldBeNil)

			Convey("Then it rejects enqueues and reports closed", func() {
				So(q.IsClosed(), ShouldBeTrue)
				So(q.Enqueue(ctx, []byte("late")), ShouldBeFalse)
			})

			Convey("Then a nack parks the delivery instead of dropping it", func() {
				q.Nack(ctx, queue.Delivery{Body: []byte("orphan"), Attempt: 1})
				So(q.DeadLetters(ctx), ShouldHaveLength, 1)
			})

			Convey("Then closing again is a no-op", func() {
				So(q.Close(), ShouldBeNil)
			})
		})
	})
}
