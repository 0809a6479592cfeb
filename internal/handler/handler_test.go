package handler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wojciechbednarz/habit-tracker/internal/adapters/mail"
	"github.com/wojciechbednarz/habit-tracker/internal/adapters/store"
	"github.com/wojciechbednarz/habit-tracker/internal/domain/event"
	"github.com/wojciechbednarz/habit-tracker/internal/handler"
	"github.com/wojciechbednarz/habit-tracker/pkg/logger"

	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func completedAt(day int) time.Time {
	return time.Date(2024, 3, day, 8, 0, 0, 0, time.UTC)
}

func completion(id string, day, streak int) event.HabitCompleted {
	return event.HabitCompleted{
		EventID:      id,
		UserID:       "u1",
		HabitID:      "h1",
		StreakLength: streak,
		CompletedAt:  completedAt(day),
	}
}

// conflictingStore delegates to a MemStore but fails the first n conditional
// writes with a version conflict.
type conflictingStore struct {
	store.Store
	mu        sync.Mutex
	conflicts int
}

func (s *conflictingStore) ConditionalWrite(ctx context.Context, partition, sort string, expectedVersion int64, mutate store.Mutator) (store.Record, error) {
	s.mu.Lock()
	remaining := s.conflicts
	if remaining > 0 {
		s.conflicts--
	}
	s.mu.Unlock()

	if remaining > 0 {
		return store.Record{}, store.ErrConflict
	}
	return s.Store.ConditionalWrite(ctx, partition, sort, expectedVersion, mutate)
}

func TestStreakHandler(t *testing.T) {
	Convey("Given a streak handler over an in-memory store", t, func() {
		ctx := context.Background()
		st := store.NewMemStore(ctx)
		Reset(func() { _ = st.Close() })

		h := handler.NewStreak(st)

		Convey("When the first completion of a habit arrives", func() {
			followUps, err := h.Handle(ctx, completion("e1", 1, 1))

			Convey("Then a streak record is created at length one", func() {
				So(err, ShouldBeNil)
				So(followUps, ShouldBeEmpty)

				rec, err := st.Get(ctx, "u1", store.StreakSort("h1"))
				So(err, ShouldBeNil)
				So(rec.StreakLength, ShouldEqual, 1)
				So(rec.LastCompletedAt, ShouldEqual, completedAt(1))
			})
		})

		Convey("When completions arrive in order up to a milestone", func() {
			var followUps []event.Event
			for day := 1; day <= 7; day++ {
				fu, err := h.Handle(ctx, completion("e"+string(rune('0'+day)), day, day))
				So(err, ShouldBeNil)
				followUps = append(followUps, fu...)
			}

			Convey("Then exactly one achievement unlocks at the threshold", func() {
				So(followUps, ShouldHaveLength, 1)

				unlocked, ok := followUps[0].(event.AchievementUnlocked)
				So(ok, ShouldBeTrue)
				So(unlocked.UserID, ShouldEqual, "u1")
				So(unlocked.AchievementType, ShouldEqual, "streak:7")
				So(unlocked.Description, ShouldEqual, "1 Week Streak")
				So(unlocked.EventID, ShouldNotBeEmpty)
			})

			Convey("Then the stored streak matches the last completion", func() {
				rec, err := st.Get(ctx, "u1", store.StreakSort("h1"))
				So(err, ShouldBeNil)
				So(rec.StreakLength, ShouldEqual, 7)
			})
		})

		Convey("When the same delivery arrives twice", func() {
			_, err := h.Handle(ctx, completion("e1", 5, 5))
			So(err, ShouldBeNil)
			before, _ := st.Get(ctx, "u1", store.StreakSort("h1"))

			followUps, err := h.Handle(ctx, completion("e1", 5, 5))

			Convey("Then the second delivery is a no-op", func() {
				So(err, ShouldBeNil)
				So(followUps, ShouldBeEmpty)

				after, _ := st.Get(ctx, "u1", store.StreakSort("h1"))
				So(after.Version, ShouldEqual, before.Version)
			})
		})

		Convey("When an older completion arrives after a newer one", func() {
			_, err := h.Handle(ctx, completion("e5", 5, 5))
			So(err, ShouldBeNil)

			followUps, err := h.Handle(ctx, completion("e3", 3, 3))

			Convey("Then the streak never regresses", func() {
				So(err, ShouldBeNil)
				So(followUps, ShouldBeEmpty)

				rec, _ := st.Get(ctx, "u1", store.StreakSort("h1"))
				So(rec.StreakLength, ShouldEqual, 5)
				So(rec.LastCompletedAt, ShouldEqual, completedAt(5))
			})
		})

		Convey("When the reported length jumps ahead of the stored record", func() {
			_, err := h.Handle(ctx, completion("e1", 1, 1))
			So(err, ShouldBeNil)

			_, err = h.Handle(ctx, completion("e9", 9, 9))

			Convey("Then the length is clamped to one increment", func() {
				So(err, ShouldBeNil)

				rec, _ := st.Get(ctx, "u1", store.StreakSort("h1"))
				So(rec.StreakLength, ShouldEqual, 2)
			})
		})

		Convey("When an inflated length arrives after a streak reset", func() {
			_, err := h.Handle(ctx, completion("e5", 5, 5))
			So(err, ShouldBeNil)

			_, err = st.ResetStreak(ctx, "u1", "h1")
			So(err, ShouldBeNil)

			_, err = h.Handle(ctx, completion("e50", 6, 50))

			Convey("Then the reset record clamps the restart to one", func() {
				So(err, ShouldBeNil)

				rec, _ := st.Get(ctx, "u1", store.StreakSort("h1"))
				So(rec.StreakLength, ShouldEqual, 1)
				So(rec.LastCompletedAt, ShouldEqual, completedAt(6))
			})
		})

		Convey("When every conditional write conflicts", func() {
			_, err := h.Handle(ctx, completion("e1", 1, 1))
			So(err, ShouldBeNil)

			hot := handler.NewStreak(&conflictingStore{Store: st, conflicts: 100})
			_, err = hot.Handle(ctx, completion("e2", 2, 2))

			Convey("Then the failure is transient and the mark is released", func() {
				So(errors.Is(err, handler.ErrRetriesExhausted), ShouldBeTrue)

				// A redelivery after the contention clears must succeed.
				followUps, err := h.Handle(ctx, completion("e2", 2, 2))
				So(err, ShouldBeNil)
				So(followUps, ShouldBeEmpty)

				rec, _ := st.Get(ctx, "u1", store.StreakSort("h1"))
				So(rec.StreakLength, ShouldEqual, 2)
			})
		})

		Convey("When two habits of one user are updated concurrently", func() {
			var wg sync.WaitGroup
			errs := make(chan error, 10)
			for _, habit := range []string{"h1", "h2"} {
				wg.Add(1)
				go func(habit string) {
					defer wg.Done()
					for day := 1; day <= 5; day++ {
						ev := completion("", day, day)
						ev.HabitID = habit
						ev.EventID = habit + "-" + string(rune('0'+day))
						if _, err := h.Handle(ctx, ev); err != nil {
							errs <- err
						}
					}
				}(habit)
			}
			wg.Wait()
			close(errs)

			Convey("Then both streak records end up at the maximum", func() {
				So(<-errs, ShouldBeNil)
				for _, habit := range []string{"h1", "h2"} {
					rec, err := st.Get(ctx, "u1", store.StreakSort(habit))
					So(err, ShouldBeNil)
					So(rec.StreakLength, ShouldEqual, 5)
				}
			})
		})

		Convey("When a foreign event type is routed in", func() {
			_, err := h.Handle(ctx, event.AchievementUnlocked{UserID: "u1"})

			Convey("Then it is rejected as malformed", func() {
				So(errors.Is(err, event.ErrMalformedEvent), ShouldBeTrue)
			})
		})
	})
}

func TestPointsHandler(t *testing.T) {
	Convey("Given a points handler over an in-memory store", t, func() {
		ctx := context.Background()
		st := store.NewMemStore(ctx)
		Reset(func() { _ = st.Close() })

		h := handler.NewPoints(st)

		Convey("When a completion below any tier arrives", func() {
			_, err := h.Handle(ctx, completion("e1", 1, 1))

			Convey("Then the base award lands on a fresh metadata record", func() {
				So(err, ShouldBeNil)

				meta, err := st.Get(ctx, "u1", store.SortMetadata)
				So(err, ShouldBeNil)
				So(meta.TotalPoints, ShouldEqual, 10)
			})
		})

		Convey("When a completion at the one-week tier arrives", func() {
			_, err := h.Handle(ctx, completion("e7", 7, 7))

			Convey("Then the award carries the doubled multiplier", func() {
				So(err, ShouldBeNil)

				meta, _ := st.Get(ctx, "u1", store.SortMetadata)
				So(meta.TotalPoints, ShouldEqual, 20)
			})
		})

		Convey("When several completions accumulate", func() {
			for day := 1; day <= 3; day++ {
				_, err := h.Handle(ctx, completion("e"+string(rune('0'+day)), day, day))
				So(err, ShouldBeNil)
			}

			Convey("Then the total is the sum of the awards", func() {
				meta, _ := st.Get(ctx, "u1", store.SortMetadata)
				So(meta.TotalPoints, ShouldEqual, 30)
			})
		})

		Convey("When the same delivery arrives twice", func() {
			_, err := h.Handle(ctx, completion("e1", 1, 1))
			So(err, ShouldBeNil)
			_, err = h.Handle(ctx, completion("e1", 1, 1))

			Convey("Then the award is applied once", func() {
				So(err, ShouldBeNil)

				meta, _ := st.Get(ctx, "u1", store.SortMetadata)
				So(meta.TotalPoints, ShouldEqual, 10)
			})
		})

		Convey("When transient conflicts precede success", func() {
			_, err := h.Handle(ctx, completion("e1", 1, 1))
			So(err, ShouldBeNil)

			contended := handler.NewPoints(&conflictingStore{Store: st, conflicts: 2})
			_, err = contended.Handle(ctx, completion("e2", 2, 2))

			Convey("Then the retried write applies the same delta once", func() {
				So(err, ShouldBeNil)

				meta, _ := st.Get(ctx, "u1", store.SortMetadata)
				So(meta.TotalPoints, ShouldEqual, 20)
			})
		})

		Convey("When concurrent completions race on one user", func() {
			// Under heavy contention every conflict means another writer
			// committed, so a retry bound at the writer count always
			// terminates.
			contended := handler.NewPoints(st, handler.WithPointsMaxRetries(32))

			var wg sync.WaitGroup
			errs := make(chan error, 16)
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					ev := completion("", 1, 1)
					ev.EventID = "race-" + string(rune('a'+i))
					if _, err := contended.Handle(ctx, ev); err != nil {
						errs <- err
					}
				}(i)
			}
			wg.Wait()
			close(errs)

			Convey("Then no award is lost", func() {
				So(<-errs, ShouldBeNil)

				meta, _ := st.Get(ctx, "u1", store.SortMetadata)
				So(meta.TotalPoints, ShouldEqual, 160)
			})
		})
	})
}

func TestNotificationHandler(t *testing.T) {
	Convey("Given a notification handler with a recording mailer", t, func() {
		ctx := context.Background()
		st := store.NewMemStore(ctx)
		Reset(func() { _ = st.Close() })

		recorder := mail.NewRecorder()
		h := handler.NewNotification(st, recorder)

		unlock := event.AchievementUnlocked{
			EventID:         "a1",
			UserID:          "u1",
			AchievementType: "streak:7",
			Description:     "1 Week Streak",
			UnlockedAt:      completedAt(7),
		}

		withMail := func() {
			_, err := st.CreateIfAbsent(ctx, "u1", store.SortMetadata, store.Record{
				DisplayName: "Ada",
				Email:       "ada@example.com",
			})
			So(err, ShouldBeNil)
		}

		Convey("When an unlock arrives for a user with a mail address", func() {
			withMail()
			followUps, err := h.Handle(ctx, unlock)

			Convey("Then the achievement record is written", func() {
				So(err, ShouldBeNil)
				So(followUps, ShouldBeEmpty)

				rec, err := st.Get(ctx, "u1", store.AchievementSort("streak:7"))
				So(err, ShouldBeNil)
				So(rec.Description, ShouldEqual, "1 Week Streak")
				So(rec.UnlockedAt, ShouldEqual, completedAt(7))
			})

			Convey("Then one congratulation mail goes out", func() {
				sent := recorder.Sent()
				So(sent, ShouldHaveLength, 1)
				So(sent[0].Recipient, ShouldEqual, "ada@example.com")
				So(sent[0].Subject, ShouldContainSubstring, "1 Week Streak")
				So(sent[0].Body, ShouldContainSubstring, "Ada")
			})
		})

		Convey("When the same unlock is redelivered", func() {
			withMail()
			_, err := h.Handle(ctx, unlock)
			So(err, ShouldBeNil)
			_, err = h.Handle(ctx, unlock)

			Convey("Then no second record or mail is produced", func() {
				So(err, ShouldBeNil)
				So(recorder.Sent(), ShouldHaveLength, 1)

				rec, _ := st.Get(ctx, "u1", store.AchievementSort("streak:7"))
				So(rec.Version, ShouldEqual, 1)
			})
		})

		Convey("When the user has no mail address on file", func() {
			followUps, err := h.Handle(ctx, unlock)

			Convey("Then the record is written and the mail is skipped", func() {
				So(err, ShouldBeNil)
				So(followUps, ShouldBeEmpty)
				So(recorder.Sent(), ShouldBeEmpty)

				_, err := st.Get(ctx, "u1", store.AchievementSort("streak:7"))
				So(err, ShouldBeNil)
			})
		})

		Convey("When mail delivery fails", func() {
			withMail()
			recorder.Err = errors.New("smtp unavailable")

			_, err := h.Handle(ctx, unlock)

			Convey("Then the event still succeeds", func() {
				So(err, ShouldBeNil)

				_, err := st.Get(ctx, "u1", store.AchievementSort("streak:7"))
				So(err, ShouldBeNil)
			})
		})
	})
}
