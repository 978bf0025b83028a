// services/scheduler.go
package services

import (
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartLockScheduler flips active rounds to locked once their lock time
// passes. The time-based IsLocked check already rejects late picks the
// moment the deadline elapses; this job just catches the status column up.
func (s *RoundService) StartLockScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every minute: lock rounds past their deadline
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			s.LockDueRounds(time.Now().UTC())
		}),
	)
}
