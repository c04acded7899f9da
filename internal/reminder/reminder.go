// Package reminder runs the once-a-day nudge for registered users who have
// not submitted yet, then resets the day's submission counters.
package reminder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/CHiPSET-SRM-RMP/CHIPSETCPBot/internal/state"
)

const reminderMessage = "⏲️ Reminder: Submit today's CP!"

// Notifier delivers a direct message to a discord user ID.
type Notifier interface {
	SendDM(userID, content string) error
}

// Reminder fires at a fixed local wall-clock time every day.
type Reminder struct {
	state    *state.State
	notifier Notifier
	hour     int
	minute   int

	stopChan chan struct{}
	wg       sync.WaitGroup
	now      func() time.Time
}

// New creates a Reminder firing daily at hour:minute local time.
func New(st *state.State, notifier Notifier, hour, minute int) *Reminder {
	return &Reminder{
		state:    st,
		notifier: notifier,
		hour:     hour,
		minute:   minute,
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
}

// Start begins the reminder loop. The schedule realigns to the configured
// wall clock on every start, not to when the previous run fired.
func (r *Reminder) Start(ctx context.Context) {
	r.wg.Add(1)
	defer r.wg.Done()

	next := r.nextFire()
	slog.Info("Daily reminder scheduled", "at", next)

	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Reminder stopped (context cancelled)")
			return
		case <-r.stopChan:
			slog.Info("Reminder stopped")
			return
		case <-timer.C:
			r.fire()
			next = r.nextFire()
			slog.Info("Daily reminder scheduled", "at", next)
			timer.Reset(time.Until(next))
		}
	}
}

// Stop signals the reminder loop to stop
func (r *Reminder) Stop() {
	close(r.stopChan)
	r.wg.Wait()
}

// nextFire returns the next hour:minute occurrence after now.
func (r *Reminder) nextFire() time.Time {
	now := r.now()
	next := time.Date(now.Year(), now.Month(), now.Day(), r.hour, r.minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// fire messages every registered user without a submission today, then
// clears the counters. Delivery failures are swallowed: unreachable users
// or closed DMs must not stop the sweep.
func (r *Reminder) fire() {
	registered := r.state.Registered()
	slog.Info("Running daily reminder", "registered", len(registered))

	for username := range registered {
		if r.state.HasSubmitted(username) {
			continue
		}

		userID, ok := r.state.UserID(username)
		if !ok {
			slog.Debug("No known user ID for reminder", "user", username)
			continue
		}
		if err := r.notifier.SendDM(userID, reminderMessage); err != nil {
			slog.Debug("Failed to deliver reminder", "user", username, "error", err)
		}
	}

	r.state.ResetSubmissions()
}
