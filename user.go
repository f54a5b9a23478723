package main

import (
	"context"
	"sync"
	"time"
)

// A User is one simulated session. It runs its type's start hook once and
// then loops over weighted tasks until stopped.
type User struct {
	ID     int
	Type   *UserType
	Client *Client
	Rng    Rng
	log    Logger
}

func NewUser(id int, utype *UserType, client *Client, seed string, log Logger) *User {
	return &User{
		ID:     id,
		Type:   utype,
		Client: client,
		Rng:    UserRng(seed, id),
		log:    log,
	}
}

// Run takes one iteration from counter for every task it executes, so the
// run ends when the counter runs dry, and returns when stop is closed.
func (u *User) Run(wg *sync.WaitGroup, stop chan struct{}, counter chan int64) {
	defer wg.Done()
	ctx := context.Background()

	if u.Type.OnStart != nil {
		u.Type.OnStart(ctx, u.Client, u.log)
	}

	for {
		select {
		case <-stop:
			return
		case count, ok := <-counter:
			if !ok {
				return
			}
			task := u.Type.Tasks.Pick(u.Rng)
			if err := task.Run(ctx, u.Client, u.Rng); err != nil {
				// already counted as a failure; the user keeps going
				u.log.Debug("user %d iteration %d: task %s failed: %v\n", u.ID, count, task.Name, err)
			}
		}

		if !u.wait(stop, u.Type.WaitTime(u.Rng)) {
			return
		}
	}
}

// wait sleeps for d and returns false if stop was closed first.
func (u *User) wait(stop chan struct{}, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-stop:
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-stop:
		return false
	case <-timer.C:
		return true
	}
}
