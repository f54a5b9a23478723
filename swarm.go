package main

import (
	"sync"
	"time"
)

type SwarmState int

const (
	Starting SwarmState = iota
	Running
	Stopping
)

func (s SwarmState) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	default:
		return "stopping"
	}
}

// Stopper closes its channel at most once, whoever asks first: the signal
// handler, the iteration counter or the swarm itself.
type Stopper struct {
	C    chan struct{}
	once sync.Once
}

func NewStopper() *Stopper {
	return &Stopper{C: make(chan struct{})}
}

func (s *Stopper) Stop() {
	s.once.Do(func() { close(s.C) })
}

// Swarm spawns users at a fixed rate until the target count is reached
// and removes them at the same rate once the run time is up.
type Swarm struct {
	users    int
	interval time.Duration
	runTime  time.Duration
	newUser  func(n int) *User
	chans    []chan struct{}
	spawned  int
	mut      sync.RWMutex
	log      Logger
}

func NewSwarm(newUser func(n int) *User, log Logger, opts *Options) *Swarm {
	rate := opts.Users.SpawnRate
	if rate <= 0 {
		rate = 1
	}
	return &Swarm{
		users:    opts.Users.Count,
		interval: time.Duration(float64(time.Second) / rate),
		runTime:  opts.Users.RunTime,
		newUser:  newUser,
		log:      log,
	}
}

// Running returns the number of live users.
func (s *Swarm) Running() int {
	s.mut.RLock()
	defer s.mut.RUnlock()
	return len(s.chans)
}

func (s *Swarm) spawn(wg *sync.WaitGroup, counter chan int64) {
	s.mut.Lock()
	stop := make(chan struct{})
	s.chans = append(s.chans, stop)
	s.spawned++
	u := s.newUser(s.spawned)
	s.mut.Unlock()

	s.log.Debug("starting user %d\n", u.ID)
	wg.Add(1)
	go u.Run(wg, stop, counter)
}

// Run should be run in a goroutine. It returns after stopper fires, having
// told every user to stop; when the run time expires it ramps users down
// and then fires stopper itself.
func (s *Swarm) Run(wg *sync.WaitGroup, stopper *Stopper, counter chan int64) {
	defer wg.Done()
	s.log.Info("spawning %d users, one every %s\n", s.users, s.interval)
	state := Starting

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Create a long timer but stop it immediately so that we have a valid channel.
	stopTimer := time.NewTimer(time.Hour)
	stopTimer.Stop()
	if s.runTime > 0 {
		stopTimer.Reset(s.runTime)
		defer stopTimer.Stop()
	}

	if s.users > 0 {
		s.spawn(wg, counter)
	}

	for {
		select {
		case <-stopper.C:
			s.log.Info("stopping users from stop signal\n")
			s.mut.Lock()
			for _, ch := range s.chans {
				close(ch)
			}
			s.chans = nil
			s.mut.Unlock()
			return
		case <-ticker.C:
			switch state {
			case Starting:
				if s.Running() >= s.users {
					s.log.Info("all %d users spawned\n", s.users)
					state = Running
				} else {
					s.spawn(wg, counter)
				}
			case Running:
				// do nothing
			case Stopping:
				s.mut.Lock()
				if len(s.chans) == 0 {
					s.mut.Unlock()
					stopper.Stop()
					continue
				}
				s.log.Debug("stopping a user\n")
				close(s.chans[0])
				s.chans = s.chans[1:]
				s.mut.Unlock()
			}
		case <-stopTimer.C:
			s.log.Info("run time %s is up, stopping users\n", s.runTime)
			state = Stopping
		}
	}
}
