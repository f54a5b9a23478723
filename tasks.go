package main

import (
	"context"
	"fmt"
	"time"
)

const (
	LogEndpoint    = "/api/log"
	SearchEndpoint = "/api/search?textQuery=locust"
	StatsEndpoint  = "/api/stats/" + BotID

	ApiUserType = "ApiUser"
)

// A Task is one weighted action of a user.
type Task struct {
	Name   string
	Weight int
	Run    func(ctx context.Context, c *Client, rng Rng) error
}

// TaskSet picks tasks in proportion to their weights.
type TaskSet struct {
	tasks      []Task
	cumulative []int
	total      int
}

func NewTaskSet(tasks ...Task) (*TaskSet, error) {
	ts := &TaskSet{}
	for _, t := range tasks {
		if t.Weight <= 0 {
			return nil, fmt.Errorf("task %s has non-positive weight %d", t.Name, t.Weight)
		}
		ts.total += t.Weight
		ts.tasks = append(ts.tasks, t)
		ts.cumulative = append(ts.cumulative, ts.total)
	}
	if ts.total == 0 {
		return nil, fmt.Errorf("no tasks defined")
	}
	return ts, nil
}

// Pick returns a task with probability weight/total.
func (ts *TaskSet) Pick(rng Rng) Task {
	n := rng.Intn(ts.total)
	for i, c := range ts.cumulative {
		if n < c {
			return ts.tasks[i]
		}
	}
	return ts.tasks[len(ts.tasks)-1]
}

func (ts *TaskSet) Tasks() []Task {
	return ts.tasks
}

// WriteMessage posts a log message with fresh chat and user ids.
func WriteMessage(ctx context.Context, c *Client, rng Rng) error {
	_, err := c.Do(ctx, POST, LogEndpoint, RequestOptions{
		Headers: map[string]string{"Content-Type": "application/json"},
		JSON:    NewLogPayload(rng),
	})
	return err
}

// SearchMessages runs the slow text search.
func SearchMessages(ctx context.Context, c *Client, rng Rng) error {
	_, err := c.Do(ctx, GET, SearchEndpoint, RequestOptions{})
	return err
}

// GetStats reads the message count for the test bot.
func GetStats(ctx context.Context, c *Client, rng Rng) error {
	_, err := c.Do(ctx, GET, StatsEndpoint, RequestOptions{})
	return err
}

// UserType describes a kind of simulated user.
type UserType struct {
	Name    string
	Tasks   *TaskSet
	MinWait time.Duration
	MaxWait time.Duration
	OnStart func(ctx context.Context, c *Client, log Logger)
}

// WaitTime draws the pause between two tasks.
func (u *UserType) WaitTime(rng Rng) time.Duration {
	return rng.Between(u.MinWait, u.MaxWait)
}

// NewApiUser returns the analytics API user: write, search and stats with
// weights 10, 1 and 2.
func NewApiUser(minWait, maxWait time.Duration) *UserType {
	tasks, err := NewTaskSet(
		Task{Name: "write", Weight: 10, Run: WriteMessage},
		Task{Name: "search", Weight: 1, Run: SearchMessages},
		Task{Name: "stats", Weight: 2, Run: GetStats},
	)
	if err != nil {
		panic(err) // the weights above are constant
	}
	return &UserType{
		Name:    ApiUserType,
		Tasks:   tasks,
		MinWait: minWait,
		MaxWait: maxWait,
		OnStart: startSession,
	}
}

func startSession(ctx context.Context, c *Client, log Logger) {
	_, span := c.Sender().StartSpan(ctx, "user_start")
	span.AddField("user.type", ApiUserType)
	log.Info("Starting load test...\n")
	span.Send()
}
