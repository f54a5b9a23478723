package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRngIsSeeded(t *testing.T) {
	a := NewRng("seed")
	b := NewRng("seed")
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Intn(1000), b.Intn(1000))
	}
}

func TestUserRngDiffers(t *testing.T) {
	a := UserRng("seed", 1)
	b := UserRng("seed", 2)
	same := 0
	for i := 0; i < 100; i++ {
		if a.Intn(1<<30) == b.Intn(1<<30) {
			same++
		}
	}
	assert.Less(t, same, 5)
}

func TestIntBetween(t *testing.T) {
	rng := NewRng("between")
	seen := make(map[int]bool)
	for i := 0; i < 10000; i++ {
		n := rng.IntBetween(1, 10)
		assert.GreaterOrEqual(t, n, 1)
		assert.LessOrEqual(t, n, 10)
		seen[n] = true
	}
	assert.Len(t, seen, 10, "both ends are reachable")
	assert.Equal(t, 5, rng.IntBetween(5, 5))
}

func TestBetween(t *testing.T) {
	rng := NewRng("duration")
	assert.Equal(t, time.Second, rng.Between(time.Second, time.Second))
	assert.Equal(t, time.Second, rng.Between(time.Second, 0))
	for i := 0; i < 1000; i++ {
		d := rng.Between(10*time.Millisecond, 20*time.Millisecond)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 20*time.Millisecond)
	}
}

func TestNewLogPayload(t *testing.T) {
	rng := NewRng("payload")
	for i := 0; i < 5000; i++ {
		p := NewLogPayload(rng)
		assert.Equal(t, BotID, p.BotID)
		assert.Equal(t, MessageText, p.Text)
		assert.True(t, p.ChatID >= MinID && p.ChatID <= MaxID, "chatId %d", p.ChatID)
		assert.True(t, p.UserID >= MinID && p.UserID <= MaxID, "userId %d", p.UserID)
	}
}
