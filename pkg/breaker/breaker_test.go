package breaker

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg Config) (*CircuitBreaker, *clock) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	cb := New(cfg)
	cb.now = clk.now
	return cb, clk
}

func TestNew_Defaults(t *testing.T) {
	cb := New(Config{Name: "redis"})
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 5, cb.cfg.MaxFailures)
	assert.Equal(t, 30*time.Second, cb.cfg.OpenTimeout)
	assert.Equal(t, 1, cb.cfg.HalfOpenMaxReqs)
}

func TestExecute_OpensAfterMaxFailures(t *testing.T) {
	cb, _ := newTestBreaker(Config{Name: "redis", MaxFailures: 2, OpenTimeout: time.Second})

	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateClosed, cb.State())

	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.Contains(t, err.Error(), "redis")
	assert.False(t, called)
}

func TestExecute_SuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(Config{MaxFailures: 2})

	_ = cb.Execute(func() error { return errBoom })
	require.NoError(t, cb.Execute(func() error { return nil }))
	_ = cb.Execute(func() error { return errBoom })

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 1, cb.Stats().Failures)
}

func TestHalfOpen(t *testing.T) {
	tests := []struct {
		name      string
		probeErr  error
		wantState State
	}{
		{"probe succeeds", nil, StateClosed},
		{"probe fails", errBoom, StateOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, clk := newTestBreaker(Config{MaxFailures: 1, OpenTimeout: time.Second})
			_ = cb.Execute(func() error { return errBoom })
			require.Equal(t, StateOpen, cb.State())

			clk.advance(500 * time.Millisecond)
			assert.False(t, cb.Allow())

			clk.advance(time.Second)
			_ = cb.Execute(func() error { return tt.probeErr })
			assert.Equal(t, tt.wantState, cb.State())
		})
	}
}

func TestHalfOpen_LimitsProbes(t *testing.T) {
	cb, clk := newTestBreaker(Config{MaxFailures: 1, OpenTimeout: time.Second, HalfOpenMaxReqs: 2})
	cb.RecordFailure()
	clk.advance(2 * time.Second)

	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.True(t, cb.Allow())
	assert.False(t, cb.Allow())

	cb.RecordSuccess()
	assert.Equal(t, StateHalfOpen, cb.State())
	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
}

func TestOnStateChange(t *testing.T) {
	var mu sync.Mutex
	var transitions []string

	cb, clk := newTestBreaker(Config{
		Name:        "redis",
		MaxFailures: 1,
		OpenTimeout: time.Second,
		OnStateChange: func(name string, from, to State) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})

	cb.RecordFailure()
	clk.advance(2 * time.Second)
	cb.Allow()
	cb.RecordSuccess()
	cb.Reset()

	assert.Equal(t, []string{
		"redis:closed->open",
		"redis:open->half-open",
		"redis:half-open->closed",
	}, transitions)
}

func TestStats_JSON(t *testing.T) {
	cb, _ := newTestBreaker(Config{Name: "redis", MaxFailures: 1})
	cb.RecordFailure()

	data, err := json.Marshal(cb.Stats())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"open"`)
	assert.Contains(t, string(data), `"name":"redis"`)
}

func TestConcurrentExecute(t *testing.T) {
	cb := New(Config{MaxFailures: 1000})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = cb.Execute(func() error {
				if i%2 == 0 {
					return errBoom
				}
				return nil
			})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, StateClosed, cb.State())
}
