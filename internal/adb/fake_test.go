package adb

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type response struct {
	output    string
	err       error
	delay     time.Duration
	ignoreCtx bool
	failTimes int
}

// fakeExecutor scripts device output by the joined argument list.
type fakeExecutor struct {
	mu        sync.Mutex
	responses map[string]*response
	calls     map[string]int
	args      [][]string

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		responses: make(map[string]*response),
		calls:     make(map[string]int),
	}
}

func (f *fakeExecutor) on(args string, r response) *fakeExecutor {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[args] = &r
	return f
}

func (f *fakeExecutor) callCount(args string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[args]
}

func (f *fakeExecutor) Execute(ctx context.Context, _ string, args ...string) ([]byte, error) {
	key := strings.Join(args, " ")

	f.mu.Lock()
	f.calls[key]++
	n := f.calls[key]
	f.args = append(f.args, args)
	r, ok := f.responses[key]
	f.mu.Unlock()

	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		prev := f.maxInFlight.Load()
		if cur <= prev || f.maxInFlight.CompareAndSwap(prev, cur) {
			break
		}
	}

	if !ok {
		return nil, fmt.Errorf("exit status 1: unknown command %q", key)
	}

	if r.delay > 0 {
		if r.ignoreCtx {
			time.Sleep(r.delay)
		} else {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.delay):
			}
		}
	}

	if n <= r.failTimes {
		return nil, fmt.Errorf("exit status 1")
	}
	if r.err != nil {
		return nil, r.err
	}

	return []byte(r.output + "\n"), nil
}
