package comm

import (
	"bytes"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestMemMatchingAndOrder(t *testing.T) {
	g := NewMemGroup(2)
	a := g.Endpoint(0)
	b := g.Endpoint(1)

	// Same (sender, tag) pair delivers in send order.
	for _, p := range []string{"one", "two", "three"} {
		if err := a.Send(1, 7, []byte(p)); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	for _, want := range []string{"one", "two", "three"} {
		got, err := b.Recv(0, 7)
		if err != nil || string(got) != want {
			t.Fatalf("Recv = %q, %v, want %q", got, err, want)
		}
	}

	// Different tags do not interfere, whatever the arrival order.
	a.Send(1, 1, []byte("first-tag"))
	a.Send(1, 2, []byte("second-tag"))
	if got, _ := b.Recv(0, 2); string(got) != "second-tag" {
		t.Errorf("tag 2 delivered %q", got)
	}
	if got, _ := b.Recv(0, 1); string(got) != "first-tag" {
		t.Errorf("tag 1 delivered %q", got)
	}
}

func TestMemSelfSend(t *testing.T) {
	g := NewMemGroup(1)
	e := g.Endpoint(0)
	if err := e.Send(0, 3, []byte("loop")); err != nil {
		t.Fatalf("self send: %v", err)
	}
	got, err := e.Recv(0, 3)
	if err != nil || string(got) != "loop" {
		t.Fatalf("self recv = %q, %v", got, err)
	}
}

func TestMemSendCopiesPayload(t *testing.T) {
	g := NewMemGroup(2)
	buf := []byte("payload")
	g.Endpoint(0).Send(1, 1, buf)
	buf[0] = 'X'
	got, _ := g.Endpoint(1).Recv(0, 1)
	if !bytes.Equal(got, []byte("payload")) {
		t.Errorf("receiver saw mutated payload %q", got)
	}
}

func TestRecvAfterClose(t *testing.T) {
	g := NewMemGroup(2)
	e := g.Endpoint(1)
	done := make(chan error, 1)
	go func() {
		_, err := e.Recv(0, 9)
		done <- err
	}()
	e.Close()
	if err := <-done; !errors.Is(err, ErrClosed) {
		t.Errorf("blocked Recv returned %v, want ErrClosed", err)
	}
}

// runGroup executes body once per rank on its own goroutine and reports
// the first error.
func runGroup(t *testing.T, size int, body func(ep Endpoint) error) {
	t.Helper()
	g := NewMemGroup(size)
	errs := make(chan error, size)
	var wg sync.WaitGroup
	for r := 0; r < size; r++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			errs <- body(g.Endpoint(rank))
		}(r)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("rank failed: %v", err)
		}
	}
}

func TestBarrier(t *testing.T) {
	var entered atomic.Int64
	runGroup(t, 4, func(ep Endpoint) error {
		entered.Add(1)
		if err := Barrier(ep); err != nil {
			return err
		}
		if n := entered.Load(); n != 4 {
			t.Errorf("rank %d passed barrier with %d ranks entered", ep.Rank(), n)
		}
		return nil
	})
}

func TestReduceAndAllReduce(t *testing.T) {
	runGroup(t, 4, func(ep Endpoint) error {
		own := int64(ep.Rank() + 1)

		sum, err := Reduce(ep, 0, own, ReduceSum)
		if err != nil {
			return err
		}
		if ep.Rank() == 0 && sum != 10 {
			t.Errorf("root sum = %d, want 10", sum)
		}
		if ep.Rank() != 0 && sum != 0 {
			t.Errorf("non-root rank %d saw reduce result %d", ep.Rank(), sum)
		}

		max, err := AllReduce(ep, own, ReduceMax)
		if err != nil {
			return err
		}
		if max != 4 {
			t.Errorf("rank %d allreduce max = %d, want 4", ep.Rank(), max)
		}

		min, err := AllReduce(ep, own, ReduceMin)
		if err != nil {
			return err
		}
		if min != 1 {
			t.Errorf("rank %d allreduce min = %d, want 1", ep.Rank(), min)
		}
		return nil
	})
}

func TestGather(t *testing.T) {
	runGroup(t, 4, func(ep Endpoint) error {
		payload := []byte{byte('a' + ep.Rank())}
		views, err := Gather(ep, 2, payload)
		if err != nil {
			return err
		}
		if ep.Rank() != 2 {
			if views != nil {
				t.Errorf("non-root rank %d received %v", ep.Rank(), views)
			}
			return nil
		}
		want := "abcd"
		for r, p := range views {
			if string(p) != want[r:r+1] {
				t.Errorf("root view of rank %d = %q", r, p)
			}
		}
		return nil
	})
}
