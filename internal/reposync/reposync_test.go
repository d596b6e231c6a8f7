package reposync

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireIsExclusivePerRepo(t *testing.T) {
	r := NewRegistry()
	g := r.Acquire("repo-a")

	acquired := make(chan struct{})
	go func() {
		g2 := r.Acquire("repo-a")
		close(acquired)
		g2.Release()
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should have blocked while repo-a is held")
	case <-time.After(50 * time.Millisecond):
	}

	g.Release()
	<-acquired
}

func TestDifferentReposDoNotContend(t *testing.T) {
	r := NewRegistry()
	g1 := r.Acquire("repo-a")
	defer g1.Release()

	done := make(chan struct{})
	go func() {
		g2 := r.Acquire("repo-b")
		g2.Release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquiring an unrelated repo should not block")
	}
}

func TestTryAcquireFailsWhenHeld(t *testing.T) {
	r := NewRegistry()
	g := r.Acquire("repo-a")
	defer g.Release()

	_, ok := r.TryAcquire("repo-a")
	require.False(t, ok)
}

func TestConcurrentAcquireSameRepoIsSerialized(t *testing.T) {
	r := NewRegistry()
	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g := r.Acquire("shared")
			defer g.Release()
			counter++
		}()
	}
	wg.Wait()
	require.Equal(t, 50, counter)
}
