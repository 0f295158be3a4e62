package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeq_StartsAtZero(t *testing.T) {
	s := NewSeq()
	assert.Equal(t, int64(0), s.Current())
	assert.Equal(t, int64(1), s.Next())
	assert.Equal(t, int64(2), s.Next())
	assert.Equal(t, int64(2), s.Current())
}

func TestSeq_At(t *testing.T) {
	s := NewSeqAt(41)
	assert.Equal(t, int64(42), s.Next())
}

func TestSeq_ConcurrentUnique(t *testing.T) {
	s := NewSeq()
	const workers = 50
	const perWorker = 200

	var mu sync.Mutex
	seen := make(map[int64]bool, workers*perWorker)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			local := make([]int64, 0, perWorker)
			for j := 0; j < perWorker; j++ {
				local = append(local, s.Next())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, v := range local {
				require.False(t, seen[v], "duplicate value %d", v)
				seen[v] = true
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers*perWorker)
	assert.Equal(t, int64(workers*perWorker), s.Current())
}

func TestReal_AfterFuncFires(t *testing.T) {
	done := make(chan struct{})
	Real{}.AfterFunc(time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestOrReal(t *testing.T) {
	assert.IsType(t, Real{}, OrReal(nil))
}
