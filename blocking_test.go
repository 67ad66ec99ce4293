package pqueue

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// memBacking 内存后端，验证BlockingCore与持久化无关
type memBacking struct {
	recs   [][]byte
	synced int
}

func (m *memBacking) Len() int { return len(m.recs) }

func (m *memBacking) Push(rec []byte) error {
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memBacking) Peek() ([]byte, error) {
	if len(m.recs) == 0 {
		return nil, ErrEmpty
	}
	return m.recs[0], nil
}

func (m *memBacking) Pop() ([]byte, error) {
	if len(m.recs) == 0 {
		return nil, ErrEmpty
	}
	rec := m.recs[0]
	m.recs = m.recs[1:]
	return rec, nil
}

func (m *memBacking) Sync() error {
	m.synced++
	return nil
}

func TestCoreCapacity(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c := NewBlockingCore(&memBacking{}, 2, 0)
	defer c.Close()

	require.Nil(t, c.Put([]byte("a"), false, 0))
	require.Nil(t, c.Put([]byte("b"), false, 0))
	assert.ErrorIs(t, c.Put([]byte("c"), false, 0), ErrFull)
	assert.ErrorIs(t, c.Put([]byte("c"), true, 20*time.Millisecond), ErrFull)

	rec, err := c.Get(false, 0)
	require.Nil(t, err)
	assert.Equal(t, []byte("a"), rec)

	// 腾出空间后非阻塞Put立即成功
	require.Nil(t, c.Put([]byte("c"), false, 0))
}

func TestCoreEmpty(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c := NewBlockingCore(&memBacking{}, 0, 0)
	defer c.Close()

	_, err := c.Get(false, 0)
	assert.ErrorIs(t, err, ErrEmpty)

	start := time.Now()
	_, err = c.Get(true, 30*time.Millisecond)
	assert.ErrorIs(t, err, ErrEmpty)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestCoreBlockingPutWakesGet(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c := NewBlockingCore(&memBacking{}, 0, 0)
	defer c.Close()

	got := make(chan []byte, 1)
	go func() {
		rec, err := c.Get(true, 0)
		if err == nil {
			got <- rec
		}
	}()

	time.Sleep(10 * time.Millisecond)
	require.Nil(t, c.Put([]byte("wake"), true, 0))

	select {
	case rec := <-got:
		assert.Equal(t, []byte("wake"), rec)
	case <-time.After(time.Second):
		t.Fatal("blocked get was never woken")
	}
}

func TestCoreBlockingGetWakesPut(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c := NewBlockingCore(&memBacking{}, 1, 0)
	defer c.Close()

	require.Nil(t, c.Put([]byte("a"), false, 0))

	done := make(chan error, 1)
	go func() {
		done <- c.Put([]byte("b"), true, 0)
	}()

	time.Sleep(10 * time.Millisecond)
	_, err := c.Get(false, 0)
	require.Nil(t, err)

	select {
	case err := <-done:
		assert.Nil(t, err)
	case <-time.After(time.Second):
		t.Fatal("blocked put was never woken")
	}
}

func TestCoreTaskDoneAndJoin(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	backing := &memBacking{}
	c := NewBlockingCore(backing, 0, 0)
	defer c.Close()

	// 没有任何记录时Join立即返回
	c.Join()

	require.Nil(t, c.Put([]byte("a"), false, 0))
	require.Nil(t, c.Put([]byte("b"), false, 0))

	joined := make(chan struct{})
	go func() {
		c.Join()
		close(joined)
	}()

	_, err := c.Get(false, 0)
	require.Nil(t, err)
	require.Nil(t, c.TaskDone())

	select {
	case <-joined:
		t.Fatal("join returned with one task unfinished")
	case <-time.After(20 * time.Millisecond):
	}

	_, err = c.Get(false, 0)
	require.Nil(t, err)
	require.Nil(t, c.TaskDone())

	select {
	case <-joined:
	case <-time.After(time.Second):
		t.Fatal("join never returned")
	}

	// Sync在每次TaskDone时都要被调用
	assert.Equal(t, 2, backing.synced)
}

func TestCoreTaskDoneOverCall(t *testing.T) {
	c := NewBlockingCore(&memBacking{}, 0, 0)
	defer c.Close()

	require.Nil(t, c.Put([]byte("a"), false, 0))
	_, err := c.Get(false, 0)
	require.Nil(t, err)

	require.Nil(t, c.TaskDone())
	assert.ErrorIs(t, c.TaskDone(), ErrTaskDone)
}

func TestCoreSeededUnfinished(t *testing.T) {
	// 重新打开的持久化队列用恢复出的size作为未完成数
	backing := &memBacking{recs: [][]byte{[]byte("a"), []byte("b")}}
	c := NewBlockingCore(backing, 0, 2)
	defer c.Close()

	joined := make(chan struct{})
	go func() {
		c.Join()
		close(joined)
	}()

	for i := 0; i < 2; i++ {
		_, err := c.Get(false, 0)
		require.Nil(t, err)
		require.Nil(t, c.TaskDone())
	}

	select {
	case <-joined:
	case <-time.After(time.Second):
		t.Fatal("join never returned")
	}
}

func TestCoreCloseWakesWaiters(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	empty := NewBlockingCore(&memBacking{}, 0, 0)
	full := NewBlockingCore(&memBacking{}, 1, 0)
	require.Nil(t, full.Put([]byte("a"), false, 0))

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := empty.Get(true, 0)
		errs <- err
	}()
	go func() {
		defer wg.Done()
		errs <- full.Put([]byte("b"), true, 0)
	}()

	time.Sleep(10 * time.Millisecond)
	empty.Close()
	full.Close()
	wg.Wait()

	close(errs)
	for err := range errs {
		assert.ErrorIs(t, err, ErrClosed)
	}
}

func TestCoreConcurrentProducersConsumers(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	const (
		producers = 4
		consumers = 4
		perWorker = 250
	)

	c := NewBlockingCore(&memBacking{}, 8, 0)
	defer c.Close()

	var wg sync.WaitGroup
	seen := make(chan string, producers*perWorker)

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				err := c.Put([]byte(fmt.Sprintf("p%d-%d", p, i)), true, 0)
				if err != nil {
					t.Error(err)
					return
				}
			}
		}(p)
	}

	for w := 0; w < consumers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < producers*perWorker/consumers; i++ {
				rec, err := c.Get(true, 0)
				if err != nil {
					t.Error(err)
					return
				}
				seen <- string(rec)
			}
		}()
	}

	wg.Wait()
	close(seen)

	// 每个元素恰好出现一次
	unique := make(map[string]struct{}, producers*perWorker)
	for s := range seen {
		if _, dup := unique[s]; dup {
			t.Fatalf("duplicate record %s", s)
		}
		unique[s] = struct{}{}
	}
	assert.Len(t, unique, producers*perWorker)
	assert.Equal(t, 0, c.Len())
}
