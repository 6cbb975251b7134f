package usecase

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNameLocker_SerializesSameName(t *testing.T) {
	locker := newNameLocker()

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locker.Lock("report.pdf")
			defer unlock()

			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive)
	assert.Equal(t, 0, locker.held())
}

func TestNameLocker_DifferentNamesRunConcurrently(t *testing.T) {
	locker := newNameLocker()

	unlockA := locker.Lock("a.txt")
	done := make(chan struct{})
	go func() {
		unlock := locker.Lock("b.txt")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b.txt blocked behind a.txt")
	}
	unlockA()
}

func TestNameLocker_OppositeOrderDoesNotDeadlock(t *testing.T) {
	locker := newNameLocker()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			locker.Lock("a.txt", "b.txt")()
		}()
		go func() {
			defer wg.Done()
			locker.Lock("b.txt", "a.txt")()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("rename-style locking deadlocked")
	}
	assert.Equal(t, 0, locker.held())
}

func TestNameLocker_DuplicateNamesLockedOnce(t *testing.T) {
	locker := newNameLocker()
	unlock := locker.Lock("same.txt", "same.txt")
	assert.Equal(t, 1, locker.held())
	unlock()
	assert.Equal(t, 0, locker.held())
}
