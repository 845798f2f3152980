package ring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_FIFO(t *testing.T) {
	r := New(4, DropNewest)

	for i := uint32(1); i <= 3; i++ {
		require.True(t, r.Put(i))
	}
	assert.Equal(t, 3, r.Len())

	for i := uint32(1); i <= 3; i++ {
		v, ok := r.Get()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok := r.Get()
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestRing_DropNewest(t *testing.T) {
	r := New(3, DropNewest)
	for i := uint32(1); i <= 5; i++ {
		r.Put(i)
	}

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, uint64(2), r.Dropped())

	var got []uint32
	for {
		v, ok := r.Get()
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []uint32{1, 2, 3}, got)
}

func TestRing_OverwriteOldest(t *testing.T) {
	r := New(3, OverwriteOldest)
	for i := uint32(1); i <= 5; i++ {
		require.True(t, r.Put(i))
	}

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, uint64(2), r.Dropped())

	var got []uint32
	for {
		v, ok := r.Get()
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []uint32{3, 4, 5}, got)
}

func TestRing_Drain(t *testing.T) {
	r := New(8, DropNewest)
	for i := uint32(0); i < 5; i++ {
		r.Put(i)
	}
	assert.Equal(t, 5, r.Drain())
	assert.Equal(t, 0, r.Len())
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("overwrite-oldest")
	require.NoError(t, err)
	assert.Equal(t, OverwriteOldest, p)
	assert.Equal(t, "overwrite-oldest", p.String())

	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, DropNewest, p)

	_, err = ParsePolicy("block")
	assert.Error(t, err)
}

// 并发生产/消费时，DropNewest 下读到的序列严格递增且无重复
func TestRing_ConcurrentSPSC(t *testing.T) {
	for _, policy := range []OverflowPolicy{DropNewest, OverwriteOldest} {
		r := New(16, policy)
		const total = 100000

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := uint32(1); i <= total; i++ {
				r.Put(i)
			}
		}()

		var last uint32
		received := 0
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

	loop:
		for {
			v, ok := r.Get()
			if ok {
				require.Greater(t, v, last, policy.String())
				last = v
				received++
				continue
			}
			select {
			case <-done:
				if r.Len() == 0 {
					break loop
				}
			default:
			}
		}

		assert.Equal(t, uint64(total), uint64(received)+r.Dropped(), policy.String())
	}
}
