package systems

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobSystemRunsCallbacks(t *testing.T) {
	js, err := NewJobSystem(4, 8)
	require.NoError(t, err)

	var completed, failed atomic.Int32
	for i := 0; i < 20; i++ {
		fail := i%5 == 0
		require.NoError(t, js.Submit(JobTask{
			Name: "work",
			Run: func() (interface{}, error) {
				if fail {
					return nil, errors.New("boom")
				}
				return i, nil
			},
			OnComplete: func(interface{}) { completed.Add(1) },
			OnFailure:  func(error) { failed.Add(1) },
		}))
	}
	js.Wait()
	assert.Equal(t, int32(16), completed.Load())
	assert.Equal(t, int32(4), failed.Load())

	require.NoError(t, js.Shutdown())
	assert.ErrorIs(t, js.Submit(JobTask{Run: func() (interface{}, error) { return nil, nil }}), ErrJobSystemClosed)
}

func TestJobSystemRejectsBadSizes(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)
}
