package gpu

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/abyss/engine/core"
)

// QueryManager measures GPU time of named regions with timestamp pairs. Results
// of a frame are read after its fence has signaled.
type QueryManager struct {
	driver  Driver
	pool    Handle
	max     uint32
	period  float32
	names   []string
	open    []int
	pending int
	results map[string]time.Duration
}

func NewQueryManager(driver Driver, maxQueries uint32) (*QueryManager, error) {
	pool, err := driver.CreateQueryPool(maxQueries * 2)
	if err != nil {
		err = fmt.Errorf("failed to create query pool: %w", err)
		core.LogError(err.Error())
		return nil, err
	}
	return &QueryManager{
		driver:  driver,
		pool:    pool,
		max:     maxQueries,
		period:  driver.Limits().TimestampPeriod,
		results: make(map[string]time.Duration),
	}, nil
}

// Reset clears the query slots at the start of a frame's command buffer.
func (q *QueryManager) Reset(cb *CommandBuffer) error {
	if err := cb.expect("reset queries", CommandBufferRecording); err != nil {
		return err
	}
	cb.rec.ResetQueryPool(q.pool, 0, q.max*2)
	q.names = q.names[:0]
	q.open = q.open[:0]
	return nil
}

func (q *QueryManager) begin(cb *CommandBuffer, name string) error {
	if uint32(len(q.names)) >= q.max {
		return fmt.Errorf("%w: %s exceeds %d", ErrTooManyQueries, name, q.max)
	}
	idx := len(q.names)
	q.names = append(q.names, name)
	q.open = append(q.open, idx)
	cb.rec.WriteTimestamp(StageTopOfPipe, q.pool, uint32(idx*2))
	return nil
}

func (q *QueryManager) end(cb *CommandBuffer) error {
	if len(q.open) == 0 {
		return fmt.Errorf("end query without a matching begin")
	}
	idx := q.open[len(q.open)-1]
	q.open = q.open[:len(q.open)-1]
	cb.rec.WriteTimestamp(StageBottomOfPipe, q.pool, uint32(idx*2+1))
	return nil
}

// Submitted marks the recorded queries as in flight.
func (q *QueryManager) Submitted() {
	q.pending = len(q.names)
}

// Collect reads the queries of the last submitted frame. Call it after the fence wait.
func (q *QueryManager) Collect() error {
	if q.pending == 0 {
		return nil
	}
	values, ok, err := q.driver.QueryResults(q.pool, 0, uint32(q.pending*2))
	if err != nil {
		return fmt.Errorf("read timestamp queries: %w", err)
	}
	if !ok {
		return nil
	}
	clear(q.results)
	for i := 0; i < q.pending && i < len(q.names); i++ {
		start, end := values[i*2], values[i*2+1]
		if end < start {
			continue
		}
		q.results[q.names[i]] = time.Duration(float64(end-start) * float64(q.period))
	}
	q.pending = 0
	return nil
}

// Results holds the durations collected by the last Collect.
func (q *QueryManager) Results() map[string]time.Duration {
	return q.results
}

func (q *QueryManager) Destroy() {
	if q.pool != NullHandle {
		q.driver.DestroyQueryPool(q.pool)
		q.pool = NullHandle
	}
}
