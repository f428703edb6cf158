package controller

import (
	"context"

	"github.com/pkg/errors"

	"github.com/rikublock/xquery2/internal/event/processor"
	"github.com/rikublock/xquery2/internal/xtypes"
)

// stageStateName is the State row name a stage's cursor is tracked
// under, matching the reference design's "State('processor_<stage>')".
func stageStateName(stage processor.Stage) string {
	return "processor_" + stage.Name()
}

// compute runs every configured stage in order over [start, end],
// matching Controller.compute.
func (c *Controller) compute(ctx context.Context, start, end uint64) error {
	for _, stage := range c.stages {
		if err := c.computeStage(ctx, stage, start, end); err != nil {
			return errors.Wrapf(err, "controller: stage %q failed", stage.Name())
		}
	}
	return nil
}

func (c *Controller) computeStage(ctx context.Context, stage processor.Stage, start, end uint64) error {
	name := stageStateName(stage)

	cursor, ok, err := c.state.Get(name)
	if err != nil {
		return errors.Wrap(err, "controller: read stage state failed")
	}
	if !ok || cursor.BlockNumber == nil {
		if err := c.setupStage(ctx, stage, start); err != nil {
			return err
		}
		cursor, ok, err = c.state.Get(name)
		if err != nil {
			return errors.Wrap(err, "controller: re-read stage state failed")
		}
	}

	adjustStart := start
	if ok && cursor.BlockNumber != nil && *cursor.BlockNumber+1 > adjustStart {
		adjustStart = *cursor.BlockNumber + 1
	}
	if adjustStart > end {
		c.log.Infow("stage range empty", "stage", stage.Name(), "start", adjustStart, "end", end)
		return nil
	}

	for _, r := range partitionRange(adjustStart, end, stage.BatchSize()) {
		job := xtypes.Job{
			ID: c.nextJobID(),
			Bundles: []xtypes.DataBundle{
				{
					Meta:  xtypes.JobMeta{StateName: name, BlockNumber: r.End},
					Range: &xtypes.BlockRange{Start: r.Start, End: r.End},
				},
			},
		}
		if err := c.submitProcessJob(ctx, job); err != nil {
			return err
		}
	}

	return c.waitDrained(ctx)
}

// setupStage mirrors setupAnchor for a processor stage: run Setup, then
// record a synthetic commit advancing the stage's cursor to start-1.
func (c *Controller) setupStage(ctx context.Context, stage processor.Stage, start uint64) error {
	if err := stage.Setup(start); err != nil {
		return errors.Wrapf(err, "controller: stage %q setup failed", stage.Name())
	}
	if start == 0 {
		return nil
	}

	result := xtypes.JobResult{
		ID: c.nextJobID(),
		Bundles: []xtypes.ResultBundle{
			{Meta: xtypes.JobMeta{StateName: stageStateName(stage), BlockNumber: start - 1}},
		},
	}
	select {
	case c.results <- result:
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.waitDrained(ctx)
}

// partitionRange splits [start, end] into consecutive sub-ranges of
// width size (the last one possibly narrower), or a single whole-range
// span when size is 0, matching "sub-intervals of stage.batch_size (or
// one whole-range job if null)".
func partitionRange(start, end, size uint64) []xtypes.BlockRange {
	if start > end {
		return nil
	}
	if size == 0 {
		return []xtypes.BlockRange{{Start: start, End: end}}
	}

	var out []xtypes.BlockRange
	for s := start; s <= end; s += size {
		e := s + size - 1
		if e > end {
			e = end
		}
		out = append(out, xtypes.BlockRange{Start: s, End: e})
	}
	return out
}
