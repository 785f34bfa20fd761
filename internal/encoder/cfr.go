package encoder

import "github.com/PZwoodcat/Oleppy-Free/internal/pacer"

// cfrFeeder retimes variable-rate samples onto a constant frame grid for
// encoders that read raw video at a fixed rate. A sample lands on the slot
// nearest its timestamp; slots skipped since the previous sample repeat that
// sample, and a sample whose slot is already filled is dropped.
type cfrFeeder struct {
	fps  int
	next int64
	last []byte

	duplicated uint64
	dropped    uint64
}

func newCFRFeeder(fps int) *cfrFeeder {
	return &cfrFeeder{fps: fps}
}

// feed calls write once per output frame produced by s.
func (c *cfrFeeder) feed(s Sample, write func([]byte) error) error {
	slot := pacer.FrameIndex(s.PTS, c.fps)
	if slot < c.next {
		c.dropped++
		return nil
	}
	fill := c.last
	if fill == nil {
		fill = s.Data
	}
	for ; c.next < slot; c.next++ {
		if err := write(fill); err != nil {
			return err
		}
		c.duplicated++
	}
	if err := write(s.Data); err != nil {
		return err
	}
	c.next++
	c.last = s.Data
	return nil
}

// frames returns the number of output frames written so far.
func (c *cfrFeeder) frames() int64 {
	return c.next
}
