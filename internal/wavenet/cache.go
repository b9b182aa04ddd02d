package wavenet

import "fmt"

// HistoryCache is the per-layer memory that makes streaming dilated
// convolution O(1) per step. It holds exactly `dilation` cached input frames
// in a fixed ring buffer, each frame batch*channels float32 values. The slot
// at the head is always the frame from `dilation` steps ago, which is the
// older tap of a 2-wide dilated kernel.
//
// Entries start as zero frames, standing in for the left zero padding a
// batch-mode causal convolution applies; streaming therefore matches batch
// output from the very first step.
//
// A cache is owned by exactly one layer within one generation session and is
// not safe for concurrent use.
type HistoryCache struct {
	frames    []float32 // [dilation, batch*channels], flat ring storage
	evicted   []float32 // reused return buffer for PushPopOldest
	frameSize int
	dilation  int
	head      int
}

// NewHistoryCache creates a cache of `dilation` zero frames for the given
// batch size and channel count.
func NewHistoryCache(dilation int64, batch, channels int64) (*HistoryCache, error) {
	if dilation <= 0 {
		return nil, fmt.Errorf("wavenet: history cache dilation must be > 0, got %d", dilation)
	}

	if batch <= 0 || channels <= 0 {
		return nil, fmt.Errorf("wavenet: history cache needs positive batch and channels, got %d and %d", batch, channels)
	}

	frameSize := int(batch * channels)

	return &HistoryCache{
		frames:    make([]float32, int(dilation)*frameSize),
		evicted:   make([]float32, frameSize),
		frameSize: frameSize,
		dilation:  int(dilation),
	}, nil
}

// Len reports the number of cached frames, which is always the dilation.
func (c *HistoryCache) Len() int { return c.dilation }

// FrameSize reports the flat length of one frame (batch * channels).
func (c *HistoryCache) FrameSize() int { return c.frameSize }

// PushPopOldest stores frame as the newest entry and returns the evicted
// frame from `dilation` steps ago. The returned slice is owned by the cache
// and is only valid until the next call.
func (c *HistoryCache) PushPopOldest(frame []float32) ([]float32, error) {
	if len(frame) != c.frameSize {
		return nil, fmt.Errorf("wavenet: history cache frame length %d, want %d", len(frame), c.frameSize)
	}

	slot := c.frames[c.head*c.frameSize : (c.head+1)*c.frameSize]
	copy(c.evicted, slot)
	copy(slot, frame)
	c.head++

	if c.head == c.dilation {
		c.head = 0
	}

	return c.evicted, nil
}
