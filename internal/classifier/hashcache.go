package classifier

import (
	"image"
	"sync"

	"github.com/corona10/goimagehash"
)

// hashDistance is the dHash Hamming distance below which two images are
// treated as the same picture.
const hashDistance = 10

type hashEntry struct {
	hash  *goimagehash.ImageHash
	preds []Prediction
}

// hashCache reuses predictions for perceptually identical images, e.g. the
// same picture served at another size or URL. Oldest entries are evicted
// first. A nil cache is disabled.
type hashCache struct {
	mu      sync.Mutex
	max     int
	entries []hashEntry
}

func newHashCache(max int) *hashCache {
	return &hashCache{max: max}
}

func (c *hashCache) lookup(img image.Image) ([]Prediction, bool) {
	if c == nil {
		return nil, false
	}
	h, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if d, err := h.Distance(e.hash); err == nil && d < hashDistance {
			return append([]Prediction(nil), e.preds...), true
		}
	}
	return nil, false
}

func (c *hashCache) store(img image.Image, preds []Prediction) {
	if c == nil {
		return
	}
	h, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.max {
		c.entries = c.entries[1:]
	}
	c.entries = append(c.entries, hashEntry{hash: h, preds: append([]Prediction(nil), preds...)})
}

func (c *hashCache) size() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
