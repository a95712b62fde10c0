// Package levels clusters peak prices into horizontal support and
// resistance levels.
package levels

import (
	"math"
	"sort"

	"chartscan/internal/model"
)

// MinTouches is the number of peaks a level needs.
const MinTouches = 2

// Detect groups the prices of maxima and minima that lie within thr
// percent of a cluster's running mean. Clusters with at least MinTouches
// peaks become levels, typed against the current price and sorted by price.
func Detect(maxima, minima []model.Point, thr, current float64) []model.HorizontalLevel {
	pts := make([]model.Point, 0, len(maxima)+len(minima))
	pts = append(pts, maxima...)
	pts = append(pts, minima...)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].Price == pts[j].Price {
			return pts[i].Index < pts[j].Index
		}
		return pts[i].Price < pts[j].Price
	})

	var out []model.HorizontalLevel
	var c cluster
	for _, p := range pts {
		if c.n > 0 && !near(p.Price, c.mean(), thr) {
			if lvl, ok := c.level(current); ok {
				out = append(out, lvl)
			}
			c = cluster{}
		}
		c.add(p)
	}
	if lvl, ok := c.level(current); ok {
		out = append(out, lvl)
	}
	return out
}

type cluster struct {
	n           int
	sum         float64
	first, last int
}

func (c *cluster) add(p model.Point) {
	if c.n == 0 {
		c.first, c.last = p.Index, p.Index
	}
	c.n++
	c.sum += p.Price
	c.first = min(c.first, p.Index)
	c.last = max(c.last, p.Index)
}

func (c *cluster) mean() float64 { return c.sum / float64(c.n) }

func (c *cluster) level(current float64) (model.HorizontalLevel, bool) {
	if c.n < MinTouches {
		return model.HorizontalLevel{}, false
	}
	lvl := model.HorizontalLevel{
		Price:      c.mean(),
		Touches:    c.n,
		Type:       model.LevelSupport,
		FirstIndex: c.first,
		LastIndex:  c.last,
	}
	if lvl.Price > current {
		lvl.Type = model.LevelResistance
	}
	return lvl, true
}

func near(a, b, thr float64) bool {
	mean := (math.Abs(a) + math.Abs(b)) / 2
	return mean > 0 && math.Abs(a-b)/mean*100 <= thr
}
