package thermometer

import (
	"math"
	"time"
)

// Generator produces a synthetic temperature curve oscillating around From
// with amplitude Delta and a period of 4π seconds.
type Generator struct {
	From  float64
	Delta float64

	started time.Time
	now     func() time.Time
}

// NewGenerator starts a curve at the current time.
func NewGenerator(from, delta float64) *Generator {
	return &Generator{From: from, Delta: delta, started: time.Now(), now: time.Now}
}

// Value returns From + Delta*cos(elapsed/2) with elapsed in seconds.
func (g *Generator) Value() float64 {
	elapsed := g.now().Sub(g.started).Seconds()
	return g.From + g.Delta*math.Cos(elapsed/2)
}
