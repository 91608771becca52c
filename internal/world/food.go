package world

import "math"

type point struct {
	x, y float64
}

func (p point) within(x, y, radius float64) bool {
	dx, dy := p.x-x, p.y-y
	return dx*dx+dy*dy <= radius*radius
}

// spawnFood drops one food point uniformly inside the bounds unless the food
// cap is reached.
func (w *World) spawnFood() {
	if len(w.food) >= w.cfg.MaxFood {
		return
	}
	b := w.cfg.Bounds
	w.food = append(w.food, point{
		x: (w.rng.Float64()*2 - 1) * b,
		y: (w.rng.Float64()*2 - 1) * b,
	})
}

// removeFood drops food i by swapping in the last point.
func (w *World) removeFood(i int) {
	last := len(w.food) - 1
	w.food[i] = w.food[last]
	w.food = w.food[:last]
}

func (w *World) nearestFood(x, y float64) (point, float64, bool) {
	best := -1
	bestDist := math.Inf(1)
	for i, f := range w.food {
		dx, dy := f.x-x, f.y-y
		if d := dx*dx + dy*dy; d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return point{}, 0, false
	}
	return w.food[best], math.Sqrt(bestDist), true
}

// AddFood places a food point at (x, y), clamped to the bounds. It ignores
// the food cap.
func (w *World) AddFood(x, y float64) {
	b := w.cfg.Bounds
	w.food = append(w.food, point{x: clamp(x, -b, b), y: clamp(y, -b, b)})
}
