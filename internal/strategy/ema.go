package strategy

// EMA is an exponential moving average seeded with the simple average of its first
// period samples.
type EMA struct {
	period  int
	alpha   float64
	count   int
	sum     float64
	value   float64
	prev    float64
	hasPrev bool
}

// NewEMA builds an EMA; non-positive periods fall back to 9.
func NewEMA(period int) *EMA {
	if period <= 0 {
		period = 9
	}
	return &EMA{period: period, alpha: 2 / float64(period+1)}
}

// Update folds x into the average and returns the current value once seeded.
func (e *EMA) Update(x float64) (float64, bool) {
	e.count++
	if e.count < e.period {
		e.sum += x
		return 0, false
	}
	if e.count == e.period {
		e.sum += x
		e.value = e.sum / float64(e.period)
		return e.value, true
	}
	e.prev, e.hasPrev = e.value, true
	e.value = e.alpha*x + (1-e.alpha)*e.value
	return e.value, true
}

// Ready reports whether the seed is complete.
func (e *EMA) Ready() bool { return e.count >= e.period }

// Value returns the latest sample (zero before seeding).
func (e *EMA) Value() float64 { return e.value }

// Prev returns the sample before the latest one, if any.
func (e *EMA) Prev() (float64, bool) { return e.prev, e.hasPrev }

// Period returns the configured look-back.
func (e *EMA) Period() int { return e.period }
