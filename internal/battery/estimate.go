package battery

import (
	"sync"
	"time"
)

const (
	emaAlpha   = 0.3
	rateWindow = 8
)

// Estimate is a smoothed time prediction.
type Estimate struct {
	Valid bool `json:"valid"`
	// Rate is the smoothed absolute rate in mW.
	Rate     float64       `json:"rate"`
	Charging bool          `json:"charging"`
	Remains  time.Duration `json:"remains"`
}

// Estimator smooths rates per phase. Charge and discharge keep separate
// histories; a phase switch does not reset the other one.
type Estimator struct {
	mu        sync.Mutex
	discharge []float64
	charge    []float64
}

func NewEstimator() *Estimator { return &Estimator{} }

// Add records s and returns the time to empty (discharging) or to full
// (charging). Readings with an unknown or zero rate yield an invalid
// estimate.
func (e *Estimator) Add(s Status) Estimate {
	if !s.RateKnown || s.Rate == 0 || s.Capacity == unknownValue {
		return Estimate{}
	}
	rate := float64(s.Rate)
	charging := rate > 0
	if !charging {
		rate = -rate
	}

	e.mu.Lock()
	hist := &e.discharge
	if charging {
		hist = &e.charge
	}
	*hist = append(*hist, rate)
	if len(*hist) > rateWindow {
		*hist = (*hist)[len(*hist)-rateWindow:]
	}
	smoothed := ema(*hist)
	e.mu.Unlock()

	if smoothed <= 0 {
		return Estimate{}
	}
	var mWh float64
	if charging {
		if s.FullChargedCapacity <= s.Capacity {
			return Estimate{Rate: smoothed, Charging: true}
		}
		mWh = float64(s.FullChargedCapacity - s.Capacity)
	} else {
		mWh = float64(s.Capacity)
	}
	hours := mWh / smoothed
	return Estimate{
		Valid:    true,
		Rate:     smoothed,
		Charging: charging,
		Remains:  time.Duration(hours * float64(time.Hour)).Round(time.Minute),
	}
}

func ema(rates []float64) float64 {
	if len(rates) == 0 {
		return 0
	}
	v := rates[0]
	for _, r := range rates[1:] {
		v = emaAlpha*r + (1-emaAlpha)*v
	}
	return v
}
