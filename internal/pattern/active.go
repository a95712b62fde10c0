package pattern

import (
	"chartscan/internal/model"
)

// active replays the candles after the last data point and returns the
// breakout state. A band is broken when the close crosses it while the
// previous close was still inside, or when the close is already beyond it
// by the equal threshold. After the breakout the pattern succeeds once the
// target, h beyond the broken band, is touched and fails on a close back
// beyond the opposite band.
func (d *Detector) active(w window, h float64, candles []model.Candle) model.PatternActive {
	thr := d.cfg.EqualThreshold / 100
	upper, lower := w.upper(), w.lower()

	var st model.PatternActive
	for i := max(w.last().Index+1, 1); i < len(candles); i++ {
		cur, prev := candles[i], candles[i-1]
		if !st.Active {
			u, l := upper.at(i), lower.at(i)
			switch {
			case cur.Close > u && (prev.Close <= upper.at(i-1) || cur.Close > u*(1+thr)):
				st = breakout(i, cur, model.BreakUp, u+h)
			case cur.Close < l && (prev.Close >= lower.at(i-1) || cur.Close < l*(1-thr)):
				st = breakout(i, cur, model.BreakDown, l-h)
			default:
				continue
			}
		}
		switch st.BreakDirection {
		case model.BreakUp:
			if cur.High >= st.Target {
				st.Status = model.StatusSuccess
			} else if cur.Close < lower.at(i) {
				st.Status = model.StatusFail
			}
		case model.BreakDown:
			if cur.Low <= st.Target {
				st.Status = model.StatusSuccess
			} else if cur.Close > upper.at(i) {
				st.Status = model.StatusFail
			}
		}
		if st.Status == model.StatusSuccess || st.Status == model.StatusFail {
			st.Completed = true
			break
		}
	}
	return st
}

func breakout(i int, c model.Candle, dir model.BreakDirection, target float64) model.PatternActive {
	return model.PatternActive{
		Active:         true,
		Index:          i,
		Date:           c.Date,
		Price:          c.Close,
		Status:         model.StatusActive,
		BreakDirection: dir,
		Target:         target,
	}
}

// Refresh recomputes the breakout state of p against candles, which may
// end with the open candle.
func (d *Detector) Refresh(p *model.Pattern, candles []model.Candle) {
	if p.Active.Completed {
		return
	}
	w, ok := fromPattern(*p)
	if !ok {
		return
	}
	p.Active = d.active(w, measure(p.Type, w), candles)
}
