package stream

import "fmt"

// Override bounds match GRBL 1.1h's documented real-time override range.
const (
	minOverridePct = 10
	maxOverridePct = 200
)

// SetFeedOverrideTarget steps the feed override toward pct in GRBL's
// fixed ±10% increments (spec §4.D: "Slider UIs compute a target percent
// and emit the needed count of ±10% bytes toward that target, then a
// reset if requested").
func (c *Controller) SetFeedOverrideTarget(pct int) error {
	return c.stepOverride(&c.overrideFeed, pct, OverrideFeedReset, OverrideFeedPlus10, OverrideFeedMinus10)
}

// SetSpindleOverrideTarget is SetFeedOverrideTarget's spindle counterpart.
func (c *Controller) SetSpindleOverrideTarget(pct int) error {
	return c.stepOverride(&c.overrideSpindle, pct, OverrideSpindleReset, OverrideSpindlePlus10, OverrideSpindleMinus)
}

func clampOverridePct(pct int) int {
	if pct < minOverridePct {
		return minOverridePct
	}
	if pct > maxOverridePct {
		return maxOverridePct
	}
	return pct
}

func (c *Controller) stepOverride(current *int, target int, reset, plus, minus byte) error {
	target = clampOverridePct(target)

	c.mu.Lock()
	start := *current
	c.mu.Unlock()

	if target == 100 {
		if err := c.writer.WriteRealtimeByte(reset); err != nil {
			return err
		}
		c.mu.Lock()
		*current = 100
		c.mu.Unlock()
		return nil
	}

	diff := target - start
	pos := start
	for diff >= 10 {
		if err := c.writer.WriteRealtimeByte(plus); err != nil {
			return err
		}
		pos += 10
		diff -= 10
	}
	for diff <= -10 {
		if err := c.writer.WriteRealtimeByte(minus); err != nil {
			return err
		}
		pos -= 10
		diff += 10
	}

	c.mu.Lock()
	*current = pos
	c.mu.Unlock()
	return nil
}

// RapidOverrideLevel is one of GRBL's three fixed rapid override levels.
type RapidOverrideLevel int

const (
	RapidFull    RapidOverrideLevel = 100
	RapidHalf    RapidOverrideLevel = 50
	RapidQuarter RapidOverrideLevel = 25
)

// SetRapidOverride sends the fixed real-time byte for one of GRBL's three
// rapid override levels (100/50/25%, spec §4.D).
func (c *Controller) SetRapidOverride(level RapidOverrideLevel) error {
	var b byte
	switch level {
	case RapidFull:
		b = OverrideRapidFull
	case RapidHalf:
		b = OverrideRapidHalf
	case RapidQuarter:
		b = OverrideRapidQuarter
	default:
		return fmt.Errorf("invalid rapid override level: %d", level)
	}
	if err := c.writer.WriteRealtimeByte(b); err != nil {
		return err
	}
	c.mu.Lock()
	c.overrideRapid = int(level)
	c.mu.Unlock()
	return nil
}
