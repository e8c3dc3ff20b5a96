package derive

import (
	"fmt"
	"math/big"
	"time"
)

// Countdown is the time left until a ledger deadline, never negative.
type Countdown struct {
	Remaining time.Duration
	Days      int64
	Hours     int64
	Minutes   int64
	Seconds   int64
}

// CountdownTo decomposes max(0, target-now) using truncating division.
// target is a unix timestamp in seconds; nil yields a zero countdown.
func CountdownTo(target *big.Int, now time.Time) Countdown {
	if target == nil {
		return Countdown{}
	}
	left := new(big.Int).Sub(target, big.NewInt(now.Unix()))
	if left.Sign() <= 0 {
		return Countdown{}
	}
	if !left.IsInt64() {
		left.SetInt64(int64(^uint64(0) >> 1))
	}
	return newCountdown(left.Int64())
}

func newCountdown(secs int64) Countdown {
	return Countdown{
		Remaining: time.Duration(secs) * time.Second,
		Days:      secs / 86400,
		Hours:     secs % 86400 / 3600,
		Minutes:   secs % 3600 / 60,
		Seconds:   secs % 60,
	}
}

// Expired reports whether the deadline has passed.
func (c Countdown) Expired() bool {
	return c.Days == 0 && c.Hours == 0 && c.Minutes == 0 && c.Seconds == 0
}

// Format renders "2d 3h", "3h 5m" or "5m".
func (c Countdown) Format() string {
	switch {
	case c.Days > 0:
		return fmt.Sprintf("%dd %dh", c.Days, c.Hours)
	case c.Hours > 0:
		return fmt.Sprintf("%dh %dm", c.Hours, c.Minutes)
	default:
		return fmt.Sprintf("%dm", c.Minutes)
	}
}

func (c Countdown) String() string { return c.Format() }

// IsLocked reports whether voting is closed. Without a lock time there is no
// round to vote in, so it is locked.
func IsLocked(lockTime *big.Int, now time.Time) bool {
	if lockTime == nil {
		return true
	}
	return big.NewInt(now.Unix()).Cmp(lockTime) >= 0
}
