package logic

// DefaultOverflowLimit is the number of consecutive actuations allowed before
// the loop is forced into a cooldown.
const DefaultOverflowLimit = 6

// Decide returns the action for one iteration given the filtered reading,
// the active threshold, and the current overflow count.
//
//	reading <= threshold                      -> ActionIdle
//	reading >  threshold, overflow <  limit   -> ActionIrrigate
//	reading >  threshold, overflow >= limit   -> ActionCooldown
func Decide(reading int, t Threshold, overflow, limit int) Action {
	if !t.Exceeded(reading) {
		return ActionIdle
	}
	if overflow >= limit {
		return ActionCooldown
	}
	return ActionIrrigate
}

// Guard owns the overflow-protect counter and applies Decide's transitions to it.
type Guard struct {
	limit    int
	overflow int
}

// NewGuard creates a Guard that trips after limit consecutive actuations.
// A limit below 1 is treated as 1.
func NewGuard(limit int) *Guard {
	if limit < 1 {
		limit = 1
	}
	return &Guard{limit: limit}
}

// Evaluate decides the next action and updates the overflow counter:
// Idle and Cooldown reset it, Irrigate increments it.
func (g *Guard) Evaluate(reading int, t Threshold) Action {
	action := Decide(reading, t, g.overflow, g.limit)
	switch action {
	case ActionIrrigate:
		g.overflow++
	default:
		g.overflow = 0
	}
	return action
}

// Overflow returns the number of consecutive actuations since the last reset.
func (g *Guard) Overflow() int {
	return g.overflow
}

// Limit returns the trip limit.
func (g *Guard) Limit() int {
	return g.limit
}
