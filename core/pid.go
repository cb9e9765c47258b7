package core

// FeedbackController is a three-term (proportional, integral, derivative)
// controller turning a scalar error into a scalar correction.
//
// The integral is unbounded: there is no anti-windup clamp, so a long run of
// same-signed error keeps contributing after the error returns to zero until
// opposite-signed error drains it. State is never reset after construction.
type FeedbackController struct {
	P, I, D float64

	integral  float64
	lastError float64
}

// NewFeedbackController constructs a controller with the given gains.
func NewFeedbackController(p, i, d float64) *FeedbackController {
	return &FeedbackController{P: p, I: i, D: d}
}

// Update feeds one error sample taken dt seconds after the previous one and
// returns the correction. dt must be positive; callers drive this from a
// fixed timestep.
func (c *FeedbackController) Update(err, dt float64) float64 {
	c.integral += err * dt
	derivative := (err - c.lastError) / dt
	c.lastError = err
	return c.P*err + c.I*c.integral + c.D*derivative
}

// Integral returns the accumulated error·seconds.
func (c *FeedbackController) Integral() float64 { return c.integral }
