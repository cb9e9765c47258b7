package model

// MotionSource indicates how a target's trajectory is produced.
type MotionSource int

const (
	MotionSourceStatic     MotionSource = iota
	MotionSourceLinear                  // constant velocity
	MotionSourceWaypoints               // piecewise-linear path
	MotionSourceSpacetrack              // TLE-based orbit propagation
)

// Motion is a position or velocity triple in metres.
type Motion struct {
	X float64
	Y float64
	Z float64
}

// TargetDefinition describes an object placed in the scenario.
type TargetDefinition struct {
	ID   string
	Name string
	Tag  string // category used for detection filtering and RCS lookup

	Coordinates  Motion
	Velocity     Motion
	Waypoints    []Motion
	Speed        float64 // waypoint traversal speed, m/s
	Radius       float64 // collision radius, m
	MotionSource MotionSource

	TLE1, TLE2 string // used when MotionSourceSpacetrack
}
