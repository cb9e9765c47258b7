package core

import (
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/air-defense-simulator/model"
)

// MotionModel yields the position and velocity of a kinematic body at a
// given simulation time.
type MotionModel interface {
	Sample(simTime time.Time) (pos, vel Vec3)
}

// StaticMotionModel keeps a body at a fixed point.
type StaticMotionModel struct {
	Position Vec3
}

// Sample returns the fixed position and zero velocity.
func (m *StaticMotionModel) Sample(time.Time) (Vec3, Vec3) {
	return m.Position, Vec3{}
}

// LinearMotionModel moves at constant velocity from Origin at Start.
type LinearMotionModel struct {
	Origin   Vec3
	Velocity Vec3
	Start    time.Time
}

// Sample extrapolates linearly from Start.
func (m *LinearMotionModel) Sample(simTime time.Time) (Vec3, Vec3) {
	t := simTime.Sub(m.Start).Seconds()
	return m.Origin.Add(m.Velocity.Scale(t)), m.Velocity
}

// WaypointMotionModel walks a polyline at constant speed, looping back to
// the first point after the last one.
type WaypointMotionModel struct {
	Points []Vec3
	Speed  float64
	Start  time.Time

	cumulative []float64
}

// NewWaypointMotionModel precomputes segment lengths for points.
func NewWaypointMotionModel(points []Vec3, speed float64, start time.Time) *WaypointMotionModel {
	m := &WaypointMotionModel{Points: points, Speed: speed, Start: start}
	m.cumulative = make([]float64, len(points))
	for i := 1; i < len(points); i++ {
		m.cumulative[i] = m.cumulative[i-1] + points[i].DistanceTo(points[i-1])
	}
	return m
}

// Sample interpolates along the closed path.
func (m *WaypointMotionModel) Sample(simTime time.Time) (Vec3, Vec3) {
	switch len(m.Points) {
	case 0:
		return Vec3{}, Vec3{}
	case 1:
		return m.Points[0], Vec3{}
	}
	n := len(m.Points)
	closing := m.Points[0].DistanceTo(m.Points[n-1])
	total := m.cumulative[n-1] + closing
	if total == 0 || m.Speed <= 0 {
		return m.Points[0], Vec3{}
	}

	d := math.Mod(simTime.Sub(m.Start).Seconds()*m.Speed, total)
	if d < 0 {
		d += total
	}
	for i := 1; i <= n; i++ {
		var segEnd float64
		var a, b Vec3
		if i < n {
			segEnd, a, b = m.cumulative[i], m.Points[i-1], m.Points[i]
		} else {
			segEnd, a, b = total, m.Points[n-1], m.Points[0]
		}
		if d <= segEnd {
			segLen := b.DistanceTo(a)
			if segLen == 0 {
				continue
			}
			frac := (d - (segEnd - segLen)) / segLen
			dir := b.Sub(a).Normalize()
			return a.Add(b.Sub(a).Scale(frac)), dir.Scale(m.Speed)
		}
	}
	return m.Points[0], Vec3{}
}

// OrbitalSGP4MotionModel propagates a TLE with SGP4. Positions are ECEF
// metres relative to Origin, so a site placed at its own ECEF coordinates
// sees orbital objects in the same local frame as everything else.
type OrbitalSGP4MotionModel struct {
	sat    satellite.Satellite
	Origin Vec3
}

// NewOrbitalModelFromTLE constructs an orbital model from TLE lines.
func NewOrbitalModelFromTLE(line1, line2 string, origin Vec3) *OrbitalSGP4MotionModel {
	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS72)
	return &OrbitalSGP4MotionModel{sat: sat, Origin: origin}
}

// Sample propagates to simTime. go-satellite works in kilometres; the world
// uses metres. Velocity is the ECEF finite difference over one second.
func (m *OrbitalSGP4MotionModel) Sample(simTime time.Time) (Vec3, Vec3) {
	pos := m.ecef(simTime)
	next := m.ecef(simTime.Add(time.Second))
	return pos.Sub(m.Origin), next.Sub(pos)
}

// ecef interpolates linearly between whole-second propagations; SGP4 here
// only takes integer seconds.
func (m *OrbitalSGP4MotionModel) ecef(simTime time.Time) Vec3 {
	t := simTime.UTC()
	whole := t.Truncate(time.Second)
	p0 := m.ecefAt(whole)
	frac := t.Sub(whole).Seconds()
	if frac == 0 {
		return p0
	}
	p1 := m.ecefAt(whole.Add(time.Second))
	return p0.Add(p1.Sub(p0).Scale(frac))
}

func (m *OrbitalSGP4MotionModel) ecefAt(t time.Time) Vec3 {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	posECI, _ := satellite.Propagate(m.sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)
	posECEF := satellite.ECIToECEF(posECI, gmst)

	const kmToM = 1000.0
	return Vec3{
		X: posECEF.X * kmToM,
		Y: posECEF.Y * kmToM,
		Z: posECEF.Z * kmToM,
	}
}

// NewMotionModel chooses a MotionModel for a scenario target. Spacetrack
// targets without both TLE lines fall back to static.
func NewMotionModel(def *model.TargetDefinition, start time.Time, origin Vec3) MotionModel {
	pos := vecFromMotion(def.Coordinates)
	switch def.MotionSource {
	case model.MotionSourceLinear:
		return &LinearMotionModel{Origin: pos, Velocity: vecFromMotion(def.Velocity), Start: start}
	case model.MotionSourceWaypoints:
		points := make([]Vec3, 0, len(def.Waypoints)+1)
		points = append(points, pos)
		for _, wp := range def.Waypoints {
			points = append(points, vecFromMotion(wp))
		}
		return NewWaypointMotionModel(points, def.Speed, start)
	case model.MotionSourceSpacetrack:
		if def.TLE1 != "" && def.TLE2 != "" {
			return NewOrbitalModelFromTLE(def.TLE1, def.TLE2, origin)
		}
	}
	return &StaticMotionModel{Position: pos}
}

func vecFromMotion(m model.Motion) Vec3 {
	return Vec3{X: m.X, Y: m.Y, Z: m.Z}
}
