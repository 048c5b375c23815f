// Package camera provides the orbit camera used by the viewer.
package camera

import (
	gomath "math"

	"github.com/Faultbox/stmesh/internal/engine/model"
	"github.com/Faultbox/stmesh/pkg/math"
)

// OrbitCamera orbits around a center point.
type OrbitCamera struct {
	Center math.Vec3

	// Spherical coordinates
	Distance  float32
	RotationX float32 // Pitch (radians)
	RotationY float32 // Yaw (radians)

	// Constraints
	MinDistance float32
	MaxDistance float32
	MinPitch    float32
	MaxPitch    float32

	// Sensitivity
	DragSensitivity float32
	ZoomSensitivity float32

	FovY float32 // Vertical field of view (radians)
}

// NewOrbitCamera creates an orbit camera sized for meshes a few units across.
func NewOrbitCamera() *OrbitCamera {
	return &OrbitCamera{
		Distance:        5.0,
		RotationX:       0.3,
		MinDistance:     0.25,
		MaxDistance:     500.0,
		MinPitch:        -1.5,
		MaxPitch:        1.5,
		DragSensitivity: 0.005,
		ZoomSensitivity: 0.1,
		FovY:            gomath.Pi / 4,
	}
}

// Position returns the camera position in world space.
func (c *OrbitCamera) Position() math.Vec3 {
	pitch, yaw := float64(c.RotationX), float64(c.RotationY)
	offset := math.Vec3{
		X: float32(gomath.Cos(pitch) * gomath.Sin(yaw)),
		Y: float32(gomath.Sin(pitch)),
		Z: float32(gomath.Cos(pitch) * gomath.Cos(yaw)),
	}
	return c.Center.Add(offset.Scale(c.Distance))
}

// ViewMatrix returns the view matrix for this camera.
func (c *OrbitCamera) ViewMatrix() math.Mat4 {
	return math.LookAt(c.Position(), c.Center, math.Vec3{Y: 1})
}

// ProjectionMatrix returns a perspective matrix whose clip planes follow
// the orbit distance.
func (c *OrbitCamera) ProjectionMatrix(aspect float32) math.Mat4 {
	near := max(c.Distance*0.01, 0.01)
	far := c.Distance*10 + 100
	return math.Perspective(c.FovY, aspect, near, far)
}

// HandleDrag updates rotation based on mouse drag delta.
func (c *OrbitCamera) HandleDrag(deltaX, deltaY float32) {
	c.RotationY -= deltaX * c.DragSensitivity
	c.RotationX += deltaY * c.DragSensitivity
	c.RotationX = max(c.MinPitch, min(c.RotationX, c.MaxPitch))
}

// HandleZoom updates distance based on scroll wheel delta.
func (c *OrbitCamera) HandleZoom(delta float32) {
	c.Distance -= delta * c.Distance * c.ZoomSensitivity
	c.Distance = max(c.MinDistance, min(c.Distance, c.MaxDistance))
}

// FitToBounds centers the camera on a box and backs off until the whole
// box fits the vertical field of view.
func (c *OrbitCamera) FitToBounds(b model.Bounds) {
	c.Center = b.Center()

	radius := b.Size().Length() / 2
	if radius <= 0 {
		return
	}
	dist := radius / float32(gomath.Sin(float64(c.FovY)/2))
	c.Distance = max(c.MinDistance, min(dist, c.MaxDistance))
}
