package camera

import (
	gomath "math"
	"testing"

	"github.com/Faultbox/stmesh/internal/engine/model"
	"github.com/Faultbox/stmesh/pkg/math"
)

func near(a, b float32) bool {
	return gomath.Abs(float64(a-b)) < 1e-4
}

func TestPosition(t *testing.T) {
	c := NewOrbitCamera()
	c.Center = math.Vec3{X: 1, Y: 2, Z: 3}
	c.Distance = 10
	c.RotationX = 0
	c.RotationY = 0

	p := c.Position()
	if !near(p.X, 1) || !near(p.Y, 2) || !near(p.Z, 13) {
		t.Errorf("Position = %+v, want (1, 2, 13)", p)
	}

	c.RotationX = gomath.Pi / 2
	p = c.Position()
	if !near(p.Y, 12) || !near(p.Z, 3) {
		t.Errorf("Position looking down = %+v, want (1, 12, 3)", p)
	}
}

func TestHandleDragClampsPitch(t *testing.T) {
	c := NewOrbitCamera()
	c.HandleDrag(0, 1e6)
	if c.RotationX != c.MaxPitch {
		t.Errorf("pitch = %v, want %v", c.RotationX, c.MaxPitch)
	}
	c.HandleDrag(0, -1e6)
	if c.RotationX != c.MinPitch {
		t.Errorf("pitch = %v, want %v", c.RotationX, c.MinPitch)
	}

	yaw := c.RotationY
	c.HandleDrag(100, 0)
	if !near(c.RotationY, yaw-100*c.DragSensitivity) {
		t.Errorf("yaw = %v", c.RotationY)
	}
}

func TestHandleZoomClampsDistance(t *testing.T) {
	c := NewOrbitCamera()
	for i := 0; i < 200; i++ {
		c.HandleZoom(1)
	}
	if c.Distance != c.MinDistance {
		t.Errorf("distance = %v, want %v", c.Distance, c.MinDistance)
	}
	for i := 0; i < 200; i++ {
		c.HandleZoom(-1)
	}
	if c.Distance != c.MaxDistance {
		t.Errorf("distance = %v, want %v", c.Distance, c.MaxDistance)
	}
}

func TestFitToBounds(t *testing.T) {
	c := NewOrbitCamera()
	c.FitToBounds(model.Bounds{
		Min: math.Vec3{X: -1, Y: 0, Z: -1},
		Max: math.Vec3{X: 1, Y: 2, Z: 1},
	})

	if c.Center != (math.Vec3{X: 0, Y: 1, Z: 0}) {
		t.Errorf("Center = %+v", c.Center)
	}
	radius := math.Vec3{X: 2, Y: 2, Z: 2}.Length() / 2
	want := radius / float32(gomath.Sin(float64(c.FovY)/2))
	if !near(c.Distance, want) {
		t.Errorf("Distance = %v, want %v", c.Distance, want)
	}

	// A point-sized box keeps the current distance.
	c.Distance = 7
	c.FitToBounds(model.Bounds{Min: math.Vec3{X: 4}, Max: math.Vec3{X: 4}})
	if c.Distance != 7 || c.Center != (math.Vec3{X: 4}) {
		t.Errorf("distance %v, center %+v", c.Distance, c.Center)
	}
}

func TestViewMatrixLooksAtCenter(t *testing.T) {
	c := NewOrbitCamera()
	c.Center = math.Vec3{X: 2, Y: 0, Z: 0}
	view := c.ViewMatrix()

	// The center lies on the view axis, Distance units ahead.
	p := view.TransformPoint(c.Center)
	if !near(p.X, 0) || !near(p.Y, 0) || !near(p.Z, -c.Distance) {
		t.Errorf("center in view space = %+v", p)
	}
}
