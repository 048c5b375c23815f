// Package renderer draws streamed meshes with OpenGL.
package renderer

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/stmesh/internal/engine/camera"
	"github.com/Faultbox/stmesh/internal/engine/debug"
	"github.com/Faultbox/stmesh/internal/engine/model"
	"github.com/Faultbox/stmesh/internal/engine/shader"
	"github.com/Faultbox/stmesh/internal/logger"
	"github.com/Faultbox/stmesh/pkg/formats"
	"github.com/Faultbox/stmesh/pkg/math"
)

const vertexShader = `
#version 410 core

layout (location = 0) in vec3 aPos;
layout (location = 1) in vec3 aNormal;

uniform mat4 uModel;
uniform mat4 uView;
uniform mat4 uProjection;

out vec3 vNormal;

void main() {
	vNormal = aNormal;
	gl_Position = uProjection * uView * uModel * vec4(aPos, 1.0);
}
`

const fragmentShader = `
#version 410 core

in vec3 vNormal;

uniform vec3 uColor;
uniform vec3 uLightDir;

out vec4 FragColor;

void main() {
	vec3 n = normalize(vNormal);
	float diffuse = max(dot(n, -uLightDir), 0.0);
	float back = max(dot(-n, -uLightDir), 0.0) * 0.3;
	FragColor = vec4(uColor * (0.25 + 0.75 * max(diffuse, back)), 1.0);
}
`

const lineVertexShader = `
#version 410 core

layout (location = 0) in vec3 aPos;

uniform mat4 uView;
uniform mat4 uProjection;

void main() {
	gl_Position = uProjection * uView * vec4(aPos, 1.0);
}
`

const lineFragmentShader = `
#version 410 core

uniform vec3 uColor;

out vec4 FragColor;

void main() {
	FragColor = vec4(uColor, 1.0);
}
`

// palette colors submeshes by index.
var palette = []math.Vec3{
	{X: 0.80, Y: 0.72, Z: 0.62},
	{X: 0.55, Y: 0.65, Z: 0.85},
	{X: 0.60, Y: 0.80, Z: 0.55},
	{X: 0.85, Y: 0.55, Z: 0.55},
	{X: 0.75, Y: 0.60, Z: 0.85},
}

// Config holds renderer configuration.
type Config struct {
	Width      int
	Height     int
	Wireframe  bool
	WeldSeams  bool
	ShowBounds bool
}

type gpuMesh struct {
	vao, vbo, ebo uint32
}

// Renderer draws the mesh set. It implements playback.Sink by forwarding
// to its model.Set; uploads happen in Draw on the GL thread.
type Renderer struct {
	config  Config
	program *shader.Program
	lines   *shader.Program
	set     *model.Set
	gpu     []gpuMesh
	log     *zap.Logger

	boundsVAO uint32
	boundsVBO uint32
}

// New creates a renderer.
// IMPORTANT: Must be called AFTER OpenGL context is created!
func New(cfg Config) (*Renderer, error) {
	r := &Renderer{
		config: cfg,
		set:    model.NewSet(model.BuildOptions{WeldSeams: cfg.WeldSeams}),
		log:    logger.Named("renderer"),
	}

	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}

	r.log.Info("OpenGL initialized",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
	)

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	gl.Enable(gl.MULTISAMPLE)
	gl.ClearColor(0.1, 0.1, 0.15, 1.0)

	var err error
	r.program, err = shader.NewProgram(vertexShader, fragmentShader)
	if err != nil {
		return nil, fmt.Errorf("failed to create shader program: %w", err)
	}
	r.lines, err = shader.NewProgram(lineVertexShader, lineFragmentShader)
	if err != nil {
		r.program.Delete()
		return nil, fmt.Errorf("failed to create line program: %w", err)
	}
	r.createBoundsBuffer()

	r.Resize(cfg.Width, cfg.Height)
	return r, nil
}

// Close cleans up renderer resources.
func (r *Renderer) Close() {
	r.log.Info("closing renderer")
	r.release()
	if r.boundsVAO != 0 {
		gl.DeleteVertexArrays(1, &r.boundsVAO)
	}
	if r.boundsVBO != 0 {
		gl.DeleteBuffers(1, &r.boundsVBO)
	}
	if r.program != nil {
		r.program.Delete()
	}
	if r.lines != nil {
		r.lines.Delete()
	}
}

// Set returns the CPU-side meshes.
func (r *Renderer) Set() *model.Set {
	return r.set
}

// Load replaces the meshes and allocates GPU buffers for them.
func (r *Renderer) Load(infos []*formats.MeshInfo) {
	r.release()
	r.set.Build(infos)

	r.gpu = make([]gpuMesh, len(r.set.Meshes))
	for i, m := range r.set.Meshes {
		r.gpu[i] = upload(m)
	}
	r.log.Info("meshes loaded", zap.Int("count", len(infos)))
}

// UpdatePose implements playback.Sink.
func (r *Renderer) UpdatePose(meshes [][]math.Vec3) {
	r.set.UpdatePose(meshes)
}

// UpdateRoot implements playback.Sink.
func (r *Renderer) UpdateRoot(root math.Vec3) {
	r.set.UpdateRoot(root)
}

// NormalsDirty implements playback.Sink.
func (r *Renderer) NormalsDirty(meshes [][]math.Vec3, root math.Vec3) {
	r.set.NormalsDirty(meshes, root)
}

// SetWireframe toggles line rendering.
func (r *Renderer) SetWireframe(on bool) {
	r.config.Wireframe = on
}

// Wireframe reports whether line rendering is on.
func (r *Renderer) Wireframe() bool {
	return r.config.Wireframe
}

// SetShowBounds toggles the bounding box overlay.
func (r *Renderer) SetShowBounds(on bool) {
	r.config.ShowBounds = on
}

// ShowBounds reports whether the bounding box overlay is on.
func (r *Renderer) ShowBounds() bool {
	return r.config.ShowBounds
}

// Capture reads the back buffer as bottom-up RGBA pixels.
func (r *Renderer) Capture() ([]byte, int, int) {
	w, h := r.config.Width, r.config.Height
	pixels := make([]byte, w*h*4)
	if len(pixels) == 0 {
		return pixels, w, h
	}
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.ReadPixels(0, 0, int32(w), int32(h), gl.RGBA, gl.UNSIGNED_BYTE, unsafe.Pointer(&pixels[0]))
	return pixels, w, h
}

// Resize handles window resize.
func (r *Renderer) Resize(width, height int) {
	r.config.Width = width
	r.config.Height = height
	gl.Viewport(0, 0, int32(width), int32(height))
	r.log.Debug("renderer resized",
		zap.Int("width", width),
		zap.Int("height", height),
	)
}

// Draw uploads pending vertex data and draws the set from the camera.
func (r *Renderer) Draw(cam *camera.OrbitCamera) {
	if r.set.Sync() {
		for i, m := range r.set.Meshes {
			if len(m.Vertices) == 0 {
				continue
			}
			gl.BindBuffer(gl.ARRAY_BUFFER, r.gpu[i].vbo)
			gl.BufferSubData(gl.ARRAY_BUFFER, 0, len(m.Vertices)*model.VertexStride, unsafe.Pointer(&m.Vertices[0]))
		}
		gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	}

	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)

	if r.config.Wireframe {
		gl.PolygonMode(gl.FRONT_AND_BACK, gl.LINE)
	} else {
		gl.PolygonMode(gl.FRONT_AND_BACK, gl.FILL)
	}

	aspect := float32(r.config.Width) / float32(max(r.config.Height, 1))
	view := cam.ViewMatrix()
	proj := cam.ProjectionMatrix(aspect)

	r.program.Use()
	r.program.SetMat4("uModel", math.Translate(r.set.Root))
	r.program.SetMat4("uView", view)
	r.program.SetMat4("uProjection", proj)
	r.program.SetVec3("uLightDir", math.Vec3{X: -0.4, Y: -1, Z: -0.6}.Normalize())

	for i, m := range r.set.Meshes {
		gl.BindVertexArray(r.gpu[i].vao)
		for j, sub := range m.SubMeshes {
			if sub.IndexCount == 0 {
				continue
			}
			r.program.SetVec3("uColor", palette[(i+j)%len(palette)])
			gl.DrawElementsWithOffset(gl.TRIANGLES, sub.IndexCount, gl.UNSIGNED_INT, uintptr(sub.StartIndex*4))
		}
	}

	if r.config.ShowBounds && len(r.set.Meshes) > 0 {
		r.drawBounds(view, proj)
	}
	gl.BindVertexArray(0)
}

func (r *Renderer) createBoundsBuffer() {
	gl.GenVertexArrays(1, &r.boundsVAO)
	gl.BindVertexArray(r.boundsVAO)

	gl.GenBuffers(1, &r.boundsVBO)
	gl.BindBuffer(gl.ARRAY_BUFFER, r.boundsVBO)
	gl.BufferData(gl.ARRAY_BUFFER, debug.BoundsLineVertexCount*3*4, nil, gl.DYNAMIC_DRAW)

	gl.VertexAttribPointerWithOffset(0, 3, gl.FLOAT, false, 3*4, 0)
	gl.EnableVertexAttribArray(0)

	gl.BindVertexArray(0)
}

func (r *Renderer) drawBounds(view, proj math.Mat4) {
	lines := debug.BoundsLines(r.set.Bounds(), 0.01)

	gl.BindBuffer(gl.ARRAY_BUFFER, r.boundsVBO)
	gl.BufferSubData(gl.ARRAY_BUFFER, 0, len(lines)*4, unsafe.Pointer(&lines[0]))
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)

	r.lines.Use()
	r.lines.SetMat4("uView", view)
	r.lines.SetMat4("uProjection", proj)
	r.lines.SetVec3("uColor", math.Vec3{X: 1, Y: 0.85, Z: 0.2})

	gl.BindVertexArray(r.boundsVAO)
	gl.DrawArrays(gl.LINES, 0, debug.BoundsLineVertexCount)
}

func upload(m *model.StreamMesh) gpuMesh {
	var g gpuMesh

	gl.GenVertexArrays(1, &g.vao)
	gl.BindVertexArray(g.vao)

	gl.GenBuffers(1, &g.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, g.vbo)
	if len(m.Vertices) > 0 {
		gl.BufferData(gl.ARRAY_BUFFER, len(m.Vertices)*model.VertexStride, unsafe.Pointer(&m.Vertices[0]), gl.DYNAMIC_DRAW)
	}

	gl.GenBuffers(1, &g.ebo)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, g.ebo)
	if len(m.Indices) > 0 {
		gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(m.Indices)*4, unsafe.Pointer(&m.Indices[0]), gl.STATIC_DRAW)
	}

	// Position (location = 0)
	gl.VertexAttribPointerWithOffset(0, 3, gl.FLOAT, false, model.VertexStride, 0)
	gl.EnableVertexAttribArray(0)

	// Normal (location = 1)
	gl.VertexAttribPointerWithOffset(1, 3, gl.FLOAT, false, model.VertexStride, 3*4)
	gl.EnableVertexAttribArray(1)

	gl.BindVertexArray(0)
	return g
}

func (r *Renderer) release() {
	for _, g := range r.gpu {
		gl.DeleteVertexArrays(1, &g.vao)
		gl.DeleteBuffers(1, &g.vbo)
		gl.DeleteBuffers(1, &g.ebo)
	}
	r.gpu = nil
}
