package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/stmesh/internal/engine/camera"
	"github.com/Faultbox/stmesh/internal/engine/debug"
	"github.com/Faultbox/stmesh/internal/engine/input"
	"github.com/Faultbox/stmesh/internal/engine/renderer"
	"github.com/Faultbox/stmesh/internal/engine/window"
	"github.com/Faultbox/stmesh/pkg/formats"
)

func (a *App) runViewer(ctx context.Context) error {
	g := a.cfg.Graphics

	win, err := window.New(window.Config{
		Title:      "stmplayer - " + a.rcfg.ChannelURL(),
		Width:      g.Width,
		Height:     g.Height,
		Fullscreen: g.Fullscreen,
		VSync:      g.VSync,
	})
	if err != nil {
		return fmt.Errorf("failed to create window: %w", err)
	}
	defer win.Close()

	// Renderer must be created after the GL context exists
	width, height := win.DrawableSize()
	rend, err := renderer.New(renderer.Config{
		Width:      width,
		Height:     height,
		Wireframe:  g.Wireframe,
		WeldSeams:  true,
		ShowBounds: g.ShowBounds,
	})
	if err != nil {
		return fmt.Errorf("failed to create renderer: %w", err)
	}
	defer rend.Close()

	shots := debug.NewScreenshots(g.ScreenshotDir, "stm")
	cam := camera.NewOrbitCamera()
	fitted := false
	onReady := func(meshes []*formats.MeshInfo) {
		rend.Load(meshes)
		fitted = false
	}
	if err := a.start(ctx, rend, onReady); err != nil {
		return err
	}

	in := input.New(input.DefaultBindings())
	last := time.Now()
	statsAt := last
	shown := ""
	captureNext := false

	a.log.Info("starting viewer loop")

	for ctx.Err() == nil {
		now := time.Now()
		dt := now.Sub(last).Seconds()
		last = now

		frame := in.Update()
		if frame.Quit {
			break
		}
		if frame.Resized {
			rend.Resize(win.DrawableSize())
		}
		for _, action := range frame.Actions {
			switch action {
			case input.ActionTogglePause:
				p := a.recv.Player()
				p.SetPaused(!p.Paused())
			case input.ActionSeekStart:
				a.seek(0, true)
			case input.ActionSeekBack:
				a.seek(-1, false)
			case input.ActionSeekForward:
				a.seek(1, false)
			case input.ActionToggleWireframe:
				rend.SetWireframe(!rend.Wireframe())
			case input.ActionFitCamera:
				cam.FitToBounds(rend.Set().Bounds())
			case input.ActionToggleBounds:
				rend.SetShowBounds(!rend.ShowBounds())
			case input.ActionScreenshot:
				captureNext = true
			}
		}
		if frame.DragX != 0 || frame.DragY != 0 {
			cam.HandleDrag(frame.DragX, frame.DragY)
		}
		if frame.Zoom != 0 {
			cam.HandleZoom(frame.Zoom)
		}

		a.recv.Tick(dt)
		rend.Draw(cam)
		if captureNext {
			captureNext = false
			a.screenshot(rend, shots)
		}
		win.SwapBuffers()

		// Frame the mesh once its first keyframe has produced bounds
		if !fitted {
			if _, rebuilds := rend.Set().Counters(); rebuilds > 0 {
				cam.FitToBounds(rend.Set().Bounds())
				fitted = true
			}
		}

		if now.Sub(statsAt) >= statsInterval {
			statsAt = now
			a.logStats()
		}
		s := a.recv.Stats().Player
		if title := fmt.Sprintf("%s [%s] frame %d/%d", win.Title(), s.State, s.Cursor, s.Buffered); title != shown {
			win.SetTitle(title)
			shown = title
		}
	}

	a.log.Info("viewer closed", zap.Error(ctx.Err()))
	return nil
}

// screenshot saves the frame just drawn, named after the stream frame.
func (a *App) screenshot(rend *renderer.Renderer, shots *debug.Screenshots) {
	pixels, w, h := rend.Capture()
	name, err := shots.Save(pixels, w, h, a.recv.Stats().Player.Cursor)
	if err != nil {
		a.log.Warn("screenshot failed", zap.Error(err))
		return
	}
	a.log.Info("screenshot saved", zap.String("file", name))
}
