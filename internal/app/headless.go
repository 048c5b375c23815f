package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/stmesh/internal/engine/model"
)

// headlessRate is the tick rate without a display to pace the loop.
const headlessRate = 60

func (a *App) runHeadless(ctx context.Context) error {
	set := model.NewSet(model.BuildOptions{})
	if err := a.start(ctx, set, set.Build); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Second / headlessRate)
	defer ticker.Stop()

	a.log.Info("running headless", zap.Int("rate", headlessRate))

	last := time.Now()
	statsAt := last
	for {
		select {
		case <-ctx.Done():
			a.logStats()
			return nil
		case now := <-ticker.C:
			a.recv.Tick(now.Sub(last).Seconds())
			last = now
			set.Sync()

			if now.Sub(statsAt) >= statsInterval {
				statsAt = now
				a.logStats()
				b := set.Bounds()
				a.log.Debug("pose",
					zap.Float32("root_x", set.Root.X),
					zap.Float32("root_y", set.Root.Y),
					zap.Float32("root_z", set.Root.Z),
					zap.Float32("size_x", b.Size().X),
					zap.Float32("size_y", b.Size().Y),
					zap.Float32("size_z", b.Size().Z))
			}
		}
	}
}
