// Package game implements the viewer's window, main loop and rendering.
package game

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-viewer/internal/assets"
	"github.com/Faultbox/midgard-viewer/internal/config"
	"github.com/Faultbox/midgard-viewer/internal/database"
	"github.com/Faultbox/midgard-viewer/internal/engine/camera"
	"github.com/Faultbox/midgard-viewer/internal/engine/character"
	"github.com/Faultbox/midgard-viewer/internal/engine/input"
	"github.com/Faultbox/midgard-viewer/internal/engine/lighting"
	"github.com/Faultbox/midgard-viewer/internal/engine/renderer"
	"github.com/Faultbox/midgard-viewer/internal/engine/shadow"
	"github.com/Faultbox/midgard-viewer/internal/engine/window"
	"github.com/Faultbox/midgard-viewer/internal/logger"
	"github.com/Faultbox/midgard-viewer/internal/state"
	"github.com/Faultbox/midgard-viewer/internal/viewer"
	"github.com/Faultbox/midgard-viewer/pkg/math"
)

// Title is the window title prefix.
const Title = "Midgard Viewer"

// Game is the viewer application.
type Game struct {
	config   *config.Config
	db       *database.Database
	running  bool
	window   *window.Window
	renderer *renderer.Renderer
	input    *input.Input
	keymap   input.Keymap
	camera   *camera.Camera
	lights   lighting.Lights
	assets   *assets.Manager
	session  *viewer.Session
	log      *zap.Logger

	shownIndex int
	items      []renderer.Item
}

// New creates the window, GL renderer and viewer session.
func New(cfg *config.Config, db *database.Database) (*Game, error) {
	g := &Game{
		config:     cfg,
		db:         db,
		log:        logger.Named("game"),
		shownIndex: -1,
	}

	g.log.Info("initializing viewer",
		zap.Int("width", cfg.Graphics.Width),
		zap.Int("height", cfg.Graphics.Height),
		zap.Int("models", db.Len()),
	)

	var err error
	g.keymap, err = input.ParseKeymap(cfg.Viewer.NextKey, cfg.Viewer.PrevKey, cfg.Viewer.RetryKey)
	if err != nil {
		return nil, fmt.Errorf("parsing key bindings: %w", err)
	}

	g.window, err = window.New(window.Config{
		Title:      Title,
		Width:      cfg.Graphics.Width,
		Height:     cfg.Graphics.Height,
		Fullscreen: cfg.Graphics.Fullscreen,
		VSync:      cfg.Graphics.VSync,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	// Renderer needs the GL context created by the window.
	fbWidth, fbHeight := g.window.DrawableSize()
	sc := cfg.Scene
	g.renderer, err = renderer.New(renderer.Config{
		Width:       fbWidth,
		Height:      fbHeight,
		Background:  sc.Background,
		GroundSize:  sc.GroundSize,
		GroundColor: sc.GroundColor,
		ModelColor:  sc.ModelColor,

		Shadows:    sc.Shadow.Enabled,
		ShadowSize: int32(sc.Shadow.Size),
		ShadowFrustum: shadow.Frustum{
			HalfExtent: sc.Shadow.HalfExtent,
			Near:       sc.Shadow.Near,
			Far:        sc.Shadow.Far,
		},
		ShadowBias:    sc.Shadow.Bias,
		LightPosition: sc.LightPosition,
	})
	if err != nil {
		g.window.Close()
		return nil, fmt.Errorf("failed to create renderer: %w", err)
	}

	g.camera = camera.New(vec3(sc.CameraPosition), vec3(sc.CameraTarget), sc.FOV, sc.Near, sc.Far)
	g.camera.SetAspect(fbWidth, fbHeight)
	g.lights = lighting.NewLights(sc.AmbientColor, sc.LightColor, sc.LightIntensity, sc.LightPosition)

	g.input = input.New()
	g.assets = assets.NewManager(cfg.Data.AssetRoot, cfg.Data.AssetExt, cfg.Data.CacheLimit)

	w := cfg.Viewer.Wander
	g.session = viewer.NewSession(
		db,
		viewer.NewAssetLoader(g.assets),
		NewMeshBuilder(g.renderer),
		state.NewStore(cfg.StatePath()),
		viewer.Config{
			Wander: character.WanderConfig{
				Delay:           w.Delay,
				HalfExtent:      w.HalfExtent,
				MinDistance:     w.MinDistance,
				AgitationChance: w.AgitationChance,
			},
			Seed: cfg.Viewer.Seed,
		},
	)

	g.log.Info("viewer initialized")
	return g, nil
}

// Run starts the main loop. It returns when the window is closed or
// the quit key is pressed.
func (g *Game) Run() error {
	g.running = true
	g.session.Start()

	lastTime := time.Now()
	frameCount := 0
	fpsTimer := time.Now()

	g.log.Info("starting main loop")

	for g.running {
		now := time.Now()
		dt := now.Sub(lastTime).Seconds()
		lastTime = now

		if g.input.Update() {
			g.running = false
			break
		}
		g.handleEvents()

		if err := g.session.Update(dt); err != nil {
			g.log.Error("model load failed", zap.Error(err))
		}
		g.updateTitle()

		g.render()
		g.window.SwapBuffers()

		frameCount++
		if time.Since(fpsTimer) >= time.Second {
			g.log.Debug("fps", zap.Int("count", frameCount), zap.Float64("dt_ms", dt*1000))
			frameCount = 0
			fpsTimer = time.Now()
		}
	}

	return nil
}

// Close cleans up viewer resources.
func (g *Game) Close() {
	g.log.Info("closing viewer")

	// Characters own GL buffers, so they go before the renderer.
	if g.session != nil {
		g.session.Close()
	}
	if g.assets != nil {
		hits, misses := g.assets.Stats()
		g.log.Debug("asset cache", zap.Int("hits", hits), zap.Int("misses", misses))
		g.assets.Close()
	}
	if g.renderer != nil {
		g.renderer.Close()
	}
	if g.window != nil {
		g.window.Close()
	}
}

func (g *Game) handleEvents() {
	events := g.input.Events()
	for _, e := range events {
		if e.Type == input.EventWindowResize {
			w, h := g.window.DrawableSize()
			g.renderer.Resize(w, h)
			g.camera.SetAspect(w, h)
		}
	}

	for _, cmd := range g.keymap.Commands(events) {
		accepted := true
		switch cmd {
		case input.CommandQuit:
			g.running = false
			return
		case input.CommandNext:
			accepted = g.session.Next()
		case input.CommandPrev:
			accepted = g.session.Prev()
		case input.CommandRetry:
			accepted = g.session.Retry()
		}
		if !accepted {
			g.log.Debug("navigation ignored while loading", zap.Stringer("command", cmd))
		}
	}
}

func (g *Game) updateTitle() {
	c := g.session.Carousel()
	if c.Index() == g.shownIndex {
		return
	}
	g.shownIndex = c.Index()
	desc := g.db.Models[g.shownIndex]
	g.window.SetTitle(fmt.Sprintf("%s - %s (%d/%d)", Title, desc.Name, g.shownIndex+1, g.db.Len()))
}

func (g *Game) render() {
	g.items = g.items[:0]
	for _, c := range g.session.Stage().Characters() {
		mesh, ok := c.Visual().(*renderer.Mesh)
		if !ok {
			continue
		}
		g.items = append(g.items, renderer.Item{Mesh: mesh, Model: c.Transform(), Joints: c.Mixer().Palette()})
	}
	g.renderer.Render(g.camera, g.lights, g.items)
}

func vec3(v [3]float32) math.Vec3 {
	return math.Vec3{X: v[0], Y: v[1], Z: v[2]}
}
