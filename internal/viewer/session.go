package viewer

import (
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-viewer/internal/database"
	"github.com/Faultbox/midgard-viewer/internal/engine/character"
	"github.com/Faultbox/midgard-viewer/internal/engine/timer"
	"github.com/Faultbox/midgard-viewer/internal/logger"
)

// Config holds session settings.
type Config struct {
	Wander character.WanderConfig
	Seed   uint64 // 0 picks a time based seed
}

// Session is the viewer state: what is shown, the simulation clock and navigation.
type Session struct {
	stage    *Stage
	sched    *timer.Scheduler
	wanderer *character.Wanderer
	carousel *Carousel
}

// NewSession wires a stage, scheduler, wanderer and carousel together.
func NewSession(db *database.Database, loader Loader, builder Builder, store IndexStore, cfg Config) *Session {
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	logger.Debug("session seed", zap.Uint64("seed", seed))

	s := &Session{
		stage: NewStage(),
		sched: timer.NewScheduler(),
	}
	s.wanderer = character.NewWanderer(cfg.Wander, s.sched, rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
	s.carousel = NewCarousel(db, loader, builder, store, s.stage, s.wanderer)
	return s
}

// Start shows the model at the stored index.
func (s *Session) Start() bool {
	return s.carousel.Navigate(0)
}

// Next shows the following model.
func (s *Session) Next() bool {
	return s.carousel.Navigate(1)
}

// Prev shows the preceding model.
func (s *Session) Prev() bool {
	return s.carousel.Navigate(-1)
}

// Retry re-shows the current index, loading it again if it failed.
func (s *Session) Retry() bool {
	return s.carousel.Navigate(0)
}

// Update runs one frame: apply finished loads, fire due timers, then
// advance every shown character by dt seconds.
func (s *Session) Update(dt float64) error {
	err := s.carousel.Update()
	s.sched.Advance(time.Duration(dt * float64(time.Second)))
	s.stage.Tick(dt)
	return err
}

// Stage returns the shown set.
func (s *Session) Stage() *Stage {
	return s.stage
}

// Carousel returns the preload window.
func (s *Session) Carousel() *Carousel {
	return s.carousel
}

// Close disposes all characters and drops pending timers.
func (s *Session) Close() {
	s.carousel.Close()
	s.sched.Clear()
}
