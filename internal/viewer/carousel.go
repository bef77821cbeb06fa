package viewer

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-viewer/internal/database"
	"github.com/Faultbox/midgard-viewer/internal/engine/character"
	"github.com/Faultbox/midgard-viewer/internal/logger"
	"github.com/Faultbox/midgard-viewer/pkg/formats"
)

// Slot positions in the preload window.
const (
	SlotPrev = iota
	SlotCurrent
	SlotNext
	slotCount
)

// LoadError reports a model that could not be loaded or built.
type LoadError struct {
	Name  string
	Index int
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading model %s (#%d): %v", e.Name, e.Index, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Armer starts the idle/wander cycle on a newly shown character.
type Armer interface {
	Arm(c *character.Character)
}

type loadResult struct {
	glb *formats.GLB
	err error
}

type pendingLoad struct {
	desc   database.Descriptor
	index  int
	cancel context.CancelFunc
	done   chan loadResult
}

type slot struct {
	char    *character.Character
	pending *pendingLoad
}

// Carousel keeps the shown model plus its neighbours loaded, so stepping
// forward or back shows an already decoded model. Fetching and decoding run
// in goroutines; everything else happens on the caller's goroutine.
type Carousel struct {
	db      *database.Database
	loader  Loader
	builder Builder
	store   IndexStore
	stage   *Stage
	armer   Armer
	log     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	slots  [slotCount]slot
	index  int
	busy   bool
	closed bool
}

// NewCarousel creates a carousel starting at the stored index. Nothing is
// loaded until the first Navigate.
func NewCarousel(db *database.Database, loader Loader, builder Builder, store IndexStore, stage *Stage, armer Armer) *Carousel {
	ctx, cancel := context.WithCancel(context.Background())
	return &Carousel{
		db:      db,
		loader:  loader,
		builder: builder,
		store:   store,
		stage:   stage,
		armer:   armer,
		log:     logger.Named("carousel"),
		ctx:     ctx,
		cancel:  cancel,
		index:   db.Wrap(store.Load()),
	}
}

// Navigate steps the window by dir (-1, 0 or +1) and shows the new current
// model. It returns false without changing anything while a previous
// navigation is still loading.
func (c *Carousel) Navigate(dir int) bool {
	if dir < -1 || dir > 1 || c.busy || c.closed {
		return false
	}
	if c.db.Len() == 1 {
		dir = 0
	}
	c.busy = true

	if cur := c.slots[SlotCurrent].char; cur != nil {
		cur.Detach()
	}

	c.index = c.db.Wrap(c.index + dir)
	if err := c.store.Save(c.index); err != nil {
		c.log.Warn("saving navigation state", zap.Int("index", c.index), zap.Error(err))
	}

	switch dir {
	case 1:
		c.clear(SlotPrev)
		c.slots[SlotPrev] = c.slots[SlotCurrent]
		c.slots[SlotCurrent] = c.slots[SlotNext]
		c.slots[SlotNext] = slot{}
		c.startLoad(SlotNext, c.index+1)
	case -1:
		c.clear(SlotNext)
		c.slots[SlotNext] = c.slots[SlotCurrent]
		c.slots[SlotCurrent] = c.slots[SlotPrev]
		c.slots[SlotPrev] = slot{}
		c.startLoad(SlotPrev, c.index-1)
	}

	cur := &c.slots[SlotCurrent]
	switch {
	case cur.char != nil:
		c.show(cur.char)
	case cur.pending == nil:
		c.startLoad(SlotCurrent, c.index)
	}

	c.log.Debug("navigate",
		zap.Int("dir", dir),
		zap.Int("index", c.index),
		zap.String("model", c.db.Models[c.index].Name))

	c.busy = c.loading()
	return true
}

// Update applies finished loads. Call it once per frame from the goroutine
// that owns the GL context. The returned error combines every load that
// failed since the last call.
func (c *Carousel) Update() error {
	var errs error
	for i := range c.slots {
		p := c.slots[i].pending
		if p == nil {
			continue
		}

		var res loadResult
		select {
		case res = <-p.done:
		default:
			continue
		}
		c.slots[i].pending = nil
		p.cancel()

		if res.err == nil {
			var ch *character.Character
			ch, res.err = c.builder.Build(p.desc, res.glb)
			if res.err == nil {
				c.slots[i].char = ch
				c.log.Debug("model ready", zap.String("model", p.desc.Name), zap.Int("slot", i))
				if i == SlotCurrent {
					c.show(ch)
				}
				continue
			}
		}
		errs = multierr.Append(errs, &LoadError{Name: p.desc.Name, Index: p.index, Err: res.err})
	}

	c.busy = c.loading()
	return errs
}

// Close cancels in-flight loads and disposes every slot.
func (c *Carousel) Close() {
	c.cancel()
	for i := range c.slots {
		c.clear(i)
	}
	c.closed = true
	c.busy = false
}

// Index returns the current position in the database.
func (c *Carousel) Index() int {
	return c.index
}

// Busy reports whether a navigation is still loading.
func (c *Carousel) Busy() bool {
	return c.busy
}

// Current returns the shown character, or nil.
func (c *Carousel) Current() *character.Character {
	return c.slots[SlotCurrent].char
}

// Slot returns the character held at position i, or nil.
func (c *Carousel) Slot(i int) *character.Character {
	if i < 0 || i >= slotCount {
		return nil
	}
	return c.slots[i].char
}

// Loading reports whether position i has a load in flight.
func (c *Carousel) Loading(i int) bool {
	return i >= 0 && i < slotCount && c.slots[i].pending != nil
}

func (c *Carousel) loading() bool {
	for i := range c.slots {
		if c.slots[i].pending != nil {
			return true
		}
	}
	return false
}

func (c *Carousel) startLoad(i, index int) {
	index = c.db.Wrap(index)
	desc := c.db.Models[index]

	ctx, cancel := context.WithCancel(c.ctx)
	p := &pendingLoad{
		desc:   desc,
		index:  index,
		cancel: cancel,
		done:   make(chan loadResult, 1),
	}
	c.slots[i].pending = p

	go func() {
		glb, err := c.loader.Load(ctx, desc)
		p.done <- loadResult{glb: glb, err: err}
	}()
}

// clear disposes the character at position i and abandons its load.
func (c *Carousel) clear(i int) {
	s := &c.slots[i]
	if s.pending != nil {
		s.pending.cancel()
		s.pending = nil
	}
	if s.char != nil {
		s.char.Dispose()
		s.char = nil
	}
}

func (c *Carousel) show(ch *character.Character) {
	ch.Play(character.RoleIdle)
	ch.Attach(c.stage)
	if c.armer != nil {
		c.armer.Arm(ch)
	}
}
