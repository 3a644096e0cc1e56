package world

import (
	"time"

	"clawverse.ai/internal/sim/tuning"
)

type WorldConfig struct {
	ID                 string
	TickRateHz         int
	DecisionEveryTicks int

	Width        float64
	Height       float64
	AgentSpeed   float64
	NearbyRadius float64
	NearbyMax    int

	// DecisionTimeout bounds a single Decide call.
	DecisionTimeout time.Duration
	// StoreTimeout bounds the wiki calls a READ or WRITE decision makes.
	StoreTimeout time.Duration

	// Seed drives spawn positions and default colors. Zero picks a random seed.
	Seed uint64
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "town"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 30
	}
	if c.DecisionEveryTicks <= 0 {
		c.DecisionEveryTicks = 150
	}
	if c.Width <= 0 {
		c.Width = 800
	}
	if c.Height <= 0 {
		c.Height = 600
	}
	if c.AgentSpeed <= 0 {
		c.AgentSpeed = 2
	}
	if c.NearbyRadius <= 0 {
		c.NearbyRadius = 200
	}
	if c.NearbyMax <= 0 {
		c.NearbyMax = 8
	}
	if c.DecisionTimeout <= 0 {
		c.DecisionTimeout = 20 * time.Second
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 2 * time.Second
	}
}

func ConfigFromTuning(t tuning.Tuning) WorldConfig {
	return WorldConfig{
		TickRateHz:         t.TickRateHz,
		DecisionEveryTicks: t.DecisionEveryTicks,
		Width:              t.World.Width,
		Height:             t.World.Height,
		AgentSpeed:         t.World.AgentSpeed,
		NearbyRadius:       t.World.NearbyRadius,
		NearbyMax:          t.World.NearbyMax,
		DecisionTimeout:    t.Mind.DecisionTimeout,
	}
}
