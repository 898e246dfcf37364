package sizing

import (
	"sync"

	"github.com/shopspring/decimal"
	"github.com/tradingcore/riskcore/internal/broker"
)

// CorrelationManager enforces sector/group/single-name exposure ceilings
// (spec.md §4.6). Symbol->sector and the named correlation groups are
// treated as read-mostly configuration.
type CorrelationManager struct {
	mu sync.RWMutex

	sectorOf map[string]string // symbol -> sector, "UNKNOWN" if absent
	groups   map[string][]string // group name -> member symbols

	maxSectorExposurePct      decimal.Decimal
	maxUnknownSectorExposurePct decimal.Decimal
	maxGroupExposurePct       decimal.Decimal
	maxSingleNamePct          decimal.Decimal
	maxPositionsPerSector     int
}

type CorrelationConfig struct {
	SectorOf                    map[string]string
	Groups                      map[string][]string
	MaxSectorExposurePct        decimal.Decimal
	MaxUnknownSectorExposurePct decimal.Decimal
	MaxGroupExposurePct         decimal.Decimal
	MaxSingleNamePct            decimal.Decimal
	MaxPositionsPerSector       int
}

func NewCorrelationManager(cfg CorrelationConfig) *CorrelationManager {
	sectorOf := cfg.SectorOf
	if sectorOf == nil {
		sectorOf = map[string]string{}
	}
	groups := cfg.Groups
	if groups == nil {
		groups = map[string][]string{}
	}
	return &CorrelationManager{
		sectorOf:                    sectorOf,
		groups:                      groups,
		maxSectorExposurePct:        cfg.MaxSectorExposurePct,
		maxUnknownSectorExposurePct: cfg.MaxUnknownSectorExposurePct,
		maxGroupExposurePct:         cfg.MaxGroupExposurePct,
		maxSingleNamePct:            cfg.MaxSingleNamePct,
		maxPositionsPerSector:       cfg.MaxPositionsPerSector,
	}
}

func (c *CorrelationManager) sectorFor(symbol string) string {
	if s, ok := c.sectorOf[symbol]; ok && s != "" {
		return s
	}
	return "UNKNOWN"
}

func (c *CorrelationManager) groupsFor(symbol string) []string {
	var out []string
	for name, members := range c.groups {
		for _, m := range members {
			if m == symbol {
				out = append(out, name)
				break
			}
		}
	}
	return out
}

// Headroom is the remaining notional capacity along the axis with the least
// room (spec.md: "the most restrictive headroom").
type Headroom struct {
	SingleName decimal.Decimal
	Sector     decimal.Decimal
	Groups     map[string]decimal.Decimal
}

// MaxPositionSize returns the minimum headroom across single-name, sector,
// and every applicable correlation group, given current positions and
// account equity. Zero equity or a saturated sector-position-count ceiling
// yields zero headroom on every axis.
func (c *CorrelationManager) MaxPositionSize(symbol string, positions []broker.Position, accountEquity decimal.Decimal) decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !accountEquity.IsPositive() {
		return decimal.Zero
	}

	sector := c.sectorFor(symbol)
	sectorExposure := decimal.Zero
	sectorSymbols := map[string]bool{}
	var existingSingle decimal.Decimal
	groupExposure := map[string]decimal.Decimal{}

	for _, pos := range positions {
		mv := pos.MarketValue()
		if c.sectorFor(pos.Symbol) == sector {
			sectorExposure = sectorExposure.Add(mv)
			sectorSymbols[pos.Symbol] = true
		}
		if pos.Symbol == symbol {
			existingSingle = existingSingle.Add(mv)
		}
		for _, g := range c.groupsFor(pos.Symbol) {
			groupExposure[g] = groupExposure[g].Add(mv)
		}
	}

	sectorLimit := c.maxSectorExposurePct
	if sector == "UNKNOWN" && !c.maxUnknownSectorExposurePct.IsZero() {
		sectorLimit = c.maxUnknownSectorExposurePct
	}

	headroomFor := func(limitPct, used decimal.Decimal) decimal.Decimal {
		if limitPct.IsZero() {
			return decimal.NewFromInt(1 << 30)
		}
		capNotional := limitPct.Mul(accountEquity)
		rem := capNotional.Sub(used)
		if rem.IsNegative() {
			return decimal.Zero
		}
		return rem
	}

	single := headroomFor(c.maxSingleNamePct, existingSingle)

	if c.maxPositionsPerSector > 0 && !sectorSymbols[symbol] && len(sectorSymbols) >= c.maxPositionsPerSector {
		return decimal.Zero
	}

	minHeadroom := headroomFor(sectorLimit, sectorExposure)
	if single.LessThan(minHeadroom) {
		minHeadroom = single
	}

	for _, g := range c.groupsFor(symbol) {
		gh := headroomFor(c.maxGroupExposurePct, groupExposure[g])
		if gh.LessThan(minHeadroom) {
			minHeadroom = gh
		}
	}

	if minHeadroom.IsNegative() {
		return decimal.Zero
	}
	return minHeadroom
}
