package quota

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var ErrPriceNotInCatalog = errors.New("price ID not found in catalog")

// Catalog maps provider price IDs to tiers. It is the sole source of truth
// for tier derivation; the free-text price name is a legacy fallback only.
type Catalog struct {
	mu        sync.RWMutex
	tierByID  map[string]Tier
	idByTier  map[Tier]string
}

// DefaultCatalog returns the built-in price catalog for the production Paddle
// prices.
func DefaultCatalog() *Catalog {
	c := &Catalog{}
	c.replace(map[string]Tier{
		"pri_01jxex2h6wh3kscwdavj21mhvw": TierBasic,
		"pri_01jxex45tsw9y44b0b6j12xj7z": TierPro,
		"pri_01jxex69z43bmy5k0a6ycppnj6": TierPremium,
	})
	return c
}

// LoadCatalog reads a price catalog from a YAML file mapping price IDs to
// tier names:
//
//	prices:
//	  pri_abc123: basic
//	  pri_def456: pro
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read price catalog: %w", err)
	}

	var doc struct {
		Prices map[string]string `yaml:"prices"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse price catalog: %w", err)
	}
	if len(doc.Prices) == 0 {
		return nil, errors.New("price catalog is empty")
	}

	entries := make(map[string]Tier, len(doc.Prices))
	for priceID, tierName := range doc.Prices {
		tier := Tier(strings.ToLower(tierName))
		if !KnownTier(tier) {
			return nil, fmt.Errorf("price catalog maps %s to unknown tier %q", priceID, tierName)
		}
		entries[priceID] = tier
	}

	c := &Catalog{}
	c.replace(entries)
	return c, nil
}

func (c *Catalog) replace(entries map[string]Tier) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tierByID = make(map[string]Tier, len(entries))
	c.idByTier = make(map[Tier]string, len(entries))
	for id, tier := range entries {
		c.tierByID[id] = tier
		c.idByTier[tier] = id
	}
}

// TierForPrice resolves a price ID to its tier.
func (c *Catalog) TierForPrice(priceID string) (Tier, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if tier, ok := c.tierByID[priceID]; ok {
		return tier, nil
	}
	return "", fmt.Errorf("%w: %s", ErrPriceNotInCatalog, priceID)
}

// PriceForTier returns the provider price ID selling the given tier.
func (c *Catalog) PriceForTier(tier Tier) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.idByTier[tier]
	return id, ok
}
