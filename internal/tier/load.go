package tier

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadFile reads a tier catalog from a JSON file: an array of Tier objects.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tier catalog: %w", err)
	}

	var tiers []Tier
	if err := json.Unmarshal(data, &tiers); err != nil {
		return nil, fmt.Errorf("failed to parse tier catalog: %w", err)
	}

	return NewCatalog(tiers)
}

// Default returns the built-in four-tier catalog used in development mode.
// Production deployments load real role IDs from TIERS_FILE.
func Default() *Catalog {
	c, err := NewCatalog([]Tier{
		{Key: "basic", DisplayName: "0-150M Broker", RangeLabel: "0-150M", Rank: 1, StaffRole: "role-basic"},
		{Key: "advanced", DisplayName: "150-500M Broker", RangeLabel: "150M-500M", Rank: 2, StaffRole: "role-advanced"},
		{Key: "premium", DisplayName: "500M+ Broker", RangeLabel: "500M+", Rank: 3, StaffRole: "role-premium"},
		{Key: "og", DisplayName: "OG Broker", RangeLabel: "All Trades", Rank: 4, StaffRole: "role-og"},
	})
	if err != nil {
		panic("built-in tier catalog invalid: " + err.Error())
	}
	return c
}
