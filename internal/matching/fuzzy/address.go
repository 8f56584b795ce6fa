package fuzzy

import "rollguard/internal/identity/models"

// Address component weights. PIN is compared exactly; the others by
// Jaro-Winkler.
const (
	addressWeightPIN      = 0.3
	addressWeightDistrict = 0.3
	addressWeightCity     = 0.2
	addressWeightStreet   = 0.2
)

// AddressSimilarity compares two normalized addresses over the components
// present on both sides, renormalizing by the weights actually used. ok is
// false when no component can be compared.
func AddressSimilarity(a, b models.NormalizedAddress) (score float64, ok bool) {
	var total, weight float64
	if a.PIN != "" && b.PIN != "" {
		if a.PIN == b.PIN {
			total += addressWeightPIN
		}
		weight += addressWeightPIN
	}
	for _, c := range []struct {
		x, y string
		w    float64
	}{
		{a.District, b.District, addressWeightDistrict},
		{a.City, b.City, addressWeightCity},
		{a.Street, b.Street, addressWeightStreet},
	} {
		if c.x == "" || c.y == "" {
			continue
		}
		total += JaroWinkler(c.x, c.y) * c.w
		weight += c.w
	}
	if weight == 0 {
		return 0, false
	}
	return total / weight, true
}
