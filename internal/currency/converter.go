package currency

import "fmt"

// minorUnitsPerMajor maps currency codes to the number of minor units
// (cents, kobo) per major unit. Card gateways report amounts in minor units;
// mobile-money callbacks report whole shillings.
var minorUnitsPerMajor = map[string]float64{
	"KES": 100,
	"NGN": 100,
	"USD": 100,
}

// Supported reports whether the platform accepts donations in the currency.
func Supported(code string) bool {
	_, ok := minorUnitsPerMajor[code]
	return ok
}

// FromMinorUnits converts a gateway amount expressed in minor units to major
// units of the same currency.
func FromMinorUnits(amount int64, code string) (float64, error) {
	per, ok := minorUnitsPerMajor[code]
	if !ok {
		return 0, fmt.Errorf("unsupported currency: %s", code)
	}
	return float64(amount) / per, nil
}

// ToMinorUnits converts a major-unit amount to the gateway's minor units.
func ToMinorUnits(amount float64, code string) (int64, error) {
	per, ok := minorUnitsPerMajor[code]
	if !ok {
		return 0, fmt.Errorf("unsupported currency: %s", code)
	}
	return int64(amount*per + 0.5), nil
}
