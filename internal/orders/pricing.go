package orders

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ovenly/backend/pkg/enums"
	pkgerrors "github.com/ovenly/backend/pkg/errors"
)

// PricedItem is the catalog's answer for one line.
type PricedItem struct {
	Name      string
	UnitPrice int64
}

// PriceCatalog prices a product line. Amounts are whole shillings.
type PriceCatalog interface {
	Price(productType enums.ProductType, item ItemInput) (PricedItem, error)
}

// DeliveryFeeResolver prices delivery to a destination.
type DeliveryFeeResolver interface {
	Fee(ctx context.Context, dest DeliveryInput) (int64, error)
}

// PlaceLocator turns a map place id into coordinates.
type PlaceLocator interface {
	Locate(ctx context.Context, placeID string) (lat, lng float64, err error)
}

// StaticCatalog is the storefront's fixed price list.
type StaticCatalog struct {
	CakeSizes       map[string]int64
	CakeFlavours    map[string]int64
	PizzaSizes      map[string]int64
	ToppingPrice    int64
	FreeToppings    int
	MaxToppings     int
	MessageMaxChars int
}

// DefaultCatalog returns the current menu.
func DefaultCatalog() *StaticCatalog {
	return &StaticCatalog{
		CakeSizes: map[string]int64{
			"0.5kg": 1800,
			"1kg":   3000,
			"1.5kg": 4300,
			"2kg":   5500,
			"3kg":   8000,
		},
		CakeFlavours: map[string]int64{
			"vanilla":      0,
			"chocolate":    0,
			"lemon":        0,
			"black_forest": 300,
			"fruit":        400,
			"red_velvet":   500,
		},
		PizzaSizes: map[string]int64{
			"small":  800,
			"medium": 1200,
			"large":  1600,
		},
		ToppingPrice:    100,
		FreeToppings:    2,
		MaxToppings:     6,
		MessageMaxChars: 60,
	}
}

func (c *StaticCatalog) Price(productType enums.ProductType, item ItemInput) (PricedItem, error) {
	size := strings.ToLower(strings.TrimSpace(item.Size))
	switch productType {
	case enums.ProductTypeCake:
		base, ok := c.CakeSizes[size]
		if !ok {
			return PricedItem{}, fieldError("item.size", "unknown cake size %q", item.Size)
		}
		flavour := ""
		if item.Flavour != nil {
			flavour = strings.ToLower(strings.TrimSpace(*item.Flavour))
		}
		surcharge, ok := c.CakeFlavours[flavour]
		if !ok {
			return PricedItem{}, fieldError("item.flavour", "unknown cake flavour %q", flavour)
		}
		if len(item.Toppings) > 0 {
			return PricedItem{}, fieldError("item.toppings", "cakes do not take toppings")
		}
		if item.Message != nil && len([]rune(*item.Message)) > c.MessageMaxChars {
			return PricedItem{}, fieldError("item.message", "message is limited to %d characters", c.MessageMaxChars)
		}
		return PricedItem{
			Name:      fmt.Sprintf("%s %s cake", size, strings.ReplaceAll(flavour, "_", " ")),
			UnitPrice: base + surcharge,
		}, nil

	case enums.ProductTypePizza:
		base, ok := c.PizzaSizes[size]
		if !ok {
			return PricedItem{}, fieldError("item.size", "unknown pizza size %q", item.Size)
		}
		if len(item.Toppings) > c.MaxToppings {
			return PricedItem{}, fieldError("item.toppings", "at most %d toppings", c.MaxToppings)
		}
		extra := len(item.Toppings) - c.FreeToppings
		if extra < 0 {
			extra = 0
		}
		return PricedItem{
			Name:      fmt.Sprintf("%s pizza", size),
			UnitPrice: base + int64(extra)*c.ToppingPrice,
		}, nil
	}
	return PricedItem{}, fieldError("product_type", "unsupported product type %q", productType)
}

// ZoneFeeResolver prices delivery by named zone, falling back to distance
// from the shop when the zone is unknown and coordinates are available.
type ZoneFeeResolver struct {
	Zones   map[string]int64
	ShopLat float64
	ShopLng float64
	BaseFee int64
	PerKm   decimal.Decimal
	MinFee  int64
	MaxKm   float64
	Locator PlaceLocator
}

// DefaultFeeResolver returns the Nairobi delivery zones.
func DefaultFeeResolver(locator PlaceLocator) *ZoneFeeResolver {
	return &ZoneFeeResolver{
		Zones: map[string]int64{
			"cbd":        200,
			"upperhill":  250,
			"kilimani":   300,
			"westlands":  300,
			"lavington":  350,
			"parklands":  350,
			"south_b":    350,
			"south_c":    350,
			"kileleshwa": 350,
			"langata":    450,
			"ruaka":      450,
			"karen":      500,
		},
		ShopLat: -1.2921,
		ShopLng: 36.8219,
		BaseFee: 150,
		PerKm:   decimal.NewFromInt(40),
		MinFee:  200,
		MaxKm:   30,
		Locator: locator,
	}
}

func (r *ZoneFeeResolver) Fee(ctx context.Context, dest DeliveryInput) (int64, error) {
	zone := strings.ToLower(strings.TrimSpace(dest.Zone))
	if fee, ok := r.Zones[zone]; ok {
		return fee, nil
	}

	lat, lng, ok := dest.coordinates()
	if !ok && dest.PlaceID != "" && r.Locator != nil {
		var err error
		lat, lng, err = r.Locator.Locate(ctx, dest.PlaceID)
		if err != nil {
			return 0, err
		}
		ok = true
	}
	if !ok {
		return 0, fieldError("delivery.zone", "unknown delivery zone %q; supported zones: %s", dest.Zone, strings.Join(r.zoneNames(), ", "))
	}

	km := haversineKm(r.ShopLat, r.ShopLng, lat, lng)
	if r.MaxKm > 0 && km > r.MaxKm {
		return 0, fieldError("delivery", "address is %.1f km away; we deliver within %.0f km", km, r.MaxKm)
	}
	fee := decimal.NewFromInt(r.BaseFee).
		Add(r.PerKm.Mul(decimal.NewFromFloat(km))).
		Div(decimal.NewFromInt(10)).Ceil().Mul(decimal.NewFromInt(10)).
		IntPart()
	if fee < r.MinFee {
		fee = r.MinFee
	}
	return fee, nil
}

func (r *ZoneFeeResolver) zoneNames() []string {
	names := make([]string, 0, len(r.Zones))
	for name := range r.Zones {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const earthRadiusKm = 6371.0

func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// DepositFor returns ceil(total * percent / 100).
func DepositFor(total, percent int64) int64 {
	if total <= 0 || percent <= 0 {
		return 0
	}
	if percent >= 100 {
		return total
	}
	return decimal.NewFromInt(total).
		Mul(decimal.NewFromInt(percent)).
		Div(decimal.NewFromInt(100)).
		Ceil().
		IntPart()
}

func fieldError(field, format string, args ...any) error {
	return pkgerrors.Newf(pkgerrors.CodeValidation, format, args...).
		WithDetails(map[string]any{"field": field})
}
