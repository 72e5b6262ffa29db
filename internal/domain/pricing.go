package domain

// Pricing holds the base price and the escalation discount tiers in rubles.
type Pricing struct {
	Base        int
	Discount290 int
	Discount190 int
	Discount99  int
}

// DefaultPricing mirrors the production offer ladder.
func DefaultPricing() Pricing {
	return Pricing{Base: 490, Discount290: 290, Discount190: 190, Discount99: 99}
}

// PriceForStage returns the price a requester is offered while the image sits
// at the given stage. The improved offer keeps the base price; discounts only
// start at the 290 tier.
func (p Pricing) PriceForStage(s Stage) int {
	switch s {
	case StageDiscount290Offered:
		return p.Discount290
	case StageDiscount190Offered:
		return p.Discount190
	case StageDiscount99Offered:
		return p.Discount99
	default:
		return p.Base
	}
}
