// Package units implements three-level unit conversion for stored items.
// Quantities are tracked as counts of a large container (level 1), an
// intermediate container (level 2), and an individual base unit (level 3).
// Per-SKU rates give the number of base units per container; level 3 is
// always the base unit with an implicit rate of 1.
package units

// Rates holds the conversion configuration for one SKU.
type Rates struct {
	SKU        string `json:"sku"`
	Level1Name string `json:"level1_name"` // e.g. "carton"
	Level2Name string `json:"level2_name"` // e.g. "box"
	Level3Name string `json:"level3_name"` // e.g. "piece"
	Level1Rate int64  `json:"level1_rate"` // base units per level-1 container
	Level2Rate int64  `json:"level2_rate"` // base units per level-2 container
}

// Usable reports whether the rates can be used for conversion arithmetic.
// A nil receiver or a rate below 1 makes the whole set unusable.
func (r *Rates) Usable() bool {
	return r != nil && r.Level1Rate >= 1 && r.Level2Rate >= 1
}

// Quantity is a three-level quantity. Each field is a count in its own
// unit, never pre-converted.
type Quantity struct {
	Level1 int64 `json:"level1"`
	Level2 int64 `json:"level2"`
	Level3 int64 `json:"level3"`
}

func (q Quantity) IsZero() bool {
	return q.Level1 == 0 && q.Level2 == 0 && q.Level3 == 0
}

// HasNegative reports whether any level is below zero.
func (q Quantity) HasNegative() bool {
	return q.Level1 < 0 || q.Level2 < 0 || q.Level3 < 0
}

func (q Quantity) Add(o Quantity) Quantity {
	return Quantity{q.Level1 + o.Level1, q.Level2 + o.Level2, q.Level3 + o.Level3}
}

func (q Quantity) Sub(o Quantity) Quantity {
	return Quantity{q.Level1 - o.Level1, q.Level2 - o.Level2, q.Level3 - o.Level3}
}

// Covers reports whether q is at least o at every level.
func (q Quantity) Covers(o Quantity) bool {
	return q.Level1 >= o.Level1 && q.Level2 >= o.Level2 && q.Level3 >= o.Level3
}

// ToBase converts q to base units. With usable rates the result is
// level1*rate1 + level2*rate2 + level3. Without them the naive sum of the
// three counts is returned and ratesMissing is set; a missing rate never
// fails the conversion.
func ToBase(q Quantity, r *Rates) (base int64, ratesMissing bool) {
	if !r.Usable() {
		return q.Level1 + q.Level2 + q.Level3, true
	}
	return q.Level1*r.Level1Rate + q.Level2*r.Level2Rate + q.Level3, false
}

// Breakdown greedily decomposes a base quantity into containers: as many
// level-1 containers as fit, then level-2 containers from the remainder,
// then loose base units. A level with a missing or zero rate is skipped and
// its share stays in the remainder, ending up as loose base units.
func Breakdown(base int64, r *Rates) (q Quantity, ratesMissing bool) {
	rem := base
	if r != nil && r.Level1Rate >= 1 {
		q.Level1 = rem / r.Level1Rate
		rem = rem % r.Level1Rate
	} else {
		ratesMissing = true
	}
	if r != nil && r.Level2Rate >= 1 {
		q.Level2 = rem / r.Level2Rate
		rem = rem % r.Level2Rate
	} else {
		ratesMissing = true
	}
	q.Level3 = rem
	return q, ratesMissing
}
