// Package cart defines the cart data model shared by the local cache, the
// synchronization engine, and the portal adapters.
package cart

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xenking/cartsync/internal/domain/product"
)

// MaxSubstitutes is the most alternate products a single line can carry.
const MaxSubstitutes = 2

// LineID identifies a cart line. The portal assigns numeric identifiers;
// until its acknowledgment arrives, lines carry a locally minted temporary
// id. The id of a line changes whenever its substitute set is rewritten,
// because the portal only supports that via delete+recreate.
type LineID string

const tempIDPrefix = "local-"

// TempLineID mints a new temporary line identifier.
func TempLineID() LineID {
	return LineID(tempIDPrefix + uuid.New().String())
}

// Temporary reports whether the id is a locally minted placeholder that has
// not yet been replaced by a server-assigned identifier.
func (id LineID) Temporary() bool {
	return strings.HasPrefix(string(id), tempIDPrefix)
}

// Substitute is an alternate product attached to a line. Downstream
// fulfillment falls back to substitutes in priority order (1 before 2) when
// the primary product is short.
type Substitute struct {
	ProductCode string
	Priority    int
	RiskScore   *float64
}

// Line is one ordered product in the cart.
type Line struct {
	ID          LineID
	ProductCode string
	Quantity    int
	Substitutes []Substitute
	Product     *product.Product
	RiskScore   *float64
}

// Clone returns a deep copy of the line.
func (l Line) Clone() Line {
	c := l
	if l.Substitutes != nil {
		c.Substitutes = make([]Substitute, len(l.Substitutes))
		for i, s := range l.Substitutes {
			c.Substitutes[i] = s
			if s.RiskScore != nil {
				v := *s.RiskScore
				c.Substitutes[i].RiskScore = &v
			}
		}
	}
	if l.Product != nil {
		p := *l.Product
		c.Product = &p
	}
	if l.RiskScore != nil {
		v := *l.RiskScore
		c.RiskScore = &v
	}
	return c
}

// SubstituteAt returns the substitute occupying the given priority slot.
func (l Line) SubstituteAt(priority int) (Substitute, bool) {
	for _, s := range l.Substitutes {
		if s.Priority == priority {
			return s, true
		}
	}
	return Substitute{}, false
}

// HasSubstitute reports whether the line already carries the given product
// as a substitute.
func (l Line) HasSubstitute(code string) bool {
	for _, s := range l.Substitutes {
		if s.ProductCode == code {
			return true
		}
	}
	return false
}

// CloneLines deep-copies a slice of lines.
func CloneLines(lines []Line) []Line {
	if lines == nil {
		return nil
	}
	out := make([]Line, len(lines))
	for i, l := range lines {
		out[i] = l.Clone()
	}
	return out
}

// SortSubstitutes orders substitutes by ascending priority, in place.
func SortSubstitutes(subs []Substitute) {
	if len(subs) == 2 && subs[0].Priority > subs[1].Priority {
		subs[0], subs[1] = subs[1], subs[0]
	}
}

// ServerResponse is the portal's acknowledgment of a cart mutation. The
// portal is free to answer with a full item list, a single created or
// updated line, or nothing usable at all; the cache treats the last case as
// "keep the optimistic state".
type ServerResponse struct {
	// Full indicates Lines holds the server's complete view of the cart.
	Full  bool
	Lines []Line

	// Line is a single-line acknowledgment, typically carrying the
	// server-assigned identifier for a just-created line.
	Line *Line
}

// OrderRequest holds the input for placing an order from the current cart.
// Window bounds use the portal's HH:MM wire format; both are optional.
type OrderRequest struct {
	DeliveryDate time.Time
	WindowStart  string
	WindowEnd    string
}

// RiskRequest asks the shortage risk service for an estimate of one
// product/quantity pair against a delivery date.
type RiskRequest struct {
	ProductCode  string
	Quantity     int
	OrderDate    time.Time
	DeliveryDate time.Time
}

// RiskResult is one shortage risk estimate. Results are keyed by product
// code, not line id: the same estimate applies to every line and substitute
// slot showing that product.
type RiskResult struct {
	ProductCode         string
	ShortageProbability float64
	ShortageFlag        bool
	Threshold           float64
}
