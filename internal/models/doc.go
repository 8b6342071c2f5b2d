// Package models defines the core domain models for Sambatan group purchases.
//
// # Models
//
//   - GroupPurchase: one group-buy instance with a fixed target quantity
//   - Participant: one buyer's commitment inside a group purchase
//   - Location: a shipping origin or destination
//   - ShippingRate: a quoted price for one parcel between two locations
//   - ShippingRecommendation: derived per-participant shipping advice
//
// # Design Principles
//
// 1. **Ledger ownership**: GroupPurchase committed quantity and status are only
// mutated by the ledger package; everything else reads snapshots
// 2. **IDs over pointers**: relationships use ID strings
// 3. **Money as decimal**: prices use shopspring/decimal, never float64
// 4. **Derived data is not persisted**: recommendations are recomputed on demand
package models
