// Package domain defines the persistence models for demand postings and the
// paid supply applications made against them. These types are mapped with
// GORM and form the core data layer of the marketplace.
package domain

import "time"

// Constraint names enforced by the relational store. The application gateway
// relies on them to serialize concurrent applications.
const (
	IndexSupplyDemandUser = "ux_supplies_demand_user"
	IndexSupplyPayment    = "ux_supplies_payment_confirmation"
)

// Demand is a free-text posting describing what a buyer wants. It is never
// mutated after creation and expires purely as a function of time.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - UserID: identifier of the posting user; indexed for listing.
//   - Content: sanitized description.
//   - Email / Phone: contact details, redacted for readers who have not applied.
//   - CreatedAt: creation instant.
//   - ExpiresAt: CreatedAt plus the requested lifetime in whole days.
type Demand struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);not null;index:idx_demands_user"`
	Content   string    `json:"content"    gorm:"type:text;not null"`
	Email     string    `json:"email"      gorm:"type:varchar(254);not null"`
	Phone     string    `json:"phone,omitempty" gorm:"type:varchar(20)"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index:idx_demands_expires"`
}

// TableName returns the database table name for Demand.
func (Demand) TableName() string { return "demands" }

// IsExpired reports whether the demand no longer accepts applications at now.
func (d Demand) IsExpired(now time.Time) bool {
	return !now.Before(d.ExpiresAt)
}

// Redacted returns a copy without contact details.
func (d Demand) Redacted() Demand {
	d.Email = ""
	d.Phone = ""
	return d
}

// Supply is a paid application against a demand. At most one supply exists
// per (demand, user) pair and per payment confirmation.
type Supply struct {
	ID                    string    `json:"id"         gorm:"type:char(36);primaryKey"`
	DemandID              string    `json:"demand_id"  gorm:"type:char(36);not null;uniqueIndex:ux_supplies_demand_user,priority:1"`
	UserID                string    `json:"user_id"    gorm:"type:varchar(64);not null;index:idx_supplies_user;uniqueIndex:ux_supplies_demand_user,priority:2"`
	Content               string    `json:"content"    gorm:"type:text;not null"`
	Email                 string    `json:"email"      gorm:"type:varchar(254);not null"`
	Phone                 string    `json:"phone,omitempty" gorm:"type:varchar(20)"`
	PaymentConfirmationID string    `json:"payment_confirmation_id" gorm:"type:varchar(255);not null;uniqueIndex:ux_supplies_payment_confirmation"`
	CreatedAt             time.Time `json:"created_at" gorm:"not null"`

	// Demand is the posting applied to. Supplies are cascade-deleted with it.
	Demand Demand `json:"-" gorm:"foreignKey:DemandID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Supply.
func (Supply) TableName() string { return "supplies" }
