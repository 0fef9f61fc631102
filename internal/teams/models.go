package teams

import (
	"time"

	"github.com/shopspring/decimal"
)

type MeasurementUnit string

const (
	UnitKilogram MeasurementUnit = "kg"
	UnitLiter    MeasurementUnit = "L"
	UnitPiece    MeasurementUnit = "piece"
	UnitGeneric  MeasurementUnit = "unit"
)

// Display falls back to "unit" for anything the catalog did not set.
func (u MeasurementUnit) Display() string {
	switch u {
	case UnitKilogram, UnitLiter, UnitPiece:
		return string(u)
	}
	return string(UnitGeneric)
}

type PaymentMethod string

const (
	MethodCard         PaymentMethod = "card"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodWallet       PaymentMethod = "wallet"
	MethodUSSD         PaymentMethod = "ussd"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCard, MethodBankTransfer, MethodWallet, MethodUSSD:
		return true
	}
	return false
}

// Product is the catalog's view of a product. Read-only here except for the stock slot.
type Product struct {
	ID          string
	Name        string
	UnitPrice   decimal.Decimal
	PackageSize decimal.Decimal
	Unit        MeasurementUnit
	Quantity    int // stock slots; one team consumes one slot
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (p *Product) InStock() bool { return p.IsActive && p.Quantity > 0 }

// Team is one group-order instance. Members are loaded with their payment status
// so every aggregate can be recomputed from the live member set.
type Team struct {
	ID             string
	Name           string
	Description    string
	ProductID      string
	Unit           MeasurementUnit // frozen from product at creation
	UnitPrice      decimal.Decimal // frozen from product at creation
	TargetQuantity decimal.Decimal
	TargetAmount   decimal.Decimal
	CreatedBy      string
	Status         TeamStatus
	CreatedAt      time.Time
	ExpiresAt      time.Time
	CompletedAt    *time.Time
	Members        []Member
}

type Member struct {
	ID            string
	TeamID        string
	CustomerID    string
	Quantity      decimal.Decimal
	AmountPaid    decimal.Decimal
	PaymentID     string
	PaymentStatus PaymentStatus
	JoinedAt      time.Time
}

type Payment struct {
	ID                     string
	CustomerID             string
	TeamID                 string
	Amount                 decimal.Decimal
	Method                 PaymentMethod
	Status                 PaymentStatus
	TransactionReference   string // set only when Completed
	FailureReason          string // set only when Failed
	SimulateSuccess        bool
	SimulationDelaySeconds int
	CreatedAt              time.Time
	CompletedAt            *time.Time
}

// Contribution is the pre-payment ledger entry used to check committed quantity
// against the team target before a member row exists.
type Contribution struct {
	ID         string
	TeamID     string
	CustomerID string
	Quantity   decimal.Decimal
	Amount     decimal.Decimal
	PaymentID  *string
	IsCreator  bool
	CreatedAt  time.Time
}
