package transfer

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/transfertrack/backend/internal/domain/shared"
)

// Product is a single transfer line item. It always lives in the same zone
// as its parent list; its routing is copied from the parent at creation time
// and kept in lockstep afterwards.
type Product struct {
	ID         string          `json:"id"`
	ListID     string          `json:"list_id"`
	Name       string          `json:"name"`
	UnitCount  decimal.Decimal `json:"unit_count"`
	CaseCount  decimal.Decimal `json:"case_count"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	Notes      string          `json:"notes,omitempty"`
	FromEntity string          `json:"from_entity"`
	ToEntity   string          `json:"to_entity"`
	CreatedBy  string          `json:"created_by"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedBy  string          `json:"updated_by,omitempty"`
	UpdatedAt  *time.Time      `json:"updated_at,omitempty"`
	Routing    Routing         `json:"routing,omitzero"`
}

// NewProduct creates a line item parented to the given list, inheriting the
// list's routing.
func NewProduct(list List, name string, unitCount, caseCount, unitCost decimal.Decimal, notes, fromEntity, toEntity, createdBy string) (Product, error) {
	if strings.TrimSpace(name) == "" {
		return Product{}, shared.NewDomainError("INVALID_NAME", "Product name cannot be empty")
	}
	if unitCount.IsNegative() || caseCount.IsNegative() {
		return Product{}, shared.NewDomainError("INVALID_QUANTITY", "Quantities cannot be negative")
	}
	if unitCost.IsNegative() {
		return Product{}, shared.NewDomainError("INVALID_COST", "Unit cost cannot be negative")
	}
	return Product{
		ID:         uuid.NewString(),
		ListID:     list.ID,
		Name:       name,
		UnitCount:  unitCount,
		CaseCount:  caseCount,
		UnitCost:   unitCost,
		Notes:      notes,
		FromEntity: fromEntity,
		ToEntity:   toEntity,
		CreatedBy:  createdBy,
		CreatedAt:  time.Now(),
		Routing:    list.EffectiveRouting(),
	}, nil
}

// TotalCost returns (unit count + case count) * unit cost. Cases carry no
// unit multiplier.
func (p *Product) TotalCost() decimal.Decimal {
	return p.UnitCount.Add(p.CaseCount).Mul(p.UnitCost)
}

// MarkEdited records the last editor and edit time.
func (p *Product) MarkEdited(editor string) {
	now := time.Now()
	p.UpdatedBy = editor
	p.UpdatedAt = &now
}
