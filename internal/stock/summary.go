package stock

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Summary is the dashboard view of a product's stock position.
type Summary struct {
	ProductID       int64             `json:"product_id"`
	Stock           int64             `json:"stock"`
	MinQuantity     int64             `json:"min_quantity"`
	AverageCost     float64           `json:"average_cost"`
	StockValue      float64           `json:"stock_value"`
	FreeStock       int64             `json:"free_stock"`
	IsLowStock      bool              `json:"is_low_stock"`
	IsOutOfStock    bool              `json:"is_out_of_stock"`
	ActiveAlerts    int               `json:"active_alerts"`
	RecentMovements []SummaryMovement `json:"recent_movements"`
}

// SummaryMovement is the trimmed movement view embedded in summaries.
type SummaryMovement struct {
	ID              uuid.UUID    `json:"id"`
	Quantity        int64        `json:"quantity"`
	PreviousStock   int64        `json:"previous_stock"`
	NewStock        int64        `json:"new_stock"`
	Type            MovementType `json:"movement_type"`
	ReferenceNumber string       `json:"reference_number"`
	CreatedAt       time.Time    `json:"created_at"`
}

// Summarize assembles the stock position of one product: counter, cost
// basis, free stock after reservations, alert state, and the ten most recent
// ledger entries.
func (e *Engine) Summarize(ctx context.Context, tenantID uuid.UUID, productID int64) (Summary, error) {
	product, err := e.repo.GetProduct(ctx, tenantID, productID)
	if err != nil {
		return Summary{}, err
	}
	reservations, err := e.repo.ListActiveReservations(ctx, productID)
	if err != nil {
		return Summary{}, err
	}
	var reserved int64
	for _, res := range reservations {
		reserved += res.Quantity
	}
	alerts, err := e.repo.ListAlerts(ctx, AlertFilter{TenantID: tenantID, ProductID: productID, ActiveOnly: true})
	if err != nil {
		return Summary{}, err
	}
	movements, err := e.repo.ListMovements(ctx, MovementFilter{TenantID: tenantID, ProductID: productID, Limit: 10})
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		ProductID:    product.ProductID,
		Stock:        product.Stock,
		MinQuantity:  product.MinQuantity,
		AverageCost:  product.CostBasis(),
		StockValue:   float64(product.Stock) * product.CostBasis(),
		FreeStock:    product.Stock - reserved,
		IsLowStock:   product.Stock <= product.MinQuantity,
		IsOutOfStock: product.Stock <= 0,
		ActiveAlerts: len(alerts),
	}
	for _, m := range movements {
		summary.RecentMovements = append(summary.RecentMovements, SummaryMovement{
			ID:              m.ID,
			Quantity:        m.Quantity,
			PreviousStock:   m.PreviousStock,
			NewStock:        m.NewStock,
			Type:            m.Type,
			ReferenceNumber: m.ReferenceNumber,
			CreatedAt:       m.CreatedAt,
		})
	}
	return summary, nil
}
