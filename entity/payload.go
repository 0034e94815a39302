package entity

// Typed payload snapshots, one per Kind. JSON tags match the remote table
// columns. The sync tag classifies fields for merge resolution:
//
//	sync:"system"    - immutable bookkeeping field, never overlaid by a merge
//	sync:"localwins" - the local value is kept outright on merge
//
// Untagged fields follow the default merge rule (local overlays remote).

type SitePayload struct {
	ID        string `json:"id" sync:"system"`
	Name      string `json:"name"`
	Address   string `json:"address,omitempty"`
	Active    bool   `json:"active"`
	CreatedAt int64  `json:"created_at" sync:"system"`
	CreatedBy string `json:"created_by,omitempty" sync:"system"`
	UpdatedAt int64  `json:"updated_at" sync:"system"`
	UpdatedBy string `json:"updated_by,omitempty" sync:"system"`
}

type PackagingTypePayload struct {
	ID        string  `json:"id" sync:"system"`
	Name      string  `json:"name"`
	UnitCount float64 `json:"unit_count"`
	CreatedAt int64   `json:"created_at" sync:"system"`
	CreatedBy string  `json:"created_by,omitempty" sync:"system"`
	UpdatedAt int64   `json:"updated_at" sync:"system"`
	UpdatedBy string  `json:"updated_by,omitempty" sync:"system"`
}

type CategoryPayload struct {
	ID        string `json:"id" sync:"system"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"created_at" sync:"system"`
	CreatedBy string `json:"created_by,omitempty" sync:"system"`
	UpdatedAt int64  `json:"updated_at" sync:"system"`
	UpdatedBy string `json:"updated_by,omitempty" sync:"system"`
}

type ProductPayload struct {
	ID              string  `json:"id" sync:"system"`
	Name            string  `json:"name"`
	CategoryID      string  `json:"category_id,omitempty"`
	PackagingTypeID string  `json:"packaging_type_id,omitempty"`
	SiteID          string  `json:"site_id,omitempty"`
	SalePrice       float64 `json:"sale_price"`
	AlertThreshold  float64 `json:"alert_threshold,omitempty"`
	Active          bool    `json:"active"`
	CreatedAt       int64   `json:"created_at" sync:"system"`
	CreatedBy       string  `json:"created_by,omitempty" sync:"system"`
	UpdatedAt       int64   `json:"updated_at" sync:"system"`
	UpdatedBy       string  `json:"updated_by,omitempty" sync:"system"`
}

type UserPayload struct {
	ID        string `json:"id" sync:"system"`
	Username  string `json:"username"`
	FullName  string `json:"full_name,omitempty"`
	Role      string `json:"role"`
	Active    bool   `json:"active"`
	CreatedAt int64  `json:"created_at" sync:"system"`
	UpdatedAt int64  `json:"updated_at" sync:"system"`
}

type UserPermissionPayload struct {
	ID         string `json:"id" sync:"system"`
	UserID     string `json:"user_id"`
	SiteID     string `json:"site_id"`
	Permission string `json:"permission"`
	CreatedAt  int64  `json:"created_at" sync:"system"`
	UpdatedAt  int64  `json:"updated_at" sync:"system"`
}

type CustomerPayload struct {
	ID        string `json:"id" sync:"system"`
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	SiteID    string `json:"site_id,omitempty"`
	CreatedAt int64  `json:"created_at" sync:"system"`
	CreatedBy string `json:"created_by,omitempty" sync:"system"`
	UpdatedAt int64  `json:"updated_at" sync:"system"`
	UpdatedBy string `json:"updated_by,omitempty" sync:"system"`
}

type SupplierPayload struct {
	ID        string `json:"id" sync:"system"`
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	CreatedAt int64  `json:"created_at" sync:"system"`
	UpdatedAt int64  `json:"updated_at" sync:"system"`
}

type PurchaseBatchPayload struct {
	ID                string  `json:"id" sync:"system"`
	ProductID         string  `json:"product_id"`
	SupplierID        string  `json:"supplier_id,omitempty"`
	SiteID            string  `json:"site_id,omitempty"`
	Quantity          float64 `json:"quantity"`
	RemainingQuantity float64 `json:"remaining_quantity"`
	UnitCost          float64 `json:"unit_cost"`
	PurchasedAt       int64   `json:"purchased_at"`
	CreatedAt         int64   `json:"created_at" sync:"system"`
	CreatedBy         string  `json:"created_by,omitempty" sync:"system"`
	UpdatedAt         int64   `json:"updated_at" sync:"system"`
	UpdatedBy         string  `json:"updated_by,omitempty" sync:"system"`
}

type SalePayload struct {
	ID          string  `json:"id" sync:"system"`
	CustomerID  string  `json:"customer_id,omitempty"`
	SiteID      string  `json:"site_id,omitempty"`
	TotalAmount float64 `json:"total_amount"`
	SoldAt      int64   `json:"sold_at"`
	SoldBy      string  `json:"sold_by,omitempty"`
	CreatedAt   int64   `json:"created_at" sync:"system"`
	CreatedBy   string  `json:"created_by,omitempty" sync:"system"`
	UpdatedAt   int64   `json:"updated_at" sync:"system"`
	UpdatedBy   string  `json:"updated_by,omitempty" sync:"system"`
}

type SaleItemPayload struct {
	ID        string  `json:"id" sync:"system"`
	SaleID    string  `json:"sale_id"`
	ProductID string  `json:"product_id"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	CreatedAt int64   `json:"created_at" sync:"system"`
	UpdatedAt int64   `json:"updated_at" sync:"system"`
}

type StockMovementPayload struct {
	ID        string `json:"id" sync:"system"`
	ProductID string `json:"product_id"`
	SiteID    string `json:"site_id,omitempty"`
	Type      string `json:"type"` // in, out, adjustment, transfer
	// Movements are already-applied deltas: merging two quantities by
	// summing would double-count, so the local value wins outright.
	Quantity  float64 `json:"quantity" sync:"localwins"`
	Reason    string  `json:"reason,omitempty"`
	MovedAt   int64   `json:"moved_at"`
	CreatedAt int64   `json:"created_at" sync:"system"`
	CreatedBy string  `json:"created_by,omitempty" sync:"system"`
	UpdatedAt int64   `json:"updated_at" sync:"system"`
	UpdatedBy string  `json:"updated_by,omitempty" sync:"system"`
}

type ProductTransferPayload struct {
	ID         string  `json:"id" sync:"system"`
	ProductID  string  `json:"product_id"`
	FromSiteID string  `json:"from_site_id"`
	ToSiteID   string  `json:"to_site_id"`
	Quantity   float64 `json:"quantity" sync:"localwins"`
	Status     string  `json:"status"`
	CreatedAt  int64   `json:"created_at" sync:"system"`
	CreatedBy  string  `json:"created_by,omitempty" sync:"system"`
	UpdatedAt  int64   `json:"updated_at" sync:"system"`
	UpdatedBy  string  `json:"updated_by,omitempty" sync:"system"`
}

type InventoryPayload struct {
	ID              string  `json:"id" sync:"system"`
	ProductID       string  `json:"product_id"`
	SiteID          string  `json:"site_id,omitempty"`
	CountedQuantity float64 `json:"counted_quantity"`
	CountedAt       int64   `json:"counted_at"`
	CreatedAt       int64   `json:"created_at" sync:"system"`
	CreatedBy       string  `json:"created_by,omitempty" sync:"system"`
	UpdatedAt       int64   `json:"updated_at" sync:"system"`
	UpdatedBy       string  `json:"updated_by,omitempty" sync:"system"`
}
