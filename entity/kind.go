// Package entity defines the closed set of synchronized entity kinds and
// their typed payload snapshots.
package entity

import "fmt"

// Kind is the closed set of entity kinds the engine synchronizes. Using a
// sum type instead of free-form strings keeps strategy tables and dispatch
// switches exhaustive.
type Kind int

const (
	KindUnknown Kind = iota
	KindSite
	KindPackagingType
	KindCategory
	KindProduct
	KindUser
	KindUserPermission
	KindCustomer
	KindSupplier
	KindPurchaseBatch
	KindSale
	KindSaleItem
	KindStockMovement
	KindProductTransfer
	KindInventory
)

var kindNames = map[Kind]string{
	KindSite:            "Site",
	KindPackagingType:   "PackagingType",
	KindCategory:        "Category",
	KindProduct:         "Product",
	KindUser:            "User",
	KindUserPermission:  "UserPermission",
	KindCustomer:        "Customer",
	KindSupplier:        "Supplier",
	KindPurchaseBatch:   "PurchaseBatch",
	KindSale:            "Sale",
	KindSaleItem:        "SaleItem",
	KindStockMovement:   "StockMovement",
	KindProductTransfer: "ProductTransfer",
	KindInventory:       "Inventory",
}

var kindTables = map[Kind]string{
	KindSite:            "sites",
	KindPackagingType:   "packaging_types",
	KindCategory:        "categories",
	KindProduct:         "products",
	KindUser:            "app_users",
	KindUserPermission:  "user_permissions",
	KindCustomer:        "customers",
	KindSupplier:        "suppliers",
	KindPurchaseBatch:   "purchase_batches",
	KindSale:            "sales",
	KindSaleItem:        "sale_items",
	KindStockMovement:   "stock_movements",
	KindProductTransfer: "product_transfers",
	KindInventory:       "inventories",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// TableName returns the remote table backing this kind.
func (k Kind) TableName() string {
	return kindTables[k]
}

// Valid reports whether k names a known entity kind.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// ParseKind maps a stored discriminator back to a Kind. Both the logical
// name ("StockMovement") and the table name ("stock_movements") are
// accepted since queue rows and realtime events use different spellings.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if s == name {
			return k, true
		}
	}
	for k, table := range kindTables {
		if s == table {
			return k, true
		}
	}
	return KindUnknown, false
}

// SyncOrder returns all kinds in referential dependency order. Sites come
// first because nearly every other table carries a site_id; sales precede
// sale items and stock movements come last.
func SyncOrder() []Kind {
	return []Kind{
		KindSite,
		KindPackagingType,
		KindCategory,
		KindProduct,
		KindUser,
		KindUserPermission,
		KindCustomer,
		KindSupplier,
		KindPurchaseBatch,
		KindSale,
		KindSaleItem,
		KindStockMovement,
	}
}
