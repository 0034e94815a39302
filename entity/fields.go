package entity

import (
	"reflect"
	"strings"
	"sync"
)

// FieldClass classifies a payload field for merge resolution.
type FieldClass int

const (
	// FieldNormal fields follow the default merge rule: local overlays remote.
	FieldNormal FieldClass = iota
	// FieldSystem fields are immutable bookkeeping; a merge never overlays them.
	FieldSystem
	// FieldLocalWins fields keep the local value outright on merge.
	FieldLocalWins
)

// UpdatedAtField is the JSON key carrying the remote modification timestamp.
const UpdatedAtField = "updated_at"

var payloadPrototypes = map[Kind]any{
	KindSite:            SitePayload{},
	KindPackagingType:   PackagingTypePayload{},
	KindCategory:        CategoryPayload{},
	KindProduct:         ProductPayload{},
	KindUser:            UserPayload{},
	KindUserPermission:  UserPermissionPayload{},
	KindCustomer:        CustomerPayload{},
	KindSupplier:        SupplierPayload{},
	KindPurchaseBatch:   PurchaseBatchPayload{},
	KindSale:            SalePayload{},
	KindSaleItem:        SaleItemPayload{},
	KindStockMovement:   StockMovementPayload{},
	KindProductTransfer: ProductTransferPayload{},
	KindInventory:       InventoryPayload{},
}

var (
	fieldClassOnce sync.Once
	fieldClasses   map[Kind]map[string]FieldClass
)

func buildFieldClasses() {
	fieldClasses = make(map[Kind]map[string]FieldClass, len(payloadPrototypes))
	for kind, proto := range payloadPrototypes {
		classes := make(map[string]FieldClass)
		t := reflect.TypeOf(proto)
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			key := jsonKey(f)
			if key == "" {
				continue
			}
			switch f.Tag.Get("sync") {
			case "system":
				classes[key] = FieldSystem
			case "localwins":
				classes[key] = FieldLocalWins
			default:
				classes[key] = FieldNormal
			}
		}
		fieldClasses[kind] = classes
	}
}

func jsonKey(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" || tag == "-" {
		return ""
	}
	if idx := strings.Index(tag, ","); idx >= 0 {
		tag = tag[:idx]
	}
	return tag
}

// ClassOf returns the merge classification of a JSON field for the given
// kind. Fields not declared on the payload struct are treated as normal,
// so unknown columns still round-trip through a merge.
func ClassOf(kind Kind, field string) FieldClass {
	fieldClassOnce.Do(buildFieldClasses)
	if classes, ok := fieldClasses[kind]; ok {
		if class, ok := classes[field]; ok {
			return class
		}
	}
	return FieldNormal
}

// Fields returns all declared JSON field names for the kind, in no
// particular order.
func Fields(kind Kind) []string {
	fieldClassOnce.Do(buildFieldClasses)
	classes := fieldClasses[kind]
	out := make([]string, 0, len(classes))
	for name := range classes {
		out = append(out, name)
	}
	return out
}
