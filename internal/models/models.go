package models

// All lists every model managed by AutoMigrate, parents first.
func All() []any {
	return []any{
		&Tenant{},
		&Permission{},
		&Profile{},
		&User{},
		&LegacyRole{},
		&WorkflowDefinition{},
		&ApprovalStep{},
		&ApprovalRecord{},
		&Supplier{},
		&Rfq{},
		&RfqItem{},
		&RfqSupplier{},
		&Offer{},
		&OfferItem{},
		&SupplierPerformanceMetric{},
		&SupplierEvaluationSummary{},
		&SupplierReport{},
		&SupplierAlert{},
		&CAPA{},
		&CAPAAction{},
		&CAPAWhy{},
		&CAPAHistory{},
		&EmailOutbox{},
		&RateLimitBucket{},
	}
}
