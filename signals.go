package docket

import "github.com/zoobzio/capitan"

// Signals for repository round trips.
var (
	CreateCompleted = capitan.NewSignal("docket.create.completed", "Document created")
	CreateFailed    = capitan.NewSignal("docket.create.failed", "Document creation failed")
	UpdateCompleted = capitan.NewSignal("docket.update.completed", "Document upserted")
	UpdateFailed    = capitan.NewSignal("docket.update.failed", "Document upsert failed")
	GetCompleted    = capitan.NewSignal("docket.get.completed", "Document point read completed")
	GetFailed       = capitan.NewSignal("docket.get.failed", "Document point read failed")
	DeleteCompleted = capitan.NewSignal("docket.delete.completed", "Document deletion completed")
	DeleteFailed    = capitan.NewSignal("docket.delete.failed", "Document deletion failed")
	ListPage        = capitan.NewSignal("docket.list.page", "Query page fetched")
	ListCompleted   = capitan.NewSignal("docket.list.completed", "Query drained")
	ListFailed      = capitan.NewSignal("docket.list.failed", "Query failed")
	CountCompleted  = capitan.NewSignal("docket.count.completed", "Count completed")
	CountFailed     = capitan.NewSignal("docket.count.failed", "Count failed")
)

// Field keys for event extraction.
var (
	FieldOperation     = capitan.NewStringKey("operation")
	FieldStatus        = capitan.NewIntKey("status")
	FieldPartitionKey  = capitan.NewStringKey("partition_key")
	FieldRequestCharge = capitan.NewKey[float64]("request_charge", "docket.RequestCharge")
	FieldID            = capitan.NewStringKey("id")
	FieldType          = capitan.NewStringKey("type")
	FieldFound         = capitan.NewBoolKey("found")
	FieldCount         = capitan.NewInt64Key("count")
	FieldPage          = capitan.NewIntKey("page")
	FieldDuration      = capitan.NewDurationKey("duration")
	FieldError         = capitan.NewErrorKey("error")
)

// Operation names carried by FieldOperation.
const (
	OperationCreate = "create"
	OperationUpdate = "update"
	OperationGet    = "get"
	OperationDelete = "delete"
	OperationList   = "list"
	OperationCount  = "count"
)
