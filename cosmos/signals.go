package cosmos

import "github.com/zoobzio/capitan"

// Connection lifecycle signals.
var (
	ClientCreated        = capitan.NewSignal("docket.cosmos.client.created", "Cosmos client constructed")
	ClientCacheHit       = capitan.NewSignal("docket.cosmos.client.cached", "Cosmos client reused from cache")
	DatabaseProvisioned  = capitan.NewSignal("docket.cosmos.database.provisioned", "Cosmos database ensured")
	ContainerProvisioned = capitan.NewSignal("docket.cosmos.container.provisioned", "Cosmos container ensured")
	ProvisionFailed      = capitan.NewSignal("docket.cosmos.provision.failed", "Cosmos provisioning failed")
	ManagerClosed        = capitan.NewSignal("docket.cosmos.manager.closed", "Cosmos connection manager closed")
)

// Field keys for connection events. Status and error use docket.FieldStatus
// and docket.FieldError.
var (
	FieldFingerprint = capitan.NewStringKey("fingerprint")
	FieldDatabase    = capitan.NewStringKey("database")
	FieldContainer   = capitan.NewStringKey("container")
	FieldCreated     = capitan.NewBoolKey("created")
	FieldClients     = capitan.NewIntKey("clients")
)
