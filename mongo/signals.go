package mongo

import "github.com/zoobzio/capitan"

// Connection lifecycle signals.
var (
	ClientConnected = capitan.NewSignal("docket.mongo.client.connected", "MongoDB client constructed")
	IndexEnsured    = capitan.NewSignal("docket.mongo.index.ensured", "MongoDB partition index ensured")
	IndexFailed     = capitan.NewSignal("docket.mongo.index.failed", "MongoDB partition index creation failed")
	ManagerClosed   = capitan.NewSignal("docket.mongo.manager.closed", "MongoDB connection manager closed")
)

// Field keys for connection events.
var (
	FieldFingerprint = capitan.NewStringKey("fingerprint")
	FieldDatabase    = capitan.NewStringKey("database")
	FieldCollection  = capitan.NewStringKey("collection")
	FieldIndex       = capitan.NewStringKey("index")
	FieldClients     = capitan.NewIntKey("clients")
)
