// Package logsink writes docket telemetry to a zap logger.
//
// Attach hooks the repository, cosmos and mongo signals and writes one
// structured entry per event: Info for completions, Warn for failures.
package logsink

import (
	"context"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/docket"
	"github.com/zoobzio/docket/cosmos"
	"github.com/zoobzio/docket/mongo"
	"go.uber.org/zap"
)

// route describes how one signal is logged.
type route struct {
	signal  capitan.Signal
	message string
	failure bool
}

var routes = []route{
	{docket.CreateCompleted, "document created", false},
	{docket.CreateFailed, "document create failed", true},
	{docket.UpdateCompleted, "document upserted", false},
	{docket.UpdateFailed, "document upsert failed", true},
	{docket.GetCompleted, "document read", false},
	{docket.GetFailed, "document read failed", true},
	{docket.DeleteCompleted, "document deleted", false},
	{docket.DeleteFailed, "document delete failed", true},
	{docket.ListPage, "query page fetched", false},
	{docket.ListCompleted, "query drained", false},
	{docket.ListFailed, "query failed", true},
	{docket.CountCompleted, "count completed", false},
	{docket.CountFailed, "count failed", true},

	{cosmos.ClientCreated, "cosmos client created", false},
	{cosmos.ClientCacheHit, "cosmos client reused", false},
	{cosmos.DatabaseProvisioned, "cosmos database ensured", false},
	{cosmos.ContainerProvisioned, "cosmos container ensured", false},
	{cosmos.ProvisionFailed, "cosmos provisioning failed", true},
	{cosmos.ManagerClosed, "cosmos manager closed", false},

	{mongo.ClientConnected, "mongo client created", false},
	{mongo.IndexEnsured, "mongo partition index ensured", false},
	{mongo.IndexFailed, "mongo partition index failed", true},
	{mongo.ManagerClosed, "mongo manager closed", false},
}

// Sink owns the listeners registered by Attach.
type Sink struct {
	logger *zap.Logger
	drains []func(context.Context)
	closes []func()
}

// Attach hooks every docket signal and logs it to logger.
func Attach(logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sink{logger: logger}
	for _, r := range routes {
		l := capitan.Hook(r.signal, s.handler(r))
		s.drains = append(s.drains, func(ctx context.Context) { l.Drain(ctx) })
		s.closes = append(s.closes, func() { l.Close() })
	}
	return s
}

// Drain waits until queued events have been logged.
func (s *Sink) Drain(ctx context.Context) {
	for _, drain := range s.drains {
		drain(ctx)
	}
}

// Close removes the listeners.
func (s *Sink) Close() {
	for _, c := range s.closes {
		c()
	}
	s.closes = nil
	s.drains = nil
}

func (s *Sink) handler(r route) capitan.EventCallback {
	return func(_ context.Context, e *capitan.Event) {
		fields := Fields(e.Fields())
		if r.failure {
			s.logger.Warn(r.message, fields...)
			return
		}
		s.logger.Info(r.message, fields...)
	}
}

// Fields converts the known event fields to zap fields, skipping unset values.
func Fields(fs []capitan.Field) []zap.Field {
	var out []zap.Field
	str := func(name, v string) {
		if v != "" {
			out = append(out, zap.String(name, v))
		}
	}

	str("operation", docket.FieldOperation.ExtractFromFields(fs))
	str("type", docket.FieldType.ExtractFromFields(fs))
	str("id", docket.FieldID.ExtractFromFields(fs))
	str("partition_key", docket.FieldPartitionKey.ExtractFromFields(fs))
	if v := docket.FieldStatus.ExtractFromFields(fs); v != 0 {
		out = append(out, zap.Int("status", v))
	}
	if v := docket.FieldRequestCharge.ExtractFromFields(fs); v != 0 {
		out = append(out, zap.Float64("request_charge", v))
	}
	if v := docket.FieldPage.ExtractFromFields(fs); v != 0 {
		out = append(out, zap.Int("page", v))
	}
	if v := docket.FieldCount.ExtractFromFields(fs); v != 0 {
		out = append(out, zap.Int64("count", v))
	}
	if v := docket.FieldFound.ExtractFromFields(fs); v {
		out = append(out, zap.Bool("found", v))
	}
	if v := docket.FieldDuration.ExtractFromFields(fs); v != 0 {
		out = append(out, zap.Duration("duration", v))
	}

	fp := cosmos.FieldFingerprint.ExtractFromFields(fs)
	if fp == "" {
		fp = mongo.FieldFingerprint.ExtractFromFields(fs)
	}
	str("fingerprint", fp)
	db := cosmos.FieldDatabase.ExtractFromFields(fs)
	if db == "" {
		db = mongo.FieldDatabase.ExtractFromFields(fs)
	}
	str("database", db)
	str("container", cosmos.FieldContainer.ExtractFromFields(fs))
	str("collection", mongo.FieldCollection.ExtractFromFields(fs))
	if cosmos.FieldCreated.ExtractFromFields(fs) {
		out = append(out, zap.Bool("created", true))
	}
	if v := cosmos.FieldClients.ExtractFromFields(fs); v != 0 {
		out = append(out, zap.Int("clients", v))
	} else if v := mongo.FieldClients.ExtractFromFields(fs); v != 0 {
		out = append(out, zap.Int("clients", v))
	}

	if err := docket.FieldError.ExtractFromFields(fs); err != nil {
		out = append(out, zap.Error(err))
	}
	return out
}
