package logsink

import (
	"context"
	"errors"
	"testing"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/docket"
	"github.com/zoobzio/docket/memory"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type tool struct {
	docket.Document
	Category string `json:"category"`
}

func TestAttach_LogsRepositoryEvents(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := Attach(zap.New(core))
	defer sink.Close()

	ctx := context.Background()
	repo, err := docket.NewRepository[tool](memory.New("/category"))
	if err != nil {
		t.Fatal(err)
	}
	created, err := repo.Create(ctx, &tool{Category: "saws"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Create(ctx, created); !errors.Is(err, docket.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	sink.Drain(ctx)

	completed := logs.FilterMessage("document created").All()
	if len(completed) != 1 {
		t.Fatalf("expected 1 create entry, got %d", len(completed))
	}
	if completed[0].Level != zapcore.InfoLevel {
		t.Errorf("expected info level, got %s", completed[0].Level)
	}
	fields := completed[0].ContextMap()
	if fields["partition_key"] != "saws" {
		t.Errorf("unexpected partition_key %v", fields["partition_key"])
	}
	if fields["status"] != int64(201) {
		t.Errorf("unexpected status %v (%T)", fields["status"], fields["status"])
	}

	failed := logs.FilterMessage("document create failed").All()
	if len(failed) != 1 {
		t.Fatalf("expected 1 failure entry, got %d", len(failed))
	}
	if failed[0].Level != zapcore.WarnLevel {
		t.Errorf("expected warn level, got %s", failed[0].Level)
	}
	if _, ok := failed[0].ContextMap()["error"]; !ok {
		t.Error("failure entry should carry the error")
	}
}

func TestAttach_Close(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := Attach(zap.New(core))
	sink.Close()

	capitan.Emit(context.Background(), docket.CountCompleted, docket.FieldCount.Field(int64(3)))
	sink.Drain(context.Background())

	if logs.Len() != 0 {
		t.Errorf("closed sink should not log, got %d entries", logs.Len())
	}
}

func TestAttach_NilLogger(t *testing.T) {
	sink := Attach(nil)
	defer sink.Close()
	if sink.logger == nil {
		t.Error("nil logger should be replaced")
	}
}

func TestFields_SkipsUnset(t *testing.T) {
	fs := []capitan.Field{
		docket.FieldOperation.Field(docket.OperationCount),
		docket.FieldCount.Field(int64(7)),
	}
	got := Fields(fs)
	if len(got) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(got))
	}
	if got[0].Key != "operation" || got[1].Key != "count" {
		t.Errorf("unexpected fields %v", got)
	}
}
