//go:build integration

package cosmos

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/zoobzio/docket/cosmos"
	"github.com/zoobzio/docket/testing/integration/document"
)

// emulatorKey is the emulator's published well-known account key.
const emulatorKey = "C2y6yDjf5/R+ob0N8A7Cgv30VRDJIWEHLM+4QDU5DE2nQ9nDuVTqobD4b8mGGyPMbIZnqyMsEcaGQy67XIw/Jw=="

var tc *document.TestContext

func TestMain(m *testing.M) {
	ctx := context.Background()

	emulator, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mcr.microsoft.com/cosmosdb/linux/azure-cosmos-emulator:vnext-preview",
			ExposedPorts: []string{"8081/tcp"},
			Env:          map[string]string{"PROTOCOL": "http"},
			WaitingFor: wait.ForListeningPort("8081/tcp").
				WithStartupTimeout(120 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		panic("failed to start cosmos emulator: " + err.Error())
	}

	host, err := emulator.Host(ctx)
	if err != nil {
		panic("failed to get emulator host: " + err.Error())
	}
	port, err := emulator.MappedPort(ctx, "8081/tcp")
	if err != nil {
		panic("failed to get emulator port: " + err.Error())
	}

	manager := cosmos.NewManager()
	provider, err := manager.Resolve(ctx, cosmos.Options{
		ConnectionString: fmt.Sprintf("AccountEndpoint=http://%s:%s/;AccountKey=%s;", host, port.Port(), emulatorKey),
		DatabaseID:       "docket",
		ContainerID:      "products",
		PartitionKeyPath: document.PartitionPath,
		UseGatewayMode:   true,
		RetryMaxAttempts: 3,
		RetryMaxWait:     5 * time.Second,
	})
	if err != nil {
		panic("failed to resolve cosmos provider: " + err.Error())
	}

	tc = &document.TestContext{
		Provider: provider,
		Cleanup: func() {
			_ = manager.Close()
			_ = emulator.Terminate(ctx)
		},
	}

	code := m.Run()

	tc.Cleanup()

	os.Exit(code)
}

func TestCosmos_CRUD(t *testing.T) {
	document.RunCRUDTests(t, tc)
}

func TestCosmos_Query(t *testing.T) {
	document.RunPartitionQueryTests(t, tc)
}

func TestCosmos_Count(t *testing.T) {
	document.RunCountTests(t, tc)
}

func TestCosmos_PartitionKeyPath(t *testing.T) {
	if got := tc.Provider.PartitionKeyPath(); got != document.PartitionPath {
		t.Errorf("expected %s, got %s", document.PartitionPath, got)
	}
}
