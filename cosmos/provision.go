package cosmos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/docket"
)

// Provision creates the database and then the container described by opts
// when they do not exist. Resources that already exist are left untouched.
// After a container is created, Provision waits opts.SettleDelay.
// opts must already be validated.
func Provision(ctx context.Context, account Account, opts Options) error {
	dbCreated, err := ensureDatabase(ctx, account, opts)
	if err != nil {
		return err
	}
	capitan.Emit(ctx, DatabaseProvisioned,
		FieldDatabase.Field(opts.DatabaseID),
		FieldCreated.Field(dbCreated),
	)

	created, err := ensureContainer(ctx, account, opts)
	if err != nil {
		return err
	}
	capitan.Emit(ctx, ContainerProvisioned,
		FieldDatabase.Field(opts.DatabaseID),
		FieldContainer.Field(opts.ContainerID),
		FieldCreated.Field(created),
	)

	if created {
		return sleep(ctx, opts.SettleDelay)
	}
	return nil
}

func ensureDatabase(ctx context.Context, account Account, opts Options) (bool, error) {
	var dbOpts *azcosmos.CreateDatabaseOptions
	if opts.ProvisionAtDatabaseLevel {
		tp := azcosmos.NewManualThroughputProperties(opts.RequestUnits)
		dbOpts = &azcosmos.CreateDatabaseOptions{ThroughputProperties: &tp}
	}

	resp, err := account.CreateDatabase(ctx, azcosmos.DatabaseProperties{ID: opts.DatabaseID}, dbOpts)
	switch {
	case err == nil:
		status := statusOf(resp.RawResponse)
		if status != 0 && (status < 200 || status > 299) {
			return false, provisionError(ctx, "create database", opts, status, fmt.Errorf("database %q cannot be created", opts.DatabaseID))
		}
		return true, nil
	case isConflict(err):
		return false, nil
	default:
		return false, provisionError(ctx, "create database", opts, 0, err)
	}
}

func ensureContainer(ctx context.Context, account Account, opts Options) (bool, error) {
	props := azcosmos.ContainerProperties{
		ID: opts.ContainerID,
		PartitionKeyDefinition: azcosmos.PartitionKeyDefinition{
			Paths: []string{opts.PartitionKeyPath},
		},
		DefaultTimeToLive: opts.DefaultTTLSeconds,
	}
	var containerOpts *azcosmos.CreateContainerOptions
	if !opts.ProvisionAtDatabaseLevel {
		tp := azcosmos.NewManualThroughputProperties(opts.RequestUnits)
		containerOpts = &azcosmos.CreateContainerOptions{ThroughputProperties: &tp}
	}

	resp, err := account.CreateContainer(ctx, opts.DatabaseID, props, containerOpts)
	switch {
	case err == nil:
		status := statusOf(resp.RawResponse)
		if status != 0 && (status < 200 || status > 299) {
			return false, provisionError(ctx, "create container", opts, status, fmt.Errorf("container %q cannot be created", opts.ContainerID))
		}
		return true, nil
	case isConflict(err):
		return false, nil
	default:
		return false, provisionError(ctx, "create container", opts, 0, err)
	}
}

func provisionError(ctx context.Context, op string, opts Options, status int, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var re *azcore.ResponseError
	if errors.As(err, &re) {
		status = re.StatusCode
	}
	out := &docket.StoreError{Op: op, Status: status, Kind: docket.ErrProvisioning, Err: err}
	capitan.Emit(ctx, ProvisionFailed,
		FieldDatabase.Field(opts.DatabaseID),
		FieldContainer.Field(opts.ContainerID),
		docket.FieldStatus.Field(status),
		docket.FieldError.Field(out),
	)
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
