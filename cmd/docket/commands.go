package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zoobzio/docket"
	"github.com/zoobzio/docket/config"
	"github.com/zoobzio/docket/cosmos"
	"github.com/zoobzio/docket/logsink"
	"github.com/zoobzio/docket/memory"
	"github.com/zoobzio/docket/mongo"
	"go.uber.org/zap"
)

// app holds the state shared by every command.
type app struct {
	configPath string
	verbose    bool

	cfg      *config.Config
	logger   *zap.Logger
	sink     *logsink.Sink
	provider docket.Provider
	closers  []func(context.Context) error
}

// queryFlags selects documents for list and count.
type queryFlags struct {
	partition string
	where     []string
	order     string
	desc      bool
	group     string
	skip      int
	take      int
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "docket",
		Short:         "Partition-aware document operations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.setup()
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (env: DOCKET_*)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "development logging")

	root.AddCommand(
		provisionCmd(a),
		getCmd(a),
		putCmd(a),
		deleteCmd(a),
		listCmd(a),
		countCmd(a),
	)
	return root
}

func provisionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Create the configured database and container when missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ready: %s store partitioned on %s\n", a.cfg.Store, p.PartitionKeyPath())
			return nil
		},
	}
}

func getCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <partition> <id>",
		Short: "Read one document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.repository(cmd.Context())
			if err != nil {
				return err
			}
			rec, err := repo.Get(cmd.Context(), docket.Key(args[1], args[0]))
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("%w: %s/%s", docket.ErrNotFound, args[0], args[1])
			}
			return writeJSON(cmd.OutOrStdout(), rec)
		},
	}
}

func putCmd(a *app) *cobra.Command {
	var create bool
	cmd := &cobra.Command{
		Use:   "put [json]",
		Short: "Upsert a document given as an argument or on stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.repository(cmd.Context())
			if err != nil {
				return err
			}
			var data []byte
			if len(args) == 1 {
				data = []byte(args[0])
			} else if data, err = io.ReadAll(bufio.NewReader(cmd.InOrStdin())); err != nil {
				return err
			}
			var rec record
			if err := json.Unmarshal(data, &rec); err != nil {
				return fmt.Errorf("%w: %w", docket.ErrDecode, err)
			}
			write := repo.Update
			if create {
				write = repo.Create
			}
			stored, err := write(cmd.Context(), &rec)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), stored)
		},
	}
	cmd.Flags().BoolVar(&create, "create", false, "fail if the document exists")
	return cmd
}

func deleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <partition> <id>",
		Short: "Delete one document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.repository(cmd.Context(), docket.WithPartitionKey(func(*record) string { return args[0] }))
			if err != nil {
				return err
			}
			rec := &record{Document: docket.Document{ID: args[1]}}
			if err := repo.Delete(cmd.Context(), rec); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s/%s\n", args[0], args[1])
			return nil
		},
	}
}

func listCmd(a *app) *cobra.Command {
	var q queryFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents, one JSON document per line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := a.repository(cmd.Context())
			if err != nil {
				return err
			}
			spec, err := q.specification()
			if err != nil {
				return err
			}
			items, err := repo.List(cmd.Context(), spec)
			if err != nil {
				return err
			}
			for _, item := range items {
				if err := writeJSON(cmd.OutOrStdout(), item); err != nil {
					return err
				}
			}
			return nil
		},
	}
	q.bind(cmd, true)
	return cmd
}

func countCmd(a *app) *cobra.Command {
	var q queryFlags
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := a.repository(cmd.Context())
			if err != nil {
				return err
			}
			spec, err := q.specification()
			if err != nil {
				return err
			}
			n, err := repo.Count(cmd.Context(), spec)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
	q.bind(cmd, false)
	return cmd
}

func (q *queryFlags) bind(cmd *cobra.Command, ordering bool) {
	f := cmd.Flags()
	f.StringVarP(&q.partition, "partition", "p", "", "partition key (empty: all partitions)")
	f.StringArrayVarP(&q.where, "where", "w", nil, "condition field=value, repeatable")
	f.IntVar(&q.skip, "skip", 0, "documents to skip")
	f.IntVar(&q.take, "take", -1, "documents to return (negative: unpaged)")
	if ordering {
		f.StringVar(&q.order, "order", "", "field to order by")
		f.BoolVar(&q.desc, "desc", false, "order descending")
		f.StringVar(&q.group, "group", "", "field to group by")
	}
}

func (q *queryFlags) specification() (docket.Specification[record], error) {
	var conds []docket.Condition
	for _, w := range q.where {
		field, value, ok := strings.Cut(w, "=")
		if !ok || field == "" {
			return docket.Specification[record]{}, fmt.Errorf("%w: --where %q is not field=value", docket.ErrInvalidQuery, w)
		}
		conds = append(conds, docket.Eq(field, parseValue(value)))
	}
	spec := docket.NewSpecification[record](conds...).InPartition(q.partition)
	switch {
	case q.order != "" && q.desc:
		spec = spec.OrderByDescending(q.order)
	case q.order != "":
		spec = spec.OrderBy(q.order)
	}
	if q.group != "" {
		spec = spec.GroupBy(q.group)
	}
	if q.take >= 0 {
		spec = spec.Page(q.skip, q.take)
	}
	return spec, nil
}

// parseValue reads numbers and booleans as such; anything else is a string.
func parseValue(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	return s
}

func (a *app) setup() error {
	if a.cfg == nil {
		cfg, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}
	if a.logger == nil {
		var err error
		if a.verbose {
			a.logger, err = zap.NewDevelopment()
		} else {
			a.logger, err = zap.NewProduction()
		}
		if err != nil {
			return err
		}
	}
	a.sink = logsink.Attach(a.logger)
	return nil
}

// teardown releases the store, flushes queued events and syncs the logger.
func (a *app) teardown(ctx context.Context) error {
	var first error
	for _, c := range a.closers {
		if err := c(ctx); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	if a.sink != nil {
		a.sink.Drain(ctx)
		a.sink.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return first
}

// open resolves the configured store once per run.
func (a *app) open(ctx context.Context) (docket.Provider, error) {
	if a.provider != nil {
		return a.provider, nil
	}
	switch a.cfg.Store {
	case config.StoreCosmos:
		m := cosmos.NewManager()
		a.closers = append(a.closers, func(context.Context) error { return m.Close() })
		p, err := m.Resolve(ctx, a.cfg.Cosmos)
		if err != nil {
			return nil, err
		}
		a.provider = p
	case config.StoreMongo:
		m := mongo.NewManager()
		a.closers = append(a.closers, m.Close)
		p, err := m.Resolve(ctx, a.cfg.Mongo)
		if err != nil {
			return nil, err
		}
		a.provider = p
	default:
		a.provider = memory.New(a.cfg.Memory.PartitionKeyPath, memory.WithPageSize(a.cfg.Memory.PageSize))
	}
	return a.provider, nil
}

func (a *app) repository(ctx context.Context, opts ...docket.Option[record]) (*docket.Repository[record], error) {
	p, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	return docket.NewRepository[record](p, opts...)
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
