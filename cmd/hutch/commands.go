package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jbweber/homelab/hutch/internal/api"
	"github.com/jbweber/homelab/hutch/internal/config"
	"github.com/jbweber/homelab/hutch/internal/datastore"
	"github.com/jbweber/homelab/hutch/internal/domain"
	"github.com/jbweber/homelab/hutch/internal/migrations"
	"github.com/jbweber/homelab/hutch/internal/repository"
	"github.com/jbweber/homelab/hutch/internal/scheduler"
	"github.com/jbweber/homelab/hutch/internal/switchconf"
	"github.com/jbweber/homelab/hutch/internal/vlan"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const dateFormat = "2006-01-02 15:04"

// options are the persistent flags shared by every command
type options struct {
	configPath string
	dbPath     string
	logLevel   string
}

// env is the opened store and the services built on it
type env struct {
	cfg       *config.Config
	ds        *datastore.Datastore
	hosts     repository.HostRepository
	clouds    repository.CloudRepository
	schedules repository.ScheduleRepository
	scheduler *scheduler.Scheduler
}

func (o *options) config() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.dbPath != "" {
		cfg.DBPath = o.dbPath
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if err := config.SetupLogging(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *options) open() (*env, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	ds, err := cfg.InitializeDatabase()
	if err != nil {
		return nil, err
	}

	e := &env{
		cfg:       cfg,
		ds:        ds,
		hosts:     repository.NewHostRepository(ds.DB),
		clouds:    repository.NewCloudRepository(ds.DB),
		schedules: repository.NewScheduleRepository(ds.DB),
	}
	e.scheduler = scheduler.New(e.hosts, e.clouds, e.schedules)
	return e, nil
}

func (e *env) Close() {
	if err := e.schedules.Close(); err != nil {
		log.WithField("error", err).Warn("failed to close statements")
	}
	if err := e.ds.Close(); err != nil {
		log.WithField("error", err).Warn("failed to close database")
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "hutch",
		Short:         "hutch schedules lab hosts into clouds",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "database path (overrides config)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (overrides config)")

	root.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newMovesCommand(opts),
		newVlansCommand(opts),
		newVerifySwitchCommand(opts),
		newRefreshOwnersCommand(opts),
	)
	return root
}

func newServeCommand(opts *options) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}
			ds, err := cfg.InitializeDatabase()
			if err != nil {
				return err
			}
			defer ds.Close()

			a := api.NewAPI(ds, vlan.NewAllocator(cfg))
			defer a.Close()

			srv := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           api.NewRouter(a),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdown); err != nil {
					log.WithField("error", err).Warn("server shutdown failed")
				}
			}()

			log.WithFields(log.Fields{"port": cfg.Port, "db": cfg.DBPath}).Info("starting hutch")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides config)")
	return cmd
}

func newMigrateCommand(opts *options) *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()

			if down {
				if err := migrations.Rollback(e.ds.DB); err != nil {
					return fmt.Errorf("rollback failed: %w", err)
				}
			}
			version, err := migrations.NewMigrator(e.ds.DB).GetCurrentVersion()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "revert the latest migration (the next start applies it again)")
	return cmd
}

func newMovesCommand(opts *options) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "moves",
		Short: "list hosts changing cloud between now and --date",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()

			target := e.scheduler.Now()
			if date != "" {
				if target, err = time.Parse(dateFormat, date); err != nil {
					return fmt.Errorf("could not parse date %q, expected %s", date, dateFormat)
				}
			}

			moves, err := e.scheduler.ComputeMoves(cmd.Context(), target)
			if err != nil {
				return err
			}
			if len(moves) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to do.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "HOST\tCURRENT\tNEW")
			for _, m := range moves {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", m.Host, m.Current, m.New)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&date, "date", "d", "", "target date ("+dateFormat+"), defaults to now")
	return cmd
}

func newVlansCommand(opts *options) *cobra.Command {
	var host string
	cmd := &cobra.Command{
		Use:   "vlans",
		Short: "show the expected VLAN of every interface of a host",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()

			targets, err := e.targets(cmd.Context(), host, "")
			if err != nil {
				return err
			}
			allocator := vlan.NewAllocator(e.cfg)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "HOST\tCLOUD\tINTERFACE\tSWITCH\tPORT\tVLAN")
			for _, t := range targets {
				if t.Err != nil {
					return t.Err
				}
				assignments, err := allocator.HostVlans(t.Host, t.Cloud)
				if err != nil {
					return err
				}
				for _, a := range assignments {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n", t.Host.Name, t.Cloud.Name, a.Interface, a.SwitchIP, a.Port, a.Vlan)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "host name")
	_ = cmd.MarkFlagRequired("host")
	return cmd
}

func newVerifySwitchCommand(opts *options) *cobra.Command {
	var (
		host    string
		cloud   string
		workers int
	)
	cmd := &cobra.Command{
		Use:   "verify-switch",
		Short: "compare switch port VLANs with the expected assignment",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()

			targets, err := e.targets(cmd.Context(), host, cloud)
			if err != nil {
				return err
			}
			querier, err := switchconf.NewSSHQuerier(e.cfg.Switch.User, e.cfg.SwitchKeyPath(),
				e.cfg.SwitchKnownHostsPath(), e.cfg.Switch.Timeout)
			if err != nil {
				return err
			}
			return verify(cmd, &vlan.Verifier{
				Allocator: vlan.NewAllocator(e.cfg),
				Querier:   querier,
				Workers:   workers,
			}, targets)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "only verify this host")
	cmd.Flags().StringVar(&cloud, "cloud", "", "only verify hosts currently in this cloud")
	cmd.Flags().IntVar(&workers, "workers", 4, "concurrent switch queries")
	return cmd
}

// verify prints one line per interface and fails when any interface disagrees.
func verify(cmd *cobra.Command, v *vlan.Verifier, targets []vlan.Target) error {
	results, err := v.Verify(cmd.Context(), targets)
	if err != nil {
		return err
	}

	var mismatches int
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HOST\tINTERFACE\tSWITCH\tPORT\tEXPECTED\tACTUAL\tSTATUS")
	for _, r := range results {
		status := "ok"
		switch {
		case r.Err != nil:
			status = "error: " + r.Err.Error()
			mismatches++
		case !r.Match():
			status = "mismatch"
			mismatches++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n", r.Host, r.Interface, r.SwitchIP, r.Port, r.Expected, r.Actual, status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if mismatches > 0 {
		return fmt.Errorf("%d of %d interfaces do not match", mismatches, len(results))
	}
	return nil
}

func newRefreshOwnersCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-owners",
		Short: "recompute the cached cloud of every host",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.scheduler.RefreshOwners(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Refreshed host owners")
			return nil
		},
	}
}

// targets pairs each host (or just the named one) with the cloud owning it now,
// keeping only hosts owned by cloud when it is set. A host whose owner cannot be
// resolved is kept with Err set, whatever the filter.
func (e *env) targets(ctx context.Context, name, cloud string) ([]vlan.Target, error) {
	var hosts []domain.Host
	if name != "" {
		host, err := e.hosts.FindByName(ctx, name)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, host)
	} else {
		all, err := e.hosts.FindAll(ctx)
		if err != nil {
			return nil, err
		}
		hosts = all
	}

	now := e.scheduler.Now()
	var owned map[string]bool
	if cloud != "" && cloud != domain.DefaultCloud {
		if _, err := e.clouds.FindByName(ctx, cloud); err != nil {
			return nil, err
		}
		active, err := e.scheduler.CurrentScheduleForCloud(ctx, cloud, now)
		switch {
		case errors.Is(err, scheduler.ErrCorrupt):
			// resolve host by host so only the corrupt one is reported
		case err != nil:
			return nil, err
		default:
			owned = map[string]bool{}
			for _, r := range active {
				owned[r.Host] = true
			}
		}
	}

	targets := make([]vlan.Target, 0, len(hosts))
	for _, h := range hosts {
		if owned != nil && !owned[h.Name] {
			continue
		}
		c, err := e.scheduler.OwningCloud(ctx, h.Name, now)
		if err != nil {
			log.WithFields(log.Fields{
				"host":  h.Name,
				"error": err,
			}).Warn("cannot resolve owning cloud")
			targets = append(targets, vlan.Target{Host: h, Err: err})
			continue
		}
		if cloud != "" && c.Name != cloud {
			continue
		}
		targets = append(targets, vlan.Target{Host: h, Cloud: c})
	}
	return targets, nil
}
