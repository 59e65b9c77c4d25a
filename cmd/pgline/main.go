// Command pgline is a small client and connection monitor for
// PostgreSQL servers, built on the pgline library.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pgline/pgline"
	"github.com/pgline/pgline/internal/monitor"
	"github.com/pgline/pgline/pgtype"
)

var (
	connURL    string
	configPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "pgline",
		Short:         "PostgreSQL wire-protocol client and connection monitor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&connURL, "url", "", "connection URL (psql://user:pw@host:port/db)")

	queryCmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a query and print its rows",
		Args:  cobra.ExactArgs(1),
		RunE:  runQuery,
	}

	execCmd := &cobra.Command{
		Use:   "exec <sql>",
		Short: "Run a statement and print its command tags",
		Args:  cobra.ExactArgs(1),
		RunE:  runExec,
	}

	pingCmd := &cobra.Command{
		Use:   "ping",
		Short: "Probe the server with a liveness query",
		Args:  cobra.NoArgs,
		RunE:  runPing,
	}

	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run periodic liveness probes over configured profiles",
		Args:  cobra.NoArgs,
		RunE:  runMonitor,
	}
	monitorCmd.Flags().StringVar(&configPath, "config", "configs/pgline.yaml", "path to monitor configuration file")

	rootCmd.AddCommand(queryCmd, execCmd, pingCmd, monitorCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pgline:", err)
		os.Exit(1)
	}
}

func newClient() (*pgline.Client, error) {
	if connURL == "" {
		return nil, fmt.Errorf("--url is required")
	}
	return pgline.New(connURL)
}

func runQuery(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	res, err := client.Query(context.Background(), args[0])
	if err != nil {
		return err
	}

	for _, set := range res.Sets() {
		names := make([]string, len(set.Fields))
		for i, f := range set.Fields {
			names[i] = f.Name
		}
		fmt.Println(strings.Join(names, "\t"))
		for _, row := range set.Rows {
			cells := make([]string, len(row))
			for i, v := range row {
				if pgtype.IsNull(v) {
					cells[i] = "NULL"
				} else {
					cells[i] = fmt.Sprint(v)
				}
			}
			fmt.Println(strings.Join(cells, "\t"))
		}
	}
	for _, tag := range res.Tags() {
		fmt.Println(tag)
	}
	return nil
}

func runExec(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	tags, err := client.Exec(context.Background(), args[0])
	if err != nil {
		return err
	}
	for _, tag := range tags {
		fmt.Println(tag)
	}
	return nil
}

func runPing(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	if !client.IsWorking(context.Background()) {
		return fmt.Errorf("server is not responding")
	}
	fmt.Println("ok")
	return nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := monitor.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Printf("configuration loaded from %s (%d profiles)", configPath, len(cfg.Profiles))

	m := monitor.New()
	checker := monitor.NewChecker(cfg, m)
	checker.Start()

	server := monitor.NewServer(checker, m)
	if err := server.Start(cfg.Listen.Bind, cfg.Listen.Port); err != nil {
		return fmt.Errorf("starting status server: %w", err)
	}

	watcher, err := monitor.NewWatcher(configPath, func(newCfg *monitor.Config) {
		log.Printf("reloading configuration...")
		checker.Reload(newCfg)
	})
	if err != nil {
		log.Printf("warning: config hot-reload not available: %v", err)
	}

	log.Printf("pgline monitor ready - status API on %s:%d", cfg.Listen.Bind, cfg.Listen.Port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %s, shutting down...", sig)

	if watcher != nil {
		watcher.Stop()
	}
	server.Stop()
	checker.Stop()
	return nil
}
