package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/discovery"
	"github.com/spf13/cobra"
)

func instancesCmd() *cobra.Command {
	var service string
	cmd := &cobra.Command{
		Use:   "instances",
		Short: "List the instances registered in etcd",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			if len(cfg.Etcd.Endpoints) == 0 {
				return errors.New("etcd.endpoints is not configured")
			}
			if service == "" {
				service = cfg.Server.Name
			}

			sd, err := discovery.NewServiceDiscovery(&cfg.Etcd, log)
			if err != nil {
				return err
			}
			defer sd.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			instances, err := sd.Discover(ctx, service)
			if err != nil {
				return err
			}
			if len(instances) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no instances of %s registered\n", service)
				return nil
			}
			for _, instance := range instances {
				fmt.Fprintln(cmd.OutOrStdout(), instance.Addr())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&service, "service", "s", "", "service name (defaults to server.name)")
	return cmd
}
