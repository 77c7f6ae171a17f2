package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/evac-dialogue/internal/health"
	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var (
	healthAddr    string
	healthService string
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe a running server's gRPC health endpoint",
	Long: `Queries grpc.health.v1 on --addr (default localhost:GRPC_PORT). Exits
non-zero unless the service reports SERVING.`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

func init() {
	healthCmd.Flags().StringVar(&healthAddr, "addr", "", "Health server address")
	healthCmd.Flags().StringVar(&healthService, "service", health.GeneratorService, "Service name to check")
}

func runHealth(cmd *cobra.Command, args []string) error {
	addr := healthAddr
	if addr == "" {
		if cfg.GRPCPort == "" {
			return fmt.Errorf("no --addr given and GRPC_PORT is not set")
		}
		addr = "localhost:" + cfg.GRPCPort
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, 5*time.Second)
	defer cancel()

	status, err := health.Check(ctx, addr, healthService)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", healthService, status)
	if status != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%s is %s", healthService, status)
	}
	return nil
}
