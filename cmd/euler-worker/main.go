// Command euler-worker runs the Worker Service (C9): a gRPC server that
// receives an execution DAG and input tensors from a peer, runs the DAG
// on a local exec.Pool, and streams back named output tensors.
//
// Individual operator kernels are a non-goal of this repository (spec.md
// §1); production deployments register them into tensor.Global() from
// their own init() functions, linked into this binary, before Execute is
// a real server waits on.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"

	"github.com/euler-graph/euler/elog"
	"github.com/euler-graph/euler/eulerpb"
	"github.com/euler-graph/euler/exec"
	"github.com/euler-graph/euler/tensor"
	"github.com/euler-graph/euler/worker"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		elog.Fatalf("euler-worker: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	v := viper.New()
	v.SetEnvPrefix("euler_worker")
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "euler-worker",
		Short: "Run a Euler shard worker (C9 Worker Service)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v, configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a worker config file (toml/yaml/json)")
	cmd.Flags().Int("port", 6000, "listen port")
	cmd.Flags().Int("num-threads", 8, "compute pool worker goroutines")
	cmd.Flags().Int32("v", 0, "trace verbosity")
	_ = v.BindPFlag("port", cmd.Flags().Lookup("port"))
	_ = v.BindPFlag("num_threads", cmd.Flags().Lookup("num-threads"))
	_ = v.BindPFlag("v", cmd.Flags().Lookup("v"))

	return cmd
}

func run(v *viper.Viper, configPath string) error {
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %q: %w", configPath, err)
		}
	}
	elog.SetV(v.GetInt32("v"))

	port := v.GetInt("port")
	numThreads := v.GetInt("num_threads")
	if numThreads <= 0 {
		numThreads = 8
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", port, err)
	}

	pool := exec.NewPool(numThreads)
	defer pool.Close()

	srv := worker.New(pool, tensor.Global())
	s := grpc.NewServer()
	eulerpb.RegisterWorkerServer(s, srv)

	errc := make(chan error, 1)
	go func() {
		elog.Infof("[%s] listening on :%d with %d compute workers", elog.SModuleWorker, port, numThreads)
		errc <- s.Serve(lis)
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errc:
		return err
	case sig := <-sigc:
		elog.Infof("[%s] received %s, shutting down", elog.SModuleWorker, sig)
		s.GracefulStop()
		return nil
	}
}
