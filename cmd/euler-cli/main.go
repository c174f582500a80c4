// Command euler-cli is a thin query shell around the client pipeline
// (compiler.Session), one subcommand per verb in aistore's own
// cmd/cli/cli convention. Tokenising and parsing Gremlin-like query text
// is the textual-grammar concern spec.md §1 explicitly excludes, so
// "query" takes a single operator plus its external inputs directly
// (spec §4.5's "single-op convenience" compile path) rather than a
// traversal expression.
package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/euler-graph/euler/compiler"
	"github.com/euler-graph/euler/config"
	"github.com/euler-graph/euler/elog"
	"github.com/euler-graph/euler/membership"
	"github.com/euler-graph/euler/tensor"
	"github.com/euler-graph/euler/translate"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "euler-cli:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "euler-cli",
		Short: "Query shell for a Euler graph-query cluster",
	}
	root.PersistentFlags().String("config", "", "path to a client config file (toml/yaml/json)")
	root.PersistentFlags().Int32("v", 0, "trace verbosity")

	root.AddCommand(newQueryCmd(root), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the client version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("euler-cli (client options per spec §6)")
		},
	}
}

func newQueryCmd(root *cobra.Command) *cobra.Command {
	var (
		op        string
		alias     string
		inputs    []string
		outputs   []string
		mode      string
		shardNum  int
		staticDB  string
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Compile and run a single-op query (spec §4.5 single-op convenience path)",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := loadConfig(root)
			elog.SetV(v.GetInt32("v"))
			return runQuery(op, alias, inputs, outputs, mode, shardNum, staticDB)
		},
	}
	cmd.Flags().StringVar(&op, "op", "", "operator name, e.g. GET_NODE (required)")
	cmd.Flags().StringVar(&alias, "alias", "", "AS alias to wrap the op in, if any")
	cmd.Flags().StringArrayVar(&inputs, "input", nil, "name=v1,v2,... int64 input tensor, repeatable")
	cmd.Flags().StringArrayVar(&outputs, "output", nil, "wire tensor name to fetch back, repeatable (required)")
	cmd.Flags().StringVar(&mode, "mode", string(config.ModeLocal), "client mode: Local, Remote, graph_partition")
	cmd.Flags().IntVar(&shardNum, "shard-num", 1, "shard count (Remote/graph_partition modes)")
	cmd.Flags().StringVar(&staticDB, "members-db", "", "buntdb file backing a static membership monitor (Remote/graph_partition modes)")
	_ = cmd.MarkFlagRequired("op")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func loadConfig(root *cobra.Command) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("euler_cli")
	v.AutomaticEnv()
	if path, _ := root.PersistentFlags().GetString("config"); path != "" {
		v.SetConfigFile(path)
		_ = v.ReadInConfig() // best-effort: flags/env still apply on a missing file
	}
	if verbosity, err := root.PersistentFlags().GetInt32("v"); err == nil {
		v.Set("v", verbosity)
	}
	return v
}

func runQuery(op, alias string, rawInputs, outputs []string, mode string, shardNum int, staticDB string) error {
	inputs, err := parseInputs(rawInputs)
	if err != nil {
		return err
	}

	root := &translate.Step{Kind: translate.KindAPI, Op: op, InputName: firstInputName(rawInputs)}
	var chain *translate.Step = root
	if alias != "" {
		chain = &translate.Step{Kind: translate.KindAlias, Prev: root, Alias: alias}
	}

	opts := config.DefaultClientOptions()
	opts.Mode = config.ClientMode(mode)
	opts.ShardNum = shardNum

	var members *membership.Base
	if opts.Mode != config.ModeLocal {
		if staticDB == "" {
			return fmt.Errorf("--members-db is required for mode %q", mode)
		}
		sm, err := membership.OpenStaticMonitor(staticDB)
		if err != nil {
			return fmt.Errorf("open static monitor %q: %w", staticDB, err)
		}
		defer sm.Close()
		members = sm.Base
	}

	session, err := compiler.New(members, compiler.WithClientOptions(opts))
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer session.Close()
	if err := session.Init(); err != nil {
		return fmt.Errorf("init session: %w", err)
	}

	key := fmt.Sprintf("op=%s alias=%s", op, alias)
	result, err := session.Run(context.Background(), key, chain, inputs, outputs)
	if err != nil {
		return fmt.Errorf("run query: %w", err)
	}
	for _, name := range outputs {
		t := result[name]
		fmt.Printf("%s: %s = %v\n", name, t.String(), decodeI64(t))
	}
	return nil
}

// parseInputs turns repeated "name=v1,v2,..." flags into int64 tensors.
func parseInputs(raw []string) (map[string]*tensor.Tensor, error) {
	out := make(map[string]*tensor.Tensor, len(raw))
	for _, s := range raw {
		name, valsStr, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("malformed --input %q, expected name=v1,v2,...", s)
		}
		var vals []int64
		for _, tok := range strings.Split(valsStr, ",") {
			n, err := strconv.ParseInt(strings.TrimSpace(tok), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("malformed --input %q: %w", s, err)
			}
			vals = append(vals, n)
		}
		t := tensor.New(tensor.I64, tensor.Shape{int64(len(vals))}, "default")
		b := t.Bytes()
		for i, n := range vals {
			binary.LittleEndian.PutUint64(b[i*8:], uint64(n))
		}
		out[name] = t
	}
	return out, nil
}

func firstInputName(raw []string) string {
	if len(raw) == 0 {
		return ""
	}
	name, _, _ := strings.Cut(raw[0], "=")
	return name
}

func decodeI64(t *tensor.Tensor) []int64 {
	if t == nil || t.DType != tensor.I64 {
		return nil
	}
	b := t.Bytes()
	out := make([]int64, len(b)/8)
	for i := range out {
		out[i] = int64(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return out
}
