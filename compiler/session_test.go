package compiler_test

import (
	"context"
	"testing"

	"github.com/euler-graph/euler/compiler"
	"github.com/euler-graph/euler/config"
	"github.com/euler-graph/euler/dag"
	"github.com/euler-graph/euler/tensor"
	"github.com/euler-graph/euler/translate"
)

// copyKernel gives both GET_NODE and AS just enough behavior to
// prove the Session's translate -> optimise -> cache -> execute pipeline,
// matching the teacher-style stub kernels used in worker/service_test.go
// (individual operator kernels are a non-goal of the spec).
type copyKernel struct{}

func (copyKernel) Compute(node tensor.NodeDef, ctx *tensor.Context) error {
	n := node.(*dag.NodeDef)
	in, err := ctx.Get(n.Inputs[0].String())
	if err != nil {
		return err
	}
	return ctx.InstallAlias(n.NodeName()+":0", in)
}

func localRegistry() *tensor.Registry {
	reg := tensor.NewRegistry()
	reg.Register("GET_NODE", func() (any, error) { return copyKernel{}, nil })
	reg.Register(translate.OpAs, func() (any, error) { return copyKernel{}, nil })
	return reg
}

func TestSessionRunCompilesTranslatesAndExecutesLocally(t *testing.T) {
	s, err := compiler.New(nil,
		compiler.WithClientOptions(config.ClientOptions{Mode: config.ModeLocal}),
		compiler.WithRegistry(localRegistry()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	root := &translate.Step{Kind: translate.KindAPI, Op: "GET_NODE", InputName: "ids"}
	aliased := &translate.Step{Kind: translate.KindAlias, Prev: root, Alias: "out"}

	ids := tensor.New(tensor.I32, tensor.Shape{2}, "default")
	copy(ids.Bytes(), []byte{7, 0, 0, 0, 8, 0, 0, 0})

	inputs := map[string]*tensor.Tensor{"ids": ids}
	out, err := s.Run(context.Background(), "g.V().as('out')", aliased, inputs, []string{"AS,2:0"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := out["AS,2:0"]
	if got == nil {
		t.Fatal("expected AS,2:0 in the result map")
	}
	if string(got.Bytes()) != string(ids.Bytes()) {
		t.Fatalf("expected the AS node to forward the GET_NODE output unchanged")
	}
}

func TestSessionRunReusesCachedCompile(t *testing.T) {
	s, err := compiler.New(nil,
		compiler.WithClientOptions(config.ClientOptions{Mode: config.ModeLocal}),
		compiler.WithRegistry(localRegistry()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	root := &translate.Step{Kind: translate.KindAPI, Op: "GET_NODE", InputName: "ids"}
	aliased := &translate.Step{Kind: translate.KindAlias, Prev: root, Alias: "out"}
	key := "g.V().as('out')"

	ids := tensor.New(tensor.I32, tensor.Shape{1}, "default")
	inputs := map[string]*tensor.Tensor{"ids": ids}

	if _, err := s.Run(context.Background(), key, aliased, inputs, []string{"AS,2:0"}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if _, err := s.Run(context.Background(), key, aliased, inputs, []string{"AS,2:0"}); err != nil {
		t.Fatalf("second Run: %v", err)
	}
}

func TestSessionNewRejectsRemoteModeWithoutMembership(t *testing.T) {
	_, err := compiler.New(nil, compiler.WithClientOptions(config.ClientOptions{Mode: config.ModeRemote}))
	if err == nil {
		t.Fatal("expected ModeRemote without a membership monitor to be rejected")
	}
}

func TestSessionRunAsyncDeliversResult(t *testing.T) {
	s, err := compiler.New(nil,
		compiler.WithClientOptions(config.ClientOptions{Mode: config.ModeLocal}),
		compiler.WithRegistry(localRegistry()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	root := &translate.Step{Kind: translate.KindAPI, Op: "GET_NODE", InputName: "ids"}
	aliased := &translate.Step{Kind: translate.KindAlias, Prev: root, Alias: "out"}
	ids := tensor.New(tensor.I32, tensor.Shape{1}, "default")
	inputs := map[string]*tensor.Tensor{"ids": ids}

	done := make(chan error, 1)
	s.RunAsync(context.Background(), "g.V().as('out')", aliased, inputs, []string{"AS,2:0"}, func(_ map[string]*tensor.Tensor, err error) {
		done <- err
	})
	if err := <-done; err != nil {
		t.Fatalf("RunAsync: %v", err)
	}
}
