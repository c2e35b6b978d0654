package main

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"

	"github.com/signalsfoundry/svc-compliance/internal/compliance"
	"github.com/signalsfoundry/svc-compliance/internal/grpcapi"
	"github.com/signalsfoundry/svc-compliance/internal/region"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

func TestBoxFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		wantNil bool
		wantErr bool
	}{
		{name: "no bounds", args: nil, wantNil: true},
		{name: "min only", args: []string{"--min-lat=30", "--min-lon=-105"}},
		{name: "both", args: []string{"--min-lat=30", "--min-lon=-105", "--max-lat=35", "--max-lon=-100"}},
		{name: "half corner", args: []string{"--max-lat=35"}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			box := &boxFlags{}
			cmd := &cobra.Command{Use: "box"}
			box.register(cmd)
			if err := cmd.Flags().Parse(tc.args); err != nil {
				t.Fatalf("parse flags: %v", err)
			}
			f, err := box.filter(cmd)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("filter: %v", err)
			}
			if (f == nil) != tc.wantNil {
				t.Fatalf("filter = %+v, wantNil %v", f, tc.wantNil)
			}
		})
	}
}

func TestSubmitPlanAgainstServer(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	backend, err := region.New("nl", region.Options{})
	if err != nil {
		t.Fatalf("region.New: %v", err)
	}
	srv := grpc.NewServer()
	grpcapi.RegisterComplianceServer(srv, compliance.NewServer(backend, nil, nil, nil))
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--endpoint", lis.Addr().String(), "submit-plan", "123"})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("submit-plan: %v", err)
	}
	if !strings.Contains(out.String(), `"submitted": true`) {
		t.Fatalf("output = %s", out.String())
	}
}
