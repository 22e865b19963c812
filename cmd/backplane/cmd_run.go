package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"backplane/internal/contract"
)

var (
	runBackend   string
	runRoot      string
	runLane      string
	runModel     string
	runInclude   []string
	runExclude   []string
	runRequire   []string
	runAllowTool []string
	runDenyTool  []string
	runDenyRead  []string
	runDenyWrite []string
	runStream    bool
)

// runCmd submits one work order and prints the sealed receipt.
var runCmd = &cobra.Command{
	Use:   "run [task]",
	Short: "Submit a work order and print the sealed receipt",
	Long: `Builds a work order from the task description and the given flags,
executes it on the selected backend, and prints the sealed receipt as
JSON on stdout.

Capability requirements use name=level syntax, for example:
  backplane run "fix the tests" --require streaming=native --require tool_edit=emulated`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWorkOrder,
}

func init() {
	runCmd.Flags().StringVarP(&runBackend, "backend", "b", "", "backend to run on (default from config)")
	runCmd.Flags().StringVar(&runRoot, "root", ".", "workspace root")
	runCmd.Flags().StringVar(&runLane, "lane", string(contract.LanePatchFirst), "execution lane (patch_first or workspace_first)")
	runCmd.Flags().StringVar(&runModel, "model", "", "model hint passed to the backend")
	runCmd.Flags().StringSliceVar(&runInclude, "include", nil, "workspace include globs")
	runCmd.Flags().StringSliceVar(&runExclude, "exclude", nil, "workspace exclude globs")
	runCmd.Flags().StringSliceVar(&runRequire, "require", nil, "capability requirements (name=level)")
	runCmd.Flags().StringSliceVar(&runAllowTool, "allow-tool", nil, "tool allowlist globs")
	runCmd.Flags().StringSliceVar(&runDenyTool, "deny-tool", nil, "tool denylist globs")
	runCmd.Flags().StringSliceVar(&runDenyRead, "deny-read", nil, "path globs denied for reading")
	runCmd.Flags().StringSliceVar(&runDenyWrite, "deny-write", nil, "path globs denied for writing")
	runCmd.Flags().BoolVar(&runStream, "stream", false, "print events to stderr as they arrive")
}

// parseRequirement splits "name=level" and validates the level.
func parseRequirement(s string) (contract.Capability, contract.SupportLevel, error) {
	name, level, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return "", "", fmt.Errorf("invalid requirement %q, expected name=level", s)
	}
	switch contract.SupportLevel(level) {
	case contract.SupportNative, contract.SupportEmulated, contract.SupportUnsupported:
		return contract.Capability(name), contract.SupportLevel(level), nil
	}
	return "", "", fmt.Errorf("invalid support level %q in requirement %q", level, s)
}

func runWorkOrder(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}

	backend := runBackend
	if backend == "" {
		backend = cfg.DefaultBackend
	}

	b := contract.NewWorkOrder(strings.Join(args, " ")).
		Lane(contract.ExecutionLane(runLane)).
		Root(runRoot).
		Include(runInclude...).
		Exclude(runExclude...)
	if runModel != "" {
		b.Model(runModel)
	}
	for _, req := range runRequire {
		name, level, err := parseRequirement(req)
		if err != nil {
			return err
		}
		b.Require(name, level)
	}

	profile := cfg.Policy.Profile()
	profile.AllowedTools = append(profile.AllowedTools, runAllowTool...)
	profile.DisallowedTools = append(profile.DisallowedTools, runDenyTool...)
	profile.DenyRead = append(profile.DenyRead, runDenyRead...)
	profile.DenyWrite = append(profile.DenyWrite, runDenyWrite...)
	b.Policy(profile)

	wo := b.Build()

	var (
		rec contract.Receipt
		g   errgroup.Group
	)
	if runStream {
		events := make(chan contract.AgentEvent, 64)
		g.Go(func() error {
			for ev := range events {
				line, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				fmt.Fprintln(os.Stderr, string(line))
			}
			return nil
		})
		rec, err = rt.RunStreaming(cmd.Context(), backend, wo, events)
		close(events)
	} else {
		rec, err = rt.Submit(cmd.Context(), backend, wo)
	}
	if gerr := g.Wait(); gerr != nil {
		return gerr
	}
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
