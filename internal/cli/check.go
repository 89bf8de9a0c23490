package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/unitone-ai/rampart/internal/config"
	"github.com/unitone-ai/rampart/internal/engine"
	"github.com/unitone-ai/rampart/internal/engine/guards"
	"github.com/unitone-ai/rampart/internal/fingerprint"
	"github.com/unitone-ai/rampart/internal/mcp"
	"github.com/unitone-ai/rampart/internal/sandbox"
	"go.uber.org/zap"
)

// checkOutput is the JSON printed for one offline evaluation.
type checkOutput struct {
	Decision string         `json:"decision"`
	Reason   *engine.Reason `json:"reason,omitempty"`
	Payload  *mcp.Payload   `json:"payload,omitempty"`
	Guards   []checkExec    `json:"guards"`
}

type checkExec struct {
	GuardID   string  `json:"guard_id"`
	Decision  string  `json:"decision"`
	Error     string  `json:"error,omitempty"`
	LatencyMs float32 `json:"latency_ms"`
}

func newCheckCmd() *cobra.Command {
	var (
		configPath string
		route      string
		phaseName  string
		scopeKey   string
		target     string
	)

	cmd := &cobra.Command{
		Use:   "check [payload.json]",
		Short: "Evaluate one MCP payload against a route config and print the verdict",
		Long: `Evaluate one MCP payload offline, without starting the server.

The payload file (or stdin) holds a JSON object with exactly one of
"tools", "tool_call" or "tool_result", matching the phase.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			phase, ok := engine.ParsePhase(phaseName)
			if !ok {
				return fmt.Errorf("invalid phase %q", phaseName)
			}

			routes, err := config.Load(configPath)
			if err != nil {
				return err
			}

			var raw []byte
			if len(args) == 1 {
				raw, err = os.ReadFile(args[0])
			} else {
				raw, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return fmt.Errorf("read payload: %w", err)
			}

			var payload mcp.Payload
			if err := json.Unmarshal(raw, &payload); err != nil {
				return fmt.Errorf("parse payload: %w", err)
			}
			if payload.ToolList == nil && payload.Request == nil && payload.Response == nil {
				return fmt.Errorf("payload needs one of tools, tool_call, tool_result")
			}

			deps := guards.Deps{
				Fingerprints: fingerprint.NewStore(),
				Sandbox:      sandbox.Unavailable{},
				Logger:       zap.NewNop(),
			}
			provider := config.NewProvider(routes, deps, zap.NewNop())
			pipeline := provider.Route(route)
			if pipeline == nil {
				return fmt.Errorf("route %q not found in %s", route, configPath)
			}

			result := pipeline.Evaluate(cmd.Context(), phase, scopeKey, target, &payload)

			out := checkOutput{Decision: result.Verdict.Decision.String()}
			out.Reason = result.Verdict.Reason
			if result.Verdict.Decision == engine.DecisionModify {
				out.Payload = result.Verdict.ModifiedPayload
			}
			for _, e := range result.Executions {
				out.Guards = append(out.Guards, checkExec{
					GuardID:   e.GuardID,
					Decision:  e.Decision,
					Error:     e.Err,
					LatencyMs: e.LatencyMs,
				})
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "rampart.yaml", "Path to route config YAML")
	cmd.Flags().StringVar(&route, "route", "default", "Route to evaluate against")
	cmd.Flags().StringVar(&phaseName, "phase", "tools_list", "Phase: request, response, tools_list, tool_invoke")
	cmd.Flags().StringVar(&scopeKey, "scope", "", "Session scope key")
	cmd.Flags().StringVar(&target, "target", "", "Target server id")
	return cmd
}
