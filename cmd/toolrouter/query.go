package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolrouter/agent"
	"github.com/effective-security/toolrouter/callbacks"
	"github.com/effective-security/toolrouter/factory"
	"github.com/effective-security/toolrouter/pkg/llmutils"
	"github.com/spf13/cobra"
)

var (
	chatMode       string
	conversationID string
	verbose        bool
	outputFull     bool
)

var chatCmd = &cobra.Command{
	Use:   "chat <query>",
	Short: "Answer the query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChat,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <query>",
	Short: "Show the extracted entities, the selected tools and the chain analysis of the query",
	Long: `Show the extracted entities, the selected tools and the chain analysis of the query.

The backends are not called, the tools are loaded from the tool service when it is available.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools of the tool service",
	RunE:  runTools,
}

func init() {
	chatCmd.Flags().StringVar(&chatMode, "mode", agent.ModeChain, "processing mode: single, memory, chain")
	chatCmd.Flags().StringVar(&conversationID, "conversation", "", "conversation ID")
	chatCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print the pipeline events")
	chatCmd.Flags().BoolVar(&outputFull, "full", false, "print the full result as YAML")
}

func runChat(cmd *cobra.Command, args []string) error {
	mode := callbacks.ModeDefault
	if verbose {
		mode = callbacks.ModeVerbose
	}

	a, _, err := factory.Load(cfgFile, agent.WithCallback(callbacks.NewPrinter(cmd.ErrOrStderr(), mode)))
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if !a.Initialize(ctx) {
		st := a.Status()
		return errors.Newf("agent not initialized: tool backend: %s, generation: %s",
			st.LastToolError, st.LastGenerationError)
	}

	query := strings.Join(args, " ")
	var res *agent.Result
	switch chatMode {
	case agent.ModeSingle:
		res = a.Process(ctx, query)
	case agent.ModeMemory:
		res = a.ProcessWithMemory(ctx, query, conversationID)
	case agent.ModeChain:
		res = a.ProcessWithChaining(ctx, query, conversationID)
	default:
		return errors.Newf("unsupported mode: %s", chatMode)
	}

	w := cmd.OutOrStdout()
	if outputFull {
		fmt.Fprint(w, llmutils.ToYAML(res))
	} else {
		fmt.Fprintln(w, res.Response)
	}
	if !res.Success {
		return errors.Newf("query failed: %s", res.Error)
	}
	return nil
}

// loadTools returns the Agent with the tools loaded from the tool service
func loadTools(ctx context.Context) (*agent.Agent, error) {
	a, _, err := factory.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if _, err = a.RefreshTools(ctx); err != nil {
		return nil, errors.WithMessage(err, "unable to load tools")
	}
	return a, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	a, err := loadTools(cmd.Context())
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
		if a, _, err = factory.Load(cfgFile); err != nil {
			return err
		}
	}
	fmt.Fprint(cmd.OutOrStdout(), llmutils.ToYAML(a.Analyze(strings.Join(args, " "))))
	return nil
}

func runTools(cmd *cobra.Command, _ []string) error {
	a, err := loadTools(cmd.Context())
	if err != nil {
		return err
	}

	cat := a.Selector().Categorizer()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCATEGORY\tDESCRIPTION")
	for _, d := range a.Registry().Snapshot() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, cat.CategoryOf(d.Name), llmutils.Truncate(d.Description, 80))
	}
	return w.Flush()
}
