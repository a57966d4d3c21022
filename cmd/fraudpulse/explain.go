package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"fraudpulse/internal/application"
	"fraudpulse/internal/infrastructure/backend"

	"github.com/spf13/cobra"
)

func explainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "explain <df_idx>",
		Short: "Stream the AI explanation for one backend row",
		Long: `Stream the natural-language explanation for the transaction stored at the
given backend row index. Fragments are printed as they arrive. If the stream
fails, the fallback message is printed instead and the command exits non-zero.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dfIdx, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || dfIdx < 0 {
				return fmt.Errorf("invalid df_idx %q", args[0])
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := backend.NewClient(backend.Config{BaseURL: cfg.BackendURL})
			if err != nil {
				return fmt.Errorf("backend client error: %w", err)
			}
			return streamExplanation(cmd.Context(), client, dfIdx, cmd.OutOrStdout())
		},
	}
}

// streamExplanation copies fragments to out as they arrive. On failure the partial
// text is followed by a newline and the fallback message.
func streamExplanation(ctx context.Context, source application.ExplanationSource, dfIdx int64, out io.Writer) error {
	stream, err := source.StreamExplanation(ctx, dfIdx)
	if err != nil {
		fmt.Fprintln(out, application.ExplanationFallback)
		return fmt.Errorf("explain %d: %w", dfIdx, err)
	}
	defer stream.Close()

	wrote := false
	for {
		fragment, err := stream.Next()
		if errors.Is(err, io.EOF) {
			if wrote {
				fmt.Fprintln(out)
			}
			return nil
		}
		if err != nil {
			if wrote {
				fmt.Fprintln(out)
			}
			fmt.Fprintln(out, application.ExplanationFallback)
			return fmt.Errorf("explain %d: %w", dfIdx, err)
		}
		if _, err := io.WriteString(out, fragment); err != nil {
			return err
		}
		wrote = wrote || fragment != ""
	}
}
