package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inetanalyzer/agent/internal/verify"
	"github.com/inetanalyzer/agent/pkg/analyzer"
)

type sampleOptions struct {
	signaturePath string
	publicKey     string
	seed          int64
}

type sampledEndpoint struct {
	Host         string `json:"host"`
	Kinds        string `json:"kinds"`
	Weight       int    `json:"weight"`
	ExperimentID string `json:"experiment_id"`
	ObjectPath   string `json:"object_path"`
}

type sampleOutput struct {
	Count           int               `json:"count"`
	UploadEndpoints []string          `json:"upload_endpoints"`
	Dropped         int               `json:"dropped"`
	Sampled         []sampledEndpoint `json:"sampled"`
}

func newSampleCmd(root *rootOptions) *cobra.Command {
	opts := &sampleOptions{}
	cmd := &cobra.Command{
		Use:   "sample <document>",
		Short: "Show which endpoints one run would measure, without network access",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := root.loadConfig(ctx)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cmd.Flags().Changed("public-key") {
				cfg.Verify.PublicKey = opts.publicKey
			}
			if !cmd.Flags().Changed("seed") {
				opts.seed = cfg.Run.Seed
			}

			if opts.signaturePath != "" {
				if strings.TrimSpace(cfg.Verify.PublicKey) == "" {
					return fmt.Errorf("--signature requires a public key")
				}
				v, err := verify.NewMinisignVerifier(cfg.Verify.PublicKey)
				if err != nil {
					return err
				}
				if err := v.VerifyFile(ctx, args[0], opts.signaturePath); err != nil {
					return err
				}
			}

			document, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read configuration document: %w", err)
			}
			a, err := analyzer.New(analyzer.Options{Seed: opts.seed})
			if err != nil {
				return err
			}
			sampled, doc, err := a.Sample(document)
			if err != nil {
				return err
			}

			out := sampleOutput{
				Count:           doc.Count,
				UploadEndpoints: doc.UploadEndpoints,
				Dropped:         len(doc.Dropped),
				Sampled:         make([]sampledEndpoint, 0, len(sampled)),
			}
			for _, spec := range sampled {
				out.Sampled = append(out.Sampled, sampledEndpoint{
					Host:         spec.HostPattern,
					Kinds:        spec.Kinds.String(),
					Weight:       spec.Weight,
					ExperimentID: spec.ExperimentID,
					ObjectPath:   spec.ObjectPath,
				})
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&opts.signaturePath, "signature", "", "minisign signature to verify the document against")
	cmd.Flags().StringVar(&opts.publicKey, "public-key", "", "minisign public key (overrides verify.public_key)")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "fixed sampling seed (0 seeds from the clock)")
	return cmd
}
