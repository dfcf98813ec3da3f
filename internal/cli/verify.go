package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/verity/internal/cache"
	"github.com/ppiankov/verity/internal/pipeline"
	"github.com/ppiankov/verity/internal/verify"
	"github.com/ppiankov/verity/internal/worker"
)

var (
	pageURL         string
	claimsFile      string
	feedbackCorrect bool
	feedbackText    string
)

var verifyCmd = &cobra.Command{
	Use:   "verify <text>",
	Short: "Verify a piece of text",
	Long: `Verify sends the given text to the verification service, as if it had been
selected on a page, and prints the rating.

With --file, every line of the file is one claim and all of them are sent
in a single batch request.

Example:
  verity verify "This supplement boosts energy by 300%."
  verity verify --url https://shop.example.com/item "Lasts 20 hours on one charge."
  verity verify --file claims.txt`,
	Args: func(cmd *cobra.Command, args []string) error {
		if claimsFile == "" && len(args) == 0 {
			return errors.New("requires the text to verify or --file")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext(time.Minute)
		defer cancel()

		pc := verify.PageContext{URL: pageURL}
		if u, err := url.Parse(pageURL); err == nil {
			pc.Domain = u.Hostname()
		}

		if claimsFile != "" {
			claims, err := worker.ReadLines(claimsFile)
			if err != nil {
				return fmt.Errorf("read claims: %w", err)
			}
			verifyClaims(ctx, client, claims, pc, stdout)
			return nil
		}

		result := client.Verify(ctx, strings.Join(args, " "), pc)
		_, _ = fmt.Fprint(stdout, pipeline.RenderResult(result))
		return nil
	},
}

// verifyClaims verifies claims in one batch and prints each result under its claim
func verifyClaims(ctx context.Context, client *verify.Client, claims []string, pc verify.PageContext, w io.Writer) {
	if len(claims) == 0 {
		_, _ = fmt.Fprintln(w, "No claims to verify")
		return
	}
	for i, result := range client.VerifyBatch(ctx, claims, pc) {
		_, _ = fmt.Fprintf(w, "%d. %s\n%s\n", i+1, claims[i], pipeline.RenderResult(result))
	}
}

var trustCmd = &cobra.Command{
	Use:   "trust <domain>",
	Short: "Show a domain's trust score",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext(time.Minute)
		defer cancel()

		_, _ = fmt.Fprintln(stdout, pipeline.RenderTrust(client.GetDomainTrust(ctx, args[0])))
		return nil
	},
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback <region-id>",
	Short: "Report whether a rating was correct",
	Long: `Feedback sends a best-effort report about a rated claim. Delivery is
attempted once; failures are logged and otherwise ignored.

Example:
  verity feedback verity-1718000000000-3f9a2c1b7 --correct=false --message "Source is outdated"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		client.ReportFeedback(context.Background(), args[0], feedbackCorrect, feedbackText)
		_, _ = fmt.Fprintln(stdout, "✓ Feedback submitted")
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the verification service is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext(30 * time.Second)
		defer cancel()

		if !client.Healthy(ctx) {
			return fmt.Errorf("verification service at %s is not healthy; results will be SIMULATED", client.Endpoint())
		}
		_, _ = fmt.Fprintf(stdout, "✓ Verification service at %s is healthy\n", client.Endpoint())
		return nil
	},
}

// newClient builds a verification client from the loaded configuration
func newClient() (*verify.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return verify.New(cfg.Settings.APIEndpoint, cfg.Client, cache.New(cfg.Cache), logger), nil
}

func init() {
	verifyCmd.Flags().StringVar(&pageURL, "url", "", "page the text was found on")
	verifyCmd.Flags().StringVar(&claimsFile, "file", "", "file with one claim per line, verified as a batch")
	feedbackCmd.Flags().BoolVar(&feedbackCorrect, "correct", true, "whether the rating was correct")
	feedbackCmd.Flags().StringVar(&feedbackText, "message", "", "free-form feedback")

	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(trustCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(healthCmd)
}
