package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"reviewrag/internal/app"
	"reviewrag/internal/config"
	"reviewrag/internal/logger"
)

var (
	cfg        *config.Config
	verbose    bool
	outputJSON bool
)

var rootCmd = &cobra.Command{
	Use:           "reviewrag",
	Short:         "Scrape product reviews and draft replies from indexed context",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		// Logs go to stderr so command output on stdout stays machine readable.
		handler := slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
		slog.SetDefault(slog.New(logger.NewContextHandler(handler)))

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (and the scrape worker when enabled)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg)
	},
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [url]",
	Short: "Scrape one product page and index it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLocalApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			res, err := a.Scrape.Scrape(ctx, args[0])
			if err != nil {
				return fmt.Errorf("scrape failed: %w", err)
			}
			if outputJSON {
				return printJSON(cmd, res)
			}
			cmd.Printf("%s  %s\n", res.ProductID, res.ProductName)
			cmd.Printf("  reviews: %d (source: %s)\n", res.ReviewCount, res.ReviewSource)
			cmd.Printf("  documents stored: %d\n", res.Documents)
			if len(res.Degraded) > 0 {
				cmd.Printf("  degraded: %v\n", res.Degraded)
			}
			return nil
		})
	},
}

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "List indexed products",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLocalApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			products, err := a.Products.List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list products: %w", err)
			}
			if outputJSON {
				return printJSON(cmd, products)
			}
			if len(products) == 0 {
				cmd.Println("No products indexed yet.")
				return nil
			}
			for _, p := range products {
				cmd.Printf("  %-20s %-40s %-20s %d reviews\n", p.ProductID, p.ProductName, p.Category, p.ReviewCount)
			}
			return nil
		})
	},
}

var askCmd = &cobra.Command{
	Use:   "ask [product-id] [review text]",
	Short: "Draft a reply to a customer review of an indexed product",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLocalApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			resp, err := a.Chat.Reply(ctx, args[0], args[1])
			if err != nil {
				return fmt.Errorf("reply failed: %w", err)
			}
			if outputJSON {
				return printJSON(cmd, resp)
			}
			cmd.Println(resp.GeneratedReply)
			cmd.Printf("\n(context used: %d)\n", resp.ContextUsed)
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	for _, c := range []*cobra.Command{scrapeCmd, productsCmd, askCmd} {
		c.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	}
	rootCmd.AddCommand(serveCmd, scrapeCmd, productsCmd, askCmd)
	rootCmd.SetOut(os.Stdout)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	a, err := app.New(cfg, deps, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Resources.Warmup(ctx); err != nil {
		slog.Warn("warmup incomplete, resources will initialise on first use", "error", err)
	}

	return a.Run(ctx)
}

// withLocalApp builds an app for a one-shot command. Job history is recorded
// only when enabled; nothing is queued.
func withLocalApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	var deps *app.Dependencies
	if cfg.JobsEnabled {
		var err error
		deps, err = app.Bootstrap(ctx, cfg)
		if err != nil {
			return err
		}
		defer deps.Close()
		deps.NSQProducer.Stop()
		deps.NSQProducer = nil
	}

	a, err := app.New(cfg, deps, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
