package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Seungwon-Robin/Chatbot/config"
	"github.com/Seungwon-Robin/Chatbot/controllers"
	"github.com/Seungwon-Robin/Chatbot/evaluation"
	"github.com/Seungwon-Robin/Chatbot/services"
	"github.com/Seungwon-Robin/Chatbot/storage"

	"github.com/spf13/cobra"
)

const pageTitle = "Music Recommendation Chatbot"

var (
	configPath string

	evalDataset  string
	evalOutput   string
	evalGenerate bool

	seedTarget string
)

var rootCmd = &cobra.Command{
	Use:   "chatbot",
	Short: "Music recommendation chatbot",
	Long: `Recommends songs from a music catalog. The catalog descriptions are
embedded into a similarity index and the closest songs are handed to a
generative model that writes the recommendation.`,
	SilenceUsage: true,
	RunE:         runServer,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat web server (default)",
	RunE:  runServer,
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score retrieval (and optionally answers) against a question dataset",
	RunE:  runEvaluation,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Copy the CSV catalog into MongoDB or SQLite",
	RunE:  runSeed,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")

	evaluateCmd.Flags().StringVar(&evalDataset, "dataset", "evaluation/dataset.json", "question dataset")
	evaluateCmd.Flags().StringVar(&evalOutput, "out", "evaluation/results/baseline.json", "report output file")
	evaluateCmd.Flags().BoolVar(&evalGenerate, "generate", false, "also generate answers and score them")

	seedCmd.Flags().StringVar(&seedTarget, "target", config.SourceSQLite, "destination: mongo or sqlite")

	rootCmd.AddCommand(serveCmd, evaluateCmd, seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chatbot, err := newChatbot(ctx, cfg)
	if err != nil {
		fatalStartup(err)
	}

	// the chat page still serves when the model is unreachable; requests fail with 500
	if err := newGenerator(cfg).TestConnection(ctx); err != nil {
		log.Printf("Warning: generative model check failed: %v", err)
	}

	router, err := controllers.NewRouter(cfg.Server.Environment, controllers.NewChatController(chatbot, pageTitle))
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Printf("Music chatbot server starting on %s", addr)
	log.Printf("Catalog: %s (%d songs)", cfg.Catalog.Source, chatbot.Status().Songs)
	log.Printf("Embedding model: %s", cfg.Embedder.Model)
	log.Printf("Generative model: %s", cfg.ModelName)
	log.Printf("Environment: %s", cfg.Server.Environment)

	if err := router.Run(addr); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// fatalStartup exits the process. Startup failures are never retried.
func fatalStartup(err error) {
	var startupErr *services.StartupError
	if errors.As(err, &startupErr) {
		log.Fatalf("Chatbot could not start (%s): %v", startupErr.Stage, startupErr.Err)
	}
	log.Fatalf("Chatbot could not start: %v", err)
}

func runEvaluation(cmd *cobra.Command, _ []string) error {
	log.Println("Starting evaluation mode...")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if evalGenerate {
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	questions, err := evaluation.LoadDataset(evalDataset)
	if err != nil {
		return err
	}
	log.Printf("Loaded %d questions from %s", len(questions), evalDataset)

	ctx := cmd.Context()
	chatbot, err := newChatbot(ctx, cfg)
	if err != nil {
		fatalStartup(err)
	}

	var answerer evaluation.Answerer
	if evalGenerate {
		answerer = chatbot
	}
	evaluator := evaluation.NewEvaluator(chatbot.Retriever(), answerer, cfg.Retrieval.TopK, map[string]any{
		"top_k":           cfg.Retrieval.TopK,
		"embedding_model": cfg.Embedder.Model,
		"llm_model":       cfg.ModelName,
		"catalog_source":  cfg.Catalog.Source,
		"generate":        evalGenerate,
	})

	report, err := evaluator.Evaluate(ctx, questions)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	evaluation.PrintSummary(report)

	if err := evaluation.SaveReport(report, evalOutput); err != nil {
		return err
	}

	log.Printf("Evaluation complete! Results saved to %s", evalOutput)
	return nil
}

func runSeed(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	catalog, err := storage.LoadCatalog(cfg.Catalog.Path)
	if err != nil {
		return err
	}

	if err := seedCatalog(cmd.Context(), cfg, seedTarget, catalog); err != nil {
		return err
	}
	log.Printf("Seeded %d songs into %s", catalog.Len(), seedTarget)
	return nil
}

func seedCatalog(ctx context.Context, cfg *config.Config, target string, catalog *storage.Catalog) error {
	switch target {
	case config.SourceMongo:
		store, err := storage.NewMongoStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.EnsurePositionIndex(); err != nil {
			return err
		}
		if err := store.ReplaceCatalog(ctx, catalog); err != nil {
			return err
		}
		count, err := store.CountSongs(ctx)
		if err != nil {
			return err
		}
		if count != int64(catalog.Len()) {
			return fmt.Errorf("mongo holds %d songs after seeding %d", count, catalog.Len())
		}
		return nil
	case config.SourceSQLite:
		db, err := storage.OpenSQLite(cfg.Catalog.SQLitePath)
		if err != nil {
			return err
		}
		defer db.Close()
		return db.ReplaceCatalog(ctx, catalog)
	default:
		return fmt.Errorf("unknown seed target %q (want %s or %s)", target, config.SourceMongo, config.SourceSQLite)
	}
}
