package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xhad/veritas/pkg/research"
	"github.com/xhad/veritas/server"
)

var (
	askResearch bool
	askFile     string
	askFacts    bool
	askJSON     bool

	chatResearch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat, export and document search API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, err := buildPipeline()
		if err != nil {
			return err
		}
		defer p.Close()

		srv := server.New(server.Config{
			Addr:           config.Server.Addr,
			RequestTimeout: config.Server.RequestTimeout,
			Logger:         logger.Named("server"),
		}, p.orchestrator, p.retriever)
		return srv.ListenAndServe(ctx)
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one question and print the report",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, err := buildPipeline()
		if err != nil {
			return err
		}
		defer p.Close()

		query := strings.Join(args, " ")
		if askFacts {
			for _, fact := range research.ExtractKeyFacts(p.searcher.Search(ctx, query, config.Search.MaxResults)) {
				fmt.Printf("- %s\n", fact)
			}
			return nil
		}

		resp, err := p.orchestrator.RunWithProgress(ctx, research.Request{
			Message:     query,
			UseResearch: askResearch,
			FileURL:     askFile,
		}, func(stage research.Stage) {
			logger.Debug("Pipeline stage", zap.String("stage", string(stage)))
		})
		if err != nil {
			return err
		}

		if askJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}
		printResponse(resp)
		return nil
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <url>",
	Short: "Fetch a document and add it to the index",
	Long: `ingest downloads a PDF, DOCX, text or HTML document, splits it into
chunks, embeds them and stores them. Without a database the index lives
only as long as the process, so ingest is mostly useful with database.url.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, err := buildPipeline()
		if err != nil {
			return err
		}
		defer p.Close()

		spinner := getSpinner("📄 Ingesting " + args[0])
		err = p.retriever.Ingest(ctx, args[0])
		spinner.Finish()
		fmt.Print("\n")
		if err != nil {
			return err
		}
		color.Green("✓ Ingested %s\n", args[0])
		return nil
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Print the readable content of a web page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, err := buildPipeline()
		if err != nil {
			return err
		}
		defer p.Close()

		content, err := research.FetchSource(ctx, p.searcher, args[0])
		if err != nil {
			return err
		}
		fmt.Println(content)
		return nil
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat interactively",
	Long: `chat starts an interactive session. Type a question to get an answer,
"/ingest <url>" to add a document, "/research" to toggle web search and
"exit" to quit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, err := buildPipeline()
		if err != nil {
			return err
		}
		defer p.Close()

		return runChat(ctx, p, chatResearch)
	},
}

func init() {
	askCmd.Flags().BoolVar(&askResearch, "research", false, "gather web evidence before answering")
	askCmd.Flags().StringVar(&askFile, "file", "", "document URL to ingest before answering")
	askCmd.Flags().BoolVar(&askFacts, "facts", false, "only print key facts from web search results")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the answer payload as JSON")

	chatCmd.Flags().BoolVar(&chatResearch, "research", true, "gather web evidence before answering")

	rootCmd.AddCommand(serveCmd, askCmd, ingestCmd, fetchCmd, chatCmd)
}

func runChat(ctx context.Context, p *pipeline, useResearch bool) error {
	color.Cyan("\nAsk me anything (type 'exit' to quit)")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		query := strings.TrimSpace(scanner.Text())
		switch {
		case query == "":
			continue
		case strings.ToLower(query) == "exit":
			return nil
		case query == "/research":
			useResearch = !useResearch
			color.Yellow("Web research %s\n", map[bool]string{true: "on", false: "off"}[useResearch])
			continue
		case strings.HasPrefix(query, "/ingest "):
			url := strings.TrimSpace(strings.TrimPrefix(query, "/ingest "))
			spinner := getSpinner("📄 Processing document...")
			err := p.retriever.Ingest(ctx, url)
			spinner.Finish()
			fmt.Print("\r")
			if err != nil {
				color.Red("Error: %v\n", err)
				continue
			}
			color.Green("✓ Ingested %s\n", url)
			continue
		}

		var spinner *progressbar.ProgressBar
		resp, err := p.orchestrator.RunWithProgress(ctx, research.Request{
			Message:     query,
			UseResearch: useResearch,
		}, func(stage research.Stage) {
			if spinner != nil {
				spinner.Finish()
			}
			spinner = getSpinner(stageLabel(stage))
		})
		if spinner != nil {
			spinner.Finish()
			fmt.Print("\r")
		}
		if err != nil {
			color.Red("Error: %v\n", err)
			continue
		}

		printResponse(resp)
	}
}

func stageLabel(stage research.Stage) string {
	switch stage {
	case research.StageIngest:
		return "📄 Processing document..."
	case research.StageEvidence:
		return "🔍 Gathering evidence..."
	default:
		return "🤖 Generating response..."
	}
}

func printResponse(resp *research.Response) {
	assistant := color.New(color.FgCyan).PrintfFunc()
	assistant("\nAssistant: %s\n", resp.Content)

	confidence := color.GreenString("%d%%", resp.Confidence)
	if resp.FlagForReview {
		confidence = color.YellowString("%d%% (flagged for review)", resp.Confidence)
	}
	fmt.Printf("\nConfidence: %s\n", confidence)

	if resp.Limitations != "" {
		fmt.Printf("Limitations: %s\n", resp.Limitations)
	}
	if len(resp.Sources) > 0 {
		color.Blue("\nSources:")
		for i, s := range resp.Sources {
			fmt.Printf("%d. %s\n   %s\n", i+1, s.Title, s.URL)
		}
	}
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionSetWriter(os.Stderr),
	)
}
