package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/kalambet/ticketkb/internal/config"
	"github.com/kalambet/ticketkb/internal/drafting"
	"github.com/kalambet/ticketkb/internal/kb"
	"github.com/kalambet/ticketkb/internal/pipeline"
	"github.com/kalambet/ticketkb/internal/transcript"
)

func parseTags(s string) []string {
	tags := []string{}
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- draft ---

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Create and review knowledge-base drafts",
}

var draftCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Generate a draft from a resolved ticket",
	Long: `Generate a draft from a resolved ticket.

Examples:
  ticketkb draft create --ticket-id T-1042 --title "Cannot log in" \
      --resolution "Cleared the SSO session cache" --tags auth,sso
  ticketkb draft create --ticket-id T-1043 --title "VPN drops" --transcript chat.html`,
	RunE: func(cmd *cobra.Command, args []string) error {
		t := kb.Ticket{}
		t.TicketID, _ = cmd.Flags().GetString("ticket-id")
		t.Title, _ = cmd.Flags().GetString("title")
		t.Description, _ = cmd.Flags().GetString("description")
		t.ResolutionDetails, _ = cmd.Flags().GetString("resolution")
		tagsStr, _ := cmd.Flags().GetString("tags")
		transcriptPath, _ := cmd.Flags().GetString("transcript")

		if t.TicketID == "" || t.Title == "" {
			return fmt.Errorf("--ticket-id and --title are required")
		}
		if tagsStr != "" {
			t.Tags = parseTags(tagsStr)
		}
		if transcriptPath != "" {
			text, err := transcript.Load(transcriptPath)
			if err != nil {
				return err
			}
			t.ConversationLog = text
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/kb/drafts/from_ticket", t)
		if err != nil {
			return err
		}
		var d kb.Draft
		if err := decodeJSON(resp, &d); err != nil {
			return err
		}

		printSuccess("Created draft %s", d.ID)
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n\n%s\n", colorize(colorBold, d.Title), d.ContentMarkdown)
		return nil
	},
}

func init() {
	draftCreateCmd.Flags().String("ticket-id", "", "ticket identifier")
	draftCreateCmd.Flags().String("title", "", "ticket title")
	draftCreateCmd.Flags().String("description", "", "problem description")
	draftCreateCmd.Flags().String("resolution", "", "resolution details")
	draftCreateCmd.Flags().String("transcript", "", "conversation transcript file (.txt, .html or .pdf)")
	draftCreateCmd.Flags().String("tags", "", "comma-separated tags")
}

// ticketFile is one entry of an import file. Paths in transcript_file are
// relative to the import file.
type ticketFile struct {
	kb.Ticket      `yaml:",inline"`
	TranscriptFile string `yaml:"transcript_file,omitempty"`
}

// loadTickets reads a YAML import file: either a list of tickets or a
// mapping with a "tickets" list.
func loadTickets(path string) ([]kb.Ticket, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading import file: %w", err)
	}

	var entries []ticketFile
	if err := yaml.Unmarshal(data, &entries); err != nil {
		var wrapped struct {
			Tickets []ticketFile `yaml:"tickets"`
		}
		if err2 := yaml.Unmarshal(data, &wrapped); err2 != nil {
			return nil, fmt.Errorf("parsing import file: %w", err)
		}
		entries = wrapped.Tickets
	}

	tickets := make([]kb.Ticket, len(entries))
	for i, e := range entries {
		if e.TranscriptFile != "" {
			p := e.TranscriptFile
			if !filepath.IsAbs(p) {
				p = filepath.Join(filepath.Dir(path), p)
			}
			text, err := transcript.Load(p)
			if err != nil {
				return nil, fmt.Errorf("ticket %s: %w", e.TicketID, err)
			}
			e.ConversationLog = text
		}
		tickets[i] = e.Ticket
	}
	return tickets, nil
}

var draftImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Generate drafts for every ticket in a YAML file",
	Long: `Generate drafts for every ticket in a YAML file.

The file is a list of tickets (or a mapping with a "tickets" list):

  - ticket_id: T-1042
    title: Cannot log in
    resolution_details: Cleared the SSO session cache
    tags: [auth, sso]
    transcript_file: chats/T-1042.html

With --local the drafts are generated in-process against the configured
storage instead of through a running server.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tickets, err := loadTickets(args[0])
		if err != nil {
			return err
		}
		if len(tickets) == 0 {
			printWarning("No tickets found in %s", args[0])
			return nil
		}

		local, _ := cmd.Flags().GetBool("local")
		var results []drafting.BatchResult
		if local {
			results, err = importLocal(cmd.Context(), tickets)
		} else {
			results, err = importRemote(cmd.Context(), tickets)
		}
		if err != nil {
			return err
		}

		failed := 0
		for _, r := range results {
			if r.Err != nil {
				failed++
				printError("%s: %v", r.TicketID, r.Err)
				continue
			}
			printSuccess("%s -> draft %s", r.TicketID, r.Draft.ID)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d tickets failed", failed, len(results))
		}
		return nil
	},
}

func importLocal(ctx context.Context, tickets []kb.Ticket) ([]drafting.BatchResult, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogging(cfg)
	a, err := newApp(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer a.Close()
	return a.creator.FromTickets(ctx, tickets), nil
}

func importRemote(ctx context.Context, tickets []kb.Ticket) ([]drafting.BatchResult, error) {
	client, err := newAPIClient()
	if err != nil {
		return nil, err
	}
	results := make([]drafting.BatchResult, len(tickets))
	var g errgroup.Group
	g.SetLimit(4)
	for i, t := range tickets {
		g.Go(func() error {
			results[i].TicketID = t.TicketID
			resp, err := client.post(ctx, "/kb/drafts/from_ticket", t)
			if err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Err = decodeJSON(resp, &results[i].Draft)
			return nil
		})
	}
	g.Wait()
	return results, nil
}

func init() {
	draftImportCmd.Flags().Bool("local", false, "generate in-process instead of through the server")
}

var draftListCmd = &cobra.Command{
	Use:   "list",
	Short: "List drafts awaiting review",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/kb/drafts/pending")
		if err != nil {
			return err
		}
		var drafts []kb.Draft
		if err := decodeJSON(resp, &drafts); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(drafts) == 0 {
			fmt.Fprintln(out, "No pending drafts.")
			return nil
		}
		for _, d := range drafts {
			fmt.Fprintf(out, "%s  %s  %-10s  %s\n",
				colorize(colorCyan, d.ID),
				d.CreatedAt.Format("2006-01-02 15:04"),
				d.SourceTicketID,
				d.Title,
			)
		}
		return nil
	},
}

var draftShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a draft as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/kb/drafts/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var d kb.Draft
		if err := decodeJSON(resp, &d); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), d)
	},
}

var draftApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Publish a draft, optionally with edits",
	Long: `Publish a draft, optionally with edits.

Without flags the generated title, content and suggested tags are published
as they are.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/kb/drafts/"+url.PathEscape(id))
		if err != nil {
			return err
		}
		var d kb.Draft
		if err := decodeJSON(resp, &d); err != nil {
			return err
		}

		body := map[string]any{
			"final_title":            d.Title,
			"final_content_markdown": d.ContentMarkdown,
			"final_tags":             d.SuggestedTags,
		}
		if d.SuggestedTags == nil {
			body["final_tags"] = []string{}
		}
		if cmd.Flags().Changed("title") {
			body["final_title"], _ = cmd.Flags().GetString("title")
		}
		if cmd.Flags().Changed("tags") {
			tagsStr, _ := cmd.Flags().GetString("tags")
			body["final_tags"] = parseTags(tagsStr)
		}
		if path, _ := cmd.Flags().GetString("content-file"); path != "" {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading content file: %w", err)
			}
			body["final_content_markdown"] = string(data)
		}

		resp, err = client.put(cmd.Context(), "/kb/drafts/"+url.PathEscape(id)+"/approve", body)
		if err != nil {
			return err
		}
		var a kb.Article
		if err := decodeJSON(resp, &a); err != nil {
			return err
		}
		printSuccess("Published article %s", a.ID)
		return nil
	},
}

func init() {
	draftApproveCmd.Flags().String("title", "", "final title")
	draftApproveCmd.Flags().String("content-file", "", "file with the final markdown content")
	draftApproveCmd.Flags().String("tags", "", "final comma-separated tags")
}

var draftRejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Reject a draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		feedback, _ := cmd.Flags().GetString("feedback")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.put(cmd.Context(), "/kb/drafts/"+url.PathEscape(args[0])+"/reject",
			map[string]string{"feedback": feedback})
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("%s (%s)", result["message"], result["draft_id"])
		return nil
	},
}

func init() {
	draftRejectCmd.Flags().String("feedback", "", "reason for rejecting")

	draftCmd.AddCommand(draftCreateCmd, draftImportCmd, draftListCmd, draftShowCmd, draftApproveCmd, draftRejectCmd)
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search over published articles",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		topK, _ := cmd.Flags().GetInt("top-k")
		synthesize, _ := cmd.Flags().GetBool("synthesize")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{"query": query}
		if topK > 0 {
			body["top_k"] = topK
		}
		path := "/kb/search?synthesize_answer=" + strconv.FormatBool(synthesize)
		resp, err := client.post(cmd.Context(), path, body)
		if err != nil {
			return err
		}
		var result pipeline.Response
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if result.SynthesizedAnswer != nil {
			fmt.Fprintf(out, "%s\n%s\n", colorize(colorBold, "Answer"), *result.SynthesizedAnswer)
		}
		if len(result.Results) == 0 {
			fmt.Fprintln(out, "No results found.")
			return nil
		}
		for i, r := range result.Results {
			fmt.Fprintf(out, "\n%s [score: %.3f] %s\n",
				colorize(colorBold, fmt.Sprintf("%d. %s", i+1, r.Title)), r.Score, colorize(colorCyan, r.ID))
			fmt.Fprintf(out, "  %s\n", r.ContentSnippet)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("top-k", 0, "maximum number of results (default retrieval.top_k)")
	searchCmd.Flags().Bool("synthesize", false, "generate an answer from the top results")
}

// --- article ---

var articleCmd = &cobra.Command{
	Use:   "article",
	Short: "Read published articles",
}

var articleShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a published article",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/kb/published/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var a kb.Article
		if err := decodeJSON(resp, &a); err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd.OutOrStdout(), a)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\nTags: %s\n\n%s\n",
			colorize(colorBold, a.Title), strings.Join(a.Tags, ", "), a.ContentMarkdown)
		return nil
	},
}

func init() {
	articleShowCmd.Flags().Bool("json", false, "print the article as JSON")
	articleCmd.AddCommand(articleShowCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <key> <value>",
	Short: "Store a secret (" + strings.Join(config.SecretKeys(), ", ") + ") in the platform secret store",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetSecret(args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Stored %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configSetSecretCmd)
}
