package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/folio/internal/composer"
	"github.com/kalambet/folio/internal/config"
	"github.com/kalambet/folio/internal/conversation"
	"github.com/kalambet/folio/internal/gatekeeper"
	"github.com/kalambet/folio/internal/profile"
	"github.com/kalambet/folio/internal/storage"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the running server one question",
	Long: `Ask the running server one question and print the answer.

Examples:
  folio ask "What projects have you built?"
  folio ask --raw "Tell me about your experience"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetBool("raw")
		client, err := newAPIClient(cmd)
		if err != nil {
			return err
		}
		return ask(cmd.Context(), client, strings.Join(args, " "), raw, os.Stdout)
	},
}

func init() {
	askCmd.Flags().Bool("raw", false, "print deltas as they arrive instead of rendered markdown")
}

func ask(ctx context.Context, c *apiClient, question string, raw bool, out io.Writer) error {
	sess := conversation.NewSession(nil)
	chat := conversation.NewClient(c.baseURL, nil)

	var w deltaWriter
	onUpdate := func(string) {}
	if raw {
		onUpdate = func(text string) { w.write(out, text) }
	}

	text, err := chat.Send(ctx, sess, question, nil, onUpdate)
	if err != nil {
		if raw {
			fmt.Fprintln(out)
		}
		return err
	}
	if raw {
		fmt.Fprintln(out)
		return nil
	}
	fmt.Fprint(out, renderMarkdown(text))
	return nil
}

// deltaWriter prints only the part of an accumulated reply not yet printed.
type deltaWriter struct {
	last string
}

func (d *deltaWriter) write(out io.Writer, text string) {
	if strings.HasPrefix(text, d.last) {
		fmt.Fprint(out, text[len(d.last):])
	} else {
		fmt.Fprint(out, "\n"+text)
	}
	d.last = text
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the running server interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient(cmd)
		if err != nil {
			return err
		}
		return chatLoop(cmd.Context(), client, os.Stdin, os.Stdout)
	},
}

func chatLoop(ctx context.Context, c *apiClient, in io.Reader, out io.Writer) error {
	var p *profile.Profile
	if b, err := fetchBundle(ctx, c); err == nil {
		p = b.Profile
	} else {
		printWarning("could not load profile: %v", err)
	}

	sess := conversation.NewSession(p)
	chat := conversation.NewClient(c.baseURL, nil)

	fmt.Fprintln(out, colorize(styleCyan, sess.Messages()[0].Content))
	fmt.Fprintln(out)
	for i, s := range conversation.SuggestedPrompts {
		fmt.Fprintf(out, "  %s %s\n", colorize(styleFaint, strconv.Itoa(i+1)+"."), s)
	}
	fmt.Fprintln(out, colorize(styleFaint, "\nType a question, a number to use a suggestion, \"transcript\" to review the chat, or \"exit\"."))

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, colorize(styleBold, "\n> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		switch question {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "transcript":
			fmt.Fprint(out, sess.Transcript())
			continue
		}
		if n, err := strconv.Atoi(question); err == nil && n >= 1 && n <= len(conversation.SuggestedPrompts) {
			question = conversation.SuggestedPrompts[n-1]
			fmt.Fprintln(out, colorize(styleFaint, question))
		}

		var w deltaWriter
		_, err := chat.Send(ctx, sess, question, nil, func(text string) {
			if text == conversation.ErrorReply {
				return
			}
			w.write(out, text)
		})
		fmt.Fprintln(out)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			printError("%s (%v)", conversation.ErrorReply, err)
		}
	}
}

// --- prompt ---

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Print the system prompt built from the current content",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		b, err := loadBundleForCLI(cmd.Context(), file)
		if err != nil {
			return err
		}
		system := composer.Compose(b)
		fmt.Println(system)
		printStatus("Estimated tokens", "%d", composer.EstimateTokens(system))
		return nil
	},
}

func init() {
	promptCmd.Flags().String("file", "", "read the bundle from a JSON file instead of the content source")
}

// --- classify ---

var classifyCmd = &cobra.Command{
	Use:   "classify <question>",
	Short: "Show how the relevance gate treats a question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		v, rule := gatekeeper.Explain(question)
		if v.Relevant {
			printSuccess("accepted (rule: %s)", rule)
			return nil
		}
		printWarning("rejected (rule: %s)", rule)
		fmt.Println(v.RejectionMessage())
		return nil
	},
}

// --- content ---

var contentCmd = &cobra.Command{
	Use:   "content",
	Short: "Manage portfolio content",
}

var contentImportCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Replace the local content store with a bundle file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := readBundleFile(args[0])
		if err != nil {
			return err
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		if err := store.ReplaceBundle(b); err != nil {
			return err
		}
		printSuccess("Imported %s into %s", args[0], cfg.Storage.DataDir)
		if cfg.Content.Source != config.SourceLocal {
			printWarning("content.source is %q, set it to %q to serve this content", cfg.Content.Source, config.SourceLocal)
		}
		return nil
	},
}

var contentShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the content the server would use",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		b, err := loadBundleForCLI(cmd.Context(), "")
		if err != nil {
			return err
		}
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(b)
		}
		printBundleSummary(b)
		return nil
	},
}

var contentPushCmd = &cobra.Command{
	Use:   "push <file.json>",
	Short: "Upload a bundle file to a running server's local store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := readBundleFile(args[0])
		if err != nil {
			return err
		}
		client, err := newAPIClient(cmd)
		if err != nil {
			return err
		}
		counts, err := pushBundle(cmd.Context(), client, b)
		if err != nil {
			return err
		}
		printSuccess("Pushed %s", args[0])
		printCounts(counts)
		return nil
	},
}

func init() {
	contentShowCmd.Flags().Bool("json", false, "print the full bundle as JSON")
	contentCmd.AddCommand(contentImportCmd, contentShowCmd, contentPushCmd)
}

func pushBundle(ctx context.Context, c *apiClient, b profile.Bundle) (map[string]int, error) {
	if c.token == "" {
		return nil, errors.New("server.admin_token is not set (FOLIO_ADMIN_TOKEN)")
	}
	resp, err := c.put(ctx, "/admin/content", b)
	if err != nil {
		return nil, err
	}
	var result struct {
		Counts map[string]int `json:"counts"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return nil, err
	}
	return result.Counts, nil
}

func fetchBundle(ctx context.Context, c *apiClient) (profile.Bundle, error) {
	resp, err := c.get(ctx, "/profile")
	if err != nil {
		return profile.Bundle{}, err
	}
	var b profile.Bundle
	if err := decodeJSON(resp, &b); err != nil {
		return profile.Bundle{}, err
	}
	return b, nil
}

func readBundleFile(path string) (profile.Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return profile.Bundle{}, fmt.Errorf("reading %s: %w", path, err)
	}
	var b profile.Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return profile.Bundle{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := profile.Validate(b); err != nil {
		return profile.Bundle{}, err
	}
	b.Sort()
	return b, nil
}

// loadBundleForCLI reads a bundle file when one is given, otherwise the
// configured content source.
func loadBundleForCLI(ctx context.Context, file string) (profile.Bundle, error) {
	if file != "" {
		return readBundleFile(file)
	}
	cfg, err := config.Load()
	if err != nil {
		return profile.Bundle{}, err
	}
	src, store, err := openContent(cfg)
	if err != nil {
		return profile.Bundle{}, err
	}
	if store != nil {
		defer store.Close()
	}
	return src.Fetch(ctx)
}

func printBundleSummary(b profile.Bundle) {
	if name := b.Profile.FullName(); name != "" {
		printStatus("Profile", "%s", name)
		if b.Profile.Headline != "" {
			printStatus("Headline", "%s", b.Profile.Headline)
		}
	} else {
		printStatus("Profile", "(none)")
	}
	printCounts(map[string]int{
		storage.KindExperience: len(b.Experience),
		storage.KindProject:    len(b.Projects),
		storage.KindSkill:      len(b.Skills),
		storage.KindEducation:  len(b.Education),
	})
}

func printCounts(counts map[string]int) {
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		printStatus(k, "%d", counts[k])
	}
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
			fmt.Printf("  %s = %s %s\n", colorize(styleBold, k.Key), k.Value, colorize(styleFaint, "("+k.EnvVar+")"))
		}
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		v, err := config.GetKey(cfg, args[0])
		if err != nil {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.ValidKeys(), ", "))
		}
		fmt.Println(v)
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

		if cfg, err := config.Load(); err == nil {
			if v, err := config.GetKey(cfg, key); err == nil {
				value = v
			}
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configGetCmd, configSetCmd)
}
