package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/quill/internal/api"
	"github.com/kalambet/quill/internal/config"
	"github.com/kalambet/quill/internal/profilestore"
)

// --- profiles ---

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List writing profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/profiles")
		if err != nil {
			return err
		}

		var infos []api.ProfileInfo
		if err := decodeJSON(resp, &infos); err != nil {
			return err
		}

		for _, info := range infos {
			name := colorize(colorBold, info.Name)
			fmt.Printf("  %s — %d samples, %d feedback, learning score %+d\n",
				name, info.SampleCount, info.FeedbackCount, info.LearningScore)
		}
		return nil
	},
}

// --- create ---

var createCmd = &cobra.Command{
	Use:   "create <profile>",
	Short: "Create a writing profile",
	Long: `Create a writing profile from samples.

Samples are read from --file or stdin. Separate individual samples with
blank lines or "---" marker lines.

Examples:
  quill create work --file my_posts.txt
  cat posts.txt | quill create casual`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		samples, err := readSamplesInput(cmd)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/profiles", map[string]string{
			"name":    args[0],
			"samples": samples,
		})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Created profile %s", args[0])
		return nil
	},
}

// --- import ---

var importCmd = &cobra.Command{
	Use:   "import <profile> <file>...",
	Short: "Import writing samples from files",
	Long: `Import writing samples into a profile from text, PDF, or HTML files.

Examples:
  quill import work posts.txt
  quill import work old_posts.pdf blog_export.html`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		profile := args[0]

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		for _, path := range args[1:] {
			printStep("Importing %s", path)
			text, err := profilestore.ReadSampleFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			if strings.TrimSpace(text) == "" {
				printWarning("%s contained no text, skipped", path)
				continue
			}

			resp, err := client.post(cmd.Context(), "/profiles/"+profile+"/samples", map[string]string{
				"samples": text,
			})
			if err != nil {
				return err
			}
			var result map[string]string
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}
		}
		printSuccess("Imported %d file(s) into %s", len(args)-1, profile)
		return nil
	},
}

// --- generate ---

var generateCmd = &cobra.Command{
	Use:   "generate <context>",
	Short: "Draft a post about a topic",
	Long: `Draft a post about a topic in the profile's voice.

Examples:
  quill generate "we just shipped v2 of the search engine"
  quill generate --profile work --instruction "keep it under 100 words" "hiring two backend engineers"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, _ := cmd.Flags().GetString("profile")
		instruction, _ := cmd.Flags().GetString("instruction")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Drafting...")
		resp, err := client.post(cmd.Context(), "/generate", map[string]string{
			"profile":     profile,
			"context":     args[0],
			"instruction": instruction,
		})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		fmt.Println(result["result"])
		return nil
	},
}

// --- feedback ---

var feedbackCmd = &cobra.Command{
	Use:   "feedback <positive|negative|refinement> <text>",
	Short: "Record feedback on the last generated post",
	Long: `Record feedback on a generated post so future drafts improve.

Examples:
  quill feedback positive "love the short punchy opening"
  quill feedback negative "too corporate, drop the buzzwords"
  quill feedback refinement "make it half as long" --refine-to "cut everything after the second paragraph"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, _ := cmd.Flags().GetString("profile")
		post, _ := cmd.Flags().GetString("post")
		topicContext, _ := cmd.Flags().GetString("context")
		refineTo, _ := cmd.Flags().GetString("refine-to")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/feedback", map[string]string{
			"profile":                profile,
			"feedback_type":          args[0],
			"feedback_text":          args[1],
			"generated_post":         post,
			"context":                topicContext,
			"refinement_instruction": refineTo,
		})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("%s", result["message"])
		return nil
	},
}

// --- summary ---

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show a profile's feedback summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, _ := cmd.Flags().GetString("profile")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/profiles/"+profile+"/feedback")
		if err != nil {
			return err
		}

		var sum struct {
			Total         int `json:"total_feedback"`
			Positive      int `json:"positive"`
			Negative      int `json:"negative"`
			Refinements   int `json:"refinements"`
			LearningScore int `json:"learning_score"`
			Recent        []struct {
				Text string `json:"feedback_text"`
				Kind string `json:"feedback_type"`
			} `json:"recent_patterns"`
		}
		if err := decodeJSON(resp, &sum); err != nil {
			return err
		}

		printStatus("Profile", "%s", profile)
		printStatus("Feedback", "%d total (%d positive, %d negative, %d refinements)",
			sum.Total, sum.Positive, sum.Negative, sum.Refinements)
		printStatus("Learning score", "%+d", sum.LearningScore)
		if len(sum.Recent) > 0 {
			printStatus("Recent", "")
			for _, p := range sum.Recent {
				fmt.Fprintf(os.Stderr, "    [%s] %s\n", p.Kind, p.Text)
			}
		}
		return nil
	},
}

func readSamplesInput(cmd *cobra.Command) (string, error) {
	file, _ := cmd.Flags().GetString("file")
	if file != "" {
		return profilestore.ReadSampleFile(file)
	}

	stat, err := os.Stdin.Stat()
	if err == nil && (stat.Mode()&os.ModeCharDevice) == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	return "", fmt.Errorf("no samples given: use --file or pipe text on stdin")
}

func init() {
	createCmd.Flags().String("file", "", "file with writing samples (text, PDF, or HTML)")

	generateCmd.Flags().String("profile", profilestore.DefaultProfile, "profile to draft as")
	generateCmd.Flags().String("instruction", "", "extra instructions for the draft")

	feedbackCmd.Flags().String("profile", profilestore.DefaultProfile, "profile the feedback belongs to")
	feedbackCmd.Flags().String("post", "", "the generated post the feedback refers to")
	feedbackCmd.Flags().String("context", "", "the topic the post was generated for")
	feedbackCmd.Flags().String("refine-to", "", "for refinement feedback: how to change the post")

	summaryCmd.Flags().String("profile", profilestore.DefaultProfile, "profile to summarize")
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

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
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

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
