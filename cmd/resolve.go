package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/autoresumefiller/autofill/internal/model"
)

var (
	resolveFieldsPath string
	resolveJobPath    string
	resolveCompany    string
	resolveTitle      string
	resolveParallel   int
	resolveExtract    bool
	resolveJSON       bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve answers for a set of form fields",
	Long:  "Reads field descriptors from a JSON file, resolves them in a fresh session and prints the answers.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		fields, err := readFields(resolveFieldsPath)
		if err != nil {
			return err
		}

		env, err := initEngine(ctx, "resolve")
		if err != nil {
			return err
		}
		defer env.Close()

		pctx := model.PromptContext{Company: resolveCompany, JobTitle: resolveTitle}
		if resolveJobPath != "" {
			data, err := os.ReadFile(resolveJobPath)
			if err != nil {
				return eris.Wrapf(err, "read job description %s", resolveJobPath)
			}
			pctx.JobDescription = strings.TrimSpace(string(data))

			if resolveExtract {
				posting, err := env.Orchestrator.ExtractJobPosting(ctx, pctx.JobDescription)
				if err != nil {
					zap.L().Warn("job posting extraction failed, using raw description", zap.Error(err))
				} else {
					pctx = mergePosting(pctx, posting.PromptContext(""))
				}
			}
		}

		sid := env.Sessions.Start()
		defer env.Sessions.EndSession(sid)

		res, err := env.Orchestrator.Resolve(ctx, sid, fields, pctx, resolveParallel)
		if err != nil {
			return eris.Wrap(err, "resolve")
		}

		if resolveJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		formatResults(os.Stdout, res)
		return nil
	},
}

// readFields accepts either a bare array of descriptors or an object with a
// "fields" array.
func readFields(path string) ([]model.FieldDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read fields %s", path)
	}

	var fields []model.FieldDescriptor
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		var doc struct {
			Fields []model.FieldDescriptor `json:"fields"`
		}
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, eris.Wrapf(err, "parse fields %s", path)
		}
		fields = doc.Fields
	} else if err := json.Unmarshal(data, &fields); err != nil {
		return nil, eris.Wrapf(err, "parse fields %s", path)
	}

	if len(fields) == 0 {
		return nil, eris.Errorf("no fields in %s", path)
	}
	for i := range fields {
		if fields[i].ID == "" {
			fields[i].ID = fmt.Sprintf("field_%d", i)
		}
	}
	return fields, nil
}

// mergePosting fills empty context values from an extracted posting.
func mergePosting(pctx, extracted model.PromptContext) model.PromptContext {
	if pctx.Company == "" {
		pctx.Company = extracted.Company
	}
	if pctx.JobTitle == "" {
		pctx.JobTitle = extracted.JobTitle
	}
	return pctx
}

// formatResults writes a table of answers and the batch summary to w.
func formatResults(out io.Writer, res *model.BatchResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FIELD\tSOURCE\tCONF\tANSWER")
	_, _ = fmt.Fprintln(w, "-----\t------\t----\t------")

	for _, r := range res.Results {
		source, answer := string(r.Source), ""
		if r.Answer != nil {
			answer = oneLine(r.Answer.Text, 60)
		}
		if r.ErrorKind != "" {
			source, answer = "failed", string(r.ErrorKind)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\n", oneLine(r.Label, 30), source, r.Confidence, answer)
	}
	_ = w.Flush()

	s := res.Summary
	_, _ = fmt.Fprintf(out, "\n%d fields: %d profile, %d session, %d cache, %d generated, %d failed; %d tokens, $%.6f, %dms\n",
		s.Total, s.FromExtraction, s.FromSession, s.FromCache, s.Generated, s.Failed, s.TotalTokens, s.TotalCostUSD, s.DurationMs)
}

// oneLine collapses whitespace and truncates s to n runes.
func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return s
}

func init() {
	resolveCmd.Flags().StringVar(&resolveFieldsPath, "fields", "", "JSON file with field descriptors (required)")
	resolveCmd.Flags().StringVar(&resolveJobPath, "job", "", "text file with the job description")
	resolveCmd.Flags().StringVar(&resolveCompany, "company", "", "company name")
	resolveCmd.Flags().StringVar(&resolveTitle, "title", "", "job title")
	resolveCmd.Flags().IntVar(&resolveParallel, "max-parallel", 0, "max concurrent provider calls (default from config)")
	resolveCmd.Flags().BoolVar(&resolveExtract, "extract", false, "extract company and title from the job description")
	resolveCmd.Flags().BoolVar(&resolveJSON, "json", false, "print the full batch result as JSON")
	_ = resolveCmd.MarkFlagRequired("fields")
	rootCmd.AddCommand(resolveCmd)
}
