package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"surveydesk/internal/domain"
	"surveydesk/internal/report"
	"surveydesk/internal/survey"
)

func surveyCmd() *cobra.Command {
	sv := &cobra.Command{
		Use:   "survey",
		Short: "Manage surveys",
	}
	sv.AddCommand(surveyCreateCmd())
	sv.AddCommand(surveyListCmd())
	sv.AddCommand(surveyShowCmd())
	sv.AddCommand(surveyUpdateCmd())
	sv.AddCommand(surveyDeleteCmd())
	sv.AddCommand(surveyPublishCmd(true))
	sv.AddCommand(surveyPublishCmd(false))
	sv.AddCommand(surveyDuplicateCmd())
	sv.AddCommand(surveySearchCmd())
	sv.AddCommand(surveyExportCmd())
	sv.AddCommand(surveyImportCmd())
	sv.AddCommand(surveyAnalyticsCmd())
	return sv
}

// draftFlags collects survey fields from flags on top of an optional JSON
// draft file.
type draftFlags struct {
	file        string
	title       string
	description string
	public      bool
	tags        []string
}

func (f *draftFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "survey JSON draft (- for stdin)")
	cmd.Flags().StringVar(&f.title, "title", "", "title")
	cmd.Flags().StringVar(&f.description, "description", "", "description")
	cmd.Flags().BoolVar(&f.public, "public", false, "make the survey public")
	cmd.Flags().StringSliceVar(&f.tags, "tag", nil, "tags (repeatable)")
}

func (f *draftFlags) draft(cmd *cobra.Command) (domain.SurveyDraft, error) {
	var d domain.SurveyDraft
	if f.file != "" {
		if err := decodeJSONFile(f.file, &d); err != nil {
			return d, err
		}
	}
	if cmd.Flags().Changed("title") {
		d.Title = &f.title
	}
	if cmd.Flags().Changed("description") {
		d.Description = &f.description
	}
	if cmd.Flags().Changed("public") {
		d.IsPublic = &f.public
	}
	if cmd.Flags().Changed("tag") {
		d.Tags = f.tags
	}
	return d, nil
}

func surveyCreateCmd() *cobra.Command {
	var f draftFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a survey",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := f.draft(cmd)
			if err != nil {
				return err
			}
			if actor := viper.GetString("actor-id"); actor != "" && d.AuthorID == nil {
				d.AuthorID = &actor
			}
			return withService(cmd.Context(), func(ctx context.Context, svc *survey.Service) error {
				created, err := svc.Create(ctx, d)
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	f.register(cmd)
	return cmd
}

func surveyListCmd() *cobra.Command {
	var author string
	var published bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List surveys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *survey.Service) error {
				var list []domain.Survey
				var err error
				switch {
				case author != "":
					list, err = svc.ByAuthor(ctx, author)
				case published:
					list, err = svc.Published(ctx)
				default:
					list, err = svc.List(ctx)
				}
				if err != nil {
					return err
				}
				if author != "" && published {
					list = onlyPublished(list)
				}
				return printSurveys(list)
			})
		},
	}
	cmd.Flags().StringVar(&author, "author", "", "author filter")
	cmd.Flags().BoolVar(&published, "published", false, "only published surveys")
	return cmd
}

func surveyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a survey",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *survey.Service) error {
				sv, err := svc.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if sv == nil {
					return fmt.Errorf("survey %s: %w", args[0], survey.ErrNotFound)
				}
				if viper.GetBool("json") {
					return printJSON(sv)
				}
				printSurveyDetail(*sv)
				return nil
			})
		},
	}
}

func surveyUpdateCmd() *cobra.Command {
	var f draftFlags
	var expected int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update survey fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := f.draft(cmd)
			if err != nil {
				return err
			}
			var opts survey.UpdateOptions
			if cmd.Flags().Changed("expected-version") {
				opts.ExpectedVersion = &expected
			}
			return withService(cmd.Context(), func(ctx context.Context, svc *survey.Service) error {
				updated, err := svc.Update(ctx, args[0], d, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(updated)
			})
		},
	}
	f.register(cmd)
	cmd.Flags().IntVar(&expected, "expected-version", 0, "fail unless the stored version matches")
	return cmd
}

func surveyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a survey (responses are kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *survey.Service) error {
				if err := svc.Delete(ctx, args[0]); err != nil {
					return err
				}
				return printResult("deleted survey " + args[0])
			})
		},
	}
}

func surveyPublishCmd(publish bool) *cobra.Command {
	use, short := "publish <id>", "Publish a survey"
	if !publish {
		use, short = "unpublish <id>", "Stop accepting responses"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *survey.Service) error {
				var sv domain.Survey
				var err error
				if publish {
					sv, err = svc.Publish(ctx, args[0])
				} else {
					sv, err = svc.Unpublish(ctx, args[0])
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(sv)
			})
		},
	}
}

func surveyDuplicateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "duplicate <id>",
		Short: "Copy a survey as a new unpublished draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *survey.Service) error {
				sv, err := svc.Duplicate(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(sv)
			})
		},
	}
}

func surveySearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search titles, descriptions and tags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *survey.Service) error {
				list, err := svc.Search(ctx, args[0])
				if err != nil {
					return err
				}
				return printSurveys(list)
			})
		},
	}
}

func surveyExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a survey as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *survey.Service) error {
				doc, err := svc.Export(ctx, args[0])
				if err != nil {
					return err
				}
				if out == "" || out == "-" {
					fmt.Println(doc)
					return nil
				}
				return os.WriteFile(out, []byte(doc+"\n"), 0o644)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func surveyImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Create a survey from an exported JSON document",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(file)
			if err != nil {
				return err
			}
			return withService(cmd.Context(), func(ctx context.Context, svc *survey.Service) error {
				sv, err := svc.Import(ctx, data)
				if err != nil {
					return err
				}
				return printJSONOrTable(sv)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "exported survey (- for stdin)")
	return cmd
}

func surveyAnalyticsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analytics <id>",
		Short: "Summarize responses to a survey",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *survey.Service) error {
				a, err := svc.Analytics(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendRows([]table.Row{
					{"Total responses", a.TotalResponses},
					{"Completed", a.CompletedResponses},
					{"Completion rate", fmt.Sprintf("%.1f%%", a.CompletionRate)},
					{"Avg time to complete", time.Duration(a.AvgTimeToComplete * float64(time.Millisecond)).Round(time.Second)},
				})
				tw.Render()
				qt := table.NewWriter()
				qt.SetOutputMirror(os.Stdout)
				qt.AppendHeader(table.Row{"Question", "Type", "Answered", "Breakdown"})
				for _, q := range a.Questions {
					qt.AppendRow(table.Row{q.Title, q.Type, q.Answered, summaryText(q)})
				}
				qt.Render()
				return nil
			})
		},
	}
}

func responseCmd() *cobra.Command {
	rc := &cobra.Command{
		Use:   "response",
		Short: "Submit and inspect responses",
	}
	rc.AddCommand(responseSubmitCmd())
	rc.AddCommand(responseListCmd())
	rc.AddCommand(responseExportCmd())
	return rc
}

func responseSubmitCmd() *cobra.Command {
	var file, email string
	var answers []string
	cmd := &cobra.Command{
		Use:   "submit <survey-id>",
		Short: "Submit answers to a published survey",
		Long:  "Answers come from --file (a JSON object keyed by question id) and/or --answer qid=value. Values that parse as JSON (numbers, arrays, booleans) are stored as such.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sub := survey.Submission{
				RespondentID: viper.GetString("actor-id"),
				Email:        email,
				Answers:      map[string]any{},
			}
			if file != "" {
				if err := decodeJSONFile(file, &sub.Answers); err != nil {
					return err
				}
			}
			for _, a := range answers {
				qid, raw, ok := strings.Cut(a, "=")
				if !ok || qid == "" {
					return fmt.Errorf("invalid --answer %q (want question-id=value)", a)
				}
				sub.Answers[qid] = answerValue(raw)
			}
			return withService(cmd.Context(), func(ctx context.Context, svc *survey.Service) error {
				r, err := svc.Submit(ctx, args[0], sub)
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "answers JSON (- for stdin)")
	cmd.Flags().StringArrayVarP(&answers, "answer", "a", nil, "question-id=value (repeatable)")
	cmd.Flags().StringVar(&email, "email", "", "respondent email")
	return cmd
}

func responseListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <survey-id>",
		Short: "List responses to a survey",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *survey.Service) error {
				list, err := svc.Responses(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Respondent", "Email", "Answers", "Complete", "Started"})
				for _, r := range list {
					tw.AppendRow(table.Row{r.ID, r.RespondentID, r.Email, len(r.Answers), r.IsComplete, r.StartedAt.Format(time.RFC3339)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func responseExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <survey-id>",
		Short: "Export responses and analytics to an XLSX workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *survey.Service) error {
				sv, err := svc.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if sv == nil {
					return fmt.Errorf("survey %s: %w", args[0], survey.ErrNotFound)
				}
				responses, err := svc.Responses(ctx, args[0])
				if err != nil {
					return err
				}
				path := out
				if path == "" {
					path = sv.ID + "-responses.xlsx"
				}
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				if err := report.Write(f, *sv, responses); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				return printResult(fmt.Sprintf("wrote %d responses to %s", len(responses), path))
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default <survey-id>-responses.xlsx)")
	return cmd
}

func templateCmd() *cobra.Command {
	tc := &cobra.Command{
		Use:   "template",
		Short: "Manage survey templates",
	}
	tc.AddCommand(templateCreateCmd())
	tc.AddCommand(templateListCmd())
	tc.AddCommand(templateShowCmd())
	tc.AddCommand(templateUseCmd())
	tc.AddCommand(templateDeleteCmd())
	return tc
}

func templateCreateCmd() *cobra.Command {
	var fromSurvey, file, name, category, description string
	var public bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a template from a survey or a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if fromSurvey == "" && file == "" {
				return fmt.Errorf("--from-survey or --file required")
			}
			return withService(cmd.Context(), func(ctx context.Context, svc *survey.Service) error {
				if fromSurvey != "" {
					t, err := svc.TemplateFromSurvey(ctx, fromSurvey, name, category)
					if err != nil {
						return err
					}
					return printJSONOrTable(t)
				}
				var t domain.SurveyTemplate
				if err := decodeJSONFile(file, &t); err != nil {
					return err
				}
				if cmd.Flags().Changed("name") {
					t.Name = name
				}
				if cmd.Flags().Changed("category") {
					t.Category = category
				}
				if cmd.Flags().Changed("description") {
					t.Description = description
				}
				if cmd.Flags().Changed("public") {
					t.IsPublic = public
				}
				saved, err := svc.SaveTemplate(ctx, t)
				if err != nil {
					return err
				}
				return printJSONOrTable(saved)
			})
		},
	}
	cmd.Flags().StringVar(&fromSurvey, "from-survey", "", "survey id to capture")
	cmd.Flags().StringVarP(&file, "file", "f", "", "template JSON (- for stdin)")
	cmd.Flags().StringVar(&name, "name", "", "template name (defaults to the survey title)")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().BoolVar(&public, "public", false, "share the template")
	return cmd
}

func templateListCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *survey.Service) error {
				var list []domain.SurveyTemplate
				var err error
				if category != "" {
					list, err = svc.TemplatesByCategory(ctx, category)
				} else {
					list, err = svc.Templates(ctx)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Category", "Public", "Uses"})
				for _, t := range list {
					tw.AppendRow(table.Row{t.ID, t.Name, t.Category, t.IsPublic, t.UsageCount})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "category filter")
	return cmd
}

func templateShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *survey.Service) error {
				t, err := svc.Template(ctx, args[0])
				if err != nil {
					return err
				}
				if t == nil {
					return fmt.Errorf("template %s: %w", args[0], survey.ErrNotFound)
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func templateUseCmd() *cobra.Command {
	var f draftFlags
	cmd := &cobra.Command{
		Use:   "use <id>",
		Short: "Create a survey from a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := f.draft(cmd)
			if err != nil {
				return err
			}
			if actor := viper.GetString("actor-id"); actor != "" && d.AuthorID == nil {
				d.AuthorID = &actor
			}
			return withService(cmd.Context(), func(ctx context.Context, svc *survey.Service) error {
				sv, err := svc.CreateFromTemplate(ctx, args[0], d)
				if err != nil {
					return err
				}
				return printJSONOrTable(sv)
			})
		},
	}
	f.register(cmd)
	return cmd
}

func templateDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *survey.Service) error {
				if err := svc.DeleteTemplate(ctx, args[0]); err != nil {
					return err
				}
				return printResult("deleted template " + args[0])
			})
		},
	}
}

func printSurveys(list []domain.Survey) error {
	if viper.GetBool("json") {
		if list == nil {
			list = []domain.Survey{}
		}
		return printJSON(list)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Title", "Published", "Questions", "Version", "Author", "Updated"})
	for _, sv := range list {
		tw.AppendRow(table.Row{sv.ID, sv.Title, sv.IsPublished, len(sv.Questions), sv.Version, sv.AuthorID, sv.UpdatedAt.Format(time.RFC3339)})
	}
	tw.Render()
	return nil
}

func printSurveyDetail(sv domain.Survey) {
	fmt.Printf("%s (v%d)\n", sv.Title, sv.Version)
	if sv.Description != "" {
		fmt.Println(sv.Description)
	}
	fmt.Printf("id=%s published=%t public=%t tags=%s\n", sv.ID, sv.IsPublished, sv.IsPublic, strings.Join(sv.Tags, ","))
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"#", "ID", "Type", "Title", "Required", "Options"})
	for i, q := range sv.Questions {
		labels := make([]string, 0, len(q.Options))
		for _, o := range q.Options {
			labels = append(labels, o.Label)
		}
		tw.AppendRow(table.Row{i + 1, q.ID, q.Type, q.Title, q.Required, strings.Join(labels, ", ")})
	}
	tw.Render()
}

func summaryText(q survey.QuestionSummary) string {
	if q.Average != nil {
		return fmt.Sprintf("avg %.2f", *q.Average)
	}
	if len(q.Options) == 0 {
		return ""
	}
	parts := make([]string, 0, len(q.Options))
	for opt, n := range q.Options {
		parts = append(parts, fmt.Sprintf("%s=%d", opt, n))
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}

func answerValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

func onlyPublished(list []domain.Survey) []domain.Survey {
	out := list[:0]
	for _, sv := range list {
		if sv.IsPublished {
			out = append(out, sv)
		}
	}
	return out
}
