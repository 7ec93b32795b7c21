package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/repository"
	"github.com/noah-isme/timetable-api/internal/scheduler"
	"github.com/noah-isme/timetable-api/internal/service"
	"github.com/noah-isme/timetable-api/pkg/config"
	"github.com/noah-isme/timetable-api/pkg/database"
	"github.com/noah-isme/timetable-api/pkg/export"
	"github.com/noah-isme/timetable-api/pkg/logger"
)

const usage = `Usage: timetable-cli <command> [flags]

Commands:
  generate   build a timetable from a dataset file and print it
  import     load a dataset file into the database
  token      issue an access token for the API
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "generate":
		err = runGenerate(os.Args[2:], os.Stdout)
	case "import":
		err = runImport(os.Args[2:], os.Stdout)
	case "token":
		err = runToken(os.Args[2:], os.Stdout)
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runGenerate(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("generate", pflag.ContinueOnError)
	path := fs.StringP("dataset", "d", "", "dataset file (.yaml, .yml or .json)")
	seed := fs.Int64("seed", 0, "random seed; 0 draws a fresh one")
	attempts := fs.Int("attempts", 0, "number of attempts (default from dataset or 10)")
	lectures := fs.Int("lectures", 0, "lectures per subject per week (default from dataset or 3)")
	csvOut := fs.String("csv", "", "write the timetable as CSV to this file")
	pdfOut := fs.String("pdf", "", "write the timetable as PDF to this file")
	verbose := fs.BoolP("verbose", "v", false, "log attempt progress")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return fmt.Errorf("--dataset is required")
	}

	data, err := loadDataset(*path)
	if err != nil {
		return err
	}
	constraints := data.Constraints
	if *attempts > 0 {
		constraints.NumberOfAttempts = *attempts
	}
	if *lectures > 0 {
		constraints.LecturesPerSubject = *lectures
	}
	if fs.Changed("seed") {
		constraints.Seed = seed
	}

	log := zap.NewNop()
	if *verbose {
		if log, err = zap.NewDevelopment(); err != nil {
			return err
		}
	}
	result, err := scheduler.New(log).Generate(context.Background(), data.Input, constraints)
	if err != nil {
		return err
	}

	rows := export.RowsFromEntries(result.Entries, namesFor(data.Input))
	printTimetable(out, rows)
	printViolations(out, result)

	dataset := export.Dataset{Title: "Timetable", Rows: rows}
	if *csvOut != "" {
		if err := writeRendered(*csvOut, export.NewCSVExporter(), dataset); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nTimetable exported to %s\n", *csvOut)
	}
	if *pdfOut != "" {
		if err := writeRendered(*pdfOut, export.NewPDFExporter(), dataset); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nTimetable exported to %s\n", *pdfOut)
	}
	return nil
}

type renderer interface {
	Render(export.Dataset) ([]byte, error)
}

func writeRendered(path string, r renderer, data export.Dataset) error {
	payload, err := r.Render(data)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

func namesFor(in scheduler.Input) export.Names {
	names := export.Names{
		Classes:   map[string]string{},
		Subjects:  map[string]string{},
		Faculty:   map[string]string{},
		Resources: map[string]string{},
	}
	for _, c := range in.Classes {
		names.Classes[c.ID] = c.Name
	}
	for _, s := range in.Subjects {
		names.Subjects[s.ID] = s.Name
	}
	for _, f := range in.Faculty {
		names.Faculty[f.ID] = f.Name
	}
	for _, r := range in.Resources {
		names.Resources[r.ID] = r.Name
	}
	return names
}

func printTimetable(out io.Writer, rows []export.Row) {
	for _, day := range export.GroupByDay(rows) {
		fmt.Fprintf(out, "\n===== %s =====\n", day.Day)
		for _, class := range day.Classes {
			fmt.Fprintf(out, "\n--- %s ---\n", class.Class)
			var lectures, labs []export.Row
			for _, row := range class.Rows {
				if row.Batch == "All" {
					lectures = append(lectures, row)
				} else {
					labs = append(labs, row)
				}
			}
			if len(lectures) > 0 {
				fmt.Fprintln(out, "Regular Lectures:")
				for _, row := range lectures {
					fmt.Fprintf(out, "  %s-%s - %s by %s in %s\n", row.Start, row.End, row.Subject, row.Faculty, row.Resource)
				}
			}
			if len(labs) > 0 {
				fmt.Fprintln(out, "Lab Sessions:")
				for _, row := range labs {
					fmt.Fprintf(out, "  %s-%s - %s (Batch %s) by %s in %s\n", row.Start, row.End, row.Subject, row.Batch, row.Faculty, row.Resource)
				}
			}
		}
	}
}

func printViolations(out io.Writer, result *scheduler.Result) {
	fmt.Fprintln(out, "\n===== Timetable Validation =====")
	if len(result.Violations) == 0 {
		fmt.Fprintln(out, "All constraints satisfied!")
		return
	}
	grouped := map[scheduler.ViolationKind][]string{}
	var order []scheduler.ViolationKind
	for _, v := range result.Violations {
		if _, ok := grouped[v.Kind]; !ok {
			order = append(order, v.Kind)
		}
		grouped[v.Kind] = append(grouped[v.Kind], v.Message)
	}
	for _, kind := range order {
		fmt.Fprintf(out, "\n%s:\n", strings.ReplaceAll(string(kind), "_", " "))
		for _, msg := range grouped[kind] {
			fmt.Fprintf(out, "  - %s\n", msg)
		}
	}
	if result.Relaxed {
		fmt.Fprintln(out, "\n(relaxed fallback result)")
	}
}

func runImport(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("import", pflag.ContinueOnError)
	path := fs.StringP("dataset", "d", "", "dataset file (.yaml, .yml or .json)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return fmt.Errorf("--dataset is required")
	}
	data, err := loadDataset(*path)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return err
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close() //nolint:errcheck
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}

	importer := catalogImporter{
		subjects:  repository.NewSubjectRepository(db),
		resources: repository.NewResourceRepository(db),
		classes:   repository.NewClassGroupRepository(db),
		faculty:   repository.NewFacultyRepository(db),
	}
	err = database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		return importer.Import(ctx, tx, data.Input)
	})
	if err != nil {
		return err
	}
	logr.Info("dataset imported",
		zap.Int("subjects", len(data.Subjects)),
		zap.Int("faculty", len(data.Faculty)),
		zap.Int("classes", len(data.Classes)),
		zap.Int("resources", len(data.Resources)),
	)
	fmt.Fprintf(out, "imported %d subjects, %d faculty, %d classes, %d resources\n",
		len(data.Subjects), len(data.Faculty), len(data.Classes), len(data.Resources))
	return nil
}

func runToken(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("token", pflag.ContinueOnError)
	user := fs.String("user", "cli", "user id placed in the token")
	role := fs.String("role", string(models.RoleAdmin), "SUPERADMIN, ADMIN or VIEWER")
	ttl := fs.Duration("ttl", 0, "token lifetime (default JWT_EXPIRATION)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	switch models.UserRole(*role) {
	case models.RoleSuperAdmin, models.RoleAdmin, models.RoleViewer:
	default:
		return fmt.Errorf("unsupported role %q", *role)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	expiry := cfg.JWT.Expiration
	if *ttl > 0 {
		expiry = *ttl
	}
	token, expiresAt, err := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Expiry: expiry}).
		Issue(*user, models.UserRole(*role), "")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expiresAt.Format(time.RFC3339))
	return nil
}
