package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"quizroom-service/internal/domain"
	pgstore "quizroom-service/internal/infra/postgres"
	"quizroom-service/internal/questions"
)

func newParseCmd(f *flags) *cobra.Command {
	var (
		saveAs string
		title  string
	)
	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Validate a CSV or JSON question file and optionally store it as a question set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			report := questions.Validate(string(raw))

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			accepted := report.Questions()
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d accepted, %d rejected\n",
				report.Format, len(accepted), len(report.Rejected()))

			if saveAs == "" {
				return nil
			}
			if len(accepted) == 0 {
				return fmt.Errorf("%s: %w", args[0], domain.ErrInvalidQuestionSet)
			}
			if title == "" {
				title = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}

			cfg, err := f.load()
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return errors.New("--save requires postgres.url")
			}
			if err := runMigrations(cmd.Context(), cfg); err != nil {
				return err
			}
			pool, err := pgxpool.Connect(cmd.Context(), cfg.Postgres.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			set := domain.QuestionSet{ID: saveAs, Title: title, Questions: accepted}
			if err := pgstore.NewQuestionSetLoader(pool).SaveQuestionSet(cmd.Context(), set); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "saved question set %q (%d questions)\n", saveAs, len(accepted))
			return nil
		},
	}
	cmd.Flags().StringVar(&saveAs, "save", "", "store accepted questions in Postgres under this set id")
	cmd.Flags().StringVar(&title, "title", "", "title for the saved set (defaults to the file name)")
	return cmd
}
