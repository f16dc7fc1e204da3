package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fortean/adapters/report"
	"fortean/domain/core"
	"fortean/ports"
)

var (
	reportSession string
	reportFormat  string
	reportOut     string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render the findings report for a session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var session *ports.SessionSummary
		if reportSession == "" {
			recent, err := env.Sessions.ListSessions(ctx, 1)
			if err != nil {
				return eris.Wrap(err, "list sessions")
			}
			if len(recent) == 0 {
				return eris.New("no sessions recorded yet")
			}
			session = &recent[0]
		} else {
			id, err := core.ParseSessionID(reportSession)
			if err != nil {
				return err
			}
			session, err = env.Sessions.GetSession(ctx, id)
			if err != nil {
				return eris.Wrapf(err, "session %s", reportSession)
			}
		}

		findings, err := env.Findings.ListFindings(ctx, session.ID)
		if err != nil {
			return eris.Wrap(err, "list findings")
		}

		renderer := report.NewRenderer()
		var body []byte
		switch reportFormat {
		case "markdown", "md":
			body = []byte(renderer.Markdown(session, findings))
		case "html":
			body = renderer.HTML(session, findings)
		default:
			return eris.Errorf("unsupported format %q, want markdown or html", reportFormat)
		}

		if reportOut == "" {
			_, err := os.Stdout.Write(body)
			return err
		}
		if err := os.WriteFile(reportOut, body, 0o644); err != nil {
			return eris.Wrap(err, "write report")
		}

		zap.L().Info("report written",
			zap.String("session", string(session.ID)),
			zap.String("path", reportOut),
			zap.Int("bytes", len(body)),
		)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportSession, "session", "", "session ID (default: most recent session)")
	reportCmd.Flags().StringVar(&reportFormat, "format", "markdown", "output format: markdown or html")
	reportCmd.Flags().StringVar(&reportOut, "out", "", "write to file instead of stdout")
	rootCmd.AddCommand(reportCmd)
}
