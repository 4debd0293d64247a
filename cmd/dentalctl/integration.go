package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hackgods/dental-agenda/internal/appointment"
	"github.com/hackgods/dental-agenda/internal/integration"
)

func integrationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "integration",
		Short: "Show or change integration configs (google_calendar, whatsapp, email)",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <type>",
		Short: "Print the stored config of an integration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseType(args[0])
			if err != nil {
				return err
			}

			e, err := open(cmd)
			if err != nil {
				return err
			}
			defer e.pool.Close()

			cfg, err := integration.NewPgStore(e.pool).GetConfig(e.ctx, t)
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	})

	var (
		url      string
		active   bool
		settings []string
	)
	set := &cobra.Command{
		Use:   "set <type>",
		Short: "Create or replace the config of an integration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseType(args[0])
			if err != nil {
				return err
			}
			if active && url == "" {
				return errors.New("--url is required for an active integration")
			}

			values := make(map[string]any, len(settings))
			for _, kv := range settings {
				k, v, ok := strings.Cut(kv, "=")
				if !ok || k == "" {
					return fmt.Errorf("--setting %q: want key=value", kv)
				}
				values[k] = v
			}

			e, err := open(cmd)
			if err != nil {
				return err
			}
			defer e.pool.Close()

			cfg, err := integration.NewPgStore(e.pool).UpsertConfig(e.ctx, integration.Config{
				Type:       t,
				Active:     active,
				WebhookURL: url,
				Settings:   values,
			})
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
	set.Flags().StringVar(&url, "url", "", "webhook URL")
	set.Flags().BoolVar(&active, "active", true, "whether webhooks are sent")
	set.Flags().StringArrayVar(&settings, "setting", nil, "extra key=value setting, repeatable (e.g. plantilla=...)")
	cmd.AddCommand(set)

	return cmd
}

func syncLogCmd() *cobra.Command {
	var (
		appointmentID int64
		status        string
		action        string
		limit         int
	)

	cmd := &cobra.Command{
		Use:   "synclog",
		Short: "List calendar sync attempts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := integration.SyncLogFilter{
				Status: integration.SyncStatus(status),
				Action: appointment.Action(action),
				Limit:  limit,
			}
			if f.Status != "" && !f.Status.IsValid() {
				return fmt.Errorf("unknown status %q", status)
			}
			if appointmentID > 0 {
				f.AppointmentID = &appointmentID
			}

			e, err := open(cmd)
			if err != nil {
				return err
			}
			defer e.pool.Close()

			logs, total, err := integration.NewPgStore(e.pool).ListSyncLogs(e.ctx, f)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCITA\tPACIENTE\tFECHA\tACCION\tESTADO\tEVENTO\tERROR\tCREADO")
			for _, l := range logs {
				ext := "-"
				if l.ExternalID != nil {
					ext = *l.ExternalID
				}
				fmt.Fprintf(w, "%d\t%d\t%s\t%s %s\t%s\t%s\t%s\t%s\t%s\n",
					l.ID, l.AppointmentID, l.PatientName,
					l.AppointmentDate.Format(time.DateOnly), l.AppointmentTime,
					l.Action, l.Status, ext, l.ErrorMessage,
					l.CreatedAt.In(e.cfg.Location).Format(time.DateTime))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Printf("%d of %d\n", len(logs), total)
			return nil
		},
	}

	cmd.Flags().Int64Var(&appointmentID, "appointment", 0, "only this appointment")
	cmd.Flags().StringVar(&status, "status", "", "pendiente, exitoso or fallido")
	cmd.Flags().StringVar(&action, "action", "", "crear, actualizar or eliminar")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}

func resyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resync <appointment-id>",
		Short: "Push an appointment's current state to the calendar again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("appointment id: %w", err)
			}

			e, err := open(cmd)
			if err != nil {
				return err
			}
			defer e.pool.Close()

			repo := appointment.NewPgRepository(e.pool)
			appt, err := repo.GetAppointmentByID(e.ctx, id)
			if err != nil {
				return err
			}

			d := integration.NewDispatcher(integration.NewPgStore(e.pool), repo, e.cfg)
			entry, err := d.Resync(e.ctx, *appt)
			if entry != nil {
				if perr := printJSON(entry); perr != nil {
					return perr
				}
			}
			return err
		},
	}
}

func parseType(s string) (integration.Type, error) {
	t := integration.Type(s)
	if !t.IsValid() {
		return "", fmt.Errorf("unknown integration type %q", s)
	}
	return t, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
