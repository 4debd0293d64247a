package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/spf13/cobra"

	"github.com/hackgods/dental-agenda/internal/appointment"
	redisclient "github.com/hackgods/dental-agenda/internal/redis"
)

var reasons = []string{
	"Limpieza dental",
	"Control de ortodoncia",
	"Extracción",
	"Endodoncia",
	"Resina",
	"Evaluación",
	"Blanqueamiento",
	"Consulta general",
}

func seedCmd() *cobra.Command {
	var (
		patients int
		days     int
		perDay   int
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert fake patients and book appointments on the coming working days",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd)
			if err != nil {
				return err
			}
			defer e.pool.Close()

			repo := appointment.NewPgRepository(e.pool)

			fmt.Printf("seeding %d patients\n", patients)
			ids := make([]int64, 0, patients)
			for i := 0; i < patients; i++ {
				p, err := repo.CreatePatient(e.ctx, appointment.Patient{
					FullName: gofakeit.Name(),
					DNI:      gofakeit.Numerify("########"),
					Phone:    gofakeit.Numerify("9########"),
					Email:    gofakeit.Email(),
				})
				if err != nil {
					return fmt.Errorf("create patient: %w", err)
				}
				ids = append(ids, p.ID)
			}
			if len(ids) == 0 {
				if ids, err = repo.ListPatientIDs(e.ctx, 500); err != nil {
					return err
				}
			}
			if len(ids) == 0 {
				return errors.New("no patients to book for")
			}

			// Bookings go through the service so every rule applies. No sync
			// hook is registered: seeded rows never reach the calendar.
			svc := appointment.NewService(repo, redisclient.NewLocalLocker(e.cfg.LockTTL), e.cfg)

			created, rejected := 0, 0
			day := appointment.CivilDate(svc.Now())
			for booked := 0; booked < days; {
				day = day.AddDate(0, 0, 1)
				if day.Weekday() == time.Sunday {
					continue
				}
				booked++

				for i := 0; i < perDay; i++ {
					_, err := svc.CreateAppointment(e.ctx, appointment.CreateInput{
						PatientID:       ids[gofakeit.Number(0, len(ids)-1)],
						Date:            day,
						Time:            appointment.TimeOfDayFromMinutes(8*60 + 30*gofakeit.Number(0, 19)),
						DurationMinutes: 30 * gofakeit.Number(1, 3),
						Reason:          reasons[gofakeit.Number(0, len(reasons)-1)],
					})
					var verr *appointment.ValidationError
					switch {
					case errors.As(err, &verr):
						rejected++
					case err != nil:
						return fmt.Errorf("book appointment: %w", err)
					default:
						created++
					}
				}
			}

			fmt.Printf("seed complete: %d appointments created, %d rejected by the agenda rules\n", created, rejected)
			return nil
		},
	}

	cmd.Flags().IntVar(&patients, "patients", 200, "number of fake patients to insert")
	cmd.Flags().IntVar(&days, "days", 10, "number of working days to book")
	cmd.Flags().IntVar(&perDay, "per-day", 12, "booking attempts per day")
	return cmd
}
