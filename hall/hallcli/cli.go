package hallcli

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/bgentry/que-go"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/unionhall/hall-app/conf"
	"github.com/unionhall/hall-app/hall/api"
	"github.com/unionhall/hall-app/hall/audit"
	"github.com/unionhall/hall-app/hall/constants"
	"github.com/unionhall/hall-app/hall/database"
	"github.com/unionhall/hall-app/hall/models"
	"github.com/unionhall/hall-app/hall/models/postgres"
	"github.com/unionhall/hall-app/hall/service"
	"github.com/unionhall/hall-app/hall/utils"
	"github.com/unionhall/hall-app/hall/web"
	"github.com/unionhall/hall-app/log"
)

// App Name and usage. Edit them here to prevent breaking tests.
const Name = "hall"
const Usage = "Hiring Hall Referral & Dispatch CLI"

func GetApp() *cli.App {
	return setUpApp()
}

func newService() (service.Service, *sql.DB, error) {
	cfg, err := service.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	db := database.GetDbConnection()
	return service.NewService(postgres.NewRepository(db), db, cfg, nil, nil), db, nil
}

func setUpApp() *cli.App {
	app := cli.NewApp()
	app.Name = Name
	app.Usage = Usage
	app.Version = constants.Version

	var classification, region, agreement, date string
	var tierCount int

	app.Commands = []cli.Command{
		{
			Name:  "start-api",
			Usage: "Start the API",
			Action: func(c *cli.Context) error {
				pool, err := database.GetQueuePool()
				if err != nil {
					return err
				}
				defer pool.Close()
				qc := que.NewClient(pool)

				cfg, err := service.LoadConfig()
				if err != nil {
					return err
				}
				db := database.GetDbConnection()
				svc := service.NewService(postgres.NewRepository(db), db, cfg,
					audit.NewEnqueuer(qc), nil)

				fmt.Fprintf(app.Writer, "%s\n", "Starting hall API...")
				srv := &http.Server{
					Handler:      web.NewAPIRouter(api.NewHandler(svc, db)),
					Addr:         ":" + utils.GetEnvString("HALL_API_PORT", "3000"),
					ReadTimeout:  time.Duration(utils.GetEnvInt("API_READ_TIMEOUT", 10)) * time.Second,
					WriteTimeout: time.Duration(utils.GetEnvInt("API_WRITE_TIMEOUT", 20)) * time.Second,
					IdleTimeout:  time.Duration(utils.GetEnvInt("API_IDLE_TIMEOUT", 120)) * time.Second,
				}
				return srv.ListenAndServe()
			},
		},
		{
			Name:  "migrate",
			Usage: "Apply schema migrations",
			Action: func(c *cli.Context) error {
				m, err := migrate.New("file://db/migrations/hall/",
					conf.GetEnv("DATABASE_URL"))
				if err != nil {
					return errors.Wrap(err, "could not create migrator")
				}
				if err := m.Up(); err != nil && err != migrate.ErrNoChange {
					return errors.Wrap(err, "migration failed")
				}
				fmt.Fprintf(app.Writer, "%s\n", "Migrations applied.")
				return nil
			},
		},
		{
			Name:  "create-book",
			Usage: "Create a book (reference data)",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "classification", Usage: "Classification, e.g. WIREMAN", Destination: &classification},
				cli.StringFlag{Name: "region", Usage: "Region code", Destination: &region},
				cli.StringFlag{Name: "agreement", Usage: "STANDARD, PLA, CWA or TERO", Value: "STANDARD", Destination: &agreement},
				cli.IntFlag{Name: "tiers", Usage: "Tier count", Value: 4, Destination: &tierCount},
			},
			Action: func(c *cli.Context) error {
				svc, db, err := newService()
				if err != nil {
					return err
				}
				defer db.Close()

				id, err := svc.CreateBook(context.Background(), models.Book{
					Classification: classification,
					Region:         region,
					Agreement:      models.AgreementType(agreement),
					TierCount:      tierCount,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(app.Writer, "Created book %d\n", id)
				return nil
			},
		},
		{
			Name:  "referral-run",
			Usage: "Run the morning referral for a date (default today)",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "date", Usage: "YYYY-MM-DD", Destination: &date},
			},
			Action: func(c *cli.Context) error {
				svc, db, err := newService()
				if err != nil {
					return err
				}
				defer db.Close()

				day := time.Now()
				if date != "" {
					if day, err = time.Parse("2006-01-02", date); err != nil {
						return errors.Wrap(err, "invalid date")
					}
				}
				summary, err := svc.RunMorningReferral(context.Background(), day)
				if err != nil {
					return err
				}
				fmt.Fprintf(app.Writer, "Referral run: %d books, %d requests, %d offers, %d starved\n",
					summary.BooksProcessed, summary.RequestsProcessed,
					summary.OffersCreated, summary.RequestsStarved)
				return nil
			},
		},
		{
			Name:  "resign-sweep",
			Usage: "Flag overdue registrations and expire lapsed ones",
			Action: func(c *cli.Context) error {
				svc, db, err := newService()
				if err != nil {
					return err
				}
				defer db.Close()

				flagged, expired, err := svc.RunReSignSweeps(context.Background())
				if err != nil {
					return err
				}
				fmt.Fprintf(app.Writer, "Sweep complete: %d flagged overdue, %d expired\n", flagged, expired)
				return nil
			},
		},
		{
			Name:  "resolve-bid-windows",
			Usage: "Resolve bidding on all open requests after window close",
			Action: func(c *cli.Context) error {
				svc, db, err := newService()
				if err != nil {
					return err
				}
				defer db.Close()

				resolved, err := svc.ResolveBidWindows(context.Background())
				if err != nil {
					return err
				}
				fmt.Fprintf(app.Writer, "Resolved bidding on %d requests\n", resolved)
				return nil
			},
		},
	}

	app.ExitErrHandler = func(c *cli.Context, err error) {
		if err != nil {
			log.Hall.Error(err)
		}
		cli.HandleExitCoder(err)
	}

	return app
}
