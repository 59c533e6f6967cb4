package main

import (
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/spf13/cobra"

	"github.com/nasa-jpl/cicpulse/config"
	"github.com/nasa-jpl/cicpulse/experiment"
	"github.com/nasa-jpl/cicpulse/generichttp"
	exphttp "github.com/nasa-jpl/cicpulse/generichttp/experiment"
	smuhttp "github.com/nasa-jpl/cicpulse/generichttp/smu"
	"github.com/nasa-jpl/cicpulse/server/middleware/locker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve the instrument and the experiment runner over HTTP",
	Long: `serve exposes manual instrument control under /smu and the experiment
runner under /experiment.  While an experiment runs, /smu answers 423.
GET /endpoints lists every route.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		if err = c.Validate(); err != nil {
			return err
		}
		open, err := opener(c.Instrument)
		if err != nil {
			return err
		}
		root := SetupHTTP(open, c)
		log.Println("now listening for requests at ", c.Server.Addr)
		return http.ListenAndServe(c.Server.Addr, root)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// SetupHTTP builds the root router: manual SMU routes under /smu behind a
// lock the experiment runner holds while it runs, the experiment routes,
// and /endpoints
func SetupHTTP(open experiment.Opener, c config.Config) chi.Router {
	lock := locker.New()

	httpS := smuhttp.NewHTTPSMU(smuhttp.Opener(open), c.Instrument.Digits)
	locker.Inject(httpS, lock)
	rs := chi.NewRouter()
	rs.Use(lock.Check)
	httpS.RT().Bind(rs)

	httpE := exphttp.NewHTTPExperiment(open, c, lock)
	if verbose {
		httpE.Logger = log.New(os.Stderr, "", log.LstdFlags)
	}

	// listing only; each table is bound on its own router
	all := generichttp.RouteTable{}
	for mp, h := range httpS.RT() {
		all[generichttp.MethodPath{Method: mp.Method, Path: "/smu" + mp.Path}] = h
	}
	all.Merge(httpE.RT())
	all[generichttp.MethodPath{Method: http.MethodGet, Path: "/endpoints"}] = generichttp.ListEndpoints(all)

	root := chi.NewRouter()
	root.Use(middleware.Logger)
	root.Mount("/smu", rs)
	httpE.RT().Bind(root)
	root.Get("/endpoints", generichttp.ListEndpoints(all))
	return root
}

