// Command navigator runs the parking navigation API server, plus a couple of
// one-shot helpers for poking at providers from the terminal.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sparkpark/navigator/internal/cache"
	"github.com/sparkpark/navigator/internal/clients/custom"
	"github.com/sparkpark/navigator/internal/clients/google"
	"github.com/sparkpark/navigator/internal/clients/nominatim"
	"github.com/sparkpark/navigator/internal/clients/parking"
	"github.com/sparkpark/navigator/internal/config"
	"github.com/sparkpark/navigator/internal/lib/geo"
	"github.com/sparkpark/navigator/internal/navigation"
	"github.com/sparkpark/navigator/internal/placeindex"
	"github.com/sparkpark/navigator/internal/routing"
	"github.com/sparkpark/navigator/internal/search"
	"github.com/sparkpark/navigator/internal/server"
	"github.com/sparkpark/navigator/internal/store"
)

var (
	cfgPath string
	devLog  bool
)

func main() {
	// A missing .env is fine; explicit config wins over it anyway.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "navigator",
		Short:        "Parking navigation API: routing, geocoding and live trip sessions",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to YAML config file")
	root.PersistentFlags().BoolVar(&devLog, "dev", false, "human-readable log output")

	root.AddCommand(serveCmd(), routeCmd(), geocodeCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup() (*config.Config, *zap.SugaredLogger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	var logger *zap.Logger
	if devLog {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.Sugar(), nil
}

// buildProviders assembles the fallback chains: the custom override first
// when configured, then Google when an API key is present.
func buildProviders(cfg *config.Config) (routes []routing.RouteProvider, etas []routing.EtaProvider, planner routing.PlanProvider, matrix routing.MatrixProvider) {
	if cfg.Custom.BaseURL != "" {
		p := routing.NewCustomProvider(custom.NewClient(cfg.Custom.BaseURL, cfg.Custom.Token))
		routes = append(routes, p)
		etas = append(etas, p)
		planner = p
	}
	if cfg.Google.APIKey != "" {
		p := routing.NewGoogleProvider(google.NewClient(cfg.Google.APIKey))
		routes = append(routes, p)
		etas = append(etas, p)
		matrix = p
	}
	return routes, etas, planner, matrix
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			utils := geo.NewUtils()
			routes, etas, planner, matrix := buildProviders(cfg)
			if len(routes) == 0 {
				log.Warn("no routing provider configured, routes will be empty")
			}

			// Dedicated fetcher for the HTTP surface; sessions get their
			// own so one trip's re-route never cancels another's.
			fetcher := routing.NewFetcher(log, routes...)
			estimator := routing.NewEstimator(log, etas...)
			var optimizerRoutes routing.RouteProvider
			if len(routes) > 0 {
				optimizerRoutes = routes[0]
			}
			optimizer := routing.NewOptimizer(log, planner, matrix, optimizerRoutes, fetcher)

			gateway := search.NewGateway(log,
				nominatim.NewClient(cfg.Geocoding.BaseURL, cfg.Geocoding.UserAgent),
				utils, cfg.Geocoding.Debounce, cfg.Geocoding.ResultLimit)
			defer gateway.Close()

			var cacheStore cache.Store
			if cfg.Cache.RedisAddr != "" {
				redisCache := cache.NewRedis(cfg.Cache.RedisAddr)
				defer redisCache.Close()
				cacheStore = redisCache
			} else {
				cacheStore = cache.NewMemory()
			}

			var parkings store.SavedParkingStore
			var history store.SearchHistoryStore
			if cfg.Store.PostgresDSN != "" {
				pool, err := pgxpool.New(ctx, cfg.Store.PostgresDSN)
				if err != nil {
					return fmt.Errorf("connecting to postgres: %w", err)
				}
				defer pool.Close()
				parkings = store.NewPostgresSavedParking(pool)
				history = store.NewPostgresSearchHistory(pool)
			} else {
				parkings = store.NewMemorySavedParking()
				history = store.NewMemorySearchHistory(200)
			}

			index := placeindex.New(log, parkings, utils)
			defer index.Close()

			var parkingClient *parking.Client
			if cfg.Parking.BaseURL != "" {
				parkingClient = parking.NewClient(cfg.Parking.BaseURL)
			}

			thresholds := navigation.Thresholds{
				OffRouteMeters:     cfg.Navigation.OffRouteMeters,
				RerouteMinInterval: cfg.Navigation.RerouteMinInterval,
				JumpMeters:         cfg.Navigation.JumpMeters,
				EtaRefreshInterval: cfg.Navigation.EtaRefreshInterval,
			}
			hub := server.NewSessionHub(log, func(id string, emit func(navigation.Event)) *navigation.Session {
				tracker := navigation.NewTracker(utils, cfg.Navigation.TrackMinInterval, cfg.Navigation.TrackMinDistance)
				sessionFetcher := routing.NewFetcher(log, routes...)
				return navigation.NewSession(id, log, sessionFetcher, estimator, utils, tracker, thresholds, emit)
			})

			srv := server.New(log, cfg, server.Deps{
				Fetcher:   fetcher,
				Estimator: estimator,
				Optimizer: optimizer,
				Gateway:   gateway,
				Parking:   parkingClient,
				Parkings:  parkings,
				History:   history,
				Index:     index,
				Cache:     cacheStore,
				Geo:       utils,
				Sessions:  hub,
			})
			return srv.Start(ctx)
		},
	}
}

func routeCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "route <olat> <olon> <dlat> <dlon>",
		Short: "Fetch a route and print it as JSON",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			origin, err := parsePoint(args[0], args[1])
			if err != nil {
				return err
			}
			dest, err := parsePoint(args[2], args[3])
			if err != nil {
				return err
			}
			travelMode, err := routing.ParseTravelMode(mode)
			if err != nil {
				return err
			}

			routes, _, _, _ := buildProviders(cfg)
			if len(routes) == 0 {
				return fmt.Errorf("no routing provider configured")
			}
			fetcher := routing.NewFetcher(log, routes...)

			result, _ := fetcher.Fetch(cmd.Context(), origin, dest, travelMode)
			return printJSON(result)
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", "car", "travel mode: car, walk, motor or commute")
	return cmd
}

func geocodeCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "geocode <query>",
		Short: "Resolve a free-text query and print candidates as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			gateway := search.NewGateway(log,
				nominatim.NewClient(cfg.Geocoding.BaseURL, cfg.Geocoding.UserAgent),
				geo.NewUtils(), 0, limit)
			defer gateway.Close()

			query := ""
			for i, a := range args {
				if i > 0 {
					query += " "
				}
				query += a
			}

			places, err := gateway.SearchNow(cmd.Context(), query, nil)
			if err != nil {
				return err
			}
			return printJSON(places)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 8, "maximum candidates")
	return cmd
}

func parsePoint(latArg, lonArg string) (*geo.Point, error) {
	var lat, lon float64
	if _, err := fmt.Sscanf(latArg, "%f", &lat); err != nil {
		return nil, fmt.Errorf("invalid latitude %q", latArg)
	}
	if _, err := fmt.Sscanf(lonArg, "%f", &lon); err != nil {
		return nil, fmt.Errorf("invalid longitude %q", lonArg)
	}
	p, err := geo.NewPoint(lat, lon)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
