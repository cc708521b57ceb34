package commands

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var metricsAddr string

var serveMetricsCmd = &cobra.Command{
	Use:   "serve-metrics",
	Short: "Expose Prometheus metrics over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		r := chi.NewRouter()
		r.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

		fmt.Printf("serving metrics on %s/metrics\n", metricsAddr)
		return http.ListenAndServe(metricsAddr, r)
	},
}

func init() {
	serveMetricsCmd.Flags().StringVar(&metricsAddr, "addr", ":9191", "address to listen on")
}
