package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/observastack/loadpanel/internal/catalog"
	"github.com/observastack/loadpanel/internal/config"
)

func newEndpointsCmd() *cobra.Command {
	var schema, service string
	cmd := &cobra.Command{
		Use:   "endpoints",
		Short: "List endpoints from OpenAPI schemas",
		Long: "List endpoints from OpenAPI schemas. --schema adds one document; " +
			"without it, --service fetches <base-url>/<service>/openapi.json. " +
			"Sources from --catalog and the config file are included.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			sources, err := catalogSources(cfg, schema, service)
			if err != nil {
				return err
			}
			endpoints, loadErr := catalog.Load(cmd.Context(), nil, sources)
			if len(endpoints) == 0 && loadErr != nil {
				return loadErr
			}
			if err := writeEndpoints(cmd.OutOrStdout(), cfg.Output, endpoints); err != nil {
				return err
			}
			if loadErr != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", loadErr)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&schema, "schema", "", "OpenAPI document: file path or http(s) URL")
	cmd.Flags().StringVar(&service, "service", "api", "Service the document describes")
	return cmd
}

func catalogSources(cfg *config.Config, schema, service string) ([]catalog.Source, error) {
	var sources []catalog.Source
	for _, src := range cfg.Catalog {
		sources = append(sources, catalog.Source{Service: src.Service, Schema: src.Schema})
	}
	service = strings.TrimSpace(service)
	switch {
	case schema != "":
		sources = append(sources, catalog.Source{Service: service, Schema: schema})
	case len(sources) == 0 && cfg.BaseURL != "":
		sources = append(sources, catalog.Source{Service: service, Schema: catalog.SchemaURL(cfg.BaseURL, service)})
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no schema given (use --schema, --catalog or --base-url)")
	}
	return sources, nil
}

func writeEndpoints(w io.Writer, format config.OutputFormat, endpoints []catalog.Endpoint) error {
	switch format {
	case config.OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(endpoints)
	case config.OutputYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(endpoints)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tMETHOD\tPATH\tNAME\tPARAMETERS")
	for _, e := range endpoints {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Key, e.Method, e.Path, e.Name, formatParams(e.Parameters))
	}
	return tw.Flush()
}

func formatParams(params []catalog.Parameter) string {
	if len(params) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(params))
	for _, p := range params {
		s := p.Name
		if p.Default != "" {
			s += "=" + p.Default
		}
		if p.InBody {
			s = "body." + s
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}
