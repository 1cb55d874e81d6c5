package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/StinkyLord/dynatrace-topology-builder/internal/config"
	"github.com/StinkyLord/dynatrace-topology-builder/internal/dynatrace"
	"github.com/StinkyLord/dynatrace-topology-builder/internal/extract"
	"github.com/StinkyLord/dynatrace-topology-builder/internal/logging"
	"github.com/StinkyLord/dynatrace-topology-builder/internal/model"
	"github.com/StinkyLord/dynatrace-topology-builder/internal/output"
	"github.com/StinkyLord/dynatrace-topology-builder/internal/pagination"
	"github.com/StinkyLord/dynatrace-topology-builder/internal/pipeline"
)

var (
	flagEntityTypes  []string
	flagAPIs         []string
	flagOutputDir    string
	flagTopology     bool
	flagKafkaBrokers []string
	flagKafkaTopic   string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch entities from every configured environment",
	Long: `Page through the Dynatrace entity APIs of every configured environment and
write one raw dump per environment, API version and entity type, named
{env}_{type}_{v1|v2}_{unix-time}.json.

v1 dumps are a single JSON array. v2 dumps keep the first page's totalCount
and pageSize next to the merged "entities" array.

Examples:
  dynatrace-topology-builder fetch
  dynatrace-topology-builder fetch --entity-types host --api v2 --topology
  dynatrace-topology-builder fetch --config topology.yaml --output-dir dumps \
      --kafka-brokers kafka:9092 --kafka-topic dynatrace-topology`,
	Args: cobra.NoArgs,
	RunE: runFetch,
}

func init() {
	addFetchFlags()
}

func addFetchFlags() {
	fetchCmd.Flags().StringSliceVarP(&flagEntityTypes, "entity-types", "t", []string{"process", "process-group"},
		"Entity types to fetch: process, process-group, host")
	fetchCmd.Flags().StringSliceVar(&flagAPIs, "api", []string{"v1", "v2"}, "API versions to query: v1, v2")
	fetchCmd.Flags().StringVarP(&flagOutputDir, "output-dir", "o", ".", "Directory for the dump files")
	fetchCmd.Flags().BoolVar(&flagTopology, "topology", false,
		"Also convert every fetch into a topology document written next to its dump")
	fetchCmd.Flags().StringSliceVar(&flagKafkaBrokers, "kafka-brokers", nil,
		"Kafka seed brokers; with --kafka-topic every topology document is published")
	fetchCmd.Flags().StringVar(&flagKafkaTopic, "kafka-topic", "", "Kafka topic for topology documents")
}

func runFetch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	log := logging.Named(ctx, "fetch")

	types, err := parseComponentTypes(flagEntityTypes)
	if err != nil {
		return err
	}
	versions, err := parseAPIVersions(flagAPIs)
	if err != nil {
		return err
	}

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if len(flagKafkaBrokers) > 0 {
		cfg.Kafka.Brokers = flagKafkaBrokers
	}
	if flagKafkaTopic != "" {
		cfg.Kafka.Topic = flagKafkaTopic
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fmt.Fprintf(os.Stderr, "dynatrace-topology-builder v%s\n", toolVersion)

	var sink *output.KafkaSink
	if cfg.Kafka.Enabled() {
		if sink, err = output.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, log); err != nil {
			return err
		}
		defer sink.Close()
	}

	f := &fetcher{
		out:      flagOutputDir,
		topology: flagTopology,
		sink:     sink,
	}

	// A failed entity type is reported and the remaining ones still run.
	var errs []error
	for _, env := range cfg.Environments {
		envCtx := logging.ToContext(ctx, log.With(zap.String("env", env.Name)))
		runner := newRunner(envCtx, env, cfg)
		for _, version := range versions {
			for _, t := range types {
				if err := f.fetch(envCtx, runner, env.Name, t, version); err != nil {
					logging.FromContext(envCtx).Error("Fetch failed",
						zap.String("component_type", string(t)),
						zap.Stringer("api", version),
						zap.Error(err))
					errs = append(errs, fmt.Errorf("%s %s %s: %w", env.Name, t, version, err))
				}
				if ctx.Err() != nil {
					return errors.Join(append(errs, ctx.Err())...)
				}
			}
		}
	}
	return errors.Join(errs...)
}

func newRunner(ctx context.Context, env config.Environment, cfg *config.Config) *pipeline.Runner {
	log := logging.FromContext(ctx)

	var tokens dynatrace.TokenSource
	if env.APIToken != "" {
		tokens = dynatrace.StaticToken(env.APIToken)
	} else {
		tokens = dynatrace.NewClientCredentials(dynatrace.ClientCredentialsConfig{
			TokenURL:     env.Auth.URL,
			ClientID:     env.Auth.ClientID,
			ClientSecret: env.Auth.ClientSecret,
			Scope:        env.Auth.Scope,
			Resource:     env.Auth.Resource,
			Audience:     env.Auth.Audience,
		}, cfg.HTTP.Timeout)
	}

	client := dynatrace.NewClient(env.BaseURL, tokens, dynatrace.ClientOptions{
		Timeout: cfg.HTTP.Timeout,
		Retries: cfg.HTTP.Retries,
		Logger:  log,
	})
	driver := pagination.New(client, log)
	driver.MaxPages = cfg.Query.MaxPages

	return &pipeline.Runner{
		Driver: driver,
		Query: dynatrace.QueryOptions{
			V1RelativeTime: cfg.Query.V1RelativeTime,
			RelativeTime:   cfg.Query.RelativeTime,
			PageSize:       cfg.Query.PageSize,
			Fields:         cfg.Query.Fields(),
		},
	}
}

// fetcher writes the results of one fetch to their destinations.
type fetcher struct {
	out      string
	topology bool
	sink     *output.KafkaSink
}

func (f *fetcher) fetch(ctx context.Context, runner *pipeline.Runner, env string, t model.ComponentType, version extract.APIVersion) error {
	now := time.Now()
	dumpPath := filepath.Join(f.out, output.DumpFileName(env, t, version, now))

	if !f.topology && f.sink == nil {
		result, err := runner.Fetch(ctx, t, version)
		if err != nil {
			return err
		}
		return f.writeDump(dumpPath, result)
	}

	result, doc, err := runner.FetchAndNormalize(ctx, t, version, dumpPath)
	if err != nil {
		return err
	}
	if err := f.writeDump(dumpPath, result); err != nil {
		return err
	}

	if f.topology {
		topologyPath := filepath.Join(f.out, output.TopologyFileName(dumpPath, "topology", now))
		if err := output.WriteJSON(topologyPath, doc); err != nil {
			return fmt.Errorf("failed to write topology: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Wrote %s (%d components, %d relationships)\n",
			topologyPath, doc.Metadata.ComponentCount, doc.Metadata.RelationshipCount)
	}
	if f.sink != nil {
		if err := f.sink.Publish(ctx, env, doc); err != nil {
			return err
		}
	}
	return nil
}

func (f *fetcher) writeDump(path string, result *pagination.Result) error {
	if err := output.WriteJSON(path, output.RawDump(result)); err != nil {
		return fmt.Errorf("failed to write dump: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s (%d records)\n", path, result.Records())
	return nil
}

func parseComponentTypes(names []string) ([]model.ComponentType, error) {
	var types []model.ComponentType
	for _, name := range names {
		t, err := model.ParseComponentType(name)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	if len(types) == 0 {
		return nil, errors.New("no entity types selected")
	}
	return types, nil
}

func parseAPIVersions(names []string) ([]extract.APIVersion, error) {
	var versions []extract.APIVersion
	for _, name := range names {
		v, err := extract.ParseAPIVersion(name)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	if len(versions) == 0 {
		return nil, errors.New("no API versions selected")
	}
	return versions, nil
}
