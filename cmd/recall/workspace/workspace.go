// Package workspace resolves configuration for a recall command and opens
// the store and the optional semantic stack it needs.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/recall/pkg/cache"
	"github.com/papercomputeco/recall/pkg/canonical"
	"github.com/papercomputeco/recall/pkg/config"
	"github.com/papercomputeco/recall/pkg/embeddings"
	embeddingutils "github.com/papercomputeco/recall/pkg/embeddings/utils"
	"github.com/papercomputeco/recall/pkg/eventstream"
	"github.com/papercomputeco/recall/pkg/eventstream/kafka"
	"github.com/papercomputeco/recall/pkg/ingest"
	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/retrieval"
	"github.com/papercomputeco/recall/pkg/store"
	"github.com/papercomputeco/recall/pkg/vector"
	vectorutils "github.com/papercomputeco/recall/pkg/vector/utils"
)

const (
	eventStreamKafka = "kafka"

	// vectorDBFile is the sqlite-vec database used when no target is set.
	vectorDBFile = "vectors.db"
)

// Workspace is everything a command needs after flag and config resolution.
type Workspace struct {
	Config    *config.Config
	Viper     *viper.Viper
	Logger    *slog.Logger
	Store     *store.Store
	StoreRoot string

	configDir string
	driver    vector.Driver
	embedder  embeddings.Embedder
	closers   []func() error
}

// Options selects which registered flags a command binds into viper.
type Options struct {
	Flags []string
}

// Open resolves configuration for cmd (flag > env > config.toml > default)
// and opens the store.
func Open(cmd *cobra.Command, opts Options) (*Workspace, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")
	debug, _ := cmd.Flags().GetBool("debug")

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, err
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, opts.Flags)
	cfg := config.FromViper(v)

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	w := &Workspace{
		Config:    cfg,
		Viper:     v,
		Logger:    logger.NewCLI(debug),
		StoreRoot: cfger.StoreRoot(cfg),
		configDir: cfger.TargetDir(),
	}

	publisher, err := w.publisher()
	if err != nil {
		return nil, err
	}

	s, err := store.Open(w.StoreRoot, store.Options{
		Publisher:   publisher,
		AuditEvents: cfg.Store.AuditEvents,
		Logger:      w.Logger,
	})
	if err != nil {
		if publisher != nil {
			_ = publisher.Close()
		}
		return nil, err
	}
	w.Store = s
	w.Logger.Debug("opened store", "root", w.StoreRoot)

	return w, nil
}

// Run opens a workspace for cmd, calls fn with the command's context and
// closes the workspace afterwards.
func Run(cmd *cobra.Command, opts Options, fn func(context.Context, *Workspace) error) (err error) {
	w, err := Open(cmd, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, w)
}

// publisher returns the event stream publisher, or nil when fan-out is off.
// Setting brokers alone enables kafka.
func (w *Workspace) publisher() (eventstream.Publisher, error) {
	es := w.Config.EventStream
	if es.Provider != eventStreamKafka && len(es.Brokers) == 0 {
		return nil, nil
	}
	if len(es.Brokers) == 0 {
		return nil, errors.New("eventstream.provider is kafka but no brokers are configured")
	}

	p, err := kafka.NewPublisher(kafka.Config{
		Brokers: es.Brokers,
		Topic:   es.Topic,
		Logger:  w.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}
	w.Logger.Debug("publishing events to kafka", "brokers", es.Brokers, "topic", es.Topic)
	return p, nil
}

// Semantic opens the configured vector driver and embedder once. Both are
// closed by Close.
func (w *Workspace) Semantic(ctx context.Context) (vector.Driver, embeddings.Embedder, error) {
	if w.driver != nil && w.embedder != nil {
		return w.driver, w.embedder, nil
	}

	vs := w.Config.VectorStore
	target := vs.Target
	if vs.Provider == "sqlite" || vs.Provider == "sqlitevec" {
		// Relative database paths live in the .recall/ directory.
		if target == "" {
			target = vectorDBFile
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(w.configDir, target)
		}
	}

	driver, err := vectorutils.NewVectorDriver(ctx, &vectorutils.NewVectorDriverOpts{
		ProviderType: vs.Provider,
		Target:       target,
		Collection:   vs.Collection,
		Dimensions:   vs.Dimensions,
		Logger:       w.Logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating vector driver: %w", err)
	}
	w.closers = append(w.closers, driver.Close)

	emb := w.Config.Embedding
	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: emb.Provider,
		TargetURL:    emb.Target,
		Model:        emb.Model,
		Dimensions:   emb.Dimensions,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating embedder: %w", err)
	}
	w.closers = append(w.closers, embedder.Close)

	w.driver, w.embedder = driver, embedder
	return driver, embedder, nil
}

// Engine builds the retrieval engine for the configured scorer.
func (w *Workspace) Engine(ctx context.Context, scorer string) (*retrieval.Engine, error) {
	c := retrieval.Config{Store: w.Store, Logger: w.Logger}

	switch scorer {
	case "", config.ScorerLexical:
	case config.ScorerSemantic:
		driver, embedder, err := w.Semantic(ctx)
		if err != nil {
			return nil, err
		}
		c.Scorer = &retrieval.Semantic{Embedder: embedder, Driver: driver}
	default:
		return nil, fmt.Errorf("unknown scorer %q (expected %s or %s)", scorer, config.ScorerLexical, config.ScorerSemantic)
	}

	return retrieval.NewEngine(c), nil
}

// Cache builds the cache overlay with the configured freshness window.
func (w *Workspace) Cache() *cache.Overlay {
	return cache.New(cache.Config{
		Store:     w.Store,
		Freshness: w.Config.Cache.FreshnessDuration(),
		Logger:    w.Logger,
	})
}

// Ingestor builds an embedding ingestor over the configured semantic stack.
func (w *Workspace) Ingestor(ctx context.Context) (*ingest.Ingestor, error) {
	driver, embedder, err := w.Semantic(ctx)
	if err != nil {
		return nil, err
	}
	return ingest.New(ingest.Config{
		Store:      w.Store,
		Embedder:   embedder,
		Driver:     driver,
		NumWorkers: w.Config.Ingest.Workers,
		QueueSize:  w.Config.Ingest.QueueSize,
		Logger:     w.Logger,
	})
}

// Close releases everything Open and its helpers acquired.
func (w *Workspace) Close() error {
	var errs []error
	for i := len(w.closers) - 1; i >= 0; i-- {
		errs = append(errs, w.closers[i]())
	}
	if w.Store != nil {
		errs = append(errs, w.Store.Close())
	}
	return errors.Join(errs...)
}

// PrintJSON writes v as canonical JSON.
func PrintJSON(out io.Writer, v any) error {
	data, err := canonical.Marshal(v)
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}
