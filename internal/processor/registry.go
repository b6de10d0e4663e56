package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/seanankenbruck/transactions-ai/internal/config"
	"github.com/seanankenbruck/transactions-ai/internal/errors"
	"github.com/seanankenbruck/transactions-ai/internal/executor"
	"github.com/seanankenbruck/transactions-ai/internal/llm"
	"github.com/seanankenbruck/transactions-ai/internal/observability"
	"github.com/seanankenbruck/transactions-ai/internal/schema"
	"github.com/seanankenbruck/transactions-ai/internal/translator"
	"gopkg.in/yaml.v3"
)

// DatasetConnection describes one queryable dataset
type DatasetConnection struct {
	ID            string   `yaml:"id" json:"id"`
	Name          string   `yaml:"name" json:"name"`
	Driver        string   `yaml:"driver" json:"driver"`
	URI           string   `yaml:"uri" json:"-"`
	Table         string   `yaml:"table" json:"table"`
	SchemaFile    string   `yaml:"schema_file" json:"-"`
	IncludeTables []string `yaml:"include_tables" json:"include_tables,omitempty"`
	SampleRows    int      `yaml:"sample_rows" json:"sample_rows"`
	Active        bool     `yaml:"-" json:"active"`
}

// Fingerprint identifies the connection parameters an agent was built from
func (c DatasetConnection) Fingerprint() string {
	tables := append([]string(nil), c.IncludeTables...)
	sort.Strings(tables)
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%d", c.Driver, c.URI, c.Table, c.SchemaFile, strings.Join(tables, ","), c.SampleRows)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

type connectionsFile struct {
	Datasets []struct {
		DatasetConnection `yaml:",inline"`
		Active            *bool `yaml:"active"`
	} `yaml:"datasets"`
}

// LoadConnections reads dataset connections from a YAML file. Entries
// without an explicit active flag are active.
func LoadConnections(path string) ([]DatasetConnection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read datasets file: %w", err)
	}

	var file connectionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse datasets file: %w", err)
	}

	conns := make([]DatasetConnection, 0, len(file.Datasets))
	seen := make(map[string]bool)
	for i, d := range file.Datasets {
		conn := d.DatasetConnection
		if conn.ID == "" {
			return nil, fmt.Errorf("dataset %d has no id", i)
		}
		if seen[conn.ID] {
			return nil, fmt.Errorf("duplicate dataset id %q", conn.ID)
		}
		seen[conn.ID] = true
		conn.Active = d.Active == nil || *d.Active
		conns = append(conns, conn)
	}
	return conns, nil
}

// DefaultConnection derives the primary dataset from the service config
func DefaultConnection(cfg *config.Config) DatasetConnection {
	conn := DatasetConnection{
		ID:         cfg.Dataset.ID,
		Name:       "Card transactions",
		Driver:     cfg.Dataset.Driver,
		Table:      "mcp_transactions",
		SchemaFile: cfg.Dataset.SchemaFile,
		SampleRows: cfg.Dataset.SampleRows,
		Active:     true,
	}
	if conn.Driver == string(executor.BackendDuckDB) {
		conn.URI = cfg.Dataset.ParquetPath
	} else {
		conn.URI = cfg.Database.DSN()
	}
	return conn
}

// Agent bundles the translator and executor serving one dataset
type Agent struct {
	Connection DatasetConnection
	Translator *translator.Translator
	Executor   executor.Executor
}

// AgentKey identifies a cached agent. A changed connection gets a new key.
type AgentKey struct {
	DatasetID   string
	Fingerprint string
}

// AgentFactory builds an agent for a connection
type AgentFactory func(ctx context.Context, conn DatasetConnection) (*Agent, error)

// Registry holds dataset connections and memoizes their agents
type Registry struct {
	mu          sync.Mutex
	connections []DatasetConnection
	defaultID   string
	agents      map[AgentKey]*Agent
	factory     AgentFactory
	logger      *observability.Logger
}

// NewRegistry creates a registry. The first connection is the default dataset.
func NewRegistry(conns []DatasetConnection, factory AgentFactory) *Registry {
	r := &Registry{
		connections: conns,
		agents:      make(map[AgentKey]*Agent),
		factory:     factory,
		logger:      observability.NewLogger("registry"),
	}
	if len(conns) > 0 {
		r.defaultID = conns[0].ID
	}
	return r
}

// DefaultID returns the dataset used when a request names none
func (r *Registry) DefaultID() string {
	return r.defaultID
}

// Connections lists every configured dataset, active or not
func (r *Registry) Connections() []DatasetConnection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DatasetConnection(nil), r.connections...)
}

// Connection returns the active connection with the given id
func (r *Registry) Connection(id string) (DatasetConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookup(id)
}

func (r *Registry) lookup(id string) (DatasetConnection, error) {
	for _, c := range r.connections {
		if c.ID == id && c.Active {
			return c, nil
		}
	}
	return DatasetConnection{}, errors.NewDatasetNotFoundError(id)
}

// Agent returns the cached agent for a dataset, building it on first use
func (r *Registry) Agent(ctx context.Context, id string) (*Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	key := AgentKey{DatasetID: conn.ID, Fingerprint: conn.Fingerprint()}
	if agent, ok := r.agents[key]; ok {
		return agent, nil
	}

	agent, err := r.factory(ctx, conn)
	if err != nil {
		return nil, err
	}
	r.agents[key] = agent
	r.logger.Info(ctx, "Agent initialized", map[string]interface{}{
		"dataset_id":  conn.ID,
		"driver":      conn.Driver,
		"fingerprint": key.Fingerprint,
	})
	return agent, nil
}

// ClearCache drops cached agents for one dataset, or all of them when
// datasetID is nil. It returns how many agents were removed.
func (r *Registry) ClearCache(datasetID *string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, agent := range r.agents {
		if datasetID != nil && key.DatasetID != *datasetID {
			continue
		}
		if agent.Executor != nil {
			if err := agent.Executor.Close(); err != nil {
				r.logger.Warn(context.Background(), "Failed to close executor", map[string]interface{}{
					"dataset_id": key.DatasetID,
					"error":      err.Error(),
				})
			}
		}
		delete(r.agents, key)
		removed++
	}
	return removed
}

// Close releases every cached agent
func (r *Registry) Close() {
	r.ClearCache(nil)
}

// ExampleCatalog hands out few-shot examples per dataset
type ExampleCatalog interface {
	Examples(datasetID string) translator.ExampleSource
}

// NewAgentFactory opens the dataset backend and pairs it with a translator
// over the dataset's schema. examples may be nil.
func NewAgentFactory(client llm.Client, tc translator.Config, examples ExampleCatalog, metrics *observability.Metrics) AgentFactory {
	return func(ctx context.Context, conn DatasetConnection) (*Agent, error) {
		desc := schema.Default()
		if conn.SchemaFile != "" {
			loaded, err := schema.LoadFile(conn.SchemaFile)
			if err != nil {
				return nil, errors.NewConfigurationError("schema_file", err.Error())
			}
			desc = loaded
		}
		table := conn.Table
		if table == "" {
			table = desc.Table
		}

		exec, err := executor.Open(ctx, conn.Driver, conn.URI, table)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfiguration, "Failed to open dataset").
				WithMetadata("dataset_id", conn.ID)
		}
		if len(conn.IncludeTables) > 0 {
			exec.WithIncludeTables(conn.IncludeTables)
		}
		exec.WithMetrics(metrics)

		tr := translator.New(client, desc, tc)
		if examples != nil {
			tr.WithExamples(examples.Examples(conn.ID))
		}
		return &Agent{Connection: conn, Translator: tr, Executor: exec}, nil
	}
}
