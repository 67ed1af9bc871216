// cmd/container.go
//
// Root composition root. Owns infrastructure (metadata store, vector
// store, master key) and wires every collaborator behind pkg/core's
// façade: infrastructure first, then module wiring, then a Cleanup for
// graceful shutdown.
package main

import (
	"context"
	"io"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/abraxas-365/personal-ai-core/pkg/ai/llm"
	"github.com/abraxas-365/personal-ai-core/pkg/ai/providers/aianthropic"
	"github.com/abraxas-365/personal-ai-core/pkg/ai/providers/aiazure"
	"github.com/abraxas-365/personal-ai-core/pkg/ai/providers/aibedrock"
	"github.com/abraxas-365/personal-ai-core/pkg/ai/providers/aigemini"
	"github.com/abraxas-365/personal-ai-core/pkg/ai/providers/ailocal"
	"github.com/abraxas-365/personal-ai-core/pkg/ai/providers/aiopenai"
	"github.com/abraxas-365/personal-ai-core/pkg/ai/vstore"
	"github.com/abraxas-365/personal-ai-core/pkg/ai/vstore/providers/vstpgvector"
	"github.com/abraxas-365/personal-ai-core/pkg/ai/vstore/providers/vstsqlitevec"
	"github.com/abraxas-365/personal-ai-core/pkg/config"
	ctxasm "github.com/abraxas-365/personal-ai-core/pkg/context"
	"github.com/abraxas-365/personal-ai-core/pkg/core"
	"github.com/abraxas-365/personal-ai-core/pkg/cryptx"
	"github.com/abraxas-365/personal-ai-core/pkg/cryptx/keyringstore"
	"github.com/abraxas-365/personal-ai-core/pkg/eventx"
	"github.com/abraxas-365/personal-ai-core/pkg/fsx"
	"github.com/abraxas-365/personal-ai-core/pkg/fsx/fsxlocal"
	"github.com/abraxas-365/personal-ai-core/pkg/ingest"
	"github.com/abraxas-365/personal-ai-core/pkg/logx"
	"github.com/abraxas-365/personal-ai-core/pkg/memory"
	"github.com/abraxas-365/personal-ai-core/pkg/memory/metastore"
	"github.com/abraxas-365/personal-ai-core/pkg/memory/metastore/mspostgres"
	"github.com/abraxas-365/personal-ai-core/pkg/memory/metastore/msqlite"
	"github.com/abraxas-365/personal-ai-core/pkg/orchestrator"
	"github.com/abraxas-365/personal-ai-core/pkg/storagemgr"
)

// Container holds shared infrastructure and the assembled Core façade.
type Container struct {
	Config *config.Config

	// Infrastructure
	Store      metastore.Store
	VectorDB   io.Closer
	Vectors    *vstore.Client
	FileSystem fsx.FileSystem
	MasterKey  []byte
	Bus        *eventx.Bus

	// Domain collaborators
	Router       *llm.Router
	Memory       *memory.Service
	Orchestrator *orchestrator.Orchestrator
	Storage      *storagemgr.Manager
	Ingest       *ingest.Service

	// Core is the single programmatic surface collaborators wrap.
	Core *core.Core
}

// NewContainer builds the full dependency graph behind pkg/core.
func NewContainer(cfg *config.Config) *Container {
	logx.Info("initializing container")

	c := &Container{Config: cfg}
	c.initCrypto()
	c.initStorage()
	c.initEventBus()
	c.initLLM()
	c.initDomain()

	logx.Info("container initialized")
	return c
}

// initCrypto acquires the master key from the OS keyring, generating
// one on first run.
func (c *Container) initCrypto() {
	store := keyringstore.New(c.Config.Crypto.KeyringService, c.Config.Crypto.KeyringAccount)
	key, err := cryptx.LoadOrCreateMasterKey(store)
	if err != nil {
		logx.Fatalf("failed to acquire master key: %v", err)
	}
	c.MasterKey = key
}

// initStorage opens the metadata store (sqlite by default, postgres when
// configured), the vector store directory, and the documents directory.
func (c *Container) initStorage() {
	switch c.Config.Storage.Backend {
	case "postgres":
		store, err := mspostgres.Open(c.Config.Storage.PostgresDSN, c.MasterKey)
		if err != nil {
			logx.Fatalf("failed to open postgres metadata store: %v", err)
		}
		c.Store = store

		// Pair the postgres metadata store with the pgvector-backed
		// vector store in the same database.
		vecStore, err := vstpgvector.Open(c.Config.Storage.PostgresDSN, embeddingDimension)
		if err != nil {
			logx.Fatalf("failed to open pgvector store: %v", err)
		}
		c.VectorDB = vecStore
		c.Vectors = vstore.NewClient(vecStore)
	default:
		if err := os.MkdirAll(parentDir(c.Config.Storage.SQLitePath), 0o700); err != nil {
			logx.Fatalf("failed to create storage directory: %v", err)
		}
		store, err := msqlite.Open(c.Config.Storage.SQLitePath, c.MasterKey)
		if err != nil {
			logx.Fatalf("failed to open sqlite metadata store: %v", err)
		}
		c.Store = store

		if err := os.MkdirAll(c.Config.Storage.VectorDir, 0o700); err != nil {
			logx.Fatalf("failed to create vector directory: %v", err)
		}
		vecStore, err := vstsqlitevec.Open(c.Config.Storage.VectorDir+"/vectors.db", embeddingDimension)
		if err != nil {
			logx.Fatalf("failed to open vector store: %v", err)
		}
		c.VectorDB = vecStore
		c.Vectors = vstore.NewClient(vecStore)
	}

	if err := os.MkdirAll(c.Config.Storage.DocumentsDir, 0o700); err != nil {
		logx.Fatalf("failed to create documents directory: %v", err)
	}
	docsFS, err := fsxlocal.NewLocalFileSystem(c.Config.Storage.DocumentsDir)
	if err != nil {
		logx.Fatalf("failed to initialize documents file system: %v", err)
	}
	c.FileSystem = docsFS
}

// embeddingDimension matches ailocal's default and is the width both
// vector stores are opened with. The remote embedding providers are
// built with their own default output widths; this constant does not
// change those.
const embeddingDimension = 384

func (c *Container) initEventBus() {
	c.Bus = eventx.New(
		eventx.WithHistoryLimit(c.Config.EventBus.HistoryLimit),
		eventx.WithDebugMode(c.Config.EventBus.DebugMode),
	)
}

// initLLM builds the configured primary/fallback models and the router
// that dispatches between them.
func (c *Container) initLLM() {
	primary := c.buildModel(c.Config.LLM.Primary)
	fallback := c.buildModel(c.Config.LLM.Fallback)
	c.Router = llm.NewRouter(primary, fallback, c.Bus, llm.DefaultRouterConfig())
}

// buildModel resolves a provider name from LLMConfig into a llm.Model.
// An unrecognized or unconfigured name falls back to the local stand-in
// engine so the router always has a usable model.
func (c *Container) buildModel(name string) llm.Model {
	switch name {
	case "anthropic":
		if c.Config.LLM.AnthropicAPIKey == "" {
			logx.Warn("anthropic selected but ANTHROPIC_API_KEY is unset, using local model instead")
			return c.localModel()
		}
		provider := aianthropic.NewAnthropicProvider(c.Config.LLM.AnthropicAPIKey)
		return llm.NewModel(provider, llm.ModelInfo{
			Name: "claude", Provider: "anthropic", MaxContextTokens: 200_000,
			SupportsTools: true, SupportsVision: true,
		})
	case "openai":
		if c.Config.LLM.OpenAIAPIKey == "" {
			logx.Warn("openai selected but OPENAI_API_KEY is unset, using local model instead")
			return c.localModel()
		}
		provider := aiopenai.NewOpenAIProvider(c.Config.LLM.OpenAIAPIKey)
		return llm.NewEmbeddingModel(provider, provider, llm.ModelInfo{
			Name: "gpt-4o", Provider: "openai", MaxContextTokens: 128_000,
			SupportsTools: true, SupportsVision: true, SupportsEmbedding: true,
		})
	case "azure":
		if c.Config.LLM.AzureEndpoint == "" || c.Config.LLM.AzureAPIKey == "" {
			logx.Warn("azure selected but AZURE_ENDPOINT/AZURE_API_KEY is unset, using local model instead")
			return c.localModel()
		}
		provider := aiazure.NewAzureOpenAIProvider(c.Config.LLM.AzureEndpoint, c.Config.LLM.AzureAPIKey)
		return llm.NewEmbeddingModel(provider, provider, llm.ModelInfo{
			Name: "azure-openai", Provider: "azure", MaxContextTokens: 128_000,
			SupportsTools: true, SupportsVision: true, SupportsEmbedding: true,
		})
	case "bedrock":
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(c.Config.LLM.AWSRegion))
		if err != nil {
			logx.Warnf("bedrock selected but AWS config could not be loaded (%v), using local model instead", err)
			return c.localModel()
		}
		provider := aibedrock.NewBedrockProvider(awsCfg)
		return llm.NewModel(provider, llm.ModelInfo{
			Name: "bedrock", Provider: "bedrock", MaxContextTokens: 200_000,
			SupportsTools: true,
		})
	case "gemini":
		if c.Config.LLM.GeminiAPIKey == "" {
			logx.Warn("gemini selected but GEMINI_API_KEY is unset, using local model instead")
			return c.localModel()
		}
		provider, err := aigemini.NewGeminiProvider(context.Background(), c.Config.LLM.GeminiAPIKey)
		if err != nil {
			logx.Warnf("failed to construct gemini provider (%v), using local model instead", err)
			return c.localModel()
		}
		return llm.NewEmbeddingModel(provider, provider, llm.ModelInfo{
			Name: "gemini", Provider: "gemini", MaxContextTokens: 1_000_000,
			SupportsTools: true, SupportsVision: true, SupportsEmbedding: true,
		})
	case "local":
		return c.localModel()
	default:
		logx.Warnf("unrecognized LLM provider %q, using local model instead", name)
		return c.localModel()
	}
}

func (c *Container) localModel() llm.Model {
	provider := ailocal.NewProvider(ailocal.Config{Dimension: embeddingDimension})
	return llm.NewEmbeddingModel(provider, provider, provider.GetModelInfo())
}

// initDomain wires the memory service, context assembler, orchestrator,
// storage manager, and ingest seam over the infrastructure above, then
// assembles pkg/core's façade.
func (c *Container) initDomain() {
	memCfg := memory.DefaultConfig()
	memCfg.SimilarityWeight = c.Config.Memory.SimilarityWeight
	memCfg.RecencyWeight = c.Config.Memory.RecencyWeight
	memCfg.ImportanceWeight = c.Config.Memory.ImportanceWeight
	memCfg.RecencyHalfLife = time.Duration(c.Config.Memory.RecencyHalfLifeDays * float64(24*time.Hour))
	c.Memory = memory.New(c.Store, c.Vectors, c.Router, c.Bus, memCfg)

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.Budget = ctxasm.DefaultBudget()
	orchCfg.Budget.ReservedSystemPromptTokens = c.Config.Context.ReservedSystemTokens
	orchCfg.Budget.ReservedUserMessageTokens = c.Config.Context.ReservedUserTokens
	orchCfg.Budget.ReservedResponseTokens = c.Config.Context.ReservedResponseTokens
	orchCfg.Budget.ContextRatio = c.Config.Context.ContextRatio
	c.Orchestrator = orchestrator.New(c.Store, c.Memory, c.Router, c.Bus, orchCfg)

	c.Storage = storagemgr.New(c.Store, c.FileSystem, c.MasterKey, c.Bus, storagemgr.Config{
		MetadataDBPath:   c.Config.Storage.SQLitePath,
		VectorDir:        c.Config.Storage.VectorDir,
		DocumentsDir:     c.Config.Storage.DocumentsDir,
		BackupDir:        c.Config.Backup.Dir,
		EncryptByDefault: c.Config.Backup.EncryptByDefault,
	})

	c.Ingest = ingest.New(c.Store, c.Memory)

	c.Core = core.New(c.Store, c.Memory, c.Orchestrator, c.Storage, c.Ingest, c.Bus)
}

// Cleanup shuts down in order: publish app:shutdown, close the vector
// store, close the metadata store.
func (c *Container) Cleanup() {
	logx.Info("shutting down")

	c.Bus.Publish(eventx.EventAppShutdown, map[string]any{"time": time.Now().Format(time.RFC3339)})
	if c.VectorDB != nil {
		if err := c.VectorDB.Close(); err != nil {
			logx.Errorf("error closing vector store: %v", err)
		}
	}
	if err := c.Store.Close(); err != nil {
		logx.Errorf("error closing metadata store: %v", err)
	}

	logx.Info("shutdown complete")
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
