package triage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/stratowall/mailtriage/pkg/config"
)

// ExfilPhrase is one seed phrasing of a data-exfiltration justification.
type ExfilPhrase struct {
	Text     string
	Category string
}

// SemanticDetector matches subject and justification text against known
// exfiltration phrasings by embedding similarity. It is an optional layer:
// when the embedding backend is unreachable the engine runs without it.
type SemanticDetector struct {
	db         *chromem.DB
	collection *chromem.Collection
	threshold  float32
	log        *zap.Logger

	mu    sync.RWMutex
	ready bool
}

// newOllamaEmbeddingFunc builds an embedding function for the Ollama
// /api/embeddings endpoint.
func newOllamaEmbeddingFunc(model, baseURL string) chromem.EmbeddingFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, text string) ([]float32, error) {
		reqBody := map[string]string{
			"model":  model,
			"prompt": text,
		}
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/api/embeddings", bytes.NewBuffer(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("ollama embedding: unexpected status %d", resp.StatusCode)
		}

		var result struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return result.Embedding, nil
	}
}

// NewSemanticDetector creates a detector backed by Ollama embeddings.
func NewSemanticDetector(cfg *config.Config, log *zap.Logger) (*SemanticDetector, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db := chromem.NewDB()

	embeddingFunc := newOllamaEmbeddingFunc(cfg.EmbeddingModel, cfg.OllamaURL)
	collection, err := db.CreateCollection("exfil_phrases", nil, embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	return &SemanticDetector{
		db:         db,
		collection: collection,
		threshold:  cfg.SemanticThreshold,
		log:        log.Named("semantic"),
	}, nil
}

// LoadPhrases embeds the seed phrasings into the vector collection. Called
// once at startup; failure leaves the detector unready and the engine scores
// without the signal.
func (sd *SemanticDetector) LoadPhrases(ctx context.Context, phrases []ExfilPhrase) error {
	sd.mu.Lock()
	defer sd.mu.Unlock()

	if len(phrases) == 0 {
		phrases = defaultExfilPhrases()
	}

	docs := make([]chromem.Document, len(phrases))
	for i, p := range phrases {
		docs[i] = chromem.Document{
			ID:      fmt.Sprintf("phrase_%d", i),
			Content: p.Text,
			Metadata: map[string]string{
				"category": p.Category,
			},
		}
	}

	// One worker: embedding sequentially avoids overwhelming the Ollama API.
	if err := sd.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("failed to add phrases: %w", err)
	}

	sd.ready = true
	sd.log.Info("semantic phrases loaded", zap.Int("phrases", len(phrases)))
	return nil
}

// Signal implements SemanticSignaler. It returns the best similarity and the
// matched phrasing when the similarity clears the threshold. Unready
// detectors and query failures report no signal.
func (sd *SemanticDetector) Signal(ctx context.Context, text string) (float64, string, bool) {
	sd.mu.RLock()
	defer sd.mu.RUnlock()

	if !sd.ready || strings.TrimSpace(text) == "" {
		return 0, "", false
	}

	results, err := sd.collection.Query(ctx, strings.ToLower(text), 3, nil, nil)
	if err != nil {
		sd.log.Warn("semantic query failed", zap.Error(err))
		return 0, "", false
	}
	if len(results) == 0 {
		return 0, "", false
	}

	best := results[0]
	if best.Similarity < sd.threshold {
		return 0, "", false
	}
	return float64(best.Similarity), best.Content, true
}

// defaultExfilPhrases seeds the collection when no phrase file is configured.
func defaultExfilPhrases() []ExfilPhrase {
	return []ExfilPhrase{
		{Text: "sending this to my personal email so I have a copy", Category: "personal_copy"},
		{Text: "backing up my work files before I leave", Category: "leaver_backup"},
		{Text: "need the customer list at home over the weekend", Category: "takeout"},
		{Text: "forwarding the contract to my gmail for reference", Category: "personal_copy"},
		{Text: "copy of the salary spreadsheet for my records", Category: "hr_data"},
		{Text: "exporting the full client database before my last day", Category: "leaver_backup"},
		{Text: "sending source code to review on my own laptop", Category: "ip_takeout"},
		{Text: "keeping a copy of the price list in case I need it later", Category: "takeout"},
	}
}
