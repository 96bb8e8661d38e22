package kb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/currentevents/internal/analytics"
	"github.com/ppiankov/currentevents/internal/cache"
	"github.com/sashabaranov/go-openai"
)

const (
	namespaceOpenAI = "openai-ner"
	dbpediaPrefix   = "http://dbpedia.org/resource/"
)

const recognizerPrompt = `List the places, organisations and other named entities mentioned in the user's text.
Reply with a JSON object {"wikidata": [...], "dbpedia": [...]} holding full entity URIs such as
"http://www.wikidata.org/entity/Q1867" and "http://dbpedia.org/resource/Almaty". Leave out entities you are unsure of.`

// OpenAIConfig configures an OpenAIRecognizer.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAIRecognizer recognizes entities with an OpenAI chat model.
type OpenAIRecognizer struct {
	client   *openai.Client
	model    string
	timeout  time.Duration
	cache    cache.Cache
	recorder analytics.Recorder
}

// NewOpenAIRecognizer creates a new OpenAI backed recognizer
func NewOpenAIRecognizer(cfg OpenAIConfig, c cache.Cache, recorder analytics.Recorder) (*OpenAIRecognizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	r := &OpenAIRecognizer{
		client:   openai.NewClientWithConfig(clientConfig),
		model:    cfg.Model,
		timeout:  cfg.Timeout,
		cache:    c,
		recorder: recorder,
	}
	if r.model == "" {
		r.model = openai.GPT4oMini
	}
	if r.timeout == 0 {
		r.timeout = 30 * time.Second
	}
	if r.recorder == nil {
		r.recorder = analytics.Nop{}
	}
	return r, nil
}

type recognized struct {
	Wikidata []string `json:"wikidata"`
	DBpedia  []string `json:"dbpedia"`
}

// RecognizeEntities returns the Wikidata and DBpedia entity URIs the model
// finds in text. Anything not shaped like an entity URI is dropped.
func (r *OpenAIRecognizer) RecognizeEntities(ctx context.Context, text string) ([]string, []string, error) {
	key := cache.CacheKey(namespaceOpenAI, r.model+"|"+text)
	content, cached := "", false
	if r.cache != nil {
		if data, ok := r.cache.Get(ctx, key); ok {
			content, cached = string(data), true
		}
	}

	if !cached {
		ctxWithTimeout, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		r.recorder.RecordAnalytic(analytics.RecognizerQueries, 1)
		resp, err := r.client.CreateChatCompletion(ctxWithTimeout, openai.ChatCompletionRequest{
			Model: r.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: recognizerPrompt},
				{Role: openai.ChatMessageRoleUser, Content: text},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
			Temperature:    0,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("OpenAI API error: %w", err)
		}
		if len(resp.Choices) == 0 {
			return nil, nil, fmt.Errorf("no response from OpenAI")
		}
		content = strings.TrimSpace(resp.Choices[0].Message.Content)
	}

	var res recognized
	if err := json.Unmarshal([]byte(content), &res); err != nil {
		return nil, nil, fmt.Errorf("decode OpenAI entities: %w", err)
	}
	if !cached && r.cache != nil {
		_ = r.cache.Set(ctx, key, []byte(content), 0)
	}

	var wikidata, dbpedia []string
	for _, e := range res.Wikidata {
		if strings.HasPrefix(e, EntityPrefix) && entityIDRe.MatchString(EntityID(e)) {
			wikidata = append(wikidata, e)
		}
	}
	for _, e := range res.DBpedia {
		if strings.HasPrefix(e, dbpediaPrefix) {
			dbpedia = append(dbpedia, e)
		}
	}
	return wikidata, dbpedia, nil
}
