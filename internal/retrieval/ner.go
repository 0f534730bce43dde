package retrieval

import (
	"sync"

	"github.com/jdkato/prose/v2"

	"github.com/corner-places/venue-engine/internal/config"
	"github.com/corner-places/venue-engine/internal/observability"
)

// ProseRecognizer finds place entities with the prose averaged-perceptron
// tagger and its bundled NER model.
type ProseRecognizer struct {
	logger *observability.Logger

	once  sync.Once
	model *prose.Model
}

// NewProseRecognizer creates a recognizer. The model loads on first use.
func NewProseRecognizer(logger *observability.Logger) *ProseRecognizer {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &ProseRecognizer{logger: logger.WithOperation("ner")}
}

// Recognize returns the named entities in text. Parse failures yield none.
func (r *ProseRecognizer) Recognize(text string) []Entity {
	opts := []prose.DocOpt{prose.WithSegmentation(false)}
	r.once.Do(func() {
		doc, err := prose.NewDocument("", opts...)
		if err != nil {
			r.logger.Warn().Err(err).Msg("Failed to load entity model")
			return
		}
		r.model = doc.Model
	})
	if r.model != nil {
		opts = append(opts, prose.UsingModel(r.model))
	}

	doc, err := prose.NewDocument(text, opts...)
	if err != nil {
		r.logger.Debug().Err(err).Msg("Entity recognition failed")
		return nil
	}

	ents := doc.Entities()
	out := make([]Entity, 0, len(ents))
	for _, ent := range ents {
		out = append(out, Entity{Text: ent.Text, Label: ent.Label})
	}
	return out
}

// ExtractorFrom builds the query extractor from application config.
func ExtractorFrom(cfg *config.Config, logger *observability.Logger) *Extractor {
	if cfg == nil || !cfg.Retrieval.EntityRecognition {
		return NewExtractor(nil)
	}
	return NewExtractor(NewProseRecognizer(logger))
}
