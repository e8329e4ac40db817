// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ingestion

import (
	"context"
	"log/slog"
	"time"

	"github.com/poiesic/knowbank/core"
	"github.com/poiesic/knowbank/extract"
	"github.com/poiesic/knowbank/metrics"
)

// extractProcessor runs the concept extractor for one document and turns
// every failure into the fallback extraction.
type extractProcessor struct {
	extractor extract.ConceptExtractor
	timeout   time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func newExtractProcessor(extractor extract.ConceptExtractor, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *extractProcessor {
	return &extractProcessor{
		extractor: extractor,
		timeout:   timeout,
		metrics:   m,
		logger:    logger.With("processor", "extract"),
	}
}

// process returns the extraction for text and whether the fallback was used.
func (ep *extractProcessor) process(ctx context.Context, text, sourceType string) (core.Extraction, bool) {
	if ep.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ep.timeout)
		defer cancel()
	}

	ext, err := ep.extractor.Extract(ctx, text, sourceType)
	if err != nil {
		ep.logger.Warn("concept extraction failed, using fallback",
			"source_type", sourceType, "err", err)
		ep.metrics.Extraction(true)
		return core.FallbackExtraction(), true
	}
	ep.metrics.Extraction(false)
	return ext, false
}
