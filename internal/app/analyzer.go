// Package app wires the acquisition paths, the summarizer and the enrichment
// pipeline into one sequential run per inbound message.
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/sourcedesk/dealflow/internal/deck"
	"github.com/sourcedesk/dealflow/internal/enrich"
	"github.com/sourcedesk/dealflow/internal/extract"
	"github.com/sourcedesk/dealflow/internal/source"
	"github.com/sourcedesk/dealflow/internal/trace"
)

// The acquisition collaborators, one per source class. Interfaces so tests
// run the full orchestration over fakes without a browser or network.
type (
	GatedFetcher interface {
		Fetch(ctx context.Context, link, password string) extract.Document
	}
	FileParser interface {
		Parse(ctx context.Context, path, name string) extract.Document
	}
	CloudFetcher interface {
		Fetch(ctx context.Context, link string) extract.Document
	}
	WebExtractor interface {
		Fetch(ctx context.Context, link string) extract.Document
	}
)

type Summarizer interface {
	Summarize(ctx context.Context, tr *trace.Trace, rawText, message string) deck.Facts
}

type Enricher interface {
	Enrich(ctx context.Context, tr *trace.Trace, message string, facts deck.Facts, deckLink string) (enrich.DealRecord, error)
}

// Sink receives the finished record and its trace. The JSON-lines writer in
// cmd is the production implementation.
type Sink interface {
	Write(rec enrich.DealRecord, tr *trace.Trace) error
}

type Analyzer struct {
	gated      GatedFetcher
	files      FileParser
	cloud      CloudFetcher
	web        WebExtractor
	summarizer Summarizer
	enricher   Enricher
	sink       Sink
	logger     *log.Logger
}

func NewAnalyzer(gated GatedFetcher, files FileParser, cloud CloudFetcher, web WebExtractor,
	summarizer Summarizer, enricher Enricher, sink Sink, logger *log.Logger) *Analyzer {
	if logger == nil {
		logger = log.Default()
	}
	return &Analyzer{
		gated:      gated,
		files:      files,
		cloud:      cloud,
		web:        web,
		summarizer: summarizer,
		enricher:   enricher,
		sink:       sink,
		logger:     logger,
	}
}

// Analyze runs one message end to end: classify, acquire, summarize, enrich,
// hand off to the sink. It never fails the run for content reasons; the worst
// case is an all-sentinel record. The returned error is the sink's.
func (a *Analyzer) Analyze(ctx context.Context, msg source.Message) (enrich.DealRecord, *trace.Trace, error) {
	tr := trace.New()
	class := source.Classify(msg)
	a.logger.Printf("run=%s class=%s attachments=%d", tr.RunID, class, len(msg.Attachments))

	doc := a.acquire(ctx, tr, msg, class)
	if doc.Err != nil {
		a.logger.Printf("run=%s acquisition degraded: %v", tr.RunID, doc.Err)
	} else {
		a.logger.Printf("run=%s acquired method=%s chars=%d", tr.RunID, doc.Method, len(doc.RawText))
	}

	facts := a.summarizer.Summarize(ctx, tr, doc.RawText, msg.Text)
	deckLink := source.DeckLink(msg.Text)

	rec, err := a.enricher.Enrich(ctx, tr, msg.Text, facts, deckLink)
	if err != nil {
		a.logger.Printf("run=%s enrichment aborted: %v", tr.RunID, err)
		rec = enrich.SentinelRecord(deckLink)
	}

	if err := a.sink.Write(rec, tr); err != nil {
		return rec, tr, fmt.Errorf("write record: %w", err)
	}
	a.logger.Printf("run=%s done company=%q category=%s", tr.RunID, rec.CompanyName, rec.Category)
	return rec, tr, nil
}

// acquire resolves the message's source class to one document. Links are
// tried sequentially in message order; the first usable document wins and
// the last failure is kept when none is usable.
func (a *Analyzer) acquire(ctx context.Context, tr *trace.Trace, msg source.Message, class source.Classification) extract.Document {
	switch class {
	case source.ClassGatedDocument:
		password := source.Password(msg.Text)
		return a.tryLinks(tr, "gated", source.GatedLinks(msg.Text), func(link string) extract.Document {
			return a.gated.Fetch(ctx, link, password)
		})

	case source.ClassAttachment:
		var last extract.Document
		for _, att := range msg.Attachments {
			doc := a.files.Parse(ctx, att.Path, att.Name)
			a.note(tr, "attachment", att.Name, doc)
			if usable(doc) {
				return doc
			}
			last = doc
		}
		return last

	case source.ClassCloudFile:
		return a.tryLinks(tr, "cloud", source.CloudLinks(msg.Text), func(link string) extract.Document {
			return a.cloud.Fetch(ctx, link)
		})

	case source.ClassGenericWeb:
		return a.tryLinks(tr, "web", source.Links(msg.Text), func(link string) extract.Document {
			return a.web.Fetch(ctx, link)
		})

	default:
		return extract.Document{RawText: msg.Text, Method: extract.MethodMessage}
	}
}

func (a *Analyzer) tryLinks(tr *trace.Trace, stage string, links []string, fetch func(string) extract.Document) extract.Document {
	var last extract.Document
	for _, link := range links {
		doc := fetch(link)
		a.note(tr, stage, link, doc)
		if usable(doc) {
			return doc
		}
		last = doc
	}
	return last
}

func (a *Analyzer) note(tr *trace.Trace, stage, ref string, doc extract.Document) {
	status := fmt.Sprintf("method=%s chars=%d", doc.Method, len(doc.RawText))
	if doc.Err != nil {
		status = "error: " + doc.Err.Error()
	}
	tr.Add(trace.CategoryAcquisition, stage, ref, status)
}

func usable(doc extract.Document) bool {
	return doc.Err == nil && !doc.Empty()
}
