package main

import (
	"encoding/json"
	"io"
	"time"

	"github.com/sourcedesk/dealflow/internal/enrich"
	"github.com/sourcedesk/dealflow/internal/trace"
)

// jsonSink writes one JSON line per analyzed message: the deal record plus
// the run trace, ready for ingestion by whatever sits downstream.
type jsonSink struct {
	enc *json.Encoder
}

func newJSONSink(w io.Writer) *jsonSink {
	return &jsonSink{enc: json.NewEncoder(w)}
}

type traceEntry struct {
	Stage    string    `json:"stage"`
	Request  string    `json:"request"`
	Response string    `json:"response"`
	At       time.Time `json:"at"`
}

type envelope struct {
	RunID        string            `json:"runId"`
	Started      time.Time         `json:"started"`
	Record       enrich.DealRecord `json:"record"`
	Prompts      []traceEntry      `json:"prompts,omitempty"`
	Searches     []traceEntry      `json:"searches,omitempty"`
	Acquisitions []traceEntry      `json:"acquisitions,omitempty"`
}

func (s *jsonSink) Write(rec enrich.DealRecord, tr *trace.Trace) error {
	env := envelope{
		RunID:        tr.RunID,
		Started:      tr.Started,
		Record:       rec,
		Prompts:      convert(tr.Entries(trace.CategoryPrompt)),
		Searches:     convert(tr.Entries(trace.CategorySearch)),
		Acquisitions: convert(tr.Entries(trace.CategoryAcquisition)),
	}
	return s.enc.Encode(env)
}

func convert(in []trace.Entry) []traceEntry {
	out := make([]traceEntry, 0, len(in))
	for _, e := range in {
		out = append(out, traceEntry{Stage: e.Stage, Request: e.Request, Response: e.Response, At: e.At})
	}
	return out
}
