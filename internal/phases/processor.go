package phases

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/yungbote/logcompliance/internal/platform/logger"
)

//go:embed prompts/*.tmpl schemas/*.json
var assets embed.FS

// Asker is the part of the analysis client a processor needs.
type Asker interface {
	Ask(ctx context.Context, documentName string, prompt string) (string, error)
}

// Input is what one phase run consumes. Prior is required for phases 2 and 3 and must
// be the artifact of the immediately preceding phase.
type Input struct {
	Phase        Phase
	JobID        string
	DocumentName string
	Prior        *Artifact
}

type promptData struct {
	DocumentName  string
	Taxonomy      []Category
	Patterns      []groundTruthPattern
	SeverityRules []SeverityRule
	Prior         string
}

type strategy struct {
	phase  Phase
	status string
	prompt *template.Template
	schema *jsonschema.Schema
	// decode fills the payload of art and returns diagnostic warnings.
	decode func(doc []byte, art *Artifact, prior *Artifact) ([]string, error)
}

// Processor runs any of the three phases through a per-phase strategy.
type Processor struct {
	asker      Asker
	log        *logger.Logger
	now        func() time.Time
	strategies map[Phase]strategy
}

type Option func(*Processor)

// WithClock overrides the produced_at clock.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

func NewProcessor(asker Asker, log *logger.Logger, opts ...Option) (*Processor, error) {
	if asker == nil {
		return nil, fmt.Errorf("asker required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	p := &Processor{
		asker:      asker,
		log:        log.With("service", "PhaseProcessor"),
		now:        time.Now,
		strategies: map[Phase]strategy{},
	}
	for _, o := range opts {
		o(p)
	}

	compiler := jsonschema.NewCompiler()
	for _, def := range []struct {
		phase  Phase
		status string
		decode func([]byte, *Artifact, *Artifact) ([]string, error)
	}{
		{Phase1, StatusPreliminary, decodeAnalysis},
		{Phase2, StatusCrossValidated, decodeCrossValidation},
		{Phase3, StatusFinal, decodeFinalReport},
	} {
		name := fmt.Sprintf("phase%d", int(def.phase))
		tmpl, err := template.ParseFS(assets, "prompts/"+name+".tmpl")
		if err != nil {
			return nil, fmt.Errorf("parse %s prompt: %w", name, err)
		}
		rawSchema, err := assets.ReadFile("schemas/" + name + ".json")
		if err != nil {
			return nil, fmt.Errorf("read %s schema: %w", name, err)
		}
		if err := compiler.AddResource(name+".json", bytes.NewReader(rawSchema)); err != nil {
			return nil, fmt.Errorf("add %s schema: %w", name, err)
		}
		schema, err := compiler.Compile(name + ".json")
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", name, err)
		}
		p.strategies[def.phase] = strategy{
			phase:  def.phase,
			status: def.status,
			prompt: tmpl,
			schema: schema,
			decode: def.decode,
		}
	}
	return p, nil
}

// Run asks the analysis service for in.Phase and returns the validated artifact.
// Transport failures from the asker are returned wrapped; unusable answers are
// returned as *ValidationError.
func (p *Processor) Run(ctx context.Context, in Input) (Artifact, error) {
	st, err := p.strategyFor(in)
	if err != nil {
		return Artifact{}, err
	}
	prompt, err := p.render(st, in)
	if err != nil {
		return Artifact{}, err
	}

	p.log.Debug("Asking analysis service", "job_id", in.JobID, "phase", int(in.Phase), "prompt_bytes", len(prompt))
	raw, err := p.asker.Ask(ctx, in.DocumentName, prompt)
	if err != nil {
		return Artifact{}, fmt.Errorf("%s ask: %w", in.Phase, err)
	}

	doc, err := extractJSONObject(raw)
	if err != nil {
		return Artifact{}, &ValidationError{Phase: in.Phase, Raw: raw, Reason: "extract JSON", Err: err}
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return Artifact{}, &ValidationError{Phase: in.Phase, Raw: raw, Reason: "decode JSON", Err: err}
	}
	if err := st.schema.Validate(v); err != nil {
		return Artifact{}, &ValidationError{Phase: in.Phase, Raw: raw, Reason: "schema mismatch", Err: err}
	}

	art := Artifact{
		Phase:            in.Phase,
		JobID:            in.JobID,
		DocumentName:     in.DocumentName,
		ValidationStatus: st.status,
		RawText:          raw,
	}
	warnings, err := st.decode(doc, &art, in.Prior)
	if err != nil {
		return Artifact{}, &ValidationError{Phase: in.Phase, Raw: raw, Reason: "decode payload", Err: err}
	}
	art.Warnings = warnings
	art.ProducedAt = p.now().UTC()

	if len(warnings) > 0 {
		p.log.Warn("Analysis response references unknown entries", "job_id", in.JobID, "phase", int(in.Phase), "warnings", len(warnings))
	}
	return art, nil
}

func (p *Processor) strategyFor(in Input) (strategy, error) {
	st, ok := p.strategies[in.Phase]
	if !ok {
		return strategy{}, fmt.Errorf("unknown phase %d", int(in.Phase))
	}
	if prev := in.Phase.Previous(); prev != 0 {
		if in.Prior == nil {
			return strategy{}, fmt.Errorf("%s requires the %s artifact", in.Phase, prev)
		}
		if in.Prior.Phase != prev || !in.Prior.hasPayload() {
			return strategy{}, fmt.Errorf("%s requires the %s artifact, got %s", in.Phase, prev, in.Prior.Phase)
		}
	}
	return st, nil
}

func (p *Processor) render(st strategy, in Input) (string, error) {
	data := promptData{
		DocumentName:  in.DocumentName,
		Taxonomy:      taxonomy,
		Patterns:      groundTruthPatterns,
		SeverityRules: severityRules,
	}
	if in.Prior != nil {
		prior, err := json.MarshalIndent(in.Prior.Payload(), "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode %s artifact: %w", in.Prior.Phase, err)
		}
		data.Prior = string(prior)
	}
	var b strings.Builder
	if err := st.prompt.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", st.phase, err)
	}
	return b.String(), nil
}

func decodeAnalysis(doc []byte, art *Artifact, _ *Artifact) ([]string, error) {
	var payload AnalysisPayload
	if err := json.Unmarshal(doc, &payload); err != nil {
		return nil, err
	}
	art.Analysis = &payload
	return nil, nil
}

func decodeCrossValidation(doc []byte, art *Artifact, prior *Artifact) ([]string, error) {
	var payload CrossValidationPayload
	if err := json.Unmarshal(doc, &payload); err != nil {
		return nil, err
	}
	art.CrossValidation = &payload

	known := prior.Analysis.RequestIDs()
	var warnings []string
	for _, f := range payload.VerifiedFindings {
		if _, ok := known[f.RequestID]; !ok {
			warnings = append(warnings, fmt.Sprintf("verified finding %q not present in phase 1 findings", f.RequestID))
		}
	}
	return warnings, nil
}

func decodeFinalReport(doc []byte, art *Artifact, prior *Artifact) ([]string, error) {
	var payload FinalReportPayload
	if err := json.Unmarshal(doc, &payload); err != nil {
		return nil, err
	}
	art.FinalReport = &payload

	known := map[string]struct{}{}
	for _, f := range prior.CrossValidation.VerifiedFindings {
		known[f.RequestID] = struct{}{}
	}
	var warnings []string
	for _, r := range payload.ValidatedResults {
		if _, ok := known[r.RequestID]; !ok {
			warnings = append(warnings, fmt.Sprintf("validated result %q not present in phase 2 findings", r.RequestID))
		}
	}
	return warnings, nil
}
