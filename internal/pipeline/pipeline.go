package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"labreader/internal/analysis"
	"labreader/internal/intake"
	"labreader/internal/models"
	"labreader/internal/ocr"
	"labreader/internal/report"
)

const defaultMaxConcurrentOCR = 4

// RunRecorder persists run metadata. Failures are logged only.
type RunRecorder interface {
	RecordRun(ctx context.Context, run *models.PipelineRun) error
}

// Upload is one image handed to the pipeline.
type Upload struct {
	Body     io.Reader
	FileName string
	MimeType string
	Size     int64
}

type Options struct {
	Intake           *intake.Intake
	Invoker          ocr.Invoker
	Provider         analysis.Provider
	ArtifactDir      string
	MaxConcurrentOCR int
	Tracker          Tracker
	Recorder         RunRecorder
	Log              zerolog.Logger
}

// Pipeline runs intake, OCR, normalization, analysis and assembly for one upload at a time.
// It holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	intake      *intake.Intake
	invoker     ocr.Invoker
	provider    analysis.Provider
	artifactDir string
	slots       *semaphore.Weighted
	tracker     Tracker
	recorder    RunRecorder
	log         zerolog.Logger
}

func New(opts Options) *Pipeline {
	n := opts.MaxConcurrentOCR
	if n <= 0 {
		n = defaultMaxConcurrentOCR
	}
	return &Pipeline{
		intake:      opts.Intake,
		invoker:     opts.Invoker,
		provider:    opts.Provider,
		artifactDir: opts.ArtifactDir,
		slots:       semaphore.NewWeighted(int64(n)),
		tracker:     opts.Tracker,
		recorder:    opts.Recorder,
		log:         opts.Log,
	}
}

func (p *Pipeline) ProviderName() string {
	return p.provider.Name()
}

// Process turns an uploaded image into a report. Every file it creates is gone when it returns,
// including when it panics. Analysis failures degrade the report instead of failing it.
func (p *Pipeline) Process(ctx context.Context, up Upload) (rep *models.Report, err error) {
	log := p.logger(ctx)
	start := time.Now()
	run := &models.PipelineRun{
		ID:       uuid.NewString(),
		Provider: p.provider.Name(),
		MimeType: up.MimeType,
		Size:     up.Size,
	}
	scope := newCleanupScope(ctx, p.tracker, log)

	defer func() {
		r := recover()
		scope.Release()
		switch {
		case r != nil:
			run.Status = models.RunFailed
			run.ErrorKind = KindPanic
		case err != nil:
			run.Status = models.RunFailed
			run.ErrorKind = Kind(err)
		case rep != nil && !rep.AnalysisSuccessful:
			run.Status = models.RunDegraded
		default:
			run.Status = models.RunSuccess
		}
		run.DurationMS = time.Since(start).Milliseconds()
		p.record(ctx, run, log)
		if r != nil {
			panic(r)
		}
	}()

	file, err := p.intake.Store(ctx, up.Body, up.FileName, up.MimeType, up.Size)
	if err != nil {
		return nil, err
	}
	scope.Add(models.TempFileUpload, file.StoredPath)
	run.MimeType = file.MimeType
	run.Size = file.Size

	artifact, err := ocr.AllocateArtifact(p.artifactDir)
	if err != nil {
		return nil, err
	}
	scope.Add(models.TempFileArtifact, artifact)

	if err := p.extract(ctx, file.StoredPath, artifact); err != nil {
		return nil, err
	}

	normalizer := &ocr.Normalizer{Log: log}
	extracted, err := normalizer.Normalize(artifact)
	if err != nil {
		return nil, err
	}
	run.LineCount = extracted.LineCount

	result, err := p.provider.Analyze(ctx, extracted)
	if err != nil || result == nil {
		log.Warn().Err(err).Str("provider", p.provider.Name()).Msg("analysis unavailable, continuing with extracted text")
		result = analysis.Unavailable(p.provider.Name())
	}
	run.FindingCount = len(result.Findings)

	log.Info().
		Int("lines", extracted.LineCount).
		Int("findings", len(result.Findings)).
		Bool("analysis_successful", result.Successful).
		Msg("report assembled")
	return report.Assemble(result, extracted), nil
}

func (p *Pipeline) extract(ctx context.Context, imagePath, artifactPath string) error {
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for ocr slot: %w", err)
	}
	defer p.slots.Release(1)
	return p.invoker.Invoke(ctx, imagePath, artifactPath)
}

func (p *Pipeline) record(ctx context.Context, run *models.PipelineRun, log zerolog.Logger) {
	if p.recorder == nil {
		return
	}
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := p.recorder.RecordRun(recCtx, run); err != nil {
		log.Warn().Err(err).Str("run_id", run.ID).Msg("record run failed")
	}
}

// logger prefers the request-scoped logger placed in ctx by the HTTP middleware.
func (p *Pipeline) logger(ctx context.Context) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return p.log
}
