package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/dto"
	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
	"github.com/noah-isme/timetable-api/pkg/export"
	"github.com/noah-isme/timetable-api/pkg/storage"
)

type exportSource interface {
	Proposal(id string) (*Proposal, bool)
	GetEntries(ctx context.Context, id string) ([]models.ScheduleEntry, error)
	Catalog(ctx context.Context) (scheduler.Input, error)
}

type fileStorage interface {
	Save(name string, data []byte) (string, error)
	Open(name string) (*os.File, error)
	Delete(name string) error
	CleanupOlderThan(ttl time.Duration, now time.Time) ([]string, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportDownload is a resolved, opened export file.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	ExpiresAt   time.Time
}

// ExportService renders proposals and saved timetables to files and hands
// out signed download links.
type ExportService struct {
	source    exportSource
	storage   fileStorage
	renderers map[string]datasetRenderer
	signer    *storage.SignedURLSigner
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       ExportConfig
}

// NewExportService constructs an ExportService. Nil renderers fall back to
// the gocsv and gofpdf exporters.
func NewExportService(source exportSource, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, metrics *MetricsService, logger *zap.Logger, csv, pdf datasetRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		source:  source,
		storage: store,
		renderers: map[string]datasetRenderer{
			dto.ExportFormatCSV: csv,
			dto.ExportFormatPDF: pdf,
		},
		signer:    signer,
		validator: validator.New(),
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// ExportProposal renders an unsaved proposal.
func (s *ExportService) ExportProposal(ctx context.Context, proposalID string, req dto.ExportRequest) (*dto.ExportResponse, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	proposal, ok := s.source.Proposal(proposalID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found or expired")
	}
	title := req.Title
	if title == "" {
		title = "Timetable proposal " + shortID(proposal.ID)
	}
	dataset := export.Dataset{
		Title: title,
		Rows:  export.RowsFromEntries(proposal.Result.Entries, namesFromInput(proposal.Input)),
	}
	return s.render(ctx, dataset, req.Format)
}

// ExportTimetable renders a saved timetable version. Names are resolved from
// the stored catalog; ids are printed when it cannot be loaded.
func (s *ExportService) ExportTimetable(ctx context.Context, timetableID string, req dto.ExportRequest) (*dto.ExportResponse, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	entries, err := s.source.GetEntries(ctx, timetableID)
	if err != nil {
		return nil, err
	}
	var names export.Names
	if catalog, err := s.source.Catalog(ctx); err != nil {
		s.logger.Warn("export without catalog names", zap.String("timetable_id", timetableID), zap.Error(err))
	} else {
		names = namesFromInput(catalog)
	}
	title := req.Title
	if title == "" {
		title = "Timetable " + shortID(timetableID)
	}
	return s.render(ctx, export.Dataset{Title: title, Rows: export.RowsFromEntries(entries, names)}, req.Format)
}

func (s *ExportService) validate(req dto.ExportRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported export format")
	}
	return nil
}

func (s *ExportService) render(_ context.Context, dataset export.Dataset, format string) (*dto.ExportResponse, error) {
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %s", format))
	}
	payload, err := renderer.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	exportID := uuid.NewString()
	relPath, err := s.storage.Save(path.Join("timetables", exportID+"."+format), payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	token, ticket, err := s.signer.Generate(exportID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export")
	}
	s.metrics.RecordExport(format)
	s.logger.Info("timetable exported", zap.String("export_id", exportID), zap.String("format", format), zap.Int("rows", len(dataset.Rows)))

	return &dto.ExportResponse{
		ExportID:  exportID,
		Format:    format,
		Token:     token,
		URL:       fmt.Sprintf("%s/timetables/exports/%s", strings.TrimRight(s.cfg.APIPrefix, "/"), token),
		ExpiresAt: ticket.ExpiresAt,
	}, nil
}

// Download validates the token and opens the stored file.
func (s *ExportService) Download(token string) (*ExportDownload, error) {
	ticket, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired download token")
	}
	file, err := s.storage.Open(ticket.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export no longer available")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	filename := path.Base(ticket.Path)
	return &ExportDownload{
		File:        file,
		Filename:    filename,
		ContentType: contentTypeFor(path.Ext(filename)),
		ExpiresAt:   ticket.ExpiresAt,
	}, nil
}

// Cleanup removes files older than ttl (the configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	removed, err := s.storage.CleanupOlderThan(ttl, time.Now())
	if err != nil {
		return removed, err
	}
	if len(removed) > 0 {
		s.logger.Info("expired exports removed", zap.Int("files", len(removed)))
	}
	return removed, nil
}

// StartCleanup purges expired exports every interval until ctx is done.
func (s *ExportService) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Cleanup(0); err != nil {
					s.logger.Warn("export cleanup failed", zap.Error(err))
				}
			}
		}
	}()
}

func contentTypeFor(ext string) string {
	switch ext {
	case "." + dto.ExportFormatCSV:
		return "text/csv"
	case "." + dto.ExportFormatPDF:
		return "application/pdf"
	}
	return "application/octet-stream"
}

func namesFromInput(in scheduler.Input) export.Names {
	names := export.Names{
		Classes:   make(map[string]string, len(in.Classes)),
		Subjects:  make(map[string]string, len(in.Subjects)),
		Faculty:   make(map[string]string, len(in.Faculty)),
		Resources: make(map[string]string, len(in.Resources)),
	}
	for _, class := range in.Classes {
		names.Classes[class.ID] = class.Name
	}
	for _, subject := range in.Subjects {
		names.Subjects[subject.ID] = subject.Name
	}
	for _, f := range in.Faculty {
		names.Faculty[f.ID] = f.Name
	}
	for _, resource := range in.Resources {
		names.Resources[resource.ID] = resource.Name
	}
	return names
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
