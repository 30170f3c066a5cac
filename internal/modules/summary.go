package modules

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"triage/internal/casedb"
	"triage/internal/image"
	"triage/internal/logging"
	"triage/internal/pipeline"
	"triage/internal/queue"
	"triage/internal/services"
	"triage/internal/textutil"
)

// SummaryName is the registry name of the summary module.
const SummaryName = "summary"

// Report file names inside the output directory.
const (
	ReportTextName = "report.txt"
	ReportJSONName = "report.json"
)

type summary struct {
	store     *casedb.Store
	fs        afero.Fs
	outDir    string
	image     image.Image
	writeJSON bool
	writeText bool
	logger    *slog.Logger
}

func newSummary(deps pipeline.Deps, args pipeline.Args) (pipeline.Module, error) {
	if err := requireStore(SummaryName, deps); err != nil {
		return nil, err
	}
	if deps.OutputDir == "" {
		return nil, services.Wrap(services.ErrConfiguration, SummaryName, "init", "output directory is required", nil)
	}
	writeJSON, err := args.Bool("json", true)
	if err != nil {
		return nil, err
	}
	writeText, err := args.Bool("text", true)
	if err != nil {
		return nil, err
	}
	return &summary{
		store:     deps.Store,
		fs:        fsOrDefault(deps.FS),
		outDir:    deps.OutputDir,
		image:     deps.Image,
		writeJSON: writeJSON,
		writeText: writeText,
		logger:    logging.NewComponentLogger(deps.Logger, SummaryName),
	}, nil
}

func (m *summary) Name() string { return SummaryName }

// Report is the document written to report.json.
type Report struct {
	Image          string                     `json:"image,omitempty"`
	Totals         ReportTotals               `json:"totals"`
	Files          []ReportFile               `json:"files"`
	CaseAttributes map[string]json.RawMessage `json:"case_attributes,omitempty"`
}

// ReportTotals counts files by origin and classification.
type ReportTotals struct {
	Files      int   `json:"files"`
	Filesystem int   `json:"filesystem"`
	Carved     int   `json:"carved"`
	Known      int   `json:"known"`
	KnownBad   int   `json:"known_bad"`
	Bytes      int64 `json:"bytes"`
}

// ReportFile is one file row of the report.
type ReportFile struct {
	ID          int64                      `json:"id"`
	Path        string                     `json:"path"`
	Size        int64                      `json:"size"`
	MD5         string                     `json:"md5,omitempty"`
	Known       string                     `json:"known"`
	Source      string                     `json:"source"`
	CarveOffset *int64                     `json:"carve_offset,omitempty"`
	Attributes  map[string]json.RawMessage `json:"attributes,omitempty"`
}

func (m *summary) Run(ctx context.Context, _ queue.Task) (pipeline.Status, error) {
	report, err := m.build(ctx)
	if err != nil {
		return pipeline.StatusFail, err
	}
	if err := m.fs.MkdirAll(m.outDir, 0o755); err != nil {
		return pipeline.StatusFail, err
	}
	if m.writeJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return pipeline.StatusFail, fmt.Errorf("marshal report: %w", err)
		}
		if err := afero.WriteFile(m.fs, filepath.Join(m.outDir, ReportJSONName), append(data, '\n'), 0o644); err != nil {
			return pipeline.StatusFail, fmt.Errorf("write %s: %w", ReportJSONName, err)
		}
	}
	if m.writeText {
		if err := afero.WriteFile(m.fs, filepath.Join(m.outDir, ReportTextName), []byte(renderReport(report)), 0o644); err != nil {
			return pipeline.StatusFail, fmt.Errorf("write %s: %w", ReportTextName, err)
		}
	}
	m.logger.Info("report written",
		logging.String(logging.FieldEventType, "report_written"),
		logging.Int("files", report.Totals.Files),
		logging.String("output_dir", m.outDir),
	)
	return pipeline.StatusOK, nil
}

func (m *summary) build(ctx context.Context) (Report, error) {
	files, err := m.store.Files(ctx)
	if err != nil {
		return Report{}, err
	}
	attrs, err := m.store.AllAttributes(ctx)
	if err != nil {
		return Report{}, err
	}
	byFile := make(map[int64]map[string]json.RawMessage)
	for _, a := range attrs {
		if byFile[a.FileID] == nil {
			byFile[a.FileID] = make(map[string]json.RawMessage)
		}
		byFile[a.FileID][a.Name] = a.Value
	}

	report := Report{Files: make([]ReportFile, 0, len(files)), CaseAttributes: byFile[0]}
	if m.image != nil {
		report.Image = m.image.Path()
	}
	for _, f := range files {
		row := ReportFile{
			ID:         f.ID,
			Path:       f.FullPath(),
			Size:       f.Size,
			MD5:        f.MD5,
			Known:      string(f.Known),
			Source:     string(f.Source),
			Attributes: byFile[f.ID],
		}
		report.Totals.Files++
		report.Totals.Bytes += f.Size
		switch f.Source {
		case casedb.SourceCarved:
			report.Totals.Carved++
			offset := f.CarveOffset
			row.CarveOffset = &offset
		default:
			report.Totals.Filesystem++
		}
		switch f.Known {
		case casedb.KnownGood:
			report.Totals.Known++
		case casedb.KnownBad:
			report.Totals.KnownBad++
		}
		report.Files = append(report.Files, row)
	}
	return report, nil
}

func renderReport(r Report) string {
	var b strings.Builder
	b.WriteString("Triage Report\n")
	if r.Image != "" {
		fmt.Fprintf(&b, "Image: %s\n", r.Image)
	}
	fmt.Fprintf(&b, "Files: %d (%s)\n", r.Totals.Files, humanize.Bytes(uint64(max(r.Totals.Bytes, 0))))
	fmt.Fprintf(&b, "  %s: %d\n", textutil.Label(string(casedb.SourceFilesystem)), r.Totals.Filesystem)
	fmt.Fprintf(&b, "  %s: %d\n", textutil.Label(string(casedb.SourceCarved)), r.Totals.Carved)
	fmt.Fprintf(&b, "  %s: %d\n", textutil.Label(string(casedb.KnownGood)), r.Totals.Known)
	fmt.Fprintf(&b, "  %s: %d\n", textutil.Label(string(casedb.KnownBad)), r.Totals.KnownBad)
	if len(r.Files) == 0 {
		return b.String()
	}

	rows := make([][]string, 0, len(r.Files))
	for _, f := range r.Files {
		rows = append(rows, []string{
			strconv.FormatInt(f.ID, 10),
			f.Path,
			humanize.Bytes(uint64(max(f.Size, 0))),
			f.MD5,
			f.Known,
			attrString(f.Attributes, AttrMIME),
			f.Source,
		})
	}
	b.WriteString("\n")
	b.WriteString(textutil.RenderTable(
		[]string{"ID", "Path", "Size", "MD5", "Known", "MIME", "Source"},
		rows,
		[]textutil.Align{textutil.AlignRight, textutil.AlignLeft, textutil.AlignRight},
	))
	b.WriteString("\n")
	return b.String()
}

func attrString(attrs map[string]json.RawMessage, name string) string {
	raw, ok := attrs[name]
	if !ok {
		return ""
	}
	return casedb.Attribute{Name: name, Value: raw}.String()
}
