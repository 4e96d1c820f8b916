package spreadsheet

import (
	"context"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/scout/backend/internal/domain/pipeline"
	"github.com/scout/backend/internal/infrastructure/logger"
	"github.com/scout/backend/internal/infrastructure/telemetry"
)

// Sheet and column names of the pipeline workbook.
const (
	SheetPipeline    = "Pipeline"
	SheetAssignments = "Account Assignments"

	ColDealName       = "Deal Name"
	ColDealStage      = "Deal Stage"
	ColTotalAmount    = "Total Amount"
	ColQuarter        = "Quarter to Close"
	ColDealOwner      = "Deal Owner"
	ColDealType       = "Deal Type"
	ColVertical       = "Vertical"
	ColAccount        = "Commercial Accounts"
	ColSalesManager   = "Sales Manager"
	ColAccountManager = "Account Manager"
)

var (
	weightedColumns    = []string{"Weighted Amount Conservative", "Weighted Amount Conseervative", "Weighted Conservative"}
	probabilityColumns = []string{"Conservative Probability", "Probability"}
	quarterPattern     = regexp.MustCompile(`Q([1-4])'(\d{2})`)
)

// ParseSummary totals the parsed deals. Pipeline and weighted totals cover
// open deals; the per-type weighted totals cover every deal.
type ParseSummary struct {
	TotalDeals          int             `json:"total_deals"`
	ClosedWon           int             `json:"closed_won"`
	ClosedLost          int             `json:"closed_lost"`
	Active              int             `json:"active"`
	AccountAssignments  int             `json:"account_assignments"`
	TotalPipeline       decimal.Decimal `json:"total_pipeline"`
	TotalWeightedValue  decimal.Decimal `json:"total_weighted_value"`
	RenewalWeighted     decimal.Decimal `json:"renewal_weighted"`
	UpsellWeighted      decimal.Decimal `json:"upsell_weighted"`
	NewBusinessWeighted decimal.Decimal `json:"new_business_weighted"`
}

// ParseResult is what an upload yields: candidate deals ready for a
// preview, owner assignments, totals and the rows that could not be read.
type ParseResult struct {
	Deals       []pipeline.CandidateDeal   `json:"deals"`
	Assignments []pipeline.OwnerAssignment `json:"account_assignments"`
	Summary     ParseSummary               `json:"summary"`
	Errors      []RowError                 `json:"errors"`
	TotalErrors int                        `json:"total_errors"`
	Truncated   bool                       `json:"truncated,omitempty"`
	Columns     []string                   `json:"columns"`
}

// PipelineParser turns a pipeline workbook into candidate deals.
type PipelineParser struct {
	maxFileSize int64
	maxErrors   int
	logger      *zap.Logger
}

// ParserOption configures a PipelineParser
type ParserOption func(*PipelineParser)

func WithMaxFileSize(n int64) ParserOption {
	return func(p *PipelineParser) { p.maxFileSize = n }
}

func WithMaxErrors(n int) ParserOption {
	return func(p *PipelineParser) { p.maxErrors = n }
}

func WithLogger(l *zap.Logger) ParserOption {
	return func(p *PipelineParser) { p.logger = l }
}

func NewPipelineParser(opts ...ParserOption) *PipelineParser {
	p := &PipelineParser{
		maxFileSize: 10 << 20,
		maxErrors:   100,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse reads the upload. File level problems (unreadable file, missing
// Pipeline sheet or Deal Name column) are returned as errors; bad cells are
// reported per row and the row is left out.
func (p *PipelineParser) Parse(ctx context.Context, filename string, r io.Reader) (*ParseResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "spreadsheet", "parse_pipeline")
	defer span.End()

	wb, err := ReadWorkbook(filename, r, p.maxFileSize, SheetPipeline)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	sheet, ok := wb.Sheet(SheetPipeline)
	if !ok {
		err := &MissingSheetError{Sheet: SheetPipeline}
		telemetry.RecordError(span, err)
		return nil, err
	}

	errs := NewErrorCollection(p.maxErrors)
	deals, err := p.parseDeals(sheet, errs)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var assignments []pipeline.OwnerAssignment
	if t, ok := wb.Sheet(SheetAssignments); ok {
		assignments = parseAssignments(t)
	}
	if assignments == nil {
		assignments = []pipeline.OwnerAssignment{}
	}

	result := &ParseResult{
		Deals:       deals,
		Assignments: assignments,
		Summary:     summarize(deals, len(assignments)),
		Errors:      errs.Errors(),
		TotalErrors: errs.TotalCount(),
		Truncated:   errs.IsTruncated(),
		Columns:     sheet.Headers,
	}

	telemetry.SetAttributes(span,
		"spreadsheet.rows", len(sheet.Rows),
		"spreadsheet.deals", len(deals),
		"spreadsheet.assignments", len(assignments),
		"spreadsheet.errors", errs.TotalCount(),
	)
	logger.L(ctx, p.logger).Info("pipeline workbook parsed",
		zap.String("file", filename),
		zap.Strings("sheets", wb.SheetNames()),
		zap.Int("deals", len(deals)),
		zap.Int("assignments", len(assignments)),
		zap.Int("row_errors", errs.TotalCount()),
	)
	return result, nil
}

type pipelineColumns struct {
	name, stage, amount, quarter, weighted, probability, owner, dealType, vertical int
}

func (p *PipelineParser) parseDeals(t *Table, errs *ErrorCollection) ([]pipeline.CandidateDeal, error) {
	name, ok := t.Column(ColDealName)
	if !ok {
		return nil, &MissingColumnError{Sheet: t.Name, Column: ColDealName}
	}
	col := func(names ...string) int {
		i, _ := t.Column(names...)
		return i
	}
	cols := pipelineColumns{
		name:        name,
		stage:       col(ColDealStage),
		amount:      col(ColTotalAmount),
		quarter:     col(ColQuarter),
		weighted:    col(weightedColumns...),
		probability: col(probabilityColumns...),
		owner:       col(ColDealOwner),
		dealType:    col(ColDealType),
		vertical:    col(ColVertical),
	}

	deals := make([]pipeline.CandidateDeal, 0, len(t.Rows))
	for i, row := range t.Rows {
		if d, ok := p.parseDealRow(t, t.RowNumber(i), row, cols, errs); ok {
			deals = append(deals, d)
		}
	}
	return deals, nil
}

func (p *PipelineParser) parseDealRow(t *Table, rowNum int, row []string, cols pipelineColumns, errs *ErrorCollection) (pipeline.CandidateDeal, bool) {
	dealName := Cell(row, cols.name)
	if dealName == "" {
		return pipeline.CandidateDeal{}, false
	}

	d := pipeline.CandidateDeal{
		DealName:    dealName,
		AccountName: AccountNameFromDeal(dealName),
		SourceRow:   rowNum,
	}
	valid := true

	if v := Cell(row, cols.stage); v != "" {
		d.Stage = pipeline.Some(MapStage(v))
	}
	if v := Cell(row, cols.amount); v != "" {
		amount, err := ParseMoney(v)
		if err != nil {
			errs.AddTypeError(t.Name, rowNum, ColTotalAmount, "an amount", v)
			valid = false
		} else {
			d.Value = pipeline.Some(amount)
		}
	}
	if v := Cell(row, cols.weighted); v != "" {
		amount, err := ParseMoney(v)
		if err != nil {
			errs.AddTypeError(t.Name, rowNum, t.Headers[cols.weighted], "an amount", v)
			valid = false
		} else {
			d.WeightedValue = pipeline.Some(amount)
		}
	}
	if v := Cell(row, cols.probability); v != "" {
		prob, err := ParseProbability(v)
		switch {
		case err != nil:
			errs.AddTypeError(t.Name, rowNum, t.Headers[cols.probability], "a percentage", v)
			valid = false
		case prob < 0 || prob > 100:
			errs.AddRangeError(t.Name, rowNum, t.Headers[cols.probability], 0, 100, v)
			valid = false
		default:
			d.Probability = pipeline.Some(prob)
		}
	}
	if v := Cell(row, cols.quarter); v != "" {
		d.Quarter = pipeline.Some(v)
	}
	if v := Cell(row, cols.owner); v != "" {
		d.Owner = pipeline.Some(v)
	}
	if v := Cell(row, cols.dealType); v != "" {
		d.DealType = pipeline.Some(MapDealType(v))
	}
	if v := Cell(row, cols.vertical); v != "" {
		d.Vertical = pipeline.Some(v)
	}

	if stage, ok := d.Stage.Get(); ok && stage == pipeline.StageClosedWon {
		if q, ok := d.Quarter.Get(); ok {
			if date, ok := QuarterStart(q); ok {
				d.CloseDate = pipeline.Some(date)
			}
		}
	}
	return d, valid
}

func parseAssignments(t *Table) []pipeline.OwnerAssignment {
	account, ok := t.Column(ColAccount)
	if !ok {
		return nil
	}
	sales, _ := t.Column(ColSalesManager)
	manager, _ := t.Column(ColAccountManager)

	var out []pipeline.OwnerAssignment
	for _, row := range t.Rows {
		name := Cell(row, account)
		if name == "" {
			continue
		}
		a := pipeline.OwnerAssignment{AccountName: name}
		if v := Cell(row, sales); v != "" {
			a.SalesManager = pipeline.Some(v)
		}
		if v := Cell(row, manager); v != "" {
			a.AccountManager = pipeline.Some(v)
		}
		out = append(out, a)
	}
	return out
}

func summarize(deals []pipeline.CandidateDeal, assignments int) ParseSummary {
	s := ParseSummary{TotalDeals: len(deals), AccountAssignments: assignments}
	for _, d := range deals {
		stage, _ := d.Stage.Get()
		value, _ := d.Value.Get()
		weighted, _ := d.WeightedValue.Get()

		switch stage {
		case pipeline.StageClosedWon:
			s.ClosedWon++
		case pipeline.StageClosedLost:
			s.ClosedLost++
		default:
			s.Active++
			s.TotalPipeline = s.TotalPipeline.Add(value)
			s.TotalWeightedValue = s.TotalWeightedValue.Add(weighted)
		}

		dealType, ok := d.DealType.Get()
		switch {
		case dealType == pipeline.DealTypeRenewal || dealType == pipeline.DealTypeRecurring:
			s.RenewalWeighted = s.RenewalWeighted.Add(weighted)
		case dealType == pipeline.DealTypeUpsell:
			s.UpsellWeighted = s.UpsellWeighted.Add(weighted)
		case !ok || dealType == pipeline.DealTypeNewBusiness:
			s.NewBusinessWeighted = s.NewBusinessWeighted.Add(weighted)
		}
	}
	return s
}

// MapStage maps the stage labels used in pipeline workbooks onto stages.
// Unknown labels are treated as early-stage discovery.
func MapStage(label string) pipeline.Stage {
	s := strings.ToLower(strings.TrimSpace(label))
	switch {
	case s == "win" || s == "won" || s == "closed won" || s == "closed_won":
		return pipeline.StageClosedWon
	case s == "lost" || s == "closed lost" || s == "closed_lost":
		return pipeline.StageClosedLost
	case strings.Contains(s, "purchasing"), strings.Contains(s, "engaged"), strings.Contains(s, "negotiat"):
		return pipeline.StageNegotiation
	case strings.Contains(s, "proposal"):
		return pipeline.StageProposal
	case strings.Contains(s, "qualif"), strings.Contains(s, "interested"):
		return pipeline.StageQualification
	default:
		return pipeline.StageDiscovery
	}
}

// MapDealType maps deal type labels. Anything unrecognised, including PoC
// and pilot deals, is new business.
func MapDealType(label string) pipeline.DealType {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "recurring":
		return pipeline.DealTypeRecurring
	case "renewal":
		return pipeline.DealTypeRenewal
	case "upsell", "expansion":
		return pipeline.DealTypeUpsell
	default:
		return pipeline.DealTypeNewBusiness
	}
}

// AccountNameFromDeal takes the account from a "Account: Deal" name, or the
// first word when there is no prefix.
func AccountNameFromDeal(dealName string) string {
	if i := strings.Index(dealName, ":"); i > 0 {
		if name := strings.TrimSpace(dealName[:i]); name != "" {
			return name
		}
	}
	if fields := strings.Fields(dealName); len(fields) > 0 {
		return fields[0]
	}
	return "Unknown"
}

// ParseMoney parses an amount, ignoring a currency symbol, thousands
// separators and spaces. "(1,200)" and "$(1,200)" are negative. The result
// is rounded to the stored scale, which also drops float noise from formula
// cells such as 3300.0000000000005.
func ParseMoney(s string) (decimal.Decimal, error) {
	v := strings.NewReplacer("$", "", ",", "", " ", "").Replace(strings.TrimSpace(s))
	negative := false
	if strings.HasPrefix(v, "(") && strings.HasSuffix(v, ")") {
		negative = true
		v = v[1 : len(v)-1]
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q", s)
	}
	if negative {
		d = d.Neg()
	}
	return pipeline.RoundMoney(d), nil
}

// ParseProbability parses "25%", "25" or a fraction such as "0.25" into a
// whole percentage.
func ParseProbability(s string) (int, error) {
	v := strings.TrimSpace(s)
	percent := strings.HasSuffix(v, "%")
	v = strings.TrimSpace(strings.TrimSuffix(v, "%"))
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid probability %q", s)
	}
	if !percent && f <= 1 && f >= 0 {
		f *= 100
	}
	return int(math.Round(f)), nil
}

// QuarterStart returns the first day of a quarter written as Q3'26.
func QuarterStart(q string) (pipeline.Date, bool) {
	m := quarterPattern.FindStringSubmatch(q)
	if m == nil {
		return pipeline.Date{}, false
	}
	quarter, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[2])
	return pipeline.NewDate(2000+year, time.Month((quarter-1)*3+1), 1), true
}
