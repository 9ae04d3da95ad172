package prediction

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/growsmart/internal/domain"
	"github.com/growsmart/internal/pkg/id"
)

const (
	flowRainfall = "rainfall"
	flowCrop     = "crop"
	flowYield    = "yield"
)

// Form inputs arrive as entered by the user. Year, State and Rainfall in the
// crop and yield forms are carried forward from a rainfall result and are
// sent to the oracle exactly as given.

type RainfallInput struct {
	Year  string `json:"year"`
	State string `json:"state"`
}

type CropInput struct {
	Year       string `json:"year"`
	State      string `json:"state"`
	Season     string `json:"season"`
	Area       string `json:"area"`
	Production string `json:"production"`
	Rainfall   string `json:"rainfall"`
	Fertilizer string `json:"fertilizer"`
	Pesticides string `json:"pesticides"`
	Yield      string `json:"yield"`
}

type YieldInput struct {
	Year       string `json:"year"`
	State      string `json:"state"`
	CropName   string `json:"crop_name"`
	Rainfall   string `json:"rainfall"`
	Fertilizer string `json:"fertilizer"`
	Pesticides string `json:"pesticides"`
}

// CarryForward holds the values a rainfall result hands to the crop and yield forms.
type CarryForward struct {
	Year     int     `json:"year"`
	State    string  `json:"state"`
	Rainfall float64 `json:"rainfall"`
}

// Result is a displayed prediction. Saved and SaveError report the history
// write separately; a failed save never hides the prediction.
type Result struct {
	Entry     domain.PredictionEntry `json:"entry"`
	Next      *CarryForward          `json:"next,omitempty"`
	Saved     bool                   `json:"saved"`
	SaveError string                 `json:"save_error,omitempty"`
	SaveErr   error                  `json:"-"`
}

type oracle interface {
	PredictRainfall(ctx context.Context, q domain.RainfallQuery) (float64, error)
	PredictCrop(ctx context.Context, q domain.CropQuery) (string, error)
	PredictYield(ctx context.Context, q domain.YieldQuery) (float64, error)
}

type historyManager interface {
	Append(ctx context.Context, userID string, e domain.PredictionEntry) ([]domain.PredictionEntry, error)
	Loading() bool
	Username() string
}

type ServiceDeps struct {
	Oracle  oracle
	History historyManager
	// Timeout bounds each oracle call.
	Timeout time.Duration
}

// Service runs the three prediction forms of one app session. Each form
// allows one submission in flight; an overlapping submit fails with ErrBusy
// without calling the oracle.
type Service struct {
	oracle  oracle
	history historyManager
	timeout time.Duration

	rainfall atomic.Bool
	crop     atomic.Bool
	yield    atomic.Bool
}

func NewService(deps ServiceDeps) *Service {
	t := deps.Timeout
	if t <= 0 {
		t = 30 * time.Second
	}
	return &Service{oracle: deps.Oracle, history: deps.History, timeout: t}
}

// Pending is the per-form loading indicator.
type Pending struct {
	Rainfall bool `json:"rainfall"`
	Crop     bool `json:"crop"`
	Yield    bool `json:"yield"`
}

// Pending reports which forms have a submission in flight.
func (s *Service) Pending() Pending {
	return Pending{
		Rainfall: s.rainfall.Load(),
		Crop:     s.crop.Load(),
		Yield:    s.yield.Load(),
	}
}

// Submissions are made on behalf of userID. The result is saved to that
// user's history only; if the session changed hands while the oracle was
// answering, the prediction is returned with a save error.

func (s *Service) SubmitRainfall(ctx context.Context, userID string, in RainfallInput) (Result, error) {
	if !s.rainfall.CompareAndSwap(false, true) {
		return Result{}, fmt.Errorf("%s: %w", flowRainfall, domain.ErrBusy)
	}
	defer s.rainfall.Store(false)

	v := newValidator(flowRainfall)
	year := v.year("year", in.Year)
	state := v.text("state", in.State)
	if err := v.err(); err != nil {
		return Result{}, err
	}
	if s.history.Loading() {
		return Result{}, fmt.Errorf("%s: profile data is still loading: %w", flowRainfall, domain.ErrBusy)
	}
	username := s.history.Username()

	octx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	predicted, err := s.oracle.PredictRainfall(octx, domain.RainfallQuery{Year: year, State: state})
	if err != nil {
		return Result{}, fmt.Errorf("predict rainfall: %w", err)
	}

	e := s.newEntry(domain.KindRainfall, year, state)
	e.Username = username
	e.PredictedRainfall = &predicted
	res := s.record(ctx, userID, e)
	res.Next = &CarryForward{Year: year, State: state, Rainfall: predicted}
	return res, nil
}

func (s *Service) SubmitCrop(ctx context.Context, userID string, in CropInput) (Result, error) {
	if !s.crop.CompareAndSwap(false, true) {
		return Result{}, fmt.Errorf("%s: %w", flowCrop, domain.ErrBusy)
	}
	defer s.crop.Store(false)

	v := newValidator(flowCrop)
	q := domain.CropQuery{
		Year:       v.year("year", in.Year),
		State:      v.text("state", in.State),
		Season:     v.text("season", in.Season),
		Area:       v.number("area", in.Area),
		Production: v.number("production", in.Production),
		Rainfall:   v.number("rainfall", in.Rainfall),
		Fertilizer: v.number("fertilizer", in.Fertilizer),
		Pesticides: v.number("pesticides", in.Pesticides),
		Yield:      v.number("yield", in.Yield),
	}
	if err := v.err(); err != nil {
		return Result{}, err
	}

	octx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	predicted, err := s.oracle.PredictCrop(octx, q)
	if err != nil {
		return Result{}, fmt.Errorf("predict crop: %w", err)
	}

	e := s.newEntry(domain.KindCrop, q.Year, q.State)
	e.Season = q.Season
	e.Area = f64(q.Area)
	e.Production = f64(q.Production)
	e.Rainfall = f64(q.Rainfall)
	e.Fertilizer = f64(q.Fertilizer)
	e.Pesticides = f64(q.Pesticides)
	e.Yield = f64(q.Yield)
	e.PredictedCrop = predicted
	return s.record(ctx, userID, e), nil
}

func (s *Service) SubmitYield(ctx context.Context, userID string, in YieldInput) (Result, error) {
	if !s.yield.CompareAndSwap(false, true) {
		return Result{}, fmt.Errorf("%s: %w", flowYield, domain.ErrBusy)
	}
	defer s.yield.Store(false)

	v := newValidator(flowYield)
	q := domain.YieldQuery{
		Year:       v.year("year", in.Year),
		State:      v.text("state", in.State),
		CropName:   v.text("crop_name", in.CropName),
		Rainfall:   v.number("rainfall", in.Rainfall),
		Fertilizer: v.number("fertilizer", in.Fertilizer),
		Pesticides: v.number("pesticides", in.Pesticides),
	}
	if err := v.err(); err != nil {
		return Result{}, err
	}

	octx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	predicted, err := s.oracle.PredictYield(octx, q)
	if err != nil {
		return Result{}, fmt.Errorf("predict yield: %w", err)
	}

	e := s.newEntry(domain.KindYield, q.Year, q.State)
	e.CropName = q.CropName
	e.Rainfall = f64(q.Rainfall)
	e.Fertilizer = f64(q.Fertilizer)
	e.Pesticides = f64(q.Pesticides)
	e.PredictedYield = &predicted
	return s.record(ctx, userID, e), nil
}

func (s *Service) newEntry(kind domain.PredictionKind, year int, state string) domain.PredictionEntry {
	return domain.PredictionEntry{
		ID:        id.New(),
		Kind:      kind,
		Year:      year,
		State:     state,
		CreatedAt: time.Now().UTC(),
	}
}

// record hands e to userID's history. The prediction stands whether or not
// the save succeeds.
func (s *Service) record(ctx context.Context, userID string, e domain.PredictionEntry) Result {
	res := Result{Entry: e}
	if _, err := s.history.Append(ctx, userID, e); err != nil {
		slog.Warn("prediction not saved to history", "kind", e.Kind, "entry_id", e.ID, "err", err)
		res.SaveErr = err
		res.SaveError = err.Error()
		return res
	}
	res.Saved = true
	return res
}

// validator accumulates field problems for one form.
type validator struct {
	flow    string
	missing []string
	invalid []string
}

func newValidator(flow string) *validator { return &validator{flow: flow} }

func (v *validator) text(field, raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		v.missing = append(v.missing, field)
	}
	return s
}

func (v *validator) year(field, raw string) int {
	s := v.text(field, raw)
	if s == "" {
		return 0
	}
	if len(s) != 4 || strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		v.invalid = append(v.invalid, field)
		return 0
	}
	n, _ := strconv.Atoi(s)
	return n
}

func (v *validator) number(field, raw string) float64 {
	s := v.text(field, raw)
	if s == "" {
		return 0
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		v.invalid = append(v.invalid, field)
		return 0
	}
	return n
}

func (v *validator) err() error {
	if len(v.missing) > 0 {
		return domain.NewValidationError(v.flow, "required fields are empty", v.missing...)
	}
	if len(v.invalid) > 0 {
		return domain.NewValidationError(v.flow, "invalid field values", v.invalid...)
	}
	return nil
}

func f64(v float64) *float64 { return &v }
