package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/3leaps/gopathways/pkg/grid"
)

// DefaultRange covers every row of the first sheet.
const DefaultRange = "1:1000000"

// SheetsConfig configures SheetsSource.
type SheetsConfig struct {
	// CredentialsFile is a service-account key file.
	CredentialsFile string

	// CredentialsJSON is an inline service-account key. It wins over
	// CredentialsFile. When both are empty, GOOGLE_APPLICATION_CREDENTIALS_JSON
	// and then application default credentials are used.
	CredentialsJSON string

	// RateLimit caps API calls per second. Zero means unlimited.
	RateLimit float64

	// Range is the default A1 range for refs without one.
	Range string

	// Endpoint overrides the API endpoint (tests, proxies).
	Endpoint string
}

// SheetsSource reads grids with spreadsheets.values.get.
type SheetsSource struct {
	svc     *sheets.Service
	limiter *rate.Limiter
	rng     string
	log     *zap.Logger
}

// NewSheetsSource builds a read-only Sheets client.
func NewSheetsSource(ctx context.Context, cfg SheetsConfig, log *zap.Logger, extra ...option.ClientOption) (*SheetsSource, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		log = zap.NewNop()
	}

	opts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsReadonlyScope)}
	opts = append(opts, credentialOptions(cfg)...)
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	opts = append(opts, extra...)

	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}

	s := &SheetsSource{svc: svc, rng: cfg.Range, log: log}
	if s.rng == "" {
		s.rng = DefaultRange
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return s, nil
}

func credentialOptions(cfg SheetsConfig) []option.ClientOption {
	creds := strings.TrimSpace(cfg.CredentialsJSON)
	if creds == "" {
		creds = strings.TrimSpace(cfg.CredentialsFile)
	}
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

// FetchGrid returns the formatted cell values of ref. Trailing empty cells
// are omitted by the API, so rows may be shorter than the header.
func (s *SheetsSource) FetchGrid(ctx context.Context, ref Ref) (grid.Grid, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(ref.ID) == "" {
		return nil, errors.New("spreadsheet id is required")
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	rng := ref.Range
	if rng == "" {
		rng = s.rng
	}

	resp, err := s.svc.Spreadsheets.Values.Get(ref.ID, rng).
		MajorDimension("ROWS").
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return nil, fmt.Errorf("%w: spreadsheet %s", ErrNotFound, ref.ID)
		}
		return nil, fmt.Errorf("get values %s!%s: %w", ref.ID, rng, err)
	}

	g := make(grid.Grid, 0, len(resp.Values))
	for _, row := range resp.Values {
		cells := make([]string, len(row))
		for i, v := range row {
			if v != nil {
				cells[i] = fmt.Sprint(v)
			}
		}
		g = append(g, cells)
	}

	s.log.Debug("Read spreadsheet values",
		zap.String("source", ref.String()),
		zap.String("range", resp.Range),
		zap.Int("rows", len(g)))
	return g, nil
}
