package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/irfndi/celebrum-forecast/internal/config"
	"github.com/irfndi/celebrum-forecast/internal/logging"
	"github.com/irfndi/celebrum-forecast/internal/models"
)

// Options controls how a price file is parsed.
type Options struct {
	Delimiter        rune
	DateLayout       string
	DecimalSeparator string
	Location         *time.Location
}

// OptionsFromConfig converts the data section of the configuration.
func OptionsFromConfig(cfg config.DataConfig) (Options, error) {
	delimiter, size := utf8.DecodeRuneInString(cfg.Delimiter)
	if size == 0 || size != len(cfg.Delimiter) {
		return Options{}, fmt.Errorf("data.delimiter must be a single character, got %q", cfg.Delimiter)
	}
	if cfg.DecimalSeparator != "." && cfg.DecimalSeparator != "," {
		return Options{}, fmt.Errorf("data.decimal_separator must be \".\" or \",\", got %q", cfg.DecimalSeparator)
	}
	if cfg.DateLayout == "" {
		return Options{}, errors.New("data.date_layout must not be empty")
	}
	loc, err := cfg.Location()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Delimiter:        delimiter,
		DateLayout:       cfg.DateLayout,
		DecimalSeparator: cfg.DecimalSeparator,
		Location:         loc,
	}, nil
}

// Loader reads "date;value" price files into price series.
type Loader struct {
	opts   Options
	logger *logrus.Logger
}

// NewLoader creates a loader.
func NewLoader(opts Options, logger *logrus.Logger) *Loader {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Loader{opts: opts, logger: logger}
}

// LoadFile reads the file at path as the price history of name.
func (l *Loader) LoadFile(name, path string) (*models.PriceSeries, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open price file for %s: %w", name, err)
	}
	defer f.Close()

	series, err := l.Read(name, f)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s from %s: %w", name, path, err)
	}
	return series, nil
}

// Read parses a price file. A leading header row, a byte order mark and blank
// lines are skipped; files listed newest first are reversed.
func (l *Loader) Read(name string, r io.Reader) (*models.PriceSeries, error) {
	reader := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	reader.Comma = l.opts.Delimiter
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var points []models.TimeSeriesPoint
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		line++

		if len(record) < 2 {
			return nil, fmt.Errorf("line %d: expected date and value, got %d fields", line, len(record))
		}

		ts, err := time.ParseInLocation(l.opts.DateLayout, strings.TrimSpace(record[0]), l.opts.Location)
		if err != nil {
			if line == 1 {
				l.logger.WithField("instrument", name).Debug("Skipping header row")
				continue
			}
			return nil, fmt.Errorf("line %d: invalid date %q: %w", line, record[0], err)
		}

		value, err := ParseNumber(record[1], l.opts.DecimalSeparator)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		points = append(points, models.NewTimeSeriesPoint(ts, value))
	}

	if len(points) > 1 && points[0].Timestamp.After(points[len(points)-1].Timestamp) {
		slices.Reverse(points)
	}

	b := models.NewSeriesBuilder(len(points))
	for _, p := range points {
		if err := b.Append(p); err != nil {
			return nil, err
		}
	}
	series, err := models.NewPriceSeriesFromSeries(name, b.Build())
	if err != nil {
		return nil, err
	}

	l.logger.WithFields(logrus.Fields{
		"instrument": name,
		"points":     series.Len(),
	}).Info("Loaded price series")

	return series, nil
}

// ParseNumber parses a locale-formatted number. With "," as decimal separator,
// "." is a thousands separator and is dropped, and vice versa.
func ParseNumber(raw string, decimalSeparator string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")
	switch decimalSeparator {
	case ",":
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	default:
		s = strings.ReplaceAll(s, ",", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", raw, err)
	}
	return d.InexactFloat64(), nil
}
