package nlu

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"parts-order-bot/internal/domain"
)

const minModelYear = 1950

var (
	vinPattern = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{17}$`)
	hsnPattern = regexp.MustCompile(`^[0-9]{4}$`)
	tsnPattern = regexp.MustCompile(`^[A-Z0-9]{3}$`)
)

type wireResult struct {
	Intent                   string      `json:"intent"`
	Language                 string      `json:"language"`
	Vehicle                  wireVehicle `json:"vehicle"`
	Part                     wirePart    `json:"part"`
	FrustrationSignal        bool        `json:"frustrationSignal"`
	InvalidatedVehicleFields []string    `json:"invalidatedVehicleFields"`
}

type wireVehicle struct {
	VIN    string `json:"vin"`
	HSN    string `json:"hsn"`
	TSN    string `json:"tsn"`
	Make   string `json:"make"`
	Model  string `json:"model"`
	Year   string `json:"year"`
	Engine string `json:"engine"`
}

type wirePart struct {
	Category           string `json:"partCategory"`
	Position           string `json:"position"`
	PartText           string `json:"partText"`
	NormalizedPartName string `json:"normalizedPartName"`
	PositionNeeded     *bool  `json:"positionNeeded"`
}

// parseResult decodes and validates a model response. Structural problems
// fail the whole response; a single unusable slot value is dropped and
// reported in InvalidSlots.
func parseResult(raw string, now time.Time) (Result, error) {
	var w wireResult
	dec := json.NewDecoder(bytes.NewBufferString(strings.TrimSpace(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return Result{}, fmt.Errorf("nlu: decode extraction: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return Result{}, errors.New("nlu: decode extraction: multiple JSON values")
		}
		return Result{}, fmt.Errorf("nlu: decode extraction trailing data: %w", err)
	}

	intent := strings.TrimSpace(w.Intent)
	if intent == "" {
		return Result{}, errors.New("nlu: extraction missing intent")
	}
	lang := domain.Language(strings.ToLower(strings.TrimSpace(w.Language)))
	if lang != "" && !lang.Valid() {
		return Result{}, fmt.Errorf("nlu: unsupported language %q", w.Language)
	}
	invalidated := make([]string, 0, len(w.InvalidatedVehicleFields))
	for _, f := range w.InvalidatedVehicleFields {
		f = strings.ToLower(strings.TrimSpace(f))
		if !domain.IsVehicleField(f) {
			return Result{}, fmt.Errorf("nlu: unknown vehicle field %q", f)
		}
		invalidated = append(invalidated, f)
	}

	vehicle, invalid := validateVehicle(w.Vehicle, now)
	return Result{
		Intent:                   intent,
		Language:                 lang,
		Vehicle:                  vehicle,
		Part:                     partUpdate(w.Part),
		FrustrationSignal:        w.FrustrationSignal,
		InvalidatedVehicleFields: invalidated,
		InvalidSlots:             invalid,
	}, nil
}

func validateVehicle(w wireVehicle, now time.Time) (domain.Vehicle, []string) {
	var invalid []string
	v := domain.Vehicle{
		Make:   strings.TrimSpace(w.Make),
		Model:  strings.TrimSpace(w.Model),
		Engine: strings.TrimSpace(w.Engine),
	}

	if vin := normalizeCode(w.VIN); vin != "" {
		if vinPattern.MatchString(vin) {
			v.VIN = vin
		} else {
			invalid = append(invalid, domain.VehicleFieldVIN)
		}
	}
	if hsn := normalizeCode(w.HSN); hsn != "" {
		if hsnPattern.MatchString(hsn) {
			v.HSN = hsn
		} else {
			invalid = append(invalid, domain.VehicleFieldHSN)
		}
	}
	if tsn := normalizeCode(w.TSN); tsn != "" {
		if tsnPattern.MatchString(tsn) {
			v.TSN = tsn
		} else {
			invalid = append(invalid, domain.VehicleFieldTSN)
		}
	}
	if y := strings.TrimSpace(w.Year); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil || year < minModelYear || year > now.Year()+1 {
			invalid = append(invalid, domain.VehicleFieldYear)
		} else {
			v.Year = year
		}
	}
	return v, invalid
}

func partUpdate(w wirePart) domain.PartUpdate {
	return domain.PartUpdate{
		Category:       strings.ToLower(strings.TrimSpace(w.Category)),
		Position:       strings.ToLower(strings.TrimSpace(w.Position)),
		Text:           strings.TrimSpace(w.PartText),
		NormalizedName: strings.TrimSpace(w.NormalizedPartName),
		PositionNeeded: w.PositionNeeded,
	}
}

func normalizeCode(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "-", "").Replace(s)
}
