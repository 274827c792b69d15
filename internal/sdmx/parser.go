package sdmx

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/osservatorio-istat/osservatorio/internal/analytics"
)

// MaxObservations caps the number of observations extracted from a
// single payload. Ingestion truncates and logs a warning beyond this.
const MaxObservations = 10000

// Parse walks raw as SDMX 2.1 XML and returns up to MaxObservations
// observation records for datasetID. It never returns an error: a
// malformed payload yields a single sentinel error observation per
// spec, with parse_error and a raw_data_sample of the first 500 bytes.
func Parse(datasetID string, raw []byte, now time.Time) ([]analytics.Observation, bool) {
	dec := xml.NewDecoder(bytes.NewReader(raw))

	var obs []analytics.Observation
	truncated := false

	for {
		if len(obs) >= MaxObservations {
			truncated = true
			break
		}

		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return []analytics.Observation{sentinelError(datasetID, err, raw, now)}, false
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		if !isObsElement(start.Name) {
			continue
		}

		record, err := decodeObservation(dec, start, len(obs)+1, now)
		if err != nil {
			return []analytics.Observation{sentinelError(datasetID, err, raw, now)}, false
		}
		record.DatasetID = datasetID
		obs = append(obs, record)
	}

	if len(obs) == 0 {
		if rec, ok := numericFallback(raw, datasetID, now); ok {
			return []analytics.Observation{rec}, false
		}
	}

	return obs, truncated
}

// isObsElement matches the namespace-tolerant fallback chain from
// spec §4.4: encoding/xml resolves "gen:Obs"/"generic:Obs"/"com:Observation"
// prefixes to their full namespace URI, so in practice every tier of
// the chain collapses to a local-name comparison against Obs/Observation.
func isObsElement(name xml.Name) bool {
	local := localName(name.Local)
	return local == "Obs" || local == "Observation"
}

func localName(s string) string {
	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		return s[idx+1:]
	}
	return s
}

// decodeObservation extracts ObsValue/ObsDimension(TIME_PERIOD) and
// folds every child's attributes (ObsValue and ObsDimension included)
// into additional_attributes, keyed "<lower(child_tag)>_<lower(attr_key)>",
// per spec §4.4. The Obs element's own attributes are keyed "obs_<lower(attr_key)>".
func decodeObservation(dec *xml.Decoder, start xml.StartElement, recordID int, now time.Time) (analytics.Observation, error) {
	rec := analytics.Observation{
		RecordID:             int64(recordID),
		AdditionalAttributes: map[string]any{},
		IngestionTimestamp:   now,
	}

	for _, attr := range start.Attr {
		key := "obs_" + strings.ToLower(localName(attr.Name.Local))
		rec.AdditionalAttributes[key] = attr.Value
	}

	var textContent strings.Builder
	depth := 0

	for {
		tok, err := dec.Token()
		if err != nil {
			return rec, fmt.Errorf("decoding observation: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			childLocal := localName(t.Name.Local)
			childLower := strings.ToLower(childLocal)

			for _, attr := range t.Attr {
				if childLocal == "ObsValue" && strings.EqualFold(attr.Name.Local, "value") {
					rec.ObsValue = attr.Value
				}
				key := childLower + "_" + strings.ToLower(localName(attr.Name.Local))
				rec.AdditionalAttributes[key] = attr.Value
			}

			if childLocal == "ObsDimension" {
				var id, value string
				for _, attr := range t.Attr {
					switch strings.ToLower(localName(attr.Name.Local)) {
					case "id":
						id = attr.Value
					case "value":
						value = attr.Value
					}
				}
				if id == "TIME_PERIOD" {
					rec.TimePeriod = value
				}
			}

		case xml.EndElement:
			if depth == 0 {
				if rec.ObsValue == "" {
					trimmed := strings.TrimSpace(textContent.String())
					if trimmed != "" {
						rec.AdditionalAttributes["raw_text"] = trimmed
					}
				}
				return rec, nil
			}
			depth--

		case xml.CharData:
			if depth == 0 {
				textContent.Write(t)
			}
		}
	}
}

// numericFallback is the last-resort tier: scan for any element whose
// text content parses as a number and treat it as a single observation.
func numericFallback(raw []byte, datasetID string, now time.Time) (analytics.Observation, bool) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	var current string

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.CharData:
			current = strings.TrimSpace(string(t))
			if current == "" {
				continue
			}
			if _, err := strconv.ParseFloat(current, 64); err == nil {
				return analytics.Observation{
					DatasetID:          datasetID,
					RecordID:           1,
					ObsValue:           current,
					AdditionalAttributes: map[string]any{"raw_text": current},
					IngestionTimestamp: now,
				}, true
			}
		}
	}
	return analytics.Observation{}, false
}

// sentinelError builds the single error record emitted on an
// unrecoverable parse failure, per spec §4.4.
func sentinelError(datasetID string, parseErr error, raw []byte, now time.Time) analytics.Observation {
	sample := raw
	if len(sample) > 500 {
		sample = sample[:500]
	}
	return analytics.Observation{
		DatasetID:          datasetID,
		RecordID:           1,
		IngestionTimestamp: now,
		AdditionalAttributes: map[string]any{
			"parse_error":     parseErr.Error(),
			"raw_data_sample": string(sample),
		},
	}
}
