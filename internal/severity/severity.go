// Package severity derives a normalized severity tier from the scoring data
// carried by an OSV advisory.
package severity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/depscan/depscan/pkg/models"
	gocvss20 "github.com/pandatix/go-cvss/20"
	gocvss30 "github.com/pandatix/go-cvss/30"
	gocvss31 "github.com/pandatix/go-cvss/31"
	gocvss40 "github.com/pandatix/go-cvss/40"
)

// Vector types as they appear in the OSV "severity" array.
const (
	TypeCVSSV2 = "CVSS_V2"
	TypeCVSSV3 = "CVSS_V3"
	TypeCVSSV4 = "CVSS_V4"
)

var ErrUnsupportedType = errors.New("unsupported severity type")

// Vector is a single scoring entry of an advisory.
type Vector struct {
	Type  string `json:"type"`
	Score string `json:"score"`
}

// CalculateScore returns the base score and rating of a CVSS vector.
// A score of -1 means no score could be computed.
func CalculateScore(v Vector) (float64, string, error) {
	score := -1.0
	rating := string(models.SeverityUnknown)
	var err error
	switch v.Type {
	case TypeCVSSV2:
		var vec *gocvss20.CVSS20
		vec, err = gocvss20.ParseVector(v.Score)
		if err == nil {
			score = vec.BaseScore()
			// CVSS 2.0 has no qualitative scale of its own
			rating, err = gocvss30.Rating(score)
		}
	case TypeCVSSV3:
		switch {
		case strings.HasPrefix(v.Score, "CVSS:3.0"):
			var vec *gocvss30.CVSS30
			vec, err = gocvss30.ParseVector(v.Score)
			if err == nil {
				score = vec.BaseScore()
				rating, err = gocvss30.Rating(score)
			}
		case strings.HasPrefix(v.Score, "CVSS:3.1"):
			var vec *gocvss31.CVSS31
			vec, err = gocvss31.ParseVector(v.Score)
			if err == nil {
				score = vec.BaseScore()
				rating, err = gocvss31.Rating(score)
			}
		default:
			err = fmt.Errorf("unrecognised CVSS v3 vector %q", v.Score)
		}
	case TypeCVSSV4:
		var vec *gocvss40.CVSS40
		vec, err = gocvss40.ParseVector(v.Score)
		if err == nil {
			score = vec.Score()
			rating, err = gocvss40.Rating(score)
		}
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedType, v.Type)
	}

	if err != nil {
		return -1, string(models.SeverityUnknown), err
	}

	return score, rating, nil
}

// CalculateOverallScore returns the highest score among vectors. Vectors that
// cannot be scored are skipped; the error of the last such vector is returned
// only when none could be scored.
func CalculateOverallScore(vectors []Vector) (float64, string, error) {
	maxScore := -1.0
	maxRating := string(models.SeverityUnknown)
	var lastErr error

	for _, v := range vectors {
		score, rating, err := CalculateScore(v)
		if err != nil {
			lastErr = err
			continue
		}
		if score > maxScore {
			maxScore = score
			maxRating = rating
		}
	}

	if maxScore < 0 && lastErr != nil {
		return -1, string(models.SeverityUnknown), lastErr
	}

	return maxScore, maxRating, nil
}

// CalculateRating converts a bare numeric score to a tier.
func CalculateRating(score string) (models.Severity, error) {
	parsed, err := strconv.ParseFloat(score, 64)
	if err != nil {
		return models.SeverityUnknown, err
	}

	return ratingToSeverity(gocvss30.Rating(parsed))
}

// Normalize picks the severity of an advisory. An explicit label wins over
// computed scores; the first label that parses is used. Without a usable label
// the highest CVSS score decides. The returned score is nil when no vector
// could be scored.
func Normalize(labels []string, vectors []Vector) (models.Severity, *float64) {
	var score *float64
	if s, _, err := CalculateOverallScore(vectors); err == nil && s >= 0 {
		score = &s
	}

	for _, label := range labels {
		if label == "" {
			continue
		}
		if sev, err := models.ParseSeverity(label); err == nil && sev != models.SeverityUnknown {
			return sev, score
		}
	}

	if score == nil {
		return models.SeverityUnknown, nil
	}

	sev, err := ratingToSeverity(gocvss30.Rating(*score))
	if err != nil {
		return models.SeverityUnknown, score
	}

	return sev, score
}

func ratingToSeverity(rating string, err error) (models.Severity, error) {
	if err != nil {
		return models.SeverityUnknown, err
	}
	if rating == "NONE" {
		return models.SeverityUnknown, nil
	}

	return models.ParseSeverity(rating)
}
