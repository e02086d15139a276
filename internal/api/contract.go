package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/star/ascas/internal/resolver"
	"github.com/star/ascas/internal/transform"
)

// Units is the length unit of every position in a response.
const Units = "km"

// Identifier is a catalog identifier as submitted. It decodes from a JSON
// string or a bare JSON number; validation is left to the resolver.
type Identifier string

func (id *Identifier) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*id = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = Identifier(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("identifier must be a string or number: %w", err)
	}
	*id = Identifier(n.String())
	return nil
}

// PositionsRequest is the body of POST /api/v1/positions. Only Sat1ID and
// Sat2ID are required.
type PositionsRequest struct {
	Sat1ID      Identifier `json:"sat1Id"`
	Sat2ID      Identifier `json:"sat2Id"`
	Epoch       string     `json:"epoch,omitempty"`
	StepSeconds int64      `json:"stepSeconds,omitempty"`
	Horizon     int        `json:"horizon,omitempty"`
	Frame       string     `json:"frame,omitempty"`
}

// PositionsResponse is a successful two-object answer.
type PositionsResponse struct {
	RequestID   string                 `json:"requestId"`
	Epoch       time.Time              `json:"epoch"`
	Frame       transform.Frame        `json:"frame"`
	Units       string                 `json:"units"`
	StepSeconds int64                  `json:"stepSeconds"`
	Horizon     int                    `json:"horizon"`
	Sat1        *resolver.ObjectResult `json:"sat1"`
	Sat2        *resolver.ObjectResult `json:"sat2"`
}

// ObjectResponse is a successful single-object answer.
type ObjectResponse struct {
	RequestID   string                 `json:"requestId"`
	Epoch       time.Time              `json:"epoch"`
	Frame       transform.Frame        `json:"frame"`
	Units       string                 `json:"units"`
	StepSeconds int64                  `json:"stepSeconds"`
	Horizon     int                    `json:"horizon"`
	Object      *resolver.ObjectResult `json:"object"`
}

// ObjectErrorBody describes why one slot failed.
type ObjectErrorBody struct {
	Identifier string        `json:"identifier"`
	CatalogID  int           `json:"catalogId,omitempty"`
	Kind       resolver.Kind `json:"kind"`
	Message    string        `json:"message"`
}

// ErrorResponse is the body of every failed query. On a partial failure the
// successful slot and the query parameters are still present.
type ErrorResponse struct {
	RequestID   string                 `json:"requestId"`
	Error       string                 `json:"error"`
	Kind        resolver.Kind          `json:"kind"`
	Sat1Error   *ObjectErrorBody       `json:"sat1Error,omitempty"`
	Sat2Error   *ObjectErrorBody       `json:"sat2Error,omitempty"`
	Epoch       *time.Time             `json:"epoch,omitempty"`
	Frame       transform.Frame        `json:"frame,omitempty"`
	Units       string                 `json:"units,omitempty"`
	StepSeconds int64                  `json:"stepSeconds,omitempty"`
	Horizon     int                    `json:"horizon,omitempty"`
	Sat1        *resolver.ObjectResult `json:"sat1,omitempty"`
	Sat2        *resolver.ObjectResult `json:"sat2,omitempty"`
}

// ConjunctionResponse is the answer of GET /api/v1/conjunction.
type ConjunctionResponse struct {
	RequestID             string    `json:"requestId"`
	Sat1                  int       `json:"sat1"`
	Sat2                  int       `json:"sat2"`
	Start                 time.Time `json:"start"`
	End                   time.Time `json:"end"`
	TimeOfClosestApproach time.Time `json:"timeOfClosestApproach"`
	MissDistanceKm        float64   `json:"missDistanceKm"`
	RelativeSpeedKmS      float64   `json:"relativeSpeedKmS"`
	Samples               int       `json:"samples"`
	Units                 string    `json:"units"`
	LocalMinima           []Minimum `json:"localMinima"`
}

// Minimum is one refined local minimum of the separation.
type Minimum struct {
	Time             time.Time `json:"time"`
	DistanceKm       float64   `json:"distanceKm"`
	RelativeSpeedKmS float64   `json:"relativeSpeedKmS"`
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind resolver.Kind) int {
	switch kind {
	case resolver.KindInvalidInput:
		return http.StatusBadRequest
	case resolver.KindNotFound:
		return http.StatusNotFound
	case resolver.KindUpstreamFailure:
		return http.StatusBadGateway
	case resolver.KindPropagationFailed:
		return http.StatusUnprocessableEntity
	case resolver.KindPartialFailure:
		return http.StatusMultiStatus
	}
	return http.StatusInternalServerError
}

func objectErrorBody(oe *resolver.ObjectError) *ObjectErrorBody {
	if oe == nil {
		return nil
	}
	return &ObjectErrorBody{
		Identifier: oe.Identifier,
		CatalogID:  oe.CatalogID,
		Kind:       oe.Kind,
		Message:    oe.Err.Error(),
	}
}

// errorResponse renders a QueryError, including the partial result if any.
func errorResponse(requestID string, qe *resolver.QueryError) ErrorResponse {
	resp := ErrorResponse{
		RequestID: requestID,
		Error:     qe.Error(),
		Kind:      qe.Kind,
		Sat1Error: objectErrorBody(qe.ForSlot(resolver.SlotFirst)),
		Sat2Error: objectErrorBody(qe.ForSlot(resolver.SlotSecond)),
	}
	if p := qe.Partial; p != nil {
		epoch := p.Epoch
		resp.Epoch = &epoch
		resp.Frame = p.Frame
		resp.Units = Units
		resp.StepSeconds = int64(p.Step / time.Second)
		resp.Horizon = p.Horizon
		resp.Sat1 = p.First
		resp.Sat2 = p.Second
	}
	return resp
}
